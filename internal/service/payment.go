package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ridehail/internal/config"
	"ridehail/internal/domain"
	"ridehail/internal/provider/chain"
	"ridehail/internal/provider/gateway"
	"ridehail/internal/repository"
)

// Gateway is the card and bank transfer provider.
type Gateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*gateway.Transaction, error)
	CreateRecipient(ctx context.Context, acct gateway.BankAccount) (string, error)
	Transfer(ctx context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error)
	ValidSignature(body []byte, signature string) bool
}

// PriceSource quotes one unit of a crypto asset in fiat.
type PriceSource interface {
	Price(ctx context.Context, asset domain.CryptoAsset, currency string) (float64, error)
}

// Ensure the real clients satisfy the interfaces.
var (
	_ Gateway     = (*gateway.Client)(nil)
	_ PriceSource = (*chain.PriceFeed)(nil)
)

// cryptoTolerance absorbs price movement between payment and verification.
const cryptoTolerance = 0.01

// ErrNotPayer is returned when a caller acts on someone else's payment.
var ErrNotPayer = fmt.Errorf("%w: not the payer", ErrForbidden)

// PaymentDeps contains the collaborators of PaymentService.
type PaymentDeps struct {
	Transactor repository.Transactor
	Repos      repository.Repos
	Gateway    Gateway
	Verifiers  map[domain.CryptoAsset]chain.Verifier
	Prices     PriceSource
	Notifier   *NotificationService
	Payment    config.PaymentConfig
	Chain      config.ChainConfig
	Logger     *zap.Logger
}

// PaymentService reconciles payments across wallet, cash, gateway and crypto.
type PaymentService struct {
	tx        repository.Transactor
	repos     repository.Repos
	gateway   Gateway
	verifiers map[domain.CryptoAsset]chain.Verifier
	prices    PriceSource
	notifier  *NotificationService
	cfg       config.PaymentConfig
	chainCfg  config.ChainConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(deps PaymentDeps) *PaymentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewNotificationService(nil, nil, nil, "", deps.Logger)
	}
	if deps.Payment.Currency == "" {
		deps.Payment.Currency = "NGN"
	}
	return &PaymentService{
		tx:        deps.Transactor,
		repos:     deps.Repos,
		gateway:   deps.Gateway,
		verifiers: deps.Verifiers,
		prices:    deps.Prices,
		notifier:  deps.Notifier,
		cfg:       deps.Payment,
		chainCfg:  deps.Chain,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// DepositAddress returns where crypto payments for asset are sent.
func (s *PaymentService) DepositAddress(asset domain.CryptoAsset) string {
	switch asset {
	case domain.AssetBTC:
		return s.chainCfg.BTCAddress
	case domain.AssetETH:
		return s.chainCfg.ETHAddress
	case domain.AssetUSDT:
		return s.chainCfg.USDTAddress
	}
	return ""
}

func newReference(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// initiate creates the RIDE_FARE payment inside the ride request transaction.
// Wallet fares are debited here; the other methods stay PENDING.
func (s *PaymentService) initiate(ctx context.Context, r repository.Repos, ride *domain.Ride, split domain.FareSplit, asset domain.CryptoAsset) (*domain.Payment, error) {
	now := s.now()
	p := &domain.Payment{
		ID:        uuid.New().String(),
		RideID:    ride.ID,
		PayerID:   ride.RiderID,
		Purpose:   domain.PurposeRideFare,
		Amount:    split.Total(),
		Currency:  s.cfg.Currency,
		Method:    ride.PaymentMethod,
		Status:    domain.PaymentStatusPending,
		Split:     split,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch ride.PaymentMethod {
	case domain.PaymentMethodWallet:
		if p.Amount > 0 {
			if err := r.Users.Debit(ctx, ride.RiderID, p.Amount); err != nil {
				if errors.Is(err, repository.ErrInsufficientBalance) {
					return nil, ErrWalletInsufficient
				}
				return nil, notFound(err, ErrUserNotFound)
			}
		}
		p.Status = domain.PaymentStatusCompleted
	case domain.PaymentMethodGateway:
		p.Reference = newReference("RIDE")
	case domain.PaymentMethodCrypto:
		p.Asset = asset
		p.DepositAddress = s.DepositAddress(asset)
		if p.DepositAddress == "" || s.verifiers[asset] == nil {
			return nil, ErrUnsupportedAsset
		}
	}

	if err := r.Payments.Create(ctx, p); err != nil {
		return nil, err
	}
	ride.PaymentStatus = p.Status
	return p, nil
}

// startCheckout opens a gateway checkout for a PENDING payment. A failure is
// recorded on the payment and returned.
func (s *PaymentService) startCheckout(ctx context.Context, p *domain.Payment, payer *domain.User) error {
	if s.gateway == nil {
		return ErrGatewayUnavailable
	}
	email := ""
	if payer != nil {
		email = payer.Email
	}
	res, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       email,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Reference:   p.Reference,
		CallbackURL: s.cfg.CallbackURL,
		Metadata: map[string]string{
			"payment_id": p.ID,
			"ride_id":    p.RideID,
			"purpose":    string(p.Purpose),
		},
	})
	if err != nil {
		p.FailureReason = "checkout: " + err.Error()
	} else {
		p.RedirectURL = res.AuthorizationURL
		p.FailureReason = ""
	}
	p.UpdatedAt = s.now()
	if uerr := s.repos.Payments.UpdateIfStatus(ctx, p, domain.PaymentStatusPending); uerr != nil {
		s.logger.Warn("recording checkout failed", zap.String("payment_id", p.ID), zap.Error(uerr))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return nil
}

// completeFare reprices the RIDE_FARE payment at completion and returns the
// earnings to post to the driver. Runs inside the completion transaction.
func (s *PaymentService) completeFare(ctx context.Context, r repository.Repos, ride *domain.Ride, final domain.FareSplit) (*domain.Payment, *domain.Payment, repository.Earnings, error) {
	var earnings repository.Earnings

	p, err := r.Payments.GetRideFare(ctx, ride.ID)
	if err != nil {
		return nil, nil, earnings, notFound(err, ErrPaymentNotFound)
	}
	prev := p.Status
	total := final.Total()
	earnings.Total = final.DriverEarnings
	p.DriverID = ride.DriverID

	var adjustment *domain.Payment
	switch {
	case prev == domain.PaymentStatusCompleted:
		// Charged up front. Only the difference moves.
		delta := round2(total - p.Amount)
		if delta != 0 {
			adjustment, err = s.adjust(ctx, r, p, delta, true)
			if err != nil {
				return nil, nil, earnings, err
			}
		}
		earnings.Available = final.DriverEarnings
	case p.Method == domain.PaymentMethodCash && prev == domain.PaymentStatusPending:
		// Cash changes hands at drop-off; the driver already holds it.
		p.Amount = total
		p.Split = final
		p.Status = domain.PaymentStatusCompleted
	case prev == domain.PaymentStatusFailed:
		// Nothing was collected, so nothing is owed to the driver.
		earnings.Total = 0
	default:
		// The checkout or deposit already asks for p.Amount. The difference
		// waits as an adjustment until that is paid. Split carries the final
		// economics so settlement releases the right earnings.
		delta := round2(total - p.Amount)
		if delta != 0 {
			adjustment, err = s.adjust(ctx, r, p, delta, false)
			if err != nil {
				return nil, nil, earnings, err
			}
		}
		p.Split = final
		earnings.Pending = final.DriverEarnings
	}

	p.UpdatedAt = s.now()
	if err := r.Payments.UpdateIfStatus(ctx, p, prev); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, nil, earnings, fmt.Errorf("%w: payment changed during completion", ErrStateConflict)
		}
		return nil, nil, earnings, err
	}
	ride.PaymentStatus = p.Status
	return p, adjustment, earnings, nil
}

// adjust records a fare difference against orig. When orig is settled the
// difference moves through the wallet at once; otherwise the adjustment stays
// PENDING until orig settles or fails.
func (s *PaymentService) adjust(ctx context.Context, r repository.Repos, orig *domain.Payment, delta float64, settled bool) (*domain.Payment, error) {
	now := s.now()
	adj := &domain.Payment{
		ID:        uuid.New().String(),
		RideID:    orig.RideID,
		PayerID:   orig.PayerID,
		DriverID:  orig.DriverID,
		Purpose:   domain.PurposeFareAdjustment,
		Amount:    math.Abs(delta),
		Currency:  orig.Currency,
		Method:    domain.PaymentMethodWallet,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if settled {
		if err := applyDelta(ctx, r, adj, delta); err != nil {
			return nil, err
		}
	}
	if err := r.Payments.Create(ctx, adj); err != nil {
		return nil, err
	}
	return adj, nil
}

// applyDelta debits an increase from or refunds a decrease to the payer's
// wallet. An increase the wallet cannot cover fails the adjustment; the
// original fare stands.
func applyDelta(ctx context.Context, r repository.Repos, adj *domain.Payment, delta float64) error {
	if delta < 0 {
		if err := r.Users.Credit(ctx, adj.PayerID, -delta); err != nil {
			return err
		}
		adj.Status = domain.PaymentStatusRefunded
		return nil
	}
	err := r.Users.Debit(ctx, adj.PayerID, delta)
	switch {
	case err == nil:
		adj.Status = domain.PaymentStatusCompleted
	case errors.Is(err, repository.ErrInsufficientBalance):
		adj.Status = domain.PaymentStatusFailed
		adj.FailureReason = fmt.Sprintf("wallet balance too low for fare increase of %.2f", delta)
	default:
		return err
	}
	return nil
}

// resolveAdjustments applies the adjustments that waited on fare. The
// difference is the ride's final fare less what fare collected.
func (s *PaymentService) resolveAdjustments(ctx context.Context, r repository.Repos, fare *domain.Payment, ride *domain.Ride, paid bool) ([]*domain.Payment, error) {
	all, err := r.Payments.ListByRide(ctx, ride.ID)
	if err != nil {
		return nil, err
	}
	delta := round2(ride.FinalFare - fare.Amount)

	var out []*domain.Payment
	for _, adj := range all {
		if adj.Purpose != domain.PurposeFareAdjustment || adj.Status != domain.PaymentStatusPending {
			continue
		}
		if paid {
			if err := applyDelta(ctx, r, adj, delta); err != nil {
				return nil, err
			}
		} else {
			adj.Status = domain.PaymentStatusFailed
			adj.FailureReason = "ride fare was not paid"
		}
		adj.UpdatedAt = s.now()
		if err := r.Payments.UpdateIfStatus(ctx, adj, domain.PaymentStatusPending); err != nil {
			return nil, err
		}
		out = append(out, adj)
	}
	return out, nil
}

// cancelFare voids or refunds the RIDE_FARE payment and, when charge is set,
// takes the cancellation fee from the rider's wallet for the driver.
func (s *PaymentService) cancelFare(ctx context.Context, r repository.Repos, ride *domain.Ride, charge bool) (*domain.Payment, error) {
	p, err := r.Payments.GetRideFare(ctx, ride.ID)
	switch {
	case err == nil:
		prev := p.Status
		switch {
		case prev == domain.PaymentStatusCompleted:
			if p.Method != domain.PaymentMethodCash {
				if err := r.Users.Credit(ctx, p.PayerID, p.Amount); err != nil {
					return nil, err
				}
			}
			p.Status = domain.PaymentStatusRefunded
		case !prev.IsFinal():
			p.Status = domain.PaymentStatusFailed
			p.FailureReason = "ride cancelled"
		}
		if p.Status != prev {
			p.UpdatedAt = s.now()
			if err := r.Payments.UpdateIfStatus(ctx, p, prev); err != nil {
				return nil, err
			}
		}
		ride.PaymentStatus = p.Status
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if !charge || ride.CancellationFee <= 0 || ride.DriverID == "" {
		return nil, nil
	}

	now := s.now()
	fee := &domain.Payment{
		ID:        uuid.New().String(),
		RideID:    ride.ID,
		PayerID:   ride.RiderID,
		DriverID:  ride.DriverID,
		Purpose:   domain.PurposeCancellationFee,
		Amount:    ride.CancellationFee,
		Currency:  s.cfg.Currency,
		Method:    domain.PaymentMethodWallet,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = r.Users.Debit(ctx, ride.RiderID, fee.Amount)
	switch {
	case err == nil:
		fee.Status = domain.PaymentStatusCompleted
		if err := r.Drivers.CreditAvailable(ctx, ride.DriverID, fee.Amount, false); err != nil {
			return nil, err
		}
	case errors.Is(err, repository.ErrInsufficientBalance):
		fee.Status = domain.PaymentStatusFailed
		fee.FailureReason = "wallet balance too low for cancellation fee"
	default:
		return nil, err
	}
	if err := r.Payments.Create(ctx, fee); err != nil {
		return nil, err
	}
	return fee, nil
}

// VerifyGateway asks the gateway about reference and settles accordingly.
// Settled payments are returned unchanged.
func (s *PaymentService) VerifyGateway(ctx context.Context, reference string) (*domain.Payment, error) {
	p, err := s.repos.Payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	if p.Method != domain.PaymentMethodGateway {
		return nil, ErrInvalidPaymentMethod
	}
	if p.Status.IsFinal() {
		return p, nil
	}
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}

	txn, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return s.applyGatewayResult(ctx, p, txn.Status, txn.Amount)
}

func (s *PaymentService) applyGatewayResult(ctx context.Context, p *domain.Payment, status string, paid float64) (*domain.Payment, error) {
	switch status {
	case "success":
		if paid+0.005 < p.Amount {
			return s.fail(ctx, p, fmt.Sprintf("underpaid: received %.2f of %.2f", paid, p.Amount))
		}
		return s.settle(ctx, p)
	case "failed", "reversed":
		return s.fail(ctx, p, "gateway reported "+status)
	}
	return p, nil
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// HandleWebhook authenticates a gateway callback by the HMAC of its raw body
// and applies it. Unknown events and references are ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*domain.Payment, error) {
	if s.gateway == nil || signature == "" || !s.gateway.ValidSignature(body, signature) {
		return nil, ErrInvalidSignature
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", ErrValidation)
	}
	if evt.Data.Reference == "" {
		return nil, nil
	}

	p, err := s.repos.Payments.GetByReference(ctx, evt.Data.Reference)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("webhook for unknown reference", zap.String("reference", evt.Data.Reference), zap.String("event", evt.Event))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Status.IsFinal() {
		return p, nil
	}

	paid := decimal.New(evt.Data.Amount, -2).InexactFloat64()
	switch evt.Event {
	case "charge.success":
		return s.applyGatewayResult(ctx, p, "success", paid)
	case "charge.failed":
		return s.fail(ctx, p, "gateway reported failed")
	case "transfer.success":
		return s.settle(ctx, p)
	case "transfer.failed", "transfer.reversed":
		return s.fail(ctx, p, "payout "+strings.TrimPrefix(evt.Event, "transfer."))
	}
	return p, nil
}

// SubmitCryptoTx attaches a transaction hash to a crypto payment and checks it
// on chain. The payment completes once the deposit has enough confirmations;
// until then it is PROCESSING and the same hash may be submitted again.
func (s *PaymentService) SubmitCryptoTx(ctx context.Context, paymentID, payerID, txHash string) (*domain.Payment, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, ErrInvalidTxHash
	}
	p, err := s.repos.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	if p.PayerID != payerID {
		return nil, ErrNotPayer
	}
	if p.Method != domain.PaymentMethodCrypto {
		return nil, ErrInvalidPaymentMethod
	}
	if p.Status.IsFinal() {
		if p.Reference == txHash {
			return p, nil
		}
		return nil, ErrPaymentNotPending
	}
	if p.Reference != "" && p.Reference != txHash {
		return nil, ErrDuplicateTx
	}
	if other, err := s.repos.Payments.GetByReference(ctx, txHash); err == nil && other.ID != p.ID {
		return nil, ErrDuplicateTx
	}
	return s.checkCrypto(ctx, p, txHash)
}

func (s *PaymentService) checkCrypto(ctx context.Context, p *domain.Payment, txHash string) (*domain.Payment, error) {
	verifier := s.verifiers[p.Asset]
	if verifier == nil || s.prices == nil {
		return nil, ErrUnsupportedAsset
	}
	price, err := s.prices.Price(ctx, p.Asset, p.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	expected := chain.Convert(p.Amount, price)

	v, err := verifier.Verify(ctx, txHash, expected, p.DepositAddress)
	if err != nil && !errors.Is(err, chain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}

	p.Reference = txHash
	p.Confirmations = v.Confirmations
	switch {
	case v.Found && !v.Succeeded:
		return s.fail(ctx, p, "transaction failed on chain")
	case v.Found && v.Amount < expected*(1-cryptoTolerance):
		return s.fail(ctx, p, fmt.Sprintf("underpaid: received %.8f of %.8f %s", v.Amount, expected, p.Asset))
	case v.Confirmed(s.chainCfg.RequiredConfirmations):
		return s.settle(ctx, p)
	}

	prev := p.Status
	p.Status = domain.PaymentStatusProcessing
	p.UpdatedAt = s.now()
	if err := s.repos.Payments.UpdateIfStatus(ctx, p, prev); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateTx
		}
		return nil, err
	}
	return p, nil
}

// withinTxRetry runs fn in a transaction, once more if it lost a
// compare-and-set race on the payment or its ride.
func (s *PaymentService) withinTxRetry(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	err := s.tx.WithinTx(ctx, fn)
	if errors.Is(err, repository.ErrConflict) {
		err = s.tx.WithinTx(ctx, fn)
	}
	return err
}

// afterRace resolves a unit that kept losing races. A payment that went final
// meanwhile is returned; otherwise the caller should try again later.
func (s *PaymentService) afterRace(ctx context.Context, id string) (*domain.Payment, error) {
	cur, err := s.repos.Payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status.IsFinal() {
		return cur, nil
	}
	return nil, fmt.Errorf("%w: payment %s is being updated", ErrStateConflict, id)
}

// settle marks p COMPLETED and applies its side effects in one transaction.
// A payment that is already final is returned as stored.
func (s *PaymentService) settle(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	var (
		out      *domain.Payment
		resolved []*domain.Payment
		changed  bool
	)
	err := s.withinTxRetry(ctx, func(ctx context.Context, r repository.Repos) error {
		changed, resolved = false, nil
		cur, err := r.Payments.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		out = cur
		if cur.Status.IsFinal() {
			return nil
		}

		prev := cur.Status
		cur.Status = domain.PaymentStatusCompleted
		cur.Reference = p.Reference
		cur.Confirmations = p.Confirmations
		cur.FailureReason = ""
		cur.UpdatedAt = s.now()
		if err := r.Payments.UpdateIfStatus(ctx, cur, prev); err != nil {
			return err
		}

		switch cur.Purpose {
		case domain.PurposeRideFare:
			ride, err := r.Rides.GetByID(ctx, cur.RideID)
			if err != nil {
				return err
			}
			if ride.Status == domain.RideStatusCompleted && ride.DriverID != "" {
				if err := r.Drivers.CreditAvailable(ctx, ride.DriverID, cur.Split.DriverEarnings, true); err != nil {
					return err
				}
				if resolved, err = s.resolveAdjustments(ctx, r, cur, ride, true); err != nil {
					return err
				}
			}
			ride.PaymentStatus = domain.PaymentStatusCompleted
			if err := r.Rides.UpdateIfStatus(ctx, ride, ride.Status); err != nil {
				return err
			}
		case domain.PurposeWalletTopUp:
			if err := r.Users.Credit(ctx, cur.PayerID, cur.Amount); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if errors.Is(err, repository.ErrConflict) {
		return s.afterRace(ctx, p.ID)
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrDuplicateTx
	}
	if err != nil {
		return nil, err
	}

	if changed {
		settlements.WithLabelValues(string(out.Method), string(out.Status)).Inc()
		s.notifier.NotifyPaymentUpdated(ctx, out)
		for _, adj := range resolved {
			s.notifier.NotifyPaymentUpdated(ctx, adj)
		}
	}
	return out, nil
}

// fail marks p FAILED with reason. Payouts get the driver's balance back;
// a completed ride's fare takes back the driver's pending earnings.
func (s *PaymentService) fail(ctx context.Context, p *domain.Payment, reason string) (*domain.Payment, error) {
	var (
		out      *domain.Payment
		resolved []*domain.Payment
		changed  bool
	)
	err := s.withinTxRetry(ctx, func(ctx context.Context, r repository.Repos) error {
		changed, resolved = false, nil
		cur, err := r.Payments.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		out = cur
		if cur.Status.IsFinal() {
			return nil
		}

		prev := cur.Status
		cur.Status = domain.PaymentStatusFailed
		cur.FailureReason = reason
		if p.Reference != "" {
			cur.Reference = p.Reference
		}
		cur.Confirmations = p.Confirmations
		cur.UpdatedAt = s.now()
		if err := r.Payments.UpdateIfStatus(ctx, cur, prev); err != nil {
			return err
		}

		switch cur.Purpose {
		case domain.PurposeDriverPayout:
			if err := r.Drivers.CreditAvailable(ctx, cur.DriverID, cur.Amount, false); err != nil {
				return err
			}
		case domain.PurposeRideFare:
			ride, err := r.Rides.GetByID(ctx, cur.RideID)
			if err != nil {
				return err
			}
			if ride.Status == domain.RideStatusCompleted && ride.DriverID != "" && cur.Method != domain.PaymentMethodCash {
				if err := r.Drivers.ReversePending(ctx, ride.DriverID, cur.Split.DriverEarnings); err != nil {
					return err
				}
				if resolved, err = s.resolveAdjustments(ctx, r, cur, ride, false); err != nil {
					return err
				}
			}
			ride.PaymentStatus = domain.PaymentStatusFailed
			if err := r.Rides.UpdateIfStatus(ctx, ride, ride.Status); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if errors.Is(err, repository.ErrConflict) {
		return s.afterRace(ctx, p.ID)
	}
	if err != nil {
		return nil, err
	}

	if changed {
		settlements.WithLabelValues(string(out.Method), string(out.Status)).Inc()
		s.logger.Info("payment failed", zap.String("payment_id", out.ID), zap.String("reason", reason))
		s.notifier.NotifyPaymentUpdated(ctx, out)
		for _, adj := range resolved {
			s.notifier.NotifyPaymentUpdated(ctx, adj)
		}
	}
	return out, nil
}

// TopUp opens a gateway checkout that credits the wallet once paid.
func (s *PaymentService) TopUp(ctx context.Context, userID string, amount float64) (*domain.Payment, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}

	now := s.now()
	p := &domain.Payment{
		ID:        uuid.New().String(),
		PayerID:   userID,
		Purpose:   domain.PurposeWalletTopUp,
		Amount:    round2(amount),
		Currency:  s.cfg.Currency,
		Method:    domain.PaymentMethodGateway,
		Status:    domain.PaymentStatusPending,
		Reference: newReference("TOPUP"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Payments.Create(ctx, p); err != nil {
		return nil, err
	}
	if err := s.startCheckout(ctx, p, user); err != nil {
		failed, ferr := s.fail(ctx, p, p.FailureReason)
		if ferr != nil {
			s.logger.Warn("failing top-up", zap.String("payment_id", p.ID), zap.Error(ferr))
			return p, err
		}
		return failed, err
	}
	return p, nil
}

// RequestPayout moves amount from the driver's available balance to their
// bank account. The balance is restored if the gateway refuses the transfer.
func (s *PaymentService) RequestPayout(ctx context.Context, driverID string, amount float64) (*domain.Payment, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if amount < s.cfg.MinPayout || amount <= 0 {
		return nil, ErrPayoutBelowMinimum
	}
	driver, err := s.repos.Drivers.GetByID(ctx, driverID)
	if err != nil {
		return nil, notFound(err, ErrDriverNotFound)
	}
	if driver.Bank == nil || driver.Bank.AccountNumber == "" || driver.Bank.BankCode == "" {
		return nil, ErrNoBankDetails
	}
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}

	now := s.now()
	p := &domain.Payment{
		ID:        uuid.New().String(),
		PayerID:   driverID,
		DriverID:  driverID,
		Purpose:   domain.PurposeDriverPayout,
		Amount:    round2(amount),
		Currency:  s.cfg.Currency,
		Method:    domain.PaymentMethodGateway,
		Status:    domain.PaymentStatusProcessing,
		Reference: newReference("PAYOUT"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if err := r.Drivers.DebitAvailable(ctx, driverID, p.Amount); err != nil {
			return err
		}
		return r.Payments.Create(ctx, p)
	})
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return nil, ErrBalanceInsufficient
	}
	if err != nil {
		return nil, err
	}

	recipient := driver.Bank.RecipientCode
	if recipient == "" {
		recipient, err = s.gateway.CreateRecipient(ctx, gateway.BankAccount{
			Name:          driver.Bank.AccountName,
			AccountNumber: driver.Bank.AccountNumber,
			BankCode:      driver.Bank.BankCode,
			Currency:      p.Currency,
		})
		if err != nil {
			return s.payoutFailed(ctx, p, "recipient: "+err.Error(), err)
		}
		bank := *driver.Bank
		bank.RecipientCode = recipient
		if err := s.repos.Drivers.SetBankDetails(ctx, driverID, &bank); err != nil {
			s.logger.Warn("saving recipient code", zap.String("driver_id", driverID), zap.Error(err))
		}
	}

	res, err := s.gateway.Transfer(ctx, gateway.TransferRequest{
		RecipientCode: recipient,
		Amount:        p.Amount,
		Reference:     p.Reference,
		Reason:        "Driver earnings payout",
	})
	if err != nil {
		return s.payoutFailed(ctx, p, "transfer: "+err.Error(), err)
	}
	switch res.Status {
	case "success":
		return s.settle(ctx, p)
	case "failed", "reversed":
		return s.payoutFailed(ctx, p, "transfer "+res.Status, errors.New(res.Status))
	}
	return p, nil
}

func (s *PaymentService) payoutFailed(ctx context.Context, p *domain.Payment, reason string, cause error) (*domain.Payment, error) {
	failed, err := s.fail(ctx, p, reason)
	if err != nil {
		return nil, err
	}
	return failed, fmt.Errorf("%w: %v", ErrGatewayUnavailable, cause)
}

// ExpireStale settles or fails asynchronous payments older than cutoff.
// Payouts are left to the transfer webhook.
func (s *PaymentService) ExpireStale(ctx context.Context, cutoff time.Time, limit int) (settled, failed int, err error) {
	stale, err := s.repos.Payments.ListStale(ctx, cutoff, limit)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range stale {
		if p.Purpose == domain.PurposeDriverPayout {
			continue
		}

		if p.Reference != "" {
			var cur *domain.Payment
			var cerr error
			switch p.Method {
			case domain.PaymentMethodGateway:
				cur, cerr = s.VerifyGateway(ctx, p.Reference)
			case domain.PaymentMethodCrypto:
				cur, cerr = s.checkCrypto(ctx, p, p.Reference)
			}
			if cerr != nil {
				if errors.Is(cerr, ErrExternalService) {
					// Provider down; try again next sweep.
					s.logger.Warn("stale payment recheck failed", zap.String("payment_id", p.ID), zap.Error(cerr))
					continue
				}
				return settled, failed, cerr
			}
			if cur != nil && cur.Status == domain.PaymentStatusCompleted {
				settled++
				continue
			}
			if cur != nil && cur.Status.IsFinal() {
				failed++
				continue
			}
		}

		if _, err := s.fail(ctx, p, "payment window expired"); err != nil {
			return settled, failed, err
		}
		failed++
	}
	return settled, failed, nil
}

// GetPayment retrieves a payment visible to the caller.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID, userID string, role domain.Role) (*domain.Payment, error) {
	p, err := s.repos.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	if role != domain.RoleAdmin && p.PayerID != userID && p.DriverID != userID {
		return nil, ErrNotPayer
	}
	return p, nil
}

// RidePayments lists every payment of a ride, oldest first.
func (s *PaymentService) RidePayments(ctx context.Context, rideID string) ([]*domain.Payment, error) {
	return s.repos.Payments.ListByRide(ctx, rideID)
}

// Wallet returns the user with their current balance.
func (s *PaymentService) Wallet(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return u, nil
}
