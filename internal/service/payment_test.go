package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/provider/chain"
	"ridehail/internal/provider/gateway"
	"ridehail/internal/repository"
)

// webhook builds a signed gateway callback.
func (e *testEnv) webhook(event, reference string, amount float64) ([]byte, string) {
	e.t.Helper()
	body := mustJSON(e.t, map[string]any{
		"event": event,
		"data": map[string]any{
			"reference": reference,
			"status":    "success",
			"amount":    int64(amount * 100),
		},
	})
	return body, gateway.Sign(testWebhookSecret, body)
}

func TestWallet_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quote, err := env.pricing.Quote(ctx, lagosPickup, lagosDropoff, domain.VehicleClassEconomy, env.now())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	env.addRider("r1", 3*quote.Total+1)

	const attempts = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.rides.RequestRide(ctx, RequestRideInput{
				RiderID:       "r1",
				Pickup:        domain.Location{Point: lagosPickup},
				Dropoff:       domain.Location{Point: lagosDropoff},
				VehicleClass:  domain.VehicleClassEconomy,
				PaymentMethod: domain.PaymentMethodWallet,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrWalletInsufficient):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Errorf("expected 3 funded rides, got %d", successes)
	}
	if got := env.user("r1").WalletBalance; got != 1 {
		t.Errorf("expected balance 1, got %v", got)
	}
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	res := env.request("r1", domain.PaymentMethodGateway)

	body, _ := env.webhook("charge.success", res.Payment.Reference, res.Payment.Amount)
	for _, sig := range []string{"", "deadbeef", gateway.Sign("other-secret", body)} {
		if _, err := env.payments.HandleWebhook(context.Background(), body, sig); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("signature %q: expected invalid signature, got %v", sig, err)
		}
	}
	if p := env.payment(res.Payment.ID); p.Status != domain.PaymentStatusPending {
		t.Errorf("payment must stay pending, got %s", p.Status)
	}
}

func TestHandleWebhook_ChargeSuccessIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	ctx := context.Background()
	res := env.request("r1", domain.PaymentMethodGateway)

	if res.Payment.Reference == "" || !strings.HasPrefix(res.Payment.RedirectURL, "https://checkout.mock/") {
		t.Fatalf("expected checkout to be opened, got %+v", res.Payment)
	}

	body, sig := env.webhook("charge.success", res.Payment.Reference, res.Payment.Amount)
	for i := 0; i < 2; i++ {
		p, err := env.payments.HandleWebhook(ctx, body, sig)
		if err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
		if p.Status != domain.PaymentStatusCompleted {
			t.Errorf("delivery %d: expected COMPLETED, got %s", i+1, p.Status)
		}
	}
	if got := env.ride(res.Ride.ID).PaymentStatus; got != domain.PaymentStatusCompleted {
		t.Errorf("expected ride payment status COMPLETED, got %s", got)
	}

	// Unknown references are acknowledged without effect.
	body, sig = env.webhook("charge.success", "RIDE-unknown", 100)
	if p, err := env.payments.HandleWebhook(ctx, body, sig); err != nil || p != nil {
		t.Errorf("expected unknown reference to be ignored, got %v %v", p, err)
	}
}

func TestHandleWebhook_UnderpaymentFails(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	res := env.request("r1", domain.PaymentMethodGateway)

	body, sig := env.webhook("charge.success", res.Payment.Reference, res.Payment.Amount-100)
	p, err := env.payments.HandleWebhook(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if p.Status != domain.PaymentStatusFailed || !strings.Contains(p.FailureReason, "underpaid") {
		t.Errorf("expected underpaid failure, got %s %q", p.Status, p.FailureReason)
	}
}

func TestVerifyGateway_SettlesPaidCheckout(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	ctx := context.Background()
	res := env.request("r1", domain.PaymentMethodGateway)

	p, err := env.payments.VerifyGateway(ctx, res.Payment.Reference)
	if err != nil {
		t.Fatalf("VerifyGateway failed: %v", err)
	}
	if p.Status != domain.PaymentStatusPending {
		t.Errorf("unpaid checkout should stay pending, got %s", p.Status)
	}

	env.gateway.MarkPaid(res.Payment.Reference, res.Payment.Amount)
	p, err = env.payments.VerifyGateway(ctx, res.Payment.Reference)
	if err != nil {
		t.Fatalf("VerifyGateway failed: %v", err)
	}
	if p.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", p.Status)
	}
}

// completedGatewayRide completes a gateway ride at 10 km / 20 min (2300, of
// which 1955 is the driver's) and returns the ride and its checkout amount.
func (e *testEnv) completedGatewayRide(riderID, driverID string) (*domain.Ride, *CompleteRideResult, float64) {
	e.t.Helper()
	ctx := context.Background()
	ride := e.startedRide(riderID, driverID, domain.PaymentMethodGateway)
	fare, err := e.repos.Payments.GetRideFare(ctx, ride.ID)
	if err != nil {
		e.t.Fatalf("failed to load fare: %v", err)
	}
	if fare.Amount == 2300 {
		e.t.Fatalf("checkout amount must differ from the final fare for this setup")
	}
	res, err := e.rides.CompleteRide(ctx, CompleteRideInput{
		RideID:            ride.ID,
		DriverID:          driverID,
		ActualDistanceKm:  floatPtr(10),
		ActualDurationMin: intPtr(20),
	})
	if err != nil {
		e.t.Fatalf("CompleteRide failed: %v", err)
	}
	return ride, res, fare.Amount
}

func TestGatewayFare_CheckoutAmountSettlesRepricedRide(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 5000)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ctx := context.Background()
	_, res, checkout := env.completedGatewayRide("r1", "d1")
	delta := round2(2300 - checkout)

	if res.Payment.Status != domain.PaymentStatusPending || res.Payment.Amount != checkout {
		t.Fatalf("fare must keep its checkout amount %v, got %s %v", checkout, res.Payment.Status, res.Payment.Amount)
	}
	if res.Adjustment == nil || res.Adjustment.Status != domain.PaymentStatusPending || res.Adjustment.Amount != math.Abs(delta) {
		t.Fatalf("expected pending adjustment of %v, got %+v", math.Abs(delta), res.Adjustment)
	}
	if u := env.user("r1"); u.WalletBalance != 5000 {
		t.Errorf("wallet must not move before the fare is paid, got %v", u.WalletBalance)
	}
	if d := env.driver("d1"); d.PendingEarnings != 1955 || d.AvailableBalance != 0 {
		t.Fatalf("expected earnings pending, got pending=%v available=%v", d.PendingEarnings, d.AvailableBalance)
	}

	body, sig := env.webhook("charge.success", res.Payment.Reference, checkout)
	p, err := env.payments.HandleWebhook(ctx, body, sig)
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if p.Status != domain.PaymentStatusCompleted {
		t.Fatalf("paying the checkout amount must settle the fare, got %s (%s)", p.Status, p.FailureReason)
	}
	d := env.driver("d1")
	if d.PendingEarnings != 0 || d.AvailableBalance != 1955 {
		t.Errorf("expected earnings released, got pending=%v available=%v", d.PendingEarnings, d.AvailableBalance)
	}
	adj := env.payment(res.Adjustment.ID)
	wantStatus := domain.PaymentStatusCompleted
	if delta < 0 {
		wantStatus = domain.PaymentStatusRefunded
	}
	if adj.Status != wantStatus {
		t.Errorf("adjustment: expected %s, got %s", wantStatus, adj.Status)
	}
	if u := env.user("r1"); u.WalletBalance != 5000-delta {
		t.Errorf("wallet: expected %v, got %v", 5000-delta, u.WalletBalance)
	}
}

func TestCryptoFare_DepositForQuotedAmountSettlesRepricedRide(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 5000)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ctx := context.Background()
	ride := env.startedRide("r1", "d1", domain.PaymentMethodCrypto)
	fare, _ := env.repos.Payments.GetRideFare(ctx, ride.ID)
	quoted := fare.Amount

	res, err := env.rides.CompleteRide(ctx, CompleteRideInput{
		RideID: ride.ID, DriverID: "d1", ActualDistanceKm: floatPtr(20), ActualDurationMin: intPtr(40),
	})
	if err != nil {
		t.Fatalf("CompleteRide failed: %v", err)
	}
	if res.Payment.Amount != quoted {
		t.Fatalf("crypto fare must keep the quoted amount %v, got %v", quoted, res.Payment.Amount)
	}

	env.verifier.set(chain.Verification{Found: true, Succeeded: true, Amount: chain.Convert(quoted, 1_000_000), Confirmations: 3})
	p, err := env.payments.SubmitCryptoTx(ctx, fare.ID, "r1", "0xquoted")
	if err != nil {
		t.Fatalf("SubmitCryptoTx failed: %v", err)
	}
	if p.Status != domain.PaymentStatusCompleted {
		t.Errorf("deposit of the quoted amount must settle, got %s (%s)", p.Status, p.FailureReason)
	}
}

func TestGatewayFare_ExpiryReversesPendingEarnings(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 5000)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ctx := context.Background()
	ride, res, _ := env.completedGatewayRide("r1", "d1")

	if d := env.driver("d1"); d.TotalEarnings != 1955 || d.PendingEarnings != 1955 {
		t.Fatalf("expected 1955 posted, got total=%v pending=%v", d.TotalEarnings, d.PendingEarnings)
	}

	env.advance(time.Hour)
	if _, failed, err := env.payments.ExpireStale(ctx, env.now().Add(-30*time.Minute), 10); err != nil || failed != 1 {
		t.Fatalf("ExpireStale: failed=%d err=%v", failed, err)
	}

	if p := env.payment(res.Payment.ID); p.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected fare FAILED, got %s", p.Status)
	}
	d := env.driver("d1")
	if d.TotalEarnings != 0 || d.PendingEarnings != 0 || d.AvailableBalance != 0 {
		t.Errorf("uncollected earnings must be reversed, got total=%v pending=%v available=%v",
			d.TotalEarnings, d.PendingEarnings, d.AvailableBalance)
	}
	if adj := env.payment(res.Adjustment.ID); adj.Status != domain.PaymentStatusFailed {
		t.Errorf("waiting adjustment should fail with the fare, got %s", adj.Status)
	}
	if u := env.user("r1"); u.WalletBalance != 5000 {
		t.Errorf("wallet must be untouched, got %v", u.WalletBalance)
	}
	if r := env.ride(ride.ID); r.PaymentStatus != domain.PaymentStatusFailed {
		t.Errorf("ride payment status: expected FAILED, got %s", r.PaymentStatus)
	}
}

func TestHandleWebhook_RetriesLostRideRace(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 5000)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ctx := context.Background()
	_, res, checkout := env.completedGatewayRide("r1", "d1")
	body, sig := env.webhook("charge.success", res.Payment.Reference, checkout)

	// Losing twice leaves the fare pending and asks the gateway to retry.
	env.store.InjectFaultTimes("rides.UpdateIfStatus", repository.ErrConflict, 2)
	if _, err := env.payments.HandleWebhook(ctx, body, sig); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if p := env.payment(res.Payment.ID); p.Status != domain.PaymentStatusPending {
		t.Fatalf("fare should still be pending, got %s", p.Status)
	}
	if d := env.driver("d1"); d.PendingEarnings != 1955 || d.AvailableBalance != 0 {
		t.Fatalf("rolled back attempt moved earnings: pending=%v available=%v", d.PendingEarnings, d.AvailableBalance)
	}

	// Losing once is absorbed by the retry.
	env.store.InjectFaultTimes("rides.UpdateIfStatus", repository.ErrConflict, 1)
	p, err := env.payments.HandleWebhook(ctx, body, sig)
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if p.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", p.Status)
	}
	if d := env.driver("d1"); d.AvailableBalance != 1955 {
		t.Errorf("expected earnings released once, got available=%v", d.AvailableBalance)
	}
}

func TestSubmitCryptoTx_ConfirmationsAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	ctx := context.Background()
	res := env.request("r1", domain.PaymentMethodCrypto)

	if res.Payment.DepositAddress != "0xdeposit" || res.Payment.Asset != domain.AssetETH {
		t.Fatalf("unexpected crypto payment %+v", res.Payment)
	}
	expected := chain.Convert(res.Payment.Amount, 1_000_000)

	env.verifier.set(chain.Verification{Found: true, Succeeded: true, Amount: expected, Confirmations: 1})
	p, err := env.payments.SubmitCryptoTx(ctx, res.Payment.ID, "r1", "0xabc")
	if err != nil {
		t.Fatalf("SubmitCryptoTx failed: %v", err)
	}
	if p.Status != domain.PaymentStatusProcessing || p.Confirmations != 1 {
		t.Errorf("expected PROCESSING with 1 confirmation, got %s %d", p.Status, p.Confirmations)
	}

	env.verifier.set(chain.Verification{Found: true, Succeeded: true, Amount: expected, Confirmations: 3})
	p, err = env.payments.SubmitCryptoTx(ctx, res.Payment.ID, "r1", "0xabc")
	if err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}
	if p.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED at 3 confirmations, got %s", p.Status)
	}

	other := env.request("r1", domain.PaymentMethodCrypto)
	if _, err := env.payments.SubmitCryptoTx(ctx, other.Payment.ID, "r1", "0xabc"); !errors.Is(err, ErrDuplicateTx) {
		t.Errorf("expected duplicate tx, got %v", err)
	}
	if _, err := env.payments.SubmitCryptoTx(ctx, other.Payment.ID, "r2", "0xdef"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden for another payer, got %v", err)
	}
}

func TestSubmitCryptoTx_UnderpaidFails(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	res := env.request("r1", domain.PaymentMethodCrypto)
	expected := chain.Convert(res.Payment.Amount, 1_000_000)

	env.verifier.set(chain.Verification{Found: true, Succeeded: true, Amount: expected * 0.9, Confirmations: 5})
	p, err := env.payments.SubmitCryptoTx(context.Background(), res.Payment.ID, "r1", "0xshort")
	if err != nil {
		t.Fatalf("SubmitCryptoTx failed: %v", err)
	}
	if p.Status != domain.PaymentStatusFailed {
		t.Errorf("expected FAILED, got %s", p.Status)
	}
}

func TestRequestPayout(t *testing.T) {
	tests := []struct {
		name        string
		transfer    string
		amount      float64
		wantErr     error
		wantStatus  domain.PaymentStatus
		wantBalance float64
	}{
		{name: "success", amount: 3000, wantStatus: domain.PaymentStatusCompleted, wantBalance: 2000},
		{name: "gateway refuses", transfer: "failed", amount: 3000, wantErr: ErrExternalService, wantStatus: domain.PaymentStatusFailed, wantBalance: 5000},
		{name: "below minimum", amount: 500, wantErr: ErrPayoutBelowMinimum, wantBalance: 5000},
		{name: "over balance", amount: 6000, wantErr: ErrBalanceInsufficient, wantBalance: 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
			if err := env.repos.Drivers.CreditAvailable(ctx, "d1", 5000, false); err != nil {
				t.Fatalf("failed to seed balance: %v", err)
			}
			env.gateway.TransferStatus = tt.transfer

			p, err := env.payments.RequestPayout(ctx, "d1", tt.amount)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("RequestPayout failed: %v", err)
			}
			if tt.wantStatus != "" && (p == nil || p.Status != tt.wantStatus) {
				t.Errorf("expected payout %s, got %+v", tt.wantStatus, p)
			}
			if got := env.driver("d1").AvailableBalance; got != tt.wantBalance {
				t.Errorf("expected balance %v, got %v", tt.wantBalance, got)
			}
		})
	}
}

func TestRequestPayout_SavesRecipient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	if err := env.repos.Drivers.CreditAvailable(ctx, "d1", 5000, false); err != nil {
		t.Fatalf("failed to seed balance: %v", err)
	}

	if _, err := env.payments.RequestPayout(ctx, "d1", 1000); err != nil {
		t.Fatalf("RequestPayout failed: %v", err)
	}
	if got := env.driver("d1").Bank.RecipientCode; got != "RCP_0123456789" {
		t.Errorf("expected recipient code saved, got %q", got)
	}
}

func TestTopUp_CreditedOnWebhook(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	ctx := context.Background()

	p, err := env.payments.TopUp(ctx, "r1", 2000)
	if err != nil {
		t.Fatalf("TopUp failed: %v", err)
	}
	if p.Purpose != domain.PurposeWalletTopUp || p.Status != domain.PaymentStatusPending {
		t.Fatalf("unexpected top-up %+v", p)
	}
	if env.user("r1").WalletBalance != 0 {
		t.Fatal("wallet must not be credited before payment")
	}

	body, sig := env.webhook("charge.success", p.Reference, 2000)
	if _, err := env.payments.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if got := env.user("r1").WalletBalance; got != 2000 {
		t.Errorf("expected balance 2000, got %v", got)
	}
}

func TestTopUp_GatewayDown(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.gateway.Err = fmt.Errorf("connection refused")

	p, err := env.payments.TopUp(context.Background(), "r1", 2000)
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if p == nil || p.Status != domain.PaymentStatusFailed {
		t.Errorf("expected failed top-up recorded, got %+v", p)
	}
}
