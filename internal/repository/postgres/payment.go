package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

const paymentColumns = `id, ride_id, payer_id, driver_id, purpose, amount, currency, method, status,
	base_fare, surge_charge, discount, platform_commission, driver_earnings,
	reference, redirect_url, asset, deposit_address, confirmations, failure_reason,
	created_at, updated_at`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p                           domain.Payment
		rideID, driverID, reference sql.NullString
	)
	err := row.Scan(
		&p.ID, &rideID, &p.PayerID, &driverID, &p.Purpose, &p.Amount, &p.Currency, &p.Method, &p.Status,
		&p.Split.BaseFare, &p.Split.SurgeCharge, &p.Split.Discount, &p.Split.PlatformCommission, &p.Split.DriverEarnings,
		&reference, &p.RedirectURL, &p.Asset, &p.DepositAddress, &p.Confirmations, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	p.RideID = rideID.String
	p.DriverID = driverID.String
	p.Reference = reference.String
	return &p, nil
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Payment, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	currency := p.Currency
	if currency == "" {
		currency = "NGN"
	}
	query := `INSERT INTO payments (` + paymentColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := r.q.ExecContext(ctx, query,
		p.ID, nullString(p.RideID), p.PayerID, nullString(p.DriverID), p.Purpose, p.Amount, currency, p.Method, p.Status,
		p.Split.BaseFare, p.Split.SurgeCharge, p.Split.Discount, p.Split.PlatformCommission, p.Split.DriverEarnings,
		nullString(p.Reference), p.RedirectURL, p.Asset, p.DepositAddress, p.Confirmations, p.FailureReason,
		p.CreatedAt, p.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetByReference retrieves a payment by gateway reference or tx hash.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	if reference == "" {
		return nil, repository.ErrNotFound
	}
	return scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference))
}

// GetRideFare retrieves the RIDE_FARE payment of a ride.
func (r *PaymentRepository) GetRideFare(ctx context.Context, rideID string) (*domain.Payment, error) {
	return scanPayment(r.q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE ride_id = $1 AND purpose = $2`, rideID, domain.PurposeRideFare))
}

// ListByRide retrieves every payment attached to a ride, oldest first.
func (r *PaymentRepository) ListByRide(ctx context.Context, rideID string) ([]*domain.Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE ride_id = $1 ORDER BY created_at`, rideID)
}

// UpdateIfStatus writes the payment only if its stored status is one of expected.
func (r *PaymentRepository) UpdateIfStatus(ctx context.Context, p *domain.Payment, expected ...domain.PaymentStatus) error {
	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}

	result, err := r.q.ExecContext(ctx, `UPDATE payments SET
		status = $2, amount = $3,
		base_fare = $4, surge_charge = $5, discount = $6, platform_commission = $7, driver_earnings = $8,
		reference = $9, redirect_url = $10, asset = $11, deposit_address = $12, confirmations = $13,
		failure_reason = $14, updated_at = $15
		WHERE id = $1 AND status = ANY($16)`,
		p.ID, p.Status, p.Amount,
		p.Split.BaseFare, p.Split.SurgeCharge, p.Split.Discount, p.Split.PlatformCommission, p.Split.DriverEarnings,
		nullString(p.Reference), p.RedirectURL, p.Asset, p.DepositAddress, p.Confirmations,
		p.FailureReason, p.UpdatedAt, pq.Array(statuses),
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if err := rowsAffected(result); !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// ListStale retrieves asynchronous payments still unsettled since before cutoff.
func (r *PaymentRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE status IN ('PENDING', 'PROCESSING') AND method IN ('GATEWAY', 'CRYPTO') AND created_at < $1
		ORDER BY created_at LIMIT $2`, cutoff, limit)
}
