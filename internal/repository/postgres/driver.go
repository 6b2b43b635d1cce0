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

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

const driverColumns = `id, name, phone, vehicle_class, vehicle_make, vehicle_model, vehicle_color, vehicle_plate,
	is_online, is_available, is_approved, lat, lng, heading, location_updated_at, current_ride_id,
	rating, total_earnings, pending_earnings, available_balance, completed_rides, cancelled_rides,
	bank_code, bank_account_number, bank_account_name, bank_recipient_code, device_token, created_at`

func scanDriver(row rowScanner) (*domain.Driver, error) {
	var (
		d                              domain.Driver
		lat, lng                       sql.NullFloat64
		locatedAt                      sql.NullTime
		currentRide                    sql.NullString
		bankCode, account, name, recip sql.NullString
	)
	err := row.Scan(
		&d.ID, &d.Name, &d.Phone, &d.Vehicle.Class, &d.Vehicle.Make, &d.Vehicle.Model, &d.Vehicle.Color, &d.Vehicle.Plate,
		&d.IsOnline, &d.IsAvailable, &d.IsApproved, &lat, &lng, &d.Heading, &locatedAt, &currentRide,
		&d.Rating, &d.TotalEarnings, &d.PendingEarnings, &d.AvailableBalance, &d.CompletedRides, &d.CancelledRides,
		&bankCode, &account, &name, &recip, &d.DeviceToken, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	d.Location = domain.Point{Lat: lat.Float64, Lng: lng.Float64}
	d.LocationUpdatedAt = timeOrZero(locatedAt)
	d.CurrentRideID = currentRide.String
	if bankCode.Valid {
		d.Bank = &domain.BankDetails{
			BankCode:      bankCode.String,
			AccountNumber: account.String,
			AccountName:   name.String,
			RecipientCode: recip.String,
		}
	}
	return &d, nil
}

// exec runs a single-row update and maps zero affected rows to ErrNotFound.
func (r *DriverRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return rowsAffected(result)
}

// guarded runs a conditional update. When nothing matched it tells a
// missing driver apart from a failed condition, returning failed.
func (r *DriverRepository) guarded(ctx context.Context, id string, failed error, query string, args ...any) error {
	err := r.exec(ctx, query, args...)
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM drivers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return failed
}

// Create adds a new driver.
func (r *DriverRepository) Create(ctx context.Context, d *domain.Driver) error {
	var bankCode, account, name, recip sql.NullString
	if d.Bank != nil {
		bankCode = nullString(d.Bank.BankCode)
		account = nullString(d.Bank.AccountNumber)
		name = nullString(d.Bank.AccountName)
		recip = nullString(d.Bank.RecipientCode)
	}
	var lat, lng sql.NullFloat64
	if !d.LocationUpdatedAt.IsZero() {
		lat = sql.NullFloat64{Float64: d.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: d.Location.Lng, Valid: true}
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `INSERT INTO drivers (` + driverColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`
	_, err := r.q.ExecContext(ctx, query,
		d.ID, d.Name, d.Phone, d.Vehicle.Class, d.Vehicle.Make, d.Vehicle.Model, d.Vehicle.Color, d.Vehicle.Plate,
		d.IsOnline, d.CurrentRideID == "", d.IsApproved, lat, lng, d.Heading, nullTime(d.LocationUpdatedAt), nullString(d.CurrentRideID),
		d.Rating, d.TotalEarnings, d.PendingEarnings, d.AvailableBalance, d.CompletedRides, d.CancelledRides,
		bankCode, account, name, recip, d.DeviceToken, createdAt,
	)
	return mapUniqueViolation(err)
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	return scanDriver(r.q.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id))
}

// GetByIDs retrieves the drivers that exist among ids.
func (r *DriverRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drivers := make([]*domain.Driver, 0, len(ids))
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// BindRide makes the driver busy with rideID if currently free.
func (r *DriverRepository) BindRide(ctx context.Context, driverID, rideID string) error {
	return r.guarded(ctx, driverID, repository.ErrConflict, `UPDATE drivers
		SET is_available = FALSE, current_ride_id = $2
		WHERE id = $1 AND is_online AND is_approved AND is_available AND current_ride_id IS NULL`,
		driverID, rideID)
}

// ReleaseRide frees the driver if rideID is still the current ride.
func (r *DriverRepository) ReleaseRide(ctx context.Context, driverID, rideID string) error {
	return r.guarded(ctx, driverID, repository.ErrConflict, `UPDATE drivers
		SET is_available = TRUE, current_ride_id = NULL
		WHERE id = $1 AND current_ride_id = $2`,
		driverID, rideID)
}

// SetOnline updates the online flag.
func (r *DriverRepository) SetOnline(ctx context.Context, driverID string, online bool) error {
	return r.exec(ctx, `UPDATE drivers SET is_online = $2 WHERE id = $1`, driverID, online)
}

// UpdateLocation stores the position unless a newer one is already stored.
// An older timestamp is not an error.
func (r *DriverRepository) UpdateLocation(ctx context.Context, driverID string, p domain.Point, heading float64, at time.Time) error {
	err := r.guarded(ctx, driverID, errStale, `UPDATE drivers
		SET lat = $2, lng = $3, heading = $4, location_updated_at = $5
		WHERE id = $1 AND (location_updated_at IS NULL OR location_updated_at < $5)`,
		driverID, p.Lat, p.Lng, heading, at)
	if errors.Is(err, errStale) {
		return nil
	}
	return err
}

var errStale = errors.New("stale location")

// RecordCompletion credits earnings and increments completed rides.
func (r *DriverRepository) RecordCompletion(ctx context.Context, driverID string, e repository.Earnings) error {
	return r.exec(ctx, `UPDATE drivers SET
		total_earnings = total_earnings + $2,
		available_balance = available_balance + $3,
		pending_earnings = pending_earnings + $4,
		completed_rides = completed_rides + 1
		WHERE id = $1`, driverID, e.Total, e.Available, e.Pending)
}

// IncrementCancelled increments the driver's cancellation counter.
func (r *DriverRepository) IncrementCancelled(ctx context.Context, driverID string) error {
	return r.exec(ctx, `UPDATE drivers SET cancelled_rides = cancelled_rides + 1 WHERE id = $1`, driverID)
}

// CreditAvailable adds amount to available balance.
func (r *DriverRepository) CreditAvailable(ctx context.Context, driverID string, amount float64, fromPending bool) error {
	if fromPending {
		return r.exec(ctx, `UPDATE drivers SET
			available_balance = available_balance + $2,
			pending_earnings = GREATEST(pending_earnings - $2, 0)
			WHERE id = $1`, driverID, amount)
	}
	return r.exec(ctx, `UPDATE drivers SET available_balance = available_balance + $2 WHERE id = $1`, driverID, amount)
}

// ReversePending takes back uncollected pending earnings.
func (r *DriverRepository) ReversePending(ctx context.Context, driverID string, amount float64) error {
	return r.exec(ctx, `UPDATE drivers SET
		pending_earnings = GREATEST(pending_earnings - $2, 0),
		total_earnings = GREATEST(total_earnings - $2, 0)
		WHERE id = $1`, driverID, amount)
}

// DebitAvailable subtracts amount from available balance if it covers it.
func (r *DriverRepository) DebitAvailable(ctx context.Context, driverID string, amount float64) error {
	return r.guarded(ctx, driverID, repository.ErrInsufficientBalance, `UPDATE drivers
		SET available_balance = available_balance - $2
		WHERE id = $1 AND available_balance >= $2`, driverID, amount)
}

// SetApproved updates the approval flag.
func (r *DriverRepository) SetApproved(ctx context.Context, driverID string, approved bool) error {
	return r.exec(ctx, `UPDATE drivers SET is_approved = $2 WHERE id = $1`, driverID, approved)
}

// SetBankDetails replaces the payout destination.
func (r *DriverRepository) SetBankDetails(ctx context.Context, driverID string, bank *domain.BankDetails) error {
	var b domain.BankDetails
	if bank != nil {
		b = *bank
	}
	return r.exec(ctx, `UPDATE drivers SET
		bank_code = $2, bank_account_number = $3, bank_account_name = $4, bank_recipient_code = $5
		WHERE id = $1`,
		driverID, nullString(b.BankCode), nullString(b.AccountNumber), nullString(b.AccountName), nullString(b.RecipientCode))
}
