package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

const rideColumns = `id, rider_id, driver_id,
	pickup_lat, pickup_lng, pickup_address, dropoff_lat, dropoff_lng, dropoff_address,
	vehicle_class, status, estimated_fare, final_fare, distance_km, duration_min,
	actual_distance_km, actual_duration_min,
	base_fare, per_km_rate, per_minute_rate, surge_multiplier, discount, commission_rate,
	payment_method, payment_status, promo_code, cancelled_by, cancel_reason, cancellation_fee,
	dispatch_attempts, last_dispatched_at,
	created_at, accepted_at, arrived_at, started_at, completed_at, cancelled_at`

// rideArgs returns the column values in rideColumns order.
func rideArgs(r *domain.Ride) []any {
	return []any{
		r.ID, r.RiderID, nullString(r.DriverID),
		r.Pickup.Lat, r.Pickup.Lng, r.Pickup.Address, r.Dropoff.Lat, r.Dropoff.Lng, r.Dropoff.Address,
		r.VehicleClass, r.Status, r.EstimatedFare, r.FinalFare, r.DistanceKm, r.DurationMin,
		r.ActualDistanceKm, r.ActualDurationMin,
		r.Fare.BaseFare, r.Fare.PerKmRate, r.Fare.PerMinuteRate, r.Fare.SurgeMultiplier, r.Fare.Discount, r.Fare.CommissionRate,
		r.PaymentMethod, r.PaymentStatus, nullString(r.PromoCode), nullString(string(r.CancelledBy)), nullString(r.CancelReason), r.CancellationFee,
		r.DispatchAttempts, nullTime(r.LastDispatchedAt),
		r.CreatedAt, nullTime(r.AcceptedAt), nullTime(r.ArrivedAt), nullTime(r.StartedAt), nullTime(r.CompletedAt), nullTime(r.CancelledAt),
	}
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var (
		r                                                domain.Ride
		driverID, promo, cancelledBy, cancelReason       sql.NullString
		lastDispatched, accepted, arrived, started, done sql.NullTime
		cancelled                                        sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.RiderID, &driverID,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Pickup.Address, &r.Dropoff.Lat, &r.Dropoff.Lng, &r.Dropoff.Address,
		&r.VehicleClass, &r.Status, &r.EstimatedFare, &r.FinalFare, &r.DistanceKm, &r.DurationMin,
		&r.ActualDistanceKm, &r.ActualDurationMin,
		&r.Fare.BaseFare, &r.Fare.PerKmRate, &r.Fare.PerMinuteRate, &r.Fare.SurgeMultiplier, &r.Fare.Discount, &r.Fare.CommissionRate,
		&r.PaymentMethod, &r.PaymentStatus, &promo, &cancelledBy, &cancelReason, &r.CancellationFee,
		&r.DispatchAttempts, &lastDispatched,
		&r.CreatedAt, &accepted, &arrived, &started, &done, &cancelled,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	r.DriverID = driverID.String
	r.PromoCode = promo.String
	r.CancelledBy = domain.CancelActor(cancelledBy.String)
	r.CancelReason = cancelReason.String
	r.LastDispatchedAt = timeOrZero(lastDispatched)
	r.AcceptedAt = timeOrZero(accepted)
	r.ArrivedAt = timeOrZero(arrived)
	r.StartedAt = timeOrZero(started)
	r.CompletedAt = timeOrZero(done)
	r.CancelledAt = timeOrZero(cancelled)
	return &r, nil
}

func (r *RideRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `INSERT INTO rides (` + rideColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
		$20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37)`
	_, err := r.q.ExecContext(ctx, query, rideArgs(ride)...)
	return mapUniqueViolation(err)
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	return scanRide(r.q.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
}

// ListByUser retrieves rides where the user is rider or driver, newest first.
func (r *RideRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Ride, error) {
	return r.list(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE rider_id = $1 OR driver_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
}

// ListStalePending retrieves PENDING rides last dispatched before cutoff.
func (r *RideRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Ride, error) {
	return r.list(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE status = 'PENDING' AND COALESCE(last_dispatched_at, created_at) < $1
		ORDER BY created_at LIMIT $2`, cutoff, limit)
}

// CountPendingNear counts recent PENDING rides with pickup inside radiusKm.
// The bounding box keeps the scan on the index; the exact circle check is
// done here.
func (r *RideRepository) CountPendingNear(ctx context.Context, center domain.Point, radiusKm float64, since time.Time) (int, error) {
	box := geo.BoundingBox(center, radiusKm)
	rows, err := r.q.QueryContext(ctx, `SELECT pickup_lat, pickup_lng FROM rides
		WHERE status = 'PENDING' AND created_at >= $1
		AND pickup_lat BETWEEN $2 AND $3 AND pickup_lng BETWEEN $4 AND $5`,
		since, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var p domain.Point
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return 0, err
		}
		if geo.DistanceKm(center, p) <= radiusKm {
			count++
		}
	}
	return count, rows.Err()
}

// UpdateIfStatus writes the ride only if its stored status equals expected.
func (r *RideRepository) UpdateIfStatus(ctx context.Context, ride *domain.Ride, expected domain.RideStatus) error {
	query := `UPDATE rides SET
		driver_id = $3, status = $11, final_fare = $13,
		actual_distance_km = $16, actual_duration_min = $17,
		surge_multiplier = $21, discount = $22,
		payment_status = $25, cancelled_by = $27, cancel_reason = $28, cancellation_fee = $29,
		dispatch_attempts = $30, last_dispatched_at = $31,
		accepted_at = $33, arrived_at = $34, started_at = $35, completed_at = $36, cancelled_at = $37
		WHERE id = $1 AND status = $38`

	args := append(rideArgs(ride), expected)
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if err := rowsAffected(result); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, ride.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// RecordDispatch bumps the dispatch attempt counter of a PENDING ride.
func (r *RideRepository) RecordDispatch(ctx context.Context, id string, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `UPDATE rides
		SET dispatch_attempts = dispatch_attempts + 1, last_dispatched_at = $2
		WHERE id = $1 AND status = 'PENDING'`, id, at)
	if err != nil {
		return err
	}
	if err := rowsAffected(result); err != nil {
		return repository.ErrConflict
	}
	return nil
}
