package repository

import (
	"context"
	"time"

	"ridehail/internal/domain"
)

// Earnings is a credit posted to a driver's counters.
type Earnings struct {
	Total     float64
	Available float64
	Pending   float64
}

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// Create adds a new driver.
	Create(ctx context.Context, driver *domain.Driver) error

	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByIDs retrieves the drivers that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error)

	// BindRide marks the driver unavailable with rideID as current ride, only
	// if the driver is online, approved and free. Returns ErrConflict otherwise.
	BindRide(ctx context.Context, driverID, rideID string) error

	// ReleaseRide clears the current ride and makes the driver available,
	// only if rideID is still the current ride.
	ReleaseRide(ctx context.Context, driverID, rideID string) error

	// SetOnline updates the online flag.
	SetOnline(ctx context.Context, driverID string, online bool) error

	// UpdateLocation stores the position unless a newer one is already stored.
	UpdateLocation(ctx context.Context, driverID string, p domain.Point, heading float64, at time.Time) error

	// RecordCompletion credits earnings and increments completed rides.
	RecordCompletion(ctx context.Context, driverID string, e Earnings) error

	// IncrementCancelled increments the driver's cancellation counter.
	IncrementCancelled(ctx context.Context, driverID string) error

	// CreditAvailable adds amount to available balance. When fromPending is
	// true the same amount is moved out of pending earnings.
	CreditAvailable(ctx context.Context, driverID string, amount float64, fromPending bool) error

	// ReversePending takes back earnings posted as pending for a fare that
	// was never collected. Pending and total earnings are floored at zero.
	ReversePending(ctx context.Context, driverID string, amount float64) error

	// DebitAvailable subtracts amount from available balance if it covers it.
	// Returns ErrInsufficientBalance otherwise.
	DebitAvailable(ctx context.Context, driverID string, amount float64) error

	// SetApproved updates the approval flag.
	SetApproved(ctx context.Context, driverID string, approved bool) error

	// SetBankDetails replaces the payout destination.
	SetBankDetails(ctx context.Context, driverID string, bank *domain.BankDetails) error
}
