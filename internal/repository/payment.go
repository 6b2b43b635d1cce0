package repository

import (
	"context"
	"time"

	"ridehail/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment. Returns ErrDuplicate on a reused reference.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by ID.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByReference retrieves a payment by gateway reference or tx hash.
	GetByReference(ctx context.Context, reference string) (*domain.Payment, error)

	// GetRideFare retrieves the RIDE_FARE payment of a ride.
	GetRideFare(ctx context.Context, rideID string) (*domain.Payment, error)

	// ListByRide retrieves every payment attached to a ride, oldest first.
	ListByRide(ctx context.Context, rideID string) ([]*domain.Payment, error)

	// UpdateIfStatus writes the payment only if its stored status is one of
	// expected. Returns ErrConflict when it is not.
	UpdateIfStatus(ctx context.Context, payment *domain.Payment, expected ...domain.PaymentStatus) error

	// ListStale retrieves asynchronous payments still unsettled since before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error)
}
