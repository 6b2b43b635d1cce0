package repository

import (
	"context"
	"time"

	"ridehail/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// ListByUser retrieves rides where the user is rider or driver, newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Ride, error)

	// ListStalePending retrieves PENDING rides last dispatched before cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Ride, error)

	// CountPendingNear counts PENDING rides created since the given time whose
	// pickup lies within radiusKm of center.
	CountPendingNear(ctx context.Context, center domain.Point, radiusKm float64, since time.Time) (int, error)

	// UpdateIfStatus writes the ride only if its stored status equals expected.
	// Returns ErrConflict when the status differs and ErrNotFound when missing.
	UpdateIfStatus(ctx context.Context, ride *domain.Ride, expected domain.RideStatus) error

	// RecordDispatch bumps the dispatch attempt counter of a PENDING ride.
	RecordDispatch(ctx context.Context, id string, at time.Time) error
}
