package redis

import (
	"context"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

// LocationStoreInterface is the geospatial driver index.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, driverID string, p domain.Point, at time.Time) (bool, error)
	FindNearbyDrivers(ctx context.Context, center domain.Point, radiusKm float64, limit int) ([]domain.DriverPosition, error)
	RemoveLocation(ctx context.Context, driverID string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LocationStoreInterface = (*geo.MemoryIndex)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
)
