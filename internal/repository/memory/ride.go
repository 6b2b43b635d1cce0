package memory

import (
	"context"
	"sort"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/repository"
)

// RideRepository is an in-memory repository.RideRepository.
type RideRepository struct {
	s    *Store
	undo *undoLog
}

func (r *RideRepository) snapshot(id string) {
	prev, ok := r.s.rides[id]
	var saved domain.Ride
	if ok {
		saved = *prev
	}
	r.undo.push(func() {
		if !ok {
			delete(r.s.rides, id)
			return
		}
		r.s.rides[id] = &saved
	})
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	if err := r.s.fault("rides.Create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	r.snapshot(ride.ID)
	stored := *ride
	r.s.rides[ride.ID] = &stored
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ride, ok := r.s.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *ride
	return &out, nil
}

// ListByUser retrieves rides where the user is rider or driver, newest first.
func (r *RideRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Ride, error) {
	r.s.mu.RLock()
	var rides []*domain.Ride
	for _, ride := range r.s.rides {
		if ride.HasParty(userID) {
			out := *ride
			rides = append(rides, &out)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(rides, func(i, j int) bool { return rides[i].CreatedAt.After(rides[j].CreatedAt) })
	return page(rides, limit, offset), nil
}

// ListStalePending retrieves PENDING rides last dispatched before cutoff.
func (r *RideRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Ride, error) {
	r.s.mu.RLock()
	var rides []*domain.Ride
	for _, ride := range r.s.rides {
		if ride.Status != domain.RideStatusPending {
			continue
		}
		last := ride.LastDispatchedAt
		if last.IsZero() {
			last = ride.CreatedAt
		}
		if last.Before(cutoff) {
			out := *ride
			rides = append(rides, &out)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(rides, func(i, j int) bool { return rides[i].CreatedAt.Before(rides[j].CreatedAt) })
	return page(rides, limit, 0), nil
}

// CountPendingNear counts recent PENDING rides with pickup inside radiusKm.
func (r *RideRepository) CountPendingNear(ctx context.Context, center domain.Point, radiusKm float64, since time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, ride := range r.s.rides {
		if ride.Status != domain.RideStatusPending || ride.CreatedAt.Before(since) {
			continue
		}
		if geo.DistanceKm(center, ride.Pickup.Point) <= radiusKm {
			count++
		}
	}
	return count, nil
}

// UpdateIfStatus writes the ride only if its stored status equals expected.
func (r *RideRepository) UpdateIfStatus(ctx context.Context, ride *domain.Ride, expected domain.RideStatus) error {
	if err := r.s.fault("rides.UpdateIfStatus"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Status != expected {
		return repository.ErrConflict
	}
	r.snapshot(ride.ID)
	stored := *ride
	r.s.rides[ride.ID] = &stored
	return nil
}

// RecordDispatch bumps the dispatch attempt counter of a PENDING ride.
func (r *RideRepository) RecordDispatch(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ride, ok := r.s.rides[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ride.Status != domain.RideStatusPending {
		return repository.ErrConflict
	}
	r.snapshot(id)
	ride.DispatchAttempts++
	ride.LastDispatchedAt = at
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
