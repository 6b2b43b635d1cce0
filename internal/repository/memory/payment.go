package memory

import (
	"context"
	"sort"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// PaymentRepository is an in-memory repository.PaymentRepository.
type PaymentRepository struct {
	s    *Store
	undo *undoLog
}

func (r *PaymentRepository) snapshot(id string) {
	prev, ok := r.s.payments[id]
	var saved domain.Payment
	if ok {
		saved = *prev
	}
	r.undo.push(func() {
		if !ok {
			delete(r.s.payments, id)
			return
		}
		r.s.payments[id] = &saved
	})
}

// referenceTaken reports whether another payment already uses reference.
func (r *PaymentRepository) referenceTaken(id, reference string) bool {
	if reference == "" {
		return false
	}
	for _, p := range r.s.payments {
		if p.ID != id && p.Reference == reference {
			return true
		}
	}
	return false
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	if err := r.s.fault("payments.Create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[payment.ID]; ok || r.referenceTaken(payment.ID, payment.Reference) {
		return repository.ErrDuplicate
	}
	r.snapshot(payment.ID)
	stored := *payment
	r.s.payments[payment.ID] = &stored
	return nil
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *p
	return &out, nil
}

// GetByReference retrieves a payment by gateway reference or tx hash.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.payments {
		if reference != "" && p.Reference == reference {
			out := *p
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetRideFare retrieves the RIDE_FARE payment of a ride.
func (r *PaymentRepository) GetRideFare(ctx context.Context, rideID string) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.payments {
		if p.RideID == rideID && p.Purpose == domain.PurposeRideFare {
			out := *p
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListByRide retrieves every payment attached to a ride, oldest first.
func (r *PaymentRepository) ListByRide(ctx context.Context, rideID string) ([]*domain.Payment, error) {
	r.s.mu.RLock()
	var out []*domain.Payment
	for _, p := range r.s.payments {
		if p.RideID == rideID {
			cp := *p
			out = append(out, &cp)
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateIfStatus writes the payment only if its stored status is one of expected.
func (r *PaymentRepository) UpdateIfStatus(ctx context.Context, payment *domain.Payment, expected ...domain.PaymentStatus) error {
	if err := r.s.fault("payments.UpdateIfStatus"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.payments[payment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	matched := false
	for _, st := range expected {
		if current.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return repository.ErrConflict
	}
	if r.referenceTaken(payment.ID, payment.Reference) {
		return repository.ErrDuplicate
	}
	r.snapshot(payment.ID)
	stored := *payment
	r.s.payments[payment.ID] = &stored
	return nil
}

// ListStale retrieves asynchronous payments still unsettled since before cutoff.
func (r *PaymentRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	r.s.mu.RLock()
	var out []*domain.Payment
	for _, p := range r.s.payments {
		if !p.Method.Async() || p.Status.IsFinal() || !p.CreatedAt.Before(cutoff) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}
