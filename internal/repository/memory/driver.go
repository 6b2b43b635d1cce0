package memory

import (
	"context"
	"math"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// DriverRepository is an in-memory repository.DriverRepository.
type DriverRepository struct {
	s    *Store
	undo *undoLog
}

func cloneDriver(d *domain.Driver) *domain.Driver {
	out := *d
	if d.Bank != nil {
		bank := *d.Bank
		out.Bank = &bank
	}
	return &out
}

func (r *DriverRepository) snapshot(id string) {
	prev, ok := r.s.drivers[id]
	var saved *domain.Driver
	if ok {
		saved = cloneDriver(prev)
	}
	r.undo.push(func() {
		if !ok {
			delete(r.s.drivers, id)
			return
		}
		r.s.drivers[id] = saved
	})
}

// mutate applies fn to the stored driver under the write lock.
func (r *DriverRepository) mutate(op, id string, fn func(d *domain.Driver) error) error {
	if err := r.s.fault("drivers." + op); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	working := cloneDriver(d)
	if err := fn(working); err != nil {
		return err
	}
	r.snapshot(id)
	r.s.drivers[id] = working
	return nil
}

// Create adds a new driver.
func (r *DriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.drivers[driver.ID]; ok {
		return repository.ErrDuplicate
	}
	r.snapshot(driver.ID)
	r.s.drivers[driver.ID] = cloneDriver(driver)
	return nil
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneDriver(d), nil
}

// GetByIDs retrieves the drivers that exist among ids.
func (r *DriverRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Driver, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.s.drivers[id]; ok {
			out = append(out, cloneDriver(d))
		}
	}
	return out, nil
}

// BindRide makes the driver busy with rideID if currently free.
func (r *DriverRepository) BindRide(ctx context.Context, driverID, rideID string) error {
	return r.mutate("BindRide", driverID, func(d *domain.Driver) error {
		if !d.IsOnline || !d.IsApproved || !d.IsAvailable || d.CurrentRideID != "" {
			return repository.ErrConflict
		}
		d.IsAvailable = false
		d.CurrentRideID = rideID
		return nil
	})
}

// ReleaseRide frees the driver if rideID is still the current ride.
func (r *DriverRepository) ReleaseRide(ctx context.Context, driverID, rideID string) error {
	return r.mutate("ReleaseRide", driverID, func(d *domain.Driver) error {
		if d.CurrentRideID != rideID {
			return repository.ErrConflict
		}
		d.IsAvailable = true
		d.CurrentRideID = ""
		return nil
	})
}

// SetOnline updates the online flag.
func (r *DriverRepository) SetOnline(ctx context.Context, driverID string, online bool) error {
	return r.mutate("SetOnline", driverID, func(d *domain.Driver) error {
		d.IsOnline = online
		return nil
	})
}

// UpdateLocation stores the position unless a newer one is already stored.
func (r *DriverRepository) UpdateLocation(ctx context.Context, driverID string, p domain.Point, heading float64, at time.Time) error {
	return r.mutate("UpdateLocation", driverID, func(d *domain.Driver) error {
		if !d.LocationUpdatedAt.IsZero() && !at.After(d.LocationUpdatedAt) {
			return nil
		}
		d.Location = p
		d.Heading = heading
		d.LocationUpdatedAt = at
		return nil
	})
}

// RecordCompletion credits earnings and increments completed rides.
func (r *DriverRepository) RecordCompletion(ctx context.Context, driverID string, e repository.Earnings) error {
	return r.mutate("RecordCompletion", driverID, func(d *domain.Driver) error {
		d.TotalEarnings += e.Total
		d.AvailableBalance += e.Available
		d.PendingEarnings += e.Pending
		d.CompletedRides++
		return nil
	})
}

// IncrementCancelled increments the driver's cancellation counter.
func (r *DriverRepository) IncrementCancelled(ctx context.Context, driverID string) error {
	return r.mutate("IncrementCancelled", driverID, func(d *domain.Driver) error {
		d.CancelledRides++
		return nil
	})
}

// CreditAvailable adds amount to available balance.
func (r *DriverRepository) CreditAvailable(ctx context.Context, driverID string, amount float64, fromPending bool) error {
	return r.mutate("CreditAvailable", driverID, func(d *domain.Driver) error {
		d.AvailableBalance += amount
		if fromPending {
			d.PendingEarnings -= amount
			if d.PendingEarnings < 0 {
				d.PendingEarnings = 0
			}
		}
		return nil
	})
}

// ReversePending takes back uncollected pending earnings.
func (r *DriverRepository) ReversePending(ctx context.Context, driverID string, amount float64) error {
	return r.mutate("ReversePending", driverID, func(d *domain.Driver) error {
		d.PendingEarnings = math.Max(d.PendingEarnings-amount, 0)
		d.TotalEarnings = math.Max(d.TotalEarnings-amount, 0)
		return nil
	})
}

// DebitAvailable subtracts amount from available balance if it covers it.
func (r *DriverRepository) DebitAvailable(ctx context.Context, driverID string, amount float64) error {
	return r.mutate("DebitAvailable", driverID, func(d *domain.Driver) error {
		if d.AvailableBalance < amount {
			return repository.ErrInsufficientBalance
		}
		d.AvailableBalance -= amount
		return nil
	})
}

// SetApproved updates the approval flag.
func (r *DriverRepository) SetApproved(ctx context.Context, driverID string, approved bool) error {
	return r.mutate("SetApproved", driverID, func(d *domain.Driver) error {
		d.IsApproved = approved
		return nil
	})
}

// SetBankDetails replaces the payout destination.
func (r *DriverRepository) SetBankDetails(ctx context.Context, driverID string, bank *domain.BankDetails) error {
	return r.mutate("SetBankDetails", driverID, func(d *domain.Driver) error {
		if bank == nil {
			d.Bank = nil
			return nil
		}
		b := *bank
		d.Bank = &b
		return nil
	})
}
