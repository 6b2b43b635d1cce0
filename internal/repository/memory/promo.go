package memory

import (
	"context"
	"strings"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// PromoRepository is an in-memory repository.PromoRepository.
type PromoRepository struct {
	s    *Store
	undo *undoLog
}

func clonePromo(p *domain.PromoCode) *domain.PromoCode {
	out := *p
	if p.MaxDiscount != nil {
		v := *p.MaxDiscount
		out.MaxDiscount = &v
	}
	out.ApplicableClasses = append([]domain.VehicleClass(nil), p.ApplicableClasses...)
	return &out
}

// Create adds a new promo code.
func (r *PromoRepository) Create(ctx context.Context, promo *domain.PromoCode) error {
	key := strings.ToUpper(promo.Code)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.promos[key]; ok {
		return repository.ErrDuplicate
	}
	r.undo.push(func() { delete(r.s.promos, key) })
	r.s.promos[key] = clonePromo(promo)
	return nil
}

// GetByCode retrieves a promo code by its code, case-insensitively.
func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.promos[strings.ToUpper(code)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePromo(p), nil
}

// Redeem consumes one use of code for userID.
func (r *PromoRepository) Redeem(ctx context.Context, code, userID, rideID string) error {
	key := strings.ToUpper(code)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.promos[key]
	if !ok {
		return repository.ErrNotFound
	}
	if p.CurrentUsage >= p.MaxUsageTotal {
		return repository.ErrConflict
	}
	if p.MaxUsagePerUser > 0 {
		used := 0
		for _, rd := range r.s.redemptions {
			if rd.code == key && rd.userID == userID {
				used++
			}
		}
		if used >= p.MaxUsagePerUser {
			return repository.ErrUsageLimit
		}
	}

	n := len(r.s.redemptions)
	r.undo.push(func() {
		p.CurrentUsage--
		r.s.redemptions = r.s.redemptions[:n]
	})
	p.CurrentUsage++
	r.s.redemptions = append(r.s.redemptions, redemption{code: key, userID: userID, rideID: rideID})
	return nil
}
