package repository

import (
	"context"

	"ridehail/internal/domain"
)

// PromoRepository defines the persistence operations for promo codes.
type PromoRepository interface {
	// Create adds a new promo code. Returns ErrDuplicate if the code exists.
	Create(ctx context.Context, promo *domain.PromoCode) error

	// GetByCode retrieves a promo code by its code.
	GetByCode(ctx context.Context, code string) (*domain.PromoCode, error)

	// Redeem consumes one use of code for userID. The total counter is
	// incremented only while below MaxUsageTotal (ErrConflict otherwise) and the
	// per-user count is checked under the same row lock (ErrUsageLimit).
	Redeem(ctx context.Context, code, userID, rideID string) error
}
