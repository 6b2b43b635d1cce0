package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// PromoRepository is a PostgreSQL implementation of repository.PromoRepository.
type PromoRepository struct {
	q Querier
}

// Create adds a new promo code. Codes are stored upper-case.
func (r *PromoRepository) Create(ctx context.Context, p *domain.PromoCode) error {
	classes := make([]string, len(p.ApplicableClasses))
	for i, c := range p.ApplicableClasses {
		classes[i] = string(c)
	}
	var maxDiscount sql.NullFloat64
	if p.MaxDiscount != nil {
		maxDiscount = sql.NullFloat64{Float64: *p.MaxDiscount, Valid: true}
	}

	query := `INSERT INTO promo_codes (id, code, discount_type, discount_value, max_discount, min_ride_amount,
		valid_from, valid_until, is_active, max_usage_total, max_usage_per_user, current_usage, applicable_classes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.ExecContext(ctx, query,
		p.ID, strings.ToUpper(p.Code), p.DiscountType, p.DiscountValue, maxDiscount, p.MinRideAmount,
		nullTime(p.ValidFrom), nullTime(p.ValidUntil), p.IsActive, p.MaxUsageTotal, p.MaxUsagePerUser, p.CurrentUsage,
		pq.Array(classes), p.CreatedAt,
	)
	return mapUniqueViolation(err)
}

// GetByCode retrieves a promo code by its code, case-insensitively.
func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	query := `SELECT id, code, discount_type, discount_value, max_discount, min_ride_amount,
		valid_from, valid_until, is_active, max_usage_total, max_usage_per_user, current_usage, applicable_classes, created_at
		FROM promo_codes WHERE code = $1`

	var (
		p           domain.PromoCode
		maxDiscount sql.NullFloat64
		from, until sql.NullTime
		classes     []string
	)
	err := r.q.QueryRowContext(ctx, query, strings.ToUpper(code)).Scan(
		&p.ID, &p.Code, &p.DiscountType, &p.DiscountValue, &maxDiscount, &p.MinRideAmount,
		&from, &until, &p.IsActive, &p.MaxUsageTotal, &p.MaxUsagePerUser, &p.CurrentUsage,
		pq.Array(&classes), &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if maxDiscount.Valid {
		v := maxDiscount.Float64
		p.MaxDiscount = &v
	}
	p.ValidFrom = timeOrZero(from)
	p.ValidUntil = timeOrZero(until)
	for _, c := range classes {
		p.ApplicableClasses = append(p.ApplicableClasses, domain.VehicleClass(c))
	}
	return &p, nil
}

// Redeem consumes one use of code for userID. The usage increment takes the
// row lock, so the per-user count that follows cannot race another redemption
// of the same code. Must run inside a transaction for the count to be safe.
func (r *PromoRepository) Redeem(ctx context.Context, code, userID, rideID string) error {
	code = strings.ToUpper(code)

	var perUser int
	err := r.q.QueryRowContext(ctx, `UPDATE promo_codes
		SET current_usage = current_usage + 1
		WHERE code = $1 AND current_usage < max_usage_total
		RETURNING max_usage_per_user`, code).Scan(&perUser)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM promo_codes WHERE code = $1)`, code).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}
	if err != nil {
		return err
	}

	if perUser > 0 {
		var used int
		if err := r.q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM promo_redemptions WHERE code = $1 AND user_id = $2`, code, userID,
		).Scan(&used); err != nil {
			return err
		}
		if used >= perUser {
			return repository.ErrUsageLimit
		}
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO promo_redemptions (code, user_id, ride_id) VALUES ($1, $2, $3)`, code, userID, rideID)
	return err
}
