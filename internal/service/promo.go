package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// PromoService validates and redeems promo codes.
type PromoService struct {
	promoRepo repository.PromoRepository
	now       func() time.Time
}

// NewPromoService creates a new PromoService.
func NewPromoService(promoRepo repository.PromoRepository) *PromoService {
	return &PromoService{promoRepo: promoRepo, now: time.Now}
}

// CreatePromoRequest contains the parameters for creating a promo code.
type CreatePromoRequest struct {
	Code              string
	DiscountType      domain.DiscountType
	DiscountValue     float64
	MaxDiscount       *float64
	MinRideAmount     float64
	ValidFrom         time.Time
	ValidUntil        time.Time
	MaxUsageTotal     int
	MaxUsagePerUser   int
	ApplicableClasses []domain.VehicleClass
}

// Create adds a new active promo code.
func (s *PromoService) Create(ctx context.Context, req CreatePromoRequest) (*domain.PromoCode, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || req.DiscountValue <= 0 || req.MaxUsageTotal <= 0 {
		return nil, ErrInvalidPromo
	}
	if req.DiscountType != domain.DiscountPercentage && req.DiscountType != domain.DiscountFixed {
		return nil, ErrInvalidPromo
	}
	if req.DiscountType == domain.DiscountPercentage && req.DiscountValue > 100 {
		return nil, ErrInvalidPromo
	}
	if !req.ValidUntil.IsZero() && req.ValidUntil.Before(req.ValidFrom) {
		return nil, ErrInvalidPromo
	}
	for _, c := range req.ApplicableClasses {
		if !c.Valid() {
			return nil, ErrInvalidVehicleClass
		}
	}

	promo := &domain.PromoCode{
		ID:                uuid.New().String(),
		Code:              code,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MaxDiscount:       req.MaxDiscount,
		MinRideAmount:     req.MinRideAmount,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		IsActive:          true,
		MaxUsageTotal:     req.MaxUsageTotal,
		MaxUsagePerUser:   req.MaxUsagePerUser,
		ApplicableClasses: req.ApplicableClasses,
		CreatedAt:         s.now(),
	}
	if err := s.promoRepo.Create(ctx, promo); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrInvalidPromo
		}
		return nil, err
	}
	return promo, nil
}

// Evaluate checks code against a ride and returns the discount it would give.
// Nothing is consumed; Redeem does that inside the ride transaction.
func (s *PromoService) Evaluate(ctx context.Context, code string, class domain.VehicleClass, fare float64) (*domain.PromoCode, float64, error) {
	promo, err := s.promoRepo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, 0, notFound(err, ErrInvalidPromo)
	}
	if !promo.ActiveAt(s.now()) {
		return nil, 0, ErrInvalidPromo
	}
	if promo.CurrentUsage >= promo.MaxUsageTotal {
		return nil, 0, ErrPromoExhausted
	}
	if !promo.AppliesTo(class) || fare < promo.MinRideAmount {
		return nil, 0, ErrPromoNotApplicable
	}
	return promo, promo.Discount(fare), nil
}

// Redeem consumes one use of code through the given repositories, so the
// use is rolled back with the enclosing transaction.
func (s *PromoService) Redeem(ctx context.Context, repos repository.Repos, code, userID, rideID string) error {
	err := repos.Promos.Redeem(ctx, strings.ToUpper(code), userID, rideID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrConflict):
		return ErrPromoExhausted
	case errors.Is(err, repository.ErrUsageLimit):
		return ErrPromoUsageLimit
	case errors.Is(err, repository.ErrNotFound):
		return ErrInvalidPromo
	}
	return err
}
