package domain

import (
	"math"
	"time"
)

// DiscountType is how a promo discount is computed.
type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// PromoCode is a discount instrument with usage caps.
// CurrentUsage never exceeds MaxUsageTotal.
type PromoCode struct {
	ID                string
	Code              string
	DiscountType      DiscountType
	DiscountValue     float64
	MaxDiscount       *float64
	MinRideAmount     float64
	ValidFrom         time.Time
	ValidUntil        time.Time
	IsActive          bool
	MaxUsageTotal     int
	MaxUsagePerUser   int
	CurrentUsage      int
	ApplicableClasses []VehicleClass // empty means every class
	CreatedAt         time.Time
}

// ActiveAt reports whether the code may be used at t.
func (p *PromoCode) ActiveAt(t time.Time) bool {
	if !p.IsActive {
		return false
	}
	if !p.ValidFrom.IsZero() && t.Before(p.ValidFrom) {
		return false
	}
	if !p.ValidUntil.IsZero() && t.After(p.ValidUntil) {
		return false
	}
	return true
}

// AppliesTo reports whether the code covers the vehicle class.
func (p *PromoCode) AppliesTo(class VehicleClass) bool {
	if len(p.ApplicableClasses) == 0 {
		return true
	}
	for _, c := range p.ApplicableClasses {
		if c == class {
			return true
		}
	}
	return false
}

// Discount returns the amount taken off fare.
func (p *PromoCode) Discount(fare float64) float64 {
	var d float64
	switch p.DiscountType {
	case DiscountPercentage:
		d = fare * p.DiscountValue / 100
		if p.MaxDiscount != nil {
			d = math.Min(d, *p.MaxDiscount)
		}
	case DiscountFixed:
		d = p.DiscountValue
	}
	return math.Max(d, 0)
}
