package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// PromoHandler handles HTTP requests for promo codes.
type PromoHandler struct {
	promoService *service.PromoService
}

// NewPromoHandler creates a new PromoHandler.
func NewPromoHandler(promoService *service.PromoService) *PromoHandler {
	return &PromoHandler{promoService: promoService}
}

// CreatePromoRequest is the HTTP request body for creating a promo code.
type CreatePromoRequest struct {
	Code              string    `json:"code"`
	DiscountType      string    `json:"discount_type"`
	DiscountValue     float64   `json:"discount_value"`
	MaxDiscount       *float64  `json:"max_discount,omitempty"`
	MinRideAmount     float64   `json:"min_ride_amount"`
	ValidFrom         time.Time `json:"valid_from"`
	ValidUntil        time.Time `json:"valid_until"`
	MaxUsageTotal     int       `json:"max_usage_total"`
	MaxUsagePerUser   int       `json:"max_usage_per_user"`
	ApplicableClasses []string  `json:"applicable_classes,omitempty"`
}

// ValidatePromoRequest checks a code against a quoted fare.
type ValidatePromoRequest struct {
	Code         string  `json:"code"`
	VehicleClass string  `json:"vehicle_class"`
	Fare         float64 `json:"fare"`
}

// PromoResponse is the HTTP response for promo data.
type PromoResponse struct {
	Code              string    `json:"code"`
	DiscountType      string    `json:"discount_type"`
	DiscountValue     float64   `json:"discount_value"`
	MaxDiscount       *float64  `json:"max_discount,omitempty"`
	MinRideAmount     float64   `json:"min_ride_amount"`
	ValidFrom         time.Time `json:"valid_from"`
	ValidUntil        time.Time `json:"valid_until"`
	MaxUsageTotal     int       `json:"max_usage_total"`
	MaxUsagePerUser   int       `json:"max_usage_per_user"`
	CurrentUsage      int       `json:"current_usage"`
	ApplicableClasses []string  `json:"applicable_classes,omitempty"`
}

func toPromoResponse(p *domain.PromoCode) PromoResponse {
	classes := make([]string, 0, len(p.ApplicableClasses))
	for _, c := range p.ApplicableClasses {
		classes = append(classes, string(c))
	}
	return PromoResponse{
		Code:              p.Code,
		DiscountType:      string(p.DiscountType),
		DiscountValue:     p.DiscountValue,
		MaxDiscount:       p.MaxDiscount,
		MinRideAmount:     p.MinRideAmount,
		ValidFrom:         p.ValidFrom,
		ValidUntil:        p.ValidUntil,
		MaxUsageTotal:     p.MaxUsageTotal,
		MaxUsagePerUser:   p.MaxUsagePerUser,
		CurrentUsage:      p.CurrentUsage,
		ApplicableClasses: classes,
	}
}

// Create handles POST /v1/admin/promos
func (h *PromoHandler) Create(c *gin.Context) {
	var req CreatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	classes := make([]domain.VehicleClass, 0, len(req.ApplicableClasses))
	for _, s := range req.ApplicableClasses {
		classes = append(classes, vehicleClass(s))
	}

	promo, err := h.promoService.Create(c.Request.Context(), service.CreatePromoRequest{
		Code:              req.Code,
		DiscountType:      domain.DiscountType(req.DiscountType),
		DiscountValue:     req.DiscountValue,
		MaxDiscount:       req.MaxDiscount,
		MinRideAmount:     req.MinRideAmount,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		MaxUsageTotal:     req.MaxUsageTotal,
		MaxUsagePerUser:   req.MaxUsagePerUser,
		ApplicableClasses: classes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toPromoResponse(promo))
}

// Validate handles POST /v1/promos/validate
func (h *PromoHandler) Validate(c *gin.Context) {
	var req ValidatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	promo, discount, err := h.promoService.Evaluate(c.Request.Context(), req.Code, vehicleClass(req.VehicleClass), req.Fare)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"code": promo.Code, "discount": discount})
}
