package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/middleware"
	"ridehail/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GeofenceErrorResponse reports how far the driver was from the target.
type GeofenceErrorResponse struct {
	Error          string  `json:"error"`
	DistanceMeters float64 `json:"distance_meters"`
	RadiusMeters   float64 `json:"radius_meters"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	var gerr *geo.GeofenceError
	if errors.As(err, &gerr) {
		c.JSON(code, GeofenceErrorResponse{Error: err.Error(), DistanceMeters: gerr.DistanceMeters, RadiusMeters: gerr.RadiusMeters})
		return
	}
	if code == http.StatusInternalServerError {
		c.JSON(code, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// bindOptionalJSON binds a body the caller may omit. An empty body leaves obj
// untouched; a malformed one is answered with 400 and false.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// mapErrorToHTTPStatus maps service errors to HTTP status codes by kind.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Checked before validation, which it also wraps.
	case errors.Is(err, geo.ErrOutsideGeofence), errors.Is(err, geo.ErrPositionRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PointRequest is a coordinate pair in request bodies.
type PointRequest struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

func (p *PointRequest) point() *domain.Point {
	if p == nil {
		return nil
	}
	return &domain.Point{Lat: p.Lat, Lng: p.Lng}
}

// LocationRequest is a coordinate pair with an optional address.
type LocationRequest struct {
	Lat     float64 `json:"latitude"`
	Lng     float64 `json:"longitude"`
	Address string  `json:"address"`
}

func (l LocationRequest) location() domain.Location {
	return domain.Location{Point: domain.Point{Lat: l.Lat, Lng: l.Lng}, Address: l.Address}
}

// FareResponse is the fare breakdown shown to riders.
type FareResponse struct {
	VehicleClass       string  `json:"vehicle_class"`
	DistanceKm         float64 `json:"distance_km"`
	DurationMin        int     `json:"duration_min"`
	BaseFare           float64 `json:"base_fare"`
	SurgeCharge        float64 `json:"surge_charge"`
	Discount           float64 `json:"discount"`
	Total              float64 `json:"total"`
	PlatformCommission float64 `json:"platform_commission"`
	DriverEarnings     float64 `json:"driver_earnings"`
	SurgeMultiplier    float64 `json:"surge_multiplier"`
	TimeMultiplier     float64 `json:"time_multiplier"`
	DemandMultiplier   float64 `json:"demand_multiplier"`
	WeatherMultiplier  float64 `json:"weather_multiplier"`
	EventMultiplier    float64 `json:"event_multiplier"`
	ExternalMultiplier float64 `json:"external_multiplier"`
	PromoCode          string  `json:"promo_code,omitempty"`
}

func toFareResponse(q *service.FareQuote) *FareResponse {
	if q == nil {
		return nil
	}
	return &FareResponse{
		VehicleClass:       string(q.VehicleClass),
		DistanceKm:         q.DistanceKm,
		DurationMin:        q.DurationMin,
		BaseFare:           q.Split.BaseFare,
		SurgeCharge:        q.Split.SurgeCharge,
		Discount:           q.Split.Discount,
		Total:              q.Total,
		PlatformCommission: q.Split.PlatformCommission,
		DriverEarnings:     q.Split.DriverEarnings,
		SurgeMultiplier:    q.SurgeMultiplier,
		TimeMultiplier:     q.TimeMultiplier,
		DemandMultiplier:   q.DemandMultiplier,
		WeatherMultiplier:  q.WeatherMultiplier,
		EventMultiplier:    q.EventMultiplier,
		ExternalMultiplier: q.ExternalMultiplier,
		PromoCode:          q.PromoCode,
	}
}

// RideResponse is the HTTP response for ride data.
type RideResponse struct {
	ID                string          `json:"id"`
	RiderID           string          `json:"rider_id"`
	DriverID          string          `json:"driver_id,omitempty"`
	Pickup            domain.Location `json:"pickup"`
	Dropoff           domain.Location `json:"dropoff"`
	VehicleClass      string          `json:"vehicle_class"`
	Status            string          `json:"status"`
	EstimatedFare     float64         `json:"estimated_fare"`
	FinalFare         float64         `json:"final_fare,omitempty"`
	DistanceKm        float64         `json:"distance_km"`
	DurationMin       int             `json:"duration_min"`
	SurgeMultiplier   float64         `json:"surge_multiplier"`
	Discount          float64         `json:"discount,omitempty"`
	PromoCode         string          `json:"promo_code,omitempty"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentStatus     string          `json:"payment_status"`
	CancelledBy       string          `json:"cancelled_by,omitempty"`
	CancelReason      string          `json:"cancel_reason,omitempty"`
	CancellationFee   float64         `json:"cancellation_fee,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	AcceptedAt        *time.Time      `json:"accepted_at,omitempty"`
	ArrivedAt         *time.Time      `json:"arrived_at,omitempty"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	ActualDistanceKm  float64         `json:"actual_distance_km,omitempty"`
	ActualDurationMin int             `json:"actual_duration_min,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:                r.ID,
		RiderID:           r.RiderID,
		DriverID:          r.DriverID,
		Pickup:            r.Pickup,
		Dropoff:           r.Dropoff,
		VehicleClass:      string(r.VehicleClass),
		Status:            string(r.Status),
		EstimatedFare:     r.EstimatedFare,
		FinalFare:         r.FinalFare,
		DistanceKm:        r.DistanceKm,
		DurationMin:       r.DurationMin,
		SurgeMultiplier:   r.Fare.SurgeMultiplier,
		Discount:          r.Fare.Discount,
		PromoCode:         r.PromoCode,
		PaymentMethod:     string(r.PaymentMethod),
		PaymentStatus:     string(r.PaymentStatus),
		CancelledBy:       string(r.CancelledBy),
		CancelReason:      r.CancelReason,
		CancellationFee:   r.CancellationFee,
		CreatedAt:         r.CreatedAt,
		AcceptedAt:        optionalTime(r.AcceptedAt),
		ArrivedAt:         optionalTime(r.ArrivedAt),
		StartedAt:         optionalTime(r.StartedAt),
		CompletedAt:       optionalTime(r.CompletedAt),
		CancelledAt:       optionalTime(r.CancelledAt),
		ActualDistanceKm:  r.ActualDistanceKm,
		ActualDurationMin: r.ActualDurationMin,
	}
}

// PaymentResponse is the HTTP response for payment data.
type PaymentResponse struct {
	ID             string  `json:"id"`
	RideID         string  `json:"ride_id,omitempty"`
	Purpose        string  `json:"purpose"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Method         string  `json:"method"`
	Status         string  `json:"status"`
	Reference      string  `json:"reference,omitempty"`
	RedirectURL    string  `json:"redirect_url,omitempty"`
	Asset          string  `json:"asset,omitempty"`
	DepositAddress string  `json:"deposit_address,omitempty"`
	Confirmations  int     `json:"confirmations,omitempty"`
	FailureReason  string  `json:"failure_reason,omitempty"`
}

func toPaymentResponse(p *domain.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	return &PaymentResponse{
		ID:             p.ID,
		RideID:         p.RideID,
		Purpose:        string(p.Purpose),
		Amount:         p.Amount,
		Currency:       p.Currency,
		Method:         string(p.Method),
		Status:         string(p.Status),
		Reference:      p.Reference,
		RedirectURL:    p.RedirectURL,
		Asset:          string(p.Asset),
		DepositAddress: p.DepositAddress,
		Confirmations:  p.Confirmations,
		FailureReason:  p.FailureReason,
	}
}

func callerID(c *gin.Context) string        { return middleware.CallerID(c) }
func callerRole(c *gin.Context) domain.Role { return middleware.CallerRole(c) }

// ReceiptResponse is the fare statement of a completed ride.
type ReceiptResponse struct {
	RideID          string          `json:"ride_id"`
	VehicleClass    string          `json:"vehicle_class"`
	Pickup          domain.Location `json:"pickup"`
	Dropoff         domain.Location `json:"dropoff"`
	DistanceKm      float64         `json:"distance_km"`
	DurationMin     int             `json:"duration_min"`
	BaseFare        float64         `json:"base_fare"`
	DistanceCharge  float64         `json:"distance_charge"`
	TimeCharge      float64         `json:"time_charge"`
	SurgeMultiplier float64         `json:"surge_multiplier"`
	SurgeCharge     float64         `json:"surge_charge"`
	Discount        float64         `json:"discount"`
	Total           float64         `json:"total"`
	Currency        string          `json:"currency"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   string          `json:"payment_status"`
	Paid            float64         `json:"paid"`
	DriverEarnings  *float64        `json:"driver_earnings,omitempty"`
	CompletedAt     time.Time       `json:"completed_at"`
}

// toReceiptResponse hides the commission split from riders.
func toReceiptResponse(r *domain.Receipt, role domain.Role) ReceiptResponse {
	out := ReceiptResponse{
		RideID:          r.RideID,
		VehicleClass:    string(r.VehicleClass),
		Pickup:          r.Pickup,
		Dropoff:         r.Dropoff,
		DistanceKm:      r.DistanceKm,
		DurationMin:     r.DurationMin,
		BaseFare:        r.BaseFare,
		DistanceCharge:  r.DistanceCharge,
		TimeCharge:      r.TimeCharge,
		SurgeMultiplier: r.SurgeMultiplier,
		SurgeCharge:     r.Split.SurgeCharge,
		Discount:        r.Split.Discount,
		Total:           r.Total,
		Currency:        r.Currency,
		PaymentMethod:   string(r.PaymentMethod),
		PaymentStatus:   string(r.PaymentStatus),
		Paid:            r.Paid,
		CompletedAt:     r.CompletedAt,
	}
	if role != domain.RoleRider {
		earnings := r.Split.DriverEarnings
		out.DriverEarnings = &earnings
	}
	return out
}
