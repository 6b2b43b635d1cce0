package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService    *service.RideService
	driverService  *service.DriverService
	receiptService *service.ReceiptService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService, driverService *service.DriverService, receiptService *service.ReceiptService) *RideHandler {
	return &RideHandler{
		rideService:    rideService,
		driverService:  driverService,
		receiptService: receiptService,
	}
}

// CreateRideRequest is the HTTP request body for requesting a ride.
type CreateRideRequest struct {
	Pickup        LocationRequest `json:"pickup"`
	Dropoff       LocationRequest `json:"dropoff"`
	VehicleClass  string          `json:"vehicle_class"`
	PaymentMethod string          `json:"payment_method,omitempty"` // CASH, WALLET, GATEWAY, CRYPTO
	PromoCode     string          `json:"promo_code,omitempty"`
	CryptoAsset   string          `json:"crypto_asset,omitempty"`
}

// CreateRideResponse is the HTTP response for a requested ride.
type CreateRideResponse struct {
	Ride       RideResponse     `json:"ride"`
	Fare       *FareResponse    `json:"fare"`
	Payment    *PaymentResponse `json:"payment"`
	Candidates int              `json:"drivers_notified"`
}

// EstimateRequest is the HTTP request body for a fare estimate.
type EstimateRequest struct {
	Pickup       PointRequest `json:"pickup"`
	Dropoff      PointRequest `json:"dropoff"`
	VehicleClass string       `json:"vehicle_class"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelRideResponse is the HTTP response for a cancelled ride.
type CancelRideResponse struct {
	Ride RideResponse     `json:"ride"`
	Fee  *PaymentResponse `json:"fee,omitempty"`
}

// PositionRequest carries the driver's current position on a transition.
type PositionRequest struct {
	Location *PointRequest `json:"location,omitempty"`
}

// CompleteRideRequest is the HTTP request body for finishing a ride.
type CompleteRideRequest struct {
	Location          *PointRequest `json:"location,omitempty"`
	ActualDistanceKm  *float64      `json:"actual_distance_km,omitempty"`
	ActualDurationMin *int          `json:"actual_duration_min,omitempty"`
}

// CompleteRideResponse is the HTTP response for a completed ride.
type CompleteRideResponse struct {
	Ride       RideResponse     `json:"ride"`
	Payment    *PaymentResponse `json:"payment"`
	Adjustment *PaymentResponse `json:"adjustment,omitempty"`
}

// SOSRequest is the HTTP request body for an emergency alert.
type SOSRequest struct {
	Location *PointRequest `json:"location,omitempty"`
	Message  string        `json:"message,omitempty"`
}

func vehicleClass(s string) domain.VehicleClass {
	return domain.VehicleClass(strings.ToUpper(strings.TrimSpace(s)))
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.rideService.RequestRide(c.Request.Context(), service.RequestRideInput{
		RiderID:       callerID(c),
		Pickup:        req.Pickup.location(),
		Dropoff:       req.Dropoff.location(),
		VehicleClass:  vehicleClass(req.VehicleClass),
		PaymentMethod: domain.PaymentMethod(strings.ToUpper(req.PaymentMethod)),
		PromoCode:     req.PromoCode,
		CryptoAsset:   domain.CryptoAsset(strings.ToUpper(req.CryptoAsset)),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreateRideResponse{
		Ride:       toRideResponse(result.Ride),
		Fare:       toFareResponse(result.Quote),
		Payment:    toPaymentResponse(result.Payment),
		Candidates: result.Candidates,
	})
}

// Estimate handles POST /v1/rides/estimate
func (h *RideHandler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	quote, err := h.rideService.CalculateFare(c.Request.Context(), *req.Pickup.point(), *req.Dropoff.point(), vehicleClass(req.VehicleClass))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toFareResponse(quote))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"), callerID(c), callerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// History handles GET /v1/rides
func (h *RideHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rides, err := h.rideService.History(c.Request.Context(), callerID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r))
	}
	respondJSON(c, http.StatusOK, gin.H{"rides": out})
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	var req CancelRideRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.rideService.CancelRide(c.Request.Context(), service.CancelRideInput{
		RideID:  c.Param("id"),
		ActorID: callerID(c),
		Role:    callerRole(c),
		Reason:  req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, CancelRideResponse{
		Ride: toRideResponse(result.Ride),
		Fee:  toPaymentResponse(result.Fee),
	})
}

// AcceptRide handles POST /v1/rides/:id/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	ride, err := h.rideService.AcceptRide(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// Arrive handles POST /v1/rides/:id/arrive
func (h *RideHandler) Arrive(c *gin.Context) {
	ride, err := h.rideService.DriverArrived(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// StartRide handles POST /v1/rides/:id/start
func (h *RideHandler) StartRide(c *gin.Context) {
	var req PositionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	ride, err := h.rideService.StartRide(c.Request.Context(), c.Param("id"), callerID(c), req.Location.point())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CompleteRide handles POST /v1/rides/:id/complete
func (h *RideHandler) CompleteRide(c *gin.Context) {
	var req CompleteRideRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.rideService.CompleteRide(c.Request.Context(), service.CompleteRideInput{
		RideID:            c.Param("id"),
		DriverID:          callerID(c),
		Position:          req.Location.point(),
		ActualDistanceKm:  req.ActualDistanceKm,
		ActualDurationMin: req.ActualDurationMin,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, CompleteRideResponse{
		Ride:       toRideResponse(result.Ride),
		Payment:    toPaymentResponse(result.Payment),
		Adjustment: toPaymentResponse(result.Adjustment),
	})
}

// SOS handles POST /v1/rides/:id/sos
func (h *RideHandler) SOS(c *gin.Context) {
	var req SOSRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	alert, err := h.driverService.SOS(c.Request.Context(), c.Param("id"), callerID(c), callerRole(c), req.Location.point(), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusAccepted, alert)
}

// Receipt handles GET /v1/rides/:id/receipt. ?format=text returns the
// printable version.
func (h *RideHandler) Receipt(c *gin.Context) {
	receipt, err := h.receiptService.GenerateReceipt(c.Request.Context(), c.Param("id"), callerID(c), callerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if c.Query("format") == "text" {
		c.String(http.StatusOK, h.receiptService.FormatReceipt(receipt))
		return
	}
	respondJSON(c, http.StatusOK, toReceiptResponse(receipt, callerRole(c)))
}
