package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService  *service.DriverService
	paymentService *service.PaymentService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverService *service.DriverService, paymentService *service.PaymentService) *DriverHandler {
	return &DriverHandler{
		driverService:  driverService,
		paymentService: paymentService,
	}
}

// VehicleRequest describes the driver's vehicle.
type VehicleRequest struct {
	Class string `json:"class"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Color string `json:"color"`
	Plate string `json:"plate"`
}

// RegisterDriverRequest is the HTTP request body for driver registration.
type RegisterDriverRequest struct {
	Name        string         `json:"name"`
	Phone       string         `json:"phone"`
	Vehicle     VehicleRequest `json:"vehicle"`
	DeviceToken string         `json:"device_token,omitempty"`
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Lat     float64    `json:"latitude"`
	Lng     float64    `json:"longitude"`
	Heading float64    `json:"heading"`
	At      *time.Time `json:"timestamp,omitempty"`
}

// StatusRequest toggles whether the driver receives requests.
type StatusRequest struct {
	Online bool `json:"online"`
}

// BankDetailsRequest is where payouts go.
type BankDetailsRequest struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// PayoutRequest is the HTTP request body for a payout.
type PayoutRequest struct {
	Amount float64 `json:"amount"`
}

// ApproveRequest is the HTTP request body for approving a driver.
type ApproveRequest struct {
	Approved bool `json:"approved"`
}

// DriverResponse is the HTTP response for driver data.
type DriverResponse struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Phone            string       `json:"phone"`
	VehicleClass     string       `json:"vehicle_class"`
	Vehicle          string       `json:"vehicle"`
	Plate            string       `json:"plate"`
	Online           bool         `json:"online"`
	Available        bool         `json:"available"`
	Approved         bool         `json:"approved"`
	Location         domain.Point `json:"location"`
	CurrentRideID    string       `json:"current_ride_id,omitempty"`
	Rating           float64      `json:"rating"`
	TotalEarnings    float64      `json:"total_earnings"`
	PendingEarnings  float64      `json:"pending_earnings"`
	AvailableBalance float64      `json:"available_balance"`
	CompletedRides   int          `json:"completed_rides"`
	CancelledRides   int          `json:"cancelled_rides"`
	HasBankDetails   bool         `json:"has_bank_details"`
}

// NearbyDriverResponse is one driver shown on the rider's map.
type NearbyDriverResponse struct {
	DriverID     string       `json:"driver_id"`
	Location     domain.Point `json:"location"`
	DistanceKm   float64      `json:"distance_km"`
	VehicleClass string       `json:"vehicle_class"`
}

func toDriverResponse(d *domain.Driver) DriverResponse {
	return DriverResponse{
		ID:               d.ID,
		Name:             d.Name,
		Phone:            d.Phone,
		VehicleClass:     string(d.Vehicle.Class),
		Vehicle:          strings.TrimSpace(d.Vehicle.Color + " " + d.Vehicle.Make + " " + d.Vehicle.Model),
		Plate:            d.Vehicle.Plate,
		Online:           d.IsOnline,
		Available:        d.IsAvailable,
		Approved:         d.IsApproved,
		Location:         d.Location,
		CurrentRideID:    d.CurrentRideID,
		Rating:           d.Rating,
		TotalEarnings:    d.TotalEarnings,
		PendingEarnings:  d.PendingEarnings,
		AvailableBalance: d.AvailableBalance,
		CompletedRides:   d.CompletedRides,
		CancelledRides:   d.CancelledRides,
		HasBankDetails:   d.Bank != nil,
	}
}

// Register handles POST /v1/drivers/register
func (h *DriverHandler) Register(c *gin.Context) {
	var req RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Name == "" || req.Phone == "" {
		badRequest(c, "name and phone are required")
		return
	}

	driver, err := h.driverService.Register(c.Request.Context(), service.RegisterDriverRequest{
		ID:    callerID(c),
		Name:  req.Name,
		Phone: req.Phone,
		Vehicle: domain.Vehicle{
			Class: vehicleClass(req.Vehicle.Class),
			Make:  req.Vehicle.Make,
			Model: req.Vehicle.Model,
			Color: req.Vehicle.Color,
			Plate: req.Vehicle.Plate,
		},
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toDriverResponse(driver))
}

// Me handles GET /v1/drivers/me
func (h *DriverHandler) Me(c *gin.Context) {
	driver, err := h.driverService.GetDriver(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverResponse(driver))
}

// UpdateLocation handles POST /v1/drivers/me/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	in := service.UpdateLocationRequest{
		DriverID: callerID(c),
		Location: domain.Point{Lat: req.Lat, Lng: req.Lng},
		Heading:  req.Heading,
	}
	if req.At != nil {
		in.At = *req.At
	}
	if err := h.driverService.UpdateLocation(c.Request.Context(), in); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetStatus handles POST /v1/drivers/me/status
func (h *DriverHandler) SetStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	driver, err := h.driverService.SetOnline(c.Request.Context(), callerID(c), req.Online)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverResponse(driver))
}

// SetBankDetails handles PUT /v1/drivers/me/bank
func (h *DriverHandler) SetBankDetails(c *gin.Context) {
	var req BankDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	driver, err := h.driverService.SetBankDetails(c.Request.Context(), callerID(c), domain.BankDetails{
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverResponse(driver))
}

// Payout handles POST /v1/drivers/me/payouts
func (h *DriverHandler) Payout(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	payment, err := h.paymentService.RequestPayout(c.Request.Context(), callerID(c), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toPaymentResponse(payment))
}

// Nearby handles GET /v1/drivers/nearby?lat=&lng=&radius_km=&class=
func (h *DriverHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		badRequest(c, "lat and lng are required")
		return
	}
	radius, _ := strconv.ParseFloat(c.Query("radius_km"), 64)
	limit, _ := strconv.Atoi(c.Query("limit"))

	drivers, err := h.driverService.Nearby(c.Request.Context(), domain.Point{Lat: lat, Lng: lng}, radius, vehicleClass(c.Query("class")), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]NearbyDriverResponse, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, NearbyDriverResponse{
			DriverID:     d.DriverID,
			Location:     d.Location,
			DistanceKm:   d.DistanceKm,
			VehicleClass: string(d.VehicleClass),
		})
	}
	respondJSON(c, http.StatusOK, gin.H{"drivers": out})
}

// Approve handles POST /v1/admin/drivers/:id/approve
func (h *DriverHandler) Approve(c *gin.Context) {
	req := ApproveRequest{Approved: true}
	if !bindOptionalJSON(c, &req) {
		return
	}

	driver, err := h.driverService.Approve(c.Request.Context(), c.Param("id"), req.Approved)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toDriverResponse(driver))
}
