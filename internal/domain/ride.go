package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusPending    RideStatus = "PENDING"
	RideStatusAccepted   RideStatus = "ACCEPTED"
	RideStatusArrived    RideStatus = "ARRIVED"
	RideStatusInProgress RideStatus = "IN_PROGRESS"
	RideStatusCompleted  RideStatus = "COMPLETED"
	RideStatusCancelled  RideStatus = "CANCELLED"
)

// rideTransitions lists the only legal forward moves out of each status.
var rideTransitions = map[RideStatus][]RideStatus{
	RideStatusPending:    {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:   {RideStatusArrived, RideStatusCancelled},
	RideStatusArrived:    {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress: {RideStatusCompleted, RideStatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	for _, allowed := range rideTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// Valid reports whether s is a known status.
func (s RideStatus) Valid() bool {
	switch s {
	case RideStatusPending, RideStatusAccepted, RideStatusArrived,
		RideStatusInProgress, RideStatusCompleted, RideStatusCancelled:
		return true
	}
	return false
}

// VehicleClass is the service class requested by the rider.
type VehicleClass string

const (
	VehicleClassEconomy VehicleClass = "ECONOMY"
	VehicleClassComfort VehicleClass = "COMFORT"
	VehicleClassXL      VehicleClass = "XL"
	VehicleClassBike    VehicleClass = "BIKE"
)

// Valid reports whether c is a known vehicle class.
func (c VehicleClass) Valid() bool {
	switch c {
	case VehicleClassEconomy, VehicleClassComfort, VehicleClassXL, VehicleClassBike:
		return true
	}
	return false
}

// CancelActor identifies who cancelled a ride.
type CancelActor string

const (
	CancelledByRider  CancelActor = "RIDER"
	CancelledByDriver CancelActor = "DRIVER"
	CancelledBySystem CancelActor = "SYSTEM"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Location is a point with a human readable address.
type Location struct {
	Point
	Address string `json:"address"`
}

// FareBreakdown holds the per-unit rates and multipliers a fare was priced with.
// Final fares are recomputed from these stored values, never from current rates.
type FareBreakdown struct {
	BaseFare        float64
	PerKmRate       float64
	PerMinuteRate   float64
	SurgeMultiplier float64
	Discount        float64
	CommissionRate  float64
}

// Ride represents a ride request in the system.
type Ride struct {
	ID           string
	RiderID      string
	DriverID     string // empty until a driver accepts
	Pickup       Location
	Dropoff      Location
	VehicleClass VehicleClass
	Status       RideStatus

	EstimatedFare     float64
	FinalFare         float64
	DistanceKm        float64
	DurationMin       int
	ActualDistanceKm  float64
	ActualDurationMin int
	Fare              FareBreakdown

	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	PromoCode     string

	CancelledBy     CancelActor
	CancelReason    string
	CancellationFee float64

	DispatchAttempts int
	LastDispatchedAt time.Time

	CreatedAt   time.Time
	AcceptedAt  time.Time
	ArrivedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	CancelledAt time.Time
}

// HasParty reports whether userID is the rider or the bound driver.
func (r *Ride) HasParty(userID string) bool {
	return userID != "" && (r.RiderID == userID || r.DriverID == userID)
}
