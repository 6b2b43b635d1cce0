package domain

import "time"

// Receipt is the fare statement of a completed ride.
type Receipt struct {
	RideID       string
	RiderID      string
	DriverID     string
	VehicleClass VehicleClass
	Pickup       Location
	Dropoff      Location

	DistanceKm  float64
	DurationMin int

	BaseFare        float64
	DistanceCharge  float64
	TimeCharge      float64
	SurgeMultiplier float64
	Split           FareSplit
	Total           float64
	Currency        string

	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	// Paid is the sum of settled fare and adjustment payments, net of refunds.
	Paid float64

	StartedAt   time.Time
	CompletedAt time.Time
	IssuedAt    time.Time
}
