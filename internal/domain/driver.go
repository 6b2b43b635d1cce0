package domain

import "time"

// Vehicle describes the car or bike a driver operates.
type Vehicle struct {
	Class VehicleClass
	Make  string
	Model string
	Color string
	Plate string
}

// BankDetails is where payouts are sent. RecipientCode is assigned by the
// payment gateway the first time a payout is made.
type BankDetails struct {
	BankCode      string
	AccountNumber string
	AccountName   string
	RecipientCode string
}

// Driver represents a driver in the system.
//
// IsAvailable is false exactly when CurrentRideID is set; the two are only
// ever written together.
type Driver struct {
	ID      string
	Name    string
	Phone   string
	Vehicle Vehicle

	IsOnline    bool
	IsAvailable bool
	IsApproved  bool

	Location          Point
	Heading           float64
	LocationUpdatedAt time.Time
	CurrentRideID     string

	Rating           float64
	TotalEarnings    float64
	PendingEarnings  float64
	AvailableBalance float64
	CompletedRides   int
	CancelledRides   int

	Bank        *BankDetails
	DeviceToken string
	CreatedAt   time.Time
}

// CanDispatch reports whether the driver may receive a request for class.
func (d *Driver) CanDispatch(class VehicleClass) bool {
	return d.IsOnline && d.IsAvailable && d.IsApproved &&
		d.CurrentRideID == "" && d.Vehicle.Class == class
}

// DriverPosition is one entry returned by a nearest-driver query.
type DriverPosition struct {
	DriverID   string
	Point      Point
	DistanceKm float64
}
