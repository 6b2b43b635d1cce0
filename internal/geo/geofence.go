package geo

import (
	"errors"
	"fmt"

	"ridehail/internal/domain"
)

var (
	// ErrOutsideGeofence is matched by every GeofenceError.
	ErrOutsideGeofence = errors.New("outside geofence")

	// ErrPositionRequired is returned when a position is mandatory but missing.
	ErrPositionRequired = errors.New("driver position is required")
)

// GeofenceError reports how far the driver was from the target.
type GeofenceError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *GeofenceError) Error() string {
	return fmt.Sprintf("driver is %.0fm from the target, must be within %.0fm", e.DistanceMeters, e.RadiusMeters)
}

// Is makes errors.Is(err, ErrOutsideGeofence) true.
func (e *GeofenceError) Is(target error) bool { return target == ErrOutsideGeofence }

// Validator gates ride transitions on driver proximity.
type Validator struct {
	RadiusMeters float64
	// RequirePosition rejects transitions that carry no position.
	RequirePosition bool
}

// NewValidator returns a Validator, defaulting the radius when unset.
func NewValidator(radiusMeters float64, requirePosition bool) Validator {
	if radiusMeters <= 0 {
		radiusMeters = DefaultGeofenceMeters
	}
	return Validator{RadiusMeters: radiusMeters, RequirePosition: requirePosition}
}

// Check validates actual against target. A nil actual passes unless
// RequirePosition is set.
func (v Validator) Check(actual *domain.Point, target domain.Point) error {
	if actual == nil {
		if v.RequirePosition {
			return ErrPositionRequired
		}
		return nil
	}
	radius := v.RadiusMeters
	if radius <= 0 {
		radius = DefaultGeofenceMeters
	}
	ok, d := WithinRadius(*actual, target, radius)
	if !ok {
		return &GeofenceError{DistanceMeters: d, RadiusMeters: radius}
	}
	return nil
}
