package geo

import (
	"math"

	"ridehail/internal/domain"
)

const earthRadiusMeters = 6371e3

// DefaultGeofenceMeters gates start and completion transitions.
const DefaultGeofenceMeters = 150.0

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b domain.Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceKm returns the great-circle distance between a and b in kilometers.
func DistanceKm(a, b domain.Point) float64 {
	return Distance(a, b) / 1000
}

// WithinRadius reports whether a and b are at most radius meters apart,
// along with the measured distance.
func WithinRadius(a, b domain.Point, radius float64) (bool, float64) {
	d := Distance(a, b)
	return d <= radius, d
}

// ValidCoordinates reports whether p is a real WGS84 coordinate.
func ValidCoordinates(p domain.Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Bounds is a rectangular service area.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether p lies inside b. A zero Bounds contains everything.
func (b Bounds) Contains(p domain.Point) bool {
	if b == (Bounds{}) {
		return true
	}
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// BoundingBox returns the rectangle that encloses a circle of radiusKm
// around center. Used to narrow SQL scans before an exact distance check.
func BoundingBox(center domain.Point, radiusKm float64) Bounds {
	dLat := radiusKm / 111.0
	cos := math.Cos(toRadians(center.Lat))
	if cos < 0.01 {
		cos = 0.01
	}
	dLng := radiusKm / (111.0 * cos)
	return Bounds{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLng: center.Lng - dLng,
		MaxLng: center.Lng + dLng,
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
