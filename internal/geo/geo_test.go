package geo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ridehail/internal/domain"
)

func TestDistance(t *testing.T) {
	lagos := domain.Point{Lat: 6.5244, Lng: 3.3792}
	ikeja := domain.Point{Lat: 6.6018, Lng: 3.3515}

	if d := Distance(lagos, lagos); d != 0 {
		t.Errorf("expected 0 for identical points, got %f", d)
	}

	d := DistanceKm(lagos, ikeja)
	if d < 9 || d > 9.5 {
		t.Errorf("expected ~9.1km, got %f", d)
	}
	if math.Abs(DistanceKm(ikeja, lagos)-d) > 1e-9 {
		t.Error("distance is not symmetric")
	}
}

func TestValidator_Check(t *testing.T) {
	target := domain.Point{Lat: 6.5244, Lng: 3.3792}
	near := domain.Point{Lat: 6.5250, Lng: 3.3792}  // ~67m
	far := domain.Point{Lat: 6.5300, Lng: 3.3792}   // ~620m

	v := NewValidator(0, false)
	if v.RadiusMeters != DefaultGeofenceMeters {
		t.Fatalf("expected default radius, got %f", v.RadiusMeters)
	}

	if err := v.Check(&near, target); err != nil {
		t.Errorf("expected pass within radius, got %v", err)
	}
	if err := v.Check(nil, target); err != nil {
		t.Errorf("expected pass without position, got %v", err)
	}

	err := v.Check(&far, target)
	if !errors.Is(err, ErrOutsideGeofence) {
		t.Fatalf("expected ErrOutsideGeofence, got %v", err)
	}
	var gerr *GeofenceError
	if !errors.As(err, &gerr) {
		t.Fatal("expected *GeofenceError")
	}
	if gerr.DistanceMeters < 600 || gerr.DistanceMeters > 650 {
		t.Errorf("expected measured distance ~620m, got %f", gerr.DistanceMeters)
	}

	strict := NewValidator(150, true)
	if err := strict.Check(nil, target); !errors.Is(err, ErrPositionRequired) {
		t.Errorf("expected ErrPositionRequired, got %v", err)
	}
}

func TestBounds_Contains(t *testing.T) {
	b := Bounds{MinLat: 4, MaxLat: 14, MinLng: 3, MaxLng: 15}
	if !b.Contains(domain.Point{Lat: 6.5, Lng: 3.4}) {
		t.Error("expected Lagos inside")
	}
	if b.Contains(domain.Point{Lat: 51.5, Lng: -0.1}) {
		t.Error("expected London outside")
	}
	if !(Bounds{}).Contains(domain.Point{Lat: 51.5, Lng: -0.1}) {
		t.Error("zero bounds should contain everything")
	}
}

func TestMemoryIndex_LatestWins(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	now := time.Now()

	p1 := domain.Point{Lat: 6.52, Lng: 3.37}
	p2 := domain.Point{Lat: 6.53, Lng: 3.38}

	if ok, _ := idx.UpdateLocation(ctx, "d1", p2, now); !ok {
		t.Fatal("first update should apply")
	}
	if ok, _ := idx.UpdateLocation(ctx, "d1", p1, now.Add(-time.Second)); ok {
		t.Fatal("older update should be ignored")
	}

	got, _ := idx.FindNearbyDrivers(ctx, p2, 1, 10)
	if len(got) != 1 || got[0].Point != p2 {
		t.Fatalf("expected newest position, got %+v", got)
	}
}

func TestMemoryIndex_NearestFirstAndLimit(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	center := domain.Point{Lat: 6.5244, Lng: 3.3792}
	now := time.Now()

	_, _ = idx.UpdateLocation(ctx, "far", domain.Point{Lat: 6.56, Lng: 3.3792}, now)
	_, _ = idx.UpdateLocation(ctx, "near", domain.Point{Lat: 6.525, Lng: 3.3792}, now)
	_, _ = idx.UpdateLocation(ctx, "mid", domain.Point{Lat: 6.54, Lng: 3.3792}, now)
	_, _ = idx.UpdateLocation(ctx, "out", domain.Point{Lat: 7.5, Lng: 3.3792}, now)

	got, _ := idx.FindNearbyDrivers(ctx, center, 5, 2)
	if len(got) != 2 || got[0].DriverID != "near" || got[1].DriverID != "mid" {
		t.Fatalf("unexpected order %+v", got)
	}

	_ = idx.RemoveLocation(ctx, "near")
	got, _ = idx.FindNearbyDrivers(ctx, center, 5, 0)
	if len(got) != 2 || got[0].DriverID != "mid" {
		t.Fatalf("unexpected result after removal %+v", got)
	}
}
