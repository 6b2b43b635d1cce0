package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/realtime"
)

func TestRegisterDriver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := RegisterDriverRequest{
		ID:      "d1",
		Name:    "Ada",
		Phone:   "+2348011111111",
		Vehicle: domain.Vehicle{Class: domain.VehicleClassComfort, Make: "Honda", Model: "Accord", Plate: "LAG-1"},
	}

	d, err := env.drivers.Register(ctx, req)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if d.IsApproved || d.IsOnline || !d.IsAvailable || d.Rating != 5 {
		t.Errorf("unexpected new driver state %+v", d)
	}
	if _, err := env.drivers.Register(ctx, req); !errors.Is(err, ErrDriverExists) {
		t.Errorf("expected duplicate registration to fail, got %v", err)
	}
}

func TestUpdateLocation_LatestWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)

	older := domain.Point{Lat: 6.6, Lng: 3.4}
	err := env.drivers.UpdateLocation(ctx, UpdateLocationRequest{DriverID: "d1", Location: older, At: env.now().Add(-time.Minute)})
	if err != nil {
		t.Fatalf("stale update should be dropped silently, got %v", err)
	}
	if got := env.driver("d1").Location; got != lagosPickup {
		t.Errorf("stale update overwrote location: %+v", got)
	}

	nearby, err := env.drivers.Nearby(ctx, lagosPickup, 1, "", 10)
	if err != nil {
		t.Fatalf("Nearby failed: %v", err)
	}
	if len(nearby) != 1 || nearby[0].DriverID != "d1" {
		t.Errorf("index should still place d1 at pickup, got %+v", nearby)
	}

	newer := domain.Point{Lat: 6.5300, Lng: 3.3800}
	env.advance(time.Second)
	if err := env.drivers.UpdateLocation(ctx, UpdateLocationRequest{DriverID: "d1", Location: newer}); err != nil {
		t.Fatalf("UpdateLocation failed: %v", err)
	}
	if got := env.driver("d1").Location; got != newer {
		t.Errorf("expected newer location, got %+v", got)
	}
}

func TestUpdateLocation_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.drivers.UpdateLocation(ctx, UpdateLocationRequest{DriverID: "d1", Location: domain.Point{Lat: 100}}); !errors.Is(err, ErrInvalidLocation) {
		t.Errorf("expected invalid location, got %v", err)
	}
	if err := env.drivers.UpdateLocation(ctx, UpdateLocationRequest{DriverID: "ghost", Location: lagosPickup}); !errors.Is(err, ErrDriverNotFound) {
		t.Errorf("expected driver not found, got %v", err)
	}
}

func TestUpdateLocation_RelayedToRiderDuringRide(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ctx := context.Background()
	res := env.request("r1", domain.PaymentMethodCash)

	// Not yet bound: nothing is relayed.
	env.advance(time.Second)
	if err := env.drivers.UpdateLocation(ctx, UpdateLocationRequest{DriverID: "d1", Location: lagosPickup}); err != nil {
		t.Fatalf("UpdateLocation failed: %v", err)
	}
	if n := env.pub.count(realtime.UserTopic("r1"), realtime.EventDriverLocationUpdate); n != 0 {
		t.Fatalf("expected no relay before acceptance, got %d", n)
	}

	if _, err := env.rides.AcceptRide(ctx, res.Ride.ID, "d1"); err != nil {
		t.Fatalf("AcceptRide failed: %v", err)
	}
	env.advance(time.Second)
	if err := env.drivers.UpdateLocation(ctx, UpdateLocationRequest{DriverID: "d1", Location: lagosPickup, Heading: 90}); err != nil {
		t.Fatalf("UpdateLocation failed: %v", err)
	}
	if n := env.pub.count(realtime.UserTopic("r1"), realtime.EventDriverLocationUpdate); n != 1 {
		t.Errorf("expected one relay to the rider, got %d", n)
	}
}

func TestSetOnline_TogglesSearchability(t *testing.T) {
	env := newTestEnv(t)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ctx := context.Background()

	if _, err := env.drivers.SetOnline(ctx, "d1", false); err != nil {
		t.Fatalf("SetOnline failed: %v", err)
	}
	nearby, _ := env.drivers.Nearby(ctx, lagosPickup, 5, "", 10)
	if len(nearby) != 0 {
		t.Errorf("offline driver still searchable: %+v", nearby)
	}

	if _, err := env.drivers.SetOnline(ctx, "d1", true); err != nil {
		t.Fatalf("SetOnline failed: %v", err)
	}
	nearby, _ = env.drivers.Nearby(ctx, lagosPickup, 5, "", 10)
	if len(nearby) != 1 {
		t.Errorf("driver back online should be re-indexed, got %+v", nearby)
	}
}

func TestNearby_FiltersClassAndBusyDrivers(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.addDriver("d-econ", domain.VehicleClassEconomy, lagosPickup)
	env.addDriver("d-busy", domain.VehicleClassEconomy, lagosPickup)
	env.addDriver("d-xl", domain.VehicleClassXL, lagosPickup)
	ctx := context.Background()

	res := env.request("r1", domain.PaymentMethodCash)
	if _, err := env.rides.AcceptRide(ctx, res.Ride.ID, "d-busy"); err != nil {
		t.Fatalf("AcceptRide failed: %v", err)
	}

	nearby, err := env.drivers.Nearby(ctx, lagosPickup, 5, domain.VehicleClassEconomy, 10)
	if err != nil {
		t.Fatalf("Nearby failed: %v", err)
	}
	if len(nearby) != 1 || nearby[0].DriverID != "d-econ" {
		t.Errorf("expected only d-econ, got %+v", nearby)
	}
}

func TestSOS_NotifiesEveryone(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.startedRide("r1", "d1", domain.PaymentMethodCash)
	ctx := context.Background()

	alert, err := env.drivers.SOS(ctx, ride.ID, "r1", domain.RoleRider, &lagosPickup, "help")
	if err != nil {
		t.Fatalf("SOS failed: %v", err)
	}
	if alert.DriverID != "d1" || alert.RaisedBy != "r1" {
		t.Errorf("unexpected alert %+v", alert)
	}
	for _, topic := range []string{realtime.AdminTopic, realtime.UserTopic("r1"), realtime.DriverTopic("d1")} {
		if n := env.pub.count(topic, realtime.EventEmergencyAlert); n != 1 {
			t.Errorf("%s: expected one alert, got %d", topic, n)
		}
	}

	if _, err := env.drivers.SOS(ctx, ride.ID, "stranger", domain.RoleRider, nil, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}
