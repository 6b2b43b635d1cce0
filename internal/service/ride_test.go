package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/realtime"
)

func TestRequestRide_WalletChargedUpFront(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 10000)

	res := env.request("r1", domain.PaymentMethodWallet)

	if res.Ride.Status != domain.RideStatusPending {
		t.Errorf("expected PENDING, got %s", res.Ride.Status)
	}
	if res.Payment.Status != domain.PaymentStatusCompleted || res.Ride.PaymentStatus != domain.PaymentStatusCompleted {
		t.Errorf("expected wallet payment completed, got payment=%s ride=%s", res.Payment.Status, res.Ride.PaymentStatus)
	}
	if res.Payment.Amount != res.Ride.EstimatedFare {
		t.Errorf("payment amount %v != estimated fare %v", res.Payment.Amount, res.Ride.EstimatedFare)
	}
	if got := env.user("r1").WalletBalance; got != 10000-res.Ride.EstimatedFare {
		t.Errorf("expected balance %v, got %v", 10000-res.Ride.EstimatedFare, got)
	}
}

func TestRequestRide_InsufficientWalletLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 100)
	ctx := context.Background()

	_, err := env.rides.RequestRide(ctx, RequestRideInput{
		RiderID:       "r1",
		Pickup:        domain.Location{Point: lagosPickup},
		Dropoff:       domain.Location{Point: lagosDropoff},
		VehicleClass:  domain.VehicleClassEconomy,
		PaymentMethod: domain.PaymentMethodWallet,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	rides, _ := env.repos.Rides.ListByUser(ctx, "r1", 10, 0)
	if len(rides) != 0 {
		t.Errorf("expected no ride to be stored, got %d", len(rides))
	}
	if got := env.user("r1").WalletBalance; got != 100 {
		t.Errorf("expected balance untouched, got %v", got)
	}
}

func TestRequestRide_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)

	tests := []struct {
		name string
		in   RequestRideInput
		want error
	}{
		{
			name: "outside service area",
			in: RequestRideInput{RiderID: "r1", VehicleClass: domain.VehicleClassEconomy,
				Pickup:  domain.Location{Point: domain.Point{Lat: 51.5, Lng: -0.12}},
				Dropoff: domain.Location{Point: lagosDropoff}},
			want: ErrOutsideServiceArea,
		},
		{
			name: "bad pickup",
			in: RequestRideInput{RiderID: "r1", VehicleClass: domain.VehicleClassEconomy,
				Pickup:  domain.Location{Point: domain.Point{Lat: 91, Lng: 3}},
				Dropoff: domain.Location{Point: lagosDropoff}},
			want: ErrInvalidPickupLocation,
		},
		{
			name: "unknown class",
			in: RequestRideInput{RiderID: "r1", VehicleClass: "LIMO",
				Pickup:  domain.Location{Point: lagosPickup},
				Dropoff: domain.Location{Point: lagosDropoff}},
			want: ErrInvalidVehicleClass,
		},
		{
			name: "unknown rider",
			in: RequestRideInput{RiderID: "ghost", VehicleClass: domain.VehicleClassEconomy,
				Pickup:  domain.Location{Point: lagosPickup},
				Dropoff: domain.Location{Point: lagosDropoff}},
			want: ErrUserNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.rides.RequestRide(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRequestRide_OffersNearbyDriversOfClass(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)

	// Setup: one match, one wrong class, one out of range.
	env.addDriver("d-econ", domain.VehicleClassEconomy, lagosPickup)
	env.addDriver("d-xl", domain.VehicleClassXL, lagosPickup)
	env.addDriver("d-far", domain.VehicleClassEconomy, domain.Point{Lat: 6.75, Lng: 3.5})

	res := env.request("r1", domain.PaymentMethodCash)

	if res.Candidates != 1 {
		t.Errorf("expected 1 candidate, got %d", res.Candidates)
	}
	if n := env.pub.count(realtime.DriverTopic("d-econ"), realtime.EventNewRideRequest); n != 1 {
		t.Errorf("expected d-econ to be offered the ride once, got %d", n)
	}
	for _, id := range []string{"d-xl", "d-far"} {
		if n := env.pub.count(realtime.DriverTopic(id), realtime.EventNewRideRequest); n != 0 {
			t.Errorf("%s should not be offered the ride", id)
		}
	}
	if got := env.ride(res.Ride.ID).DispatchAttempts; got != 1 {
		t.Errorf("expected 1 dispatch attempt, got %d", got)
	}
}

func TestAcceptRide_ConcurrentAcceptsExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)

	const drivers = 10
	for i := 0; i < drivers; i++ {
		env.addDriver(fmt.Sprintf("d%d", i), domain.VehicleClassEconomy, lagosPickup)
	}
	res := env.request("r1", domain.PaymentMethodCash)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []string
		losses int
	)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.rides.AcceptRide(context.Background(), res.Ride.ID, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins = append(wins, id)
			case errors.Is(err, ErrRideUnavailable):
				losses++
			default:
				t.Errorf("unexpected error for %s: %v", id, err)
			}
		}(fmt.Sprintf("d%d", i))
	}
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("expected exactly one winner, got %v", wins)
	}
	if losses != drivers-1 {
		t.Errorf("expected %d losers, got %d", drivers-1, losses)
	}

	ride := env.ride(res.Ride.ID)
	if ride.Status != domain.RideStatusAccepted || ride.DriverID != wins[0] {
		t.Errorf("expected ride accepted by %s, got %s by %s", wins[0], ride.Status, ride.DriverID)
	}
	for i := 0; i < drivers; i++ {
		id := fmt.Sprintf("d%d", i)
		d := env.driver(id)
		if id == wins[0] {
			if d.CurrentRideID != ride.ID || d.IsAvailable {
				t.Errorf("winner not bound: %+v", d)
			}
			continue
		}
		if d.CurrentRideID != "" || !d.IsAvailable {
			t.Errorf("loser %s was bound", id)
		}
	}
}

func TestAcceptRide_WrongClassRejected(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.addDriver("d-xl", domain.VehicleClassXL, lagosPickup)
	res := env.request("r1", domain.PaymentMethodCash)

	_, err := env.rides.AcceptRide(context.Background(), res.Ride.ID, "d-xl")
	if !errors.Is(err, ErrDriverUnavailable) {
		t.Errorf("expected driver unavailable, got %v", err)
	}
	if env.ride(res.Ride.ID).Status != domain.RideStatusPending {
		t.Error("ride should still be pending")
	}
}

func TestRideLifecycle_OutOfOrderTransitionsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ctx := context.Background()

	res := env.request("r1", domain.PaymentMethodCash)
	if _, err := env.rides.AcceptRide(ctx, res.Ride.ID, "d1"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	if _, err := env.rides.StartRide(ctx, res.Ride.ID, "d1", nil); !errors.Is(err, ErrStateConflict) {
		t.Errorf("start before arrival: expected state conflict, got %v", err)
	}
	if _, err := env.rides.CompleteRide(ctx, CompleteRideInput{RideID: res.Ride.ID, DriverID: "d1"}); !errors.Is(err, ErrStateConflict) {
		t.Errorf("complete before start: expected state conflict, got %v", err)
	}
	if _, err := env.rides.DriverArrived(ctx, res.Ride.ID, "someone-else"); !errors.Is(err, ErrForbidden) {
		t.Errorf("arrival by another driver: expected forbidden, got %v", err)
	}
	if env.ride(res.Ride.ID).Status != domain.RideStatusAccepted {
		t.Error("ride should still be accepted")
	}
}

func TestStartRide_GeofenceAgainstPickup(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.arrivedRide("r1", "d1", domain.PaymentMethodCash)
	ctx := context.Background()

	// About 1km north of pickup.
	far := domain.Point{Lat: lagosPickup.Lat + 0.009, Lng: lagosPickup.Lng}
	_, err := env.rides.StartRide(ctx, ride.ID, "d1", &far)
	if !errors.Is(err, geo.ErrOutsideGeofence) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected geofence validation error, got %v", err)
	}
	var gerr *geo.GeofenceError
	if !errors.As(err, &gerr) || gerr.DistanceMeters < 900 || gerr.RadiusMeters != 150 {
		t.Errorf("expected measured distance in error, got %v", err)
	}
	if env.ride(ride.ID).Status != domain.RideStatusArrived {
		t.Fatal("rejected start must not change status")
	}

	near := domain.Point{Lat: lagosPickup.Lat + 0.0005, Lng: lagosPickup.Lng}
	started, err := env.rides.StartRide(ctx, ride.ID, "d1", &near)
	if err != nil {
		t.Fatalf("start within 150m failed: %v", err)
	}
	if started.Status != domain.RideStatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", started.Status)
	}
}

func TestCompleteRide_GeofenceAgainstDropoff(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.startedRide("r1", "d1", domain.PaymentMethodCash)

	_, err := env.rides.CompleteRide(context.Background(), CompleteRideInput{
		RideID:   ride.ID,
		DriverID: "d1",
		Position: &lagosPickup,
	})
	if !errors.Is(err, geo.ErrOutsideGeofence) {
		t.Fatalf("expected geofence error, got %v", err)
	}
	if env.ride(ride.ID).Status != domain.RideStatusInProgress {
		t.Error("rejected completion must not change status")
	}
}

func TestCompleteRide_CashSettlesAtDropoff(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.startedRide("r1", "d1", domain.PaymentMethodCash)

	res, err := env.rides.CompleteRide(context.Background(), CompleteRideInput{
		RideID:            ride.ID,
		DriverID:          "d1",
		Position:          &lagosDropoff,
		ActualDistanceKm:  floatPtr(10),
		ActualDurationMin: intPtr(20),
	})
	if err != nil {
		t.Fatalf("CompleteRide failed: %v", err)
	}

	if res.Ride.FinalFare != 2300 || res.Ride.Status != domain.RideStatusCompleted {
		t.Errorf("expected COMPLETED at 2300, got %s at %v", res.Ride.Status, res.Ride.FinalFare)
	}
	if res.Payment.Status != domain.PaymentStatusCompleted || res.Payment.Amount != 2300 {
		t.Errorf("expected cash payment completed at 2300, got %s %v", res.Payment.Status, res.Payment.Amount)
	}
	if res.Payment.Split.DriverEarnings != 1955 {
		t.Errorf("expected earnings 1955, got %v", res.Payment.Split.DriverEarnings)
	}

	d := env.driver("d1")
	if d.TotalEarnings != 1955 || d.AvailableBalance != 0 || d.CompletedRides != 1 {
		t.Errorf("unexpected driver counters: total=%v available=%v rides=%d", d.TotalEarnings, d.AvailableBalance, d.CompletedRides)
	}
	if !d.IsAvailable || d.CurrentRideID != "" {
		t.Error("driver should be released")
	}
	if n := env.pub.count(realtime.UserTopic("r1"), realtime.EventRideCompleted); n != 1 {
		t.Errorf("expected one ride-completed event for the rider, got %d", n)
	}
}

func TestCompleteRide_WalletIncreaseDebited(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 10000)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.startedRide("r1", "d1", domain.PaymentMethodWallet)

	res, err := env.rides.CompleteRide(context.Background(), CompleteRideInput{
		RideID:            ride.ID,
		DriverID:          "d1",
		ActualDistanceKm:  floatPtr(10),
		ActualDurationMin: intPtr(20),
	})
	if err != nil {
		t.Fatalf("CompleteRide failed: %v", err)
	}

	if res.Adjustment == nil {
		t.Fatal("expected a fare adjustment")
	}
	if res.Adjustment.Status != domain.PaymentStatusCompleted || res.Adjustment.Amount != 2300-ride.EstimatedFare {
		t.Errorf("unexpected adjustment %s %v", res.Adjustment.Status, res.Adjustment.Amount)
	}
	if got := env.user("r1").WalletBalance; got != 10000-2300 {
		t.Errorf("expected balance %v, got %v", 10000-2300, got)
	}
	if got := env.driver("d1").AvailableBalance; got != 1955 {
		t.Errorf("expected prepaid earnings available, got %v", got)
	}
}

func TestCompleteRide_WalletIncreaseUncoveredRecordsFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quote, err := env.pricing.Quote(ctx, lagosPickup, lagosDropoff, domain.VehicleClassEconomy, env.now())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	env.addRider("r1", quote.Total)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.startedRide("r1", "d1", domain.PaymentMethodWallet)

	res, err := env.rides.CompleteRide(ctx, CompleteRideInput{
		RideID:            ride.ID,
		DriverID:          "d1",
		ActualDistanceKm:  floatPtr(10),
		ActualDurationMin: intPtr(20),
	})
	if err != nil {
		t.Fatalf("completion must not fail on an uncovered increase: %v", err)
	}
	if res.Adjustment == nil || res.Adjustment.Status != domain.PaymentStatusFailed || res.Adjustment.FailureReason == "" {
		t.Fatalf("expected failed adjustment with reason, got %+v", res.Adjustment)
	}
	if res.Payment.Status != domain.PaymentStatusCompleted || res.Payment.Amount != quote.Total {
		t.Errorf("original payment must stand, got %s %v", res.Payment.Status, res.Payment.Amount)
	}
	if got := env.user("r1").WalletBalance; got != 0 {
		t.Errorf("expected empty wallet, got %v", got)
	}
	if env.ride(ride.ID).Status != domain.RideStatusCompleted {
		t.Error("ride should be completed")
	}
}

func TestCompleteRide_WalletDecreaseRefunded(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 10000)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.startedRide("r1", "d1", domain.PaymentMethodWallet)

	// 500 + 120 + 90 = 710
	res, err := env.rides.CompleteRide(context.Background(), CompleteRideInput{
		RideID:            ride.ID,
		DriverID:          "d1",
		ActualDistanceKm:  floatPtr(1),
		ActualDurationMin: intPtr(3),
	})
	if err != nil {
		t.Fatalf("CompleteRide failed: %v", err)
	}
	if res.Ride.FinalFare != 700 {
		t.Errorf("expected final fare 700, got %v", res.Ride.FinalFare)
	}
	if res.Adjustment == nil || res.Adjustment.Status != domain.PaymentStatusRefunded || res.Adjustment.Amount != ride.EstimatedFare-700 {
		t.Fatalf("expected refund of %v, got %+v", ride.EstimatedFare-700, res.Adjustment)
	}
	if got := env.user("r1").WalletBalance; got != 10000-700 {
		t.Errorf("expected balance %v, got %v", 10000-700, got)
	}
}

func TestCompleteRide_RollsBackWhenDriverWriteFails(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 10000)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.startedRide("r1", "d1", domain.PaymentMethodWallet)
	ctx := context.Background()
	balance := env.user("r1").WalletBalance

	env.store.InjectFault("drivers.RecordCompletion", errors.New("disk full"))
	_, err := env.rides.CompleteRide(ctx, CompleteRideInput{
		RideID:            ride.ID,
		DriverID:          "d1",
		ActualDistanceKm:  floatPtr(10),
		ActualDurationMin: intPtr(20),
	})
	if err == nil {
		t.Fatal("expected completion to fail")
	}

	after := env.ride(ride.ID)
	if after.Status != domain.RideStatusInProgress || after.FinalFare != 0 {
		t.Errorf("ride write not rolled back: %s %v", after.Status, after.FinalFare)
	}
	if got := env.user("r1").WalletBalance; got != balance {
		t.Errorf("wallet debit not rolled back: %v != %v", got, balance)
	}
	payments, _ := env.repos.Payments.ListByRide(ctx, ride.ID)
	if len(payments) != 1 || payments[0].Amount != ride.EstimatedFare {
		t.Errorf("payment writes not rolled back: %d payments", len(payments))
	}
	if d := env.driver("d1"); d.CurrentRideID != ride.ID || d.TotalEarnings != 0 {
		t.Errorf("driver writes not rolled back: %+v", d)
	}

	env.store.InjectFault("drivers.RecordCompletion", nil)
	if _, err := env.rides.CompleteRide(ctx, CompleteRideInput{RideID: ride.ID, DriverID: "d1"}); err != nil {
		t.Fatalf("retry after fault cleared failed: %v", err)
	}
}

func TestCancelRide_RiderAfterArrivalPaysFee(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 1000)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.arrivedRide("r1", "d1", domain.PaymentMethodCash)

	res, err := env.rides.CancelRide(context.Background(), CancelRideInput{
		RideID:  ride.ID,
		ActorID: "r1",
		Role:    domain.RoleRider,
		Reason:  "changed plans",
	})
	if err != nil {
		t.Fatalf("CancelRide failed: %v", err)
	}

	if res.Ride.Status != domain.RideStatusCancelled || res.Ride.CancelledBy != domain.CancelledByRider {
		t.Errorf("unexpected ride state %s by %s", res.Ride.Status, res.Ride.CancelledBy)
	}
	if res.Ride.CancellationFee != 500 {
		t.Errorf("expected fee 500, got %v", res.Ride.CancellationFee)
	}
	if res.Fee == nil || res.Fee.Status != domain.PaymentStatusCompleted || res.Fee.Amount != 500 {
		t.Fatalf("expected completed fee payment, got %+v", res.Fee)
	}
	if got := env.user("r1").WalletBalance; got != 500 {
		t.Errorf("expected balance 500, got %v", got)
	}
	d := env.driver("d1")
	if d.AvailableBalance != 500 {
		t.Errorf("expected fee credited to driver, got %v", d.AvailableBalance)
	}
	if !d.IsAvailable || d.CurrentRideID != "" {
		t.Error("driver should be released")
	}
	if n := env.pub.count(realtime.DriverTopic("d1"), realtime.EventRideCancelled); n != 1 {
		t.Errorf("expected driver to be told once, got %d", n)
	}
}

func TestCancelRide_RiderCannotCoverFee(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.arrivedRide("r1", "d1", domain.PaymentMethodCash)

	res, err := env.rides.CancelRide(context.Background(), CancelRideInput{RideID: ride.ID, ActorID: "r1", Role: domain.RoleRider})
	if err != nil {
		t.Fatalf("CancelRide failed: %v", err)
	}
	if res.Fee == nil || res.Fee.Status != domain.PaymentStatusFailed || res.Fee.FailureReason == "" {
		t.Fatalf("expected failed fee payment, got %+v", res.Fee)
	}
	if got := env.driver("d1").AvailableBalance; got != 0 {
		t.Errorf("driver must not be credited, got %v", got)
	}
}

func TestCancelRide_DriverCancellationIsCountedNotCharged(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 1000)
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	ride := env.arrivedRide("r1", "d1", domain.PaymentMethodCash)

	res, err := env.rides.CancelRide(context.Background(), CancelRideInput{RideID: ride.ID, ActorID: "d1", Role: domain.RoleDriver})
	if err != nil {
		t.Fatalf("CancelRide failed: %v", err)
	}
	if res.Fee != nil {
		t.Errorf("driver cancellation must not charge the rider, got %+v", res.Fee)
	}
	if res.Ride.CancelledBy != domain.CancelledByDriver || res.Ride.CancellationFee != 500 {
		t.Errorf("unexpected ride %s fee %v", res.Ride.CancelledBy, res.Ride.CancellationFee)
	}
	if got := env.user("r1").WalletBalance; got != 1000 {
		t.Errorf("expected balance untouched, got %v", got)
	}
	if got := env.driver("d1").CancelledRides; got != 1 {
		t.Errorf("expected cancellation counted, got %d", got)
	}
}

func TestCancelRide_PendingWalletFareRefunded(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 10000)
	res := env.request("r1", domain.PaymentMethodWallet)

	out, err := env.rides.CancelRide(context.Background(), CancelRideInput{RideID: res.Ride.ID, ActorID: "r1", Role: domain.RoleRider})
	if err != nil {
		t.Fatalf("CancelRide failed: %v", err)
	}
	if out.Fee != nil || out.Ride.CancellationFee != 0 {
		t.Errorf("no fee before arrival, got %v", out.Ride.CancellationFee)
	}
	if got := env.user("r1").WalletBalance; got != 10000 {
		t.Errorf("expected full refund, got %v", got)
	}
	if p := env.payment(res.Payment.ID); p.Status != domain.PaymentStatusRefunded {
		t.Errorf("expected REFUNDED, got %s", p.Status)
	}
}

func TestCancelRide_TerminalAndStrangersRejected(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	res := env.request("r1", domain.PaymentMethodCash)
	ctx := context.Background()

	if _, err := env.rides.CancelRide(ctx, CancelRideInput{RideID: res.Ride.ID, ActorID: "stranger", Role: domain.RoleRider}); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := env.rides.CancelRide(ctx, CancelRideInput{RideID: res.Ride.ID, ActorID: "r1", Role: domain.RoleRider}); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	if _, err := env.rides.CancelRide(ctx, CancelRideInput{RideID: res.Ride.ID, ActorID: "r1", Role: domain.RoleRider}); !errors.Is(err, ErrStateConflict) {
		t.Errorf("expected state conflict on second cancel, got %v", err)
	}
}

func TestGetRide_OnlyPartiesAndAdmins(t *testing.T) {
	env := newTestEnv(t)
	env.addRider("r1", 0)
	res := env.request("r1", domain.PaymentMethodCash)
	ctx := context.Background()

	if _, err := env.rides.GetRide(ctx, res.Ride.ID, "r1", domain.RoleRider); err != nil {
		t.Errorf("rider should see own ride: %v", err)
	}
	if _, err := env.rides.GetRide(ctx, res.Ride.ID, "admin", domain.RoleAdmin); err != nil {
		t.Errorf("admin should see any ride: %v", err)
	}
	if _, err := env.rides.GetRide(ctx, res.Ride.ID, "r2", domain.RoleRider); !errors.Is(err, ErrNotRideParty) {
		t.Errorf("expected not a party, got %v", err)
	}
	if _, err := env.rides.GetRide(ctx, "missing", "r1", domain.RoleRider); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
