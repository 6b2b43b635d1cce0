//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/postgres/
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedDriver(t *testing.T, repos repository.Repos) *domain.Driver {
	t.Helper()
	d := &domain.Driver{
		ID:          uuid.NewString(),
		Name:        "Driver",
		Phone:       "+234" + uuid.NewString()[:8],
		Vehicle:     domain.Vehicle{Class: domain.VehicleClassEconomy, Plate: "LAG-1"},
		IsOnline:    true,
		IsAvailable: true,
		IsApproved:  true,
	}
	if err := repos.Drivers.Create(context.Background(), d); err != nil {
		t.Fatalf("create driver: %v", err)
	}
	return d
}

func seedPendingRide(t *testing.T, repos repository.Repos) *domain.Ride {
	t.Helper()
	ctx := context.Background()
	rider := &domain.User{ID: uuid.NewString(), Name: "Rider", Phone: "+234" + uuid.NewString()[:8], WalletBalance: 5000}
	if err := repos.Users.Create(ctx, rider); err != nil {
		t.Fatalf("create user: %v", err)
	}
	ride := &domain.Ride{
		ID:            uuid.NewString(),
		RiderID:       rider.ID,
		Pickup:        domain.Location{Point: domain.Point{Lat: 6.5244, Lng: 3.3792}},
		Dropoff:       domain.Location{Point: domain.Point{Lat: 6.6018, Lng: 3.3515}},
		VehicleClass:  domain.VehicleClassEconomy,
		Status:        domain.RideStatusPending,
		EstimatedFare: 2300,
		DistanceKm:    10,
		DurationMin:   20,
		PaymentMethod: domain.PaymentMethodCash,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     time.Now(),
	}
	if err := repos.Rides.Create(ctx, ride); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func TestRideUpdateIfStatus_SingleWinnerUnderContention(t *testing.T) {
	db := openTestDB(t)
	repos := Repos(db)
	tx := NewTransactor(db)
	ride := seedPendingRide(t, repos)

	const racers = 8
	drivers := make([]*domain.Driver, racers)
	for i := range drivers {
		drivers[i] = seedDriver(t, repos)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
		failures  []error
	)
	for _, d := range drivers {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			err := tx.WithinTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
				cur, err := r.Rides.GetByID(ctx, ride.ID)
				if err != nil {
					return err
				}
				cur.DriverID = driverID
				cur.Status = domain.RideStatusAccepted
				cur.AcceptedAt = time.Now()
				if err := r.Rides.UpdateIfStatus(ctx, cur, domain.RideStatusPending); err != nil {
					return err
				}
				return r.Drivers.BindRide(ctx, driverID, ride.ID)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, driverID)
			case errors.Is(err, repository.ErrConflict):
				conflicts++
			default:
				failures = append(failures, err)
			}
		}(d.ID)
	}
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("unexpected errors: %v", failures)
	}
	if len(winners) != 1 || conflicts != racers-1 {
		t.Fatalf("winners = %d, conflicts = %d; want 1 and %d", len(winners), conflicts, racers-1)
	}

	stored, err := repos.Rides.GetByID(context.Background(), ride.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if stored.Status != domain.RideStatusAccepted || stored.DriverID != winners[0] {
		t.Errorf("ride = %s/%s, want ACCEPTED/%s", stored.Status, stored.DriverID, winners[0])
	}

	bound := 0
	for _, d := range drivers {
		got, err := repos.Drivers.GetByID(context.Background(), d.ID)
		if err != nil {
			t.Fatalf("get driver: %v", err)
		}
		if got.CurrentRideID != "" {
			bound++
			if got.ID != winners[0] || got.IsAvailable {
				t.Errorf("driver %s bound to %s, available=%v", got.ID, got.CurrentRideID, got.IsAvailable)
			}
		}
	}
	if bound != 1 {
		t.Errorf("%d drivers bound, want 1", bound)
	}
}

func TestRideUpdateIfStatus_Errors(t *testing.T) {
	db := openTestDB(t)
	repos := Repos(db)
	ctx := context.Background()
	ride := seedPendingRide(t, repos)

	stale := *ride
	stale.Status = domain.RideStatusCancelled
	if err := repos.Rides.UpdateIfStatus(ctx, &stale, domain.RideStatusAccepted); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("wrong expected status: got %v, want ErrConflict", err)
	}

	missing := *ride
	missing.ID = uuid.NewString()
	if err := repos.Rides.UpdateIfStatus(ctx, &missing, domain.RideStatusPending); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("unknown ride: got %v, want ErrNotFound", err)
	}
}

func TestDriverReversePending_FloorsAtZero(t *testing.T) {
	db := openTestDB(t)
	repos := Repos(db)
	ctx := context.Background()
	d := seedDriver(t, repos)

	if err := repos.Drivers.RecordCompletion(ctx, d.ID, repository.Earnings{Total: 1955, Pending: 1955}); err != nil {
		t.Fatalf("record completion: %v", err)
	}
	if err := repos.Drivers.ReversePending(ctx, d.ID, 1955); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	got, _ := repos.Drivers.GetByID(ctx, d.ID)
	if got.PendingEarnings != 0 || got.TotalEarnings != 0 {
		t.Errorf("after reverse: pending=%v total=%v", got.PendingEarnings, got.TotalEarnings)
	}

	if err := repos.Drivers.ReversePending(ctx, d.ID, 500); err != nil {
		t.Fatalf("reverse again: %v", err)
	}
	got, _ = repos.Drivers.GetByID(ctx, d.ID)
	if got.PendingEarnings != 0 || got.TotalEarnings != 0 {
		t.Errorf("went negative: pending=%v total=%v", got.PendingEarnings, got.TotalEarnings)
	}
}
