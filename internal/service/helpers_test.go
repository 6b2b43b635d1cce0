package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ridehail/internal/config"
	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/provider/chain"
	"ridehail/internal/repository"
	"ridehail/internal/repository/memory"
)

const testWebhookSecret = "sk_test_webhook"

var (
	lagosPickup  = domain.Point{Lat: 6.5244, Lng: 3.3792}
	lagosDropoff = domain.Point{Lat: 6.4550, Lng: 3.3941}
)

type publishedEvent struct {
	Topic   string
	Event   string
	Payload any
}

// recordingPublisher keeps every event for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Event: event, Payload: payload})
	return nil
}

func (p *recordingPublisher) count(topic, event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Topic == topic && e.Event == event {
			n++
		}
	}
	return n
}

type stubVerifier struct {
	mu     sync.Mutex
	result chain.Verification
	err    error
	calls  int
}

func (v *stubVerifier) set(res chain.Verification) {
	v.mu.Lock()
	v.result = res
	v.mu.Unlock()
}

func (v *stubVerifier) Verify(ctx context.Context, txHash string, expected float64, address string) (chain.Verification, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.result, v.err
}

type fixedPrice float64

func (p fixedPrice) Price(ctx context.Context, asset domain.CryptoAsset, currency string) (float64, error) {
	return float64(p), nil
}

type testEnv struct {
	t     *testing.T
	store *memory.Store
	repos repository.Repos
	index *geo.MemoryIndex
	pub   *recordingPublisher

	gateway  *MockGateway
	verifier *stubVerifier

	pricing    *PricingService
	promos     *PromoService
	payments   *PaymentService
	dispatcher *DispatchService
	rides      *RideService
	drivers    *DriverService
	users      *UserService
	sweeper    *Sweeper

	clockMu sync.Mutex
	clock   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	repos := store.Repos()
	index := geo.NewMemoryIndex()
	pub := &recordingPublisher{}
	notifier := NewNotificationService(pub, nil, nil, "", nil)

	dispatchCfg := config.DispatchConfig{RadiusKm: 5, MaxCandidates: 10, OfferTTL: 30 * time.Second, MaxAttempts: 3}
	paymentCfg := config.PaymentConfig{Currency: "NGN", CancellationFee: 500, MinPayout: 1000, PendingTTL: 30 * time.Minute}

	env := &testEnv{
		t:        t,
		store:    store,
		repos:    repos,
		index:    index,
		pub:      pub,
		gateway:  NewMockGateway(testWebhookSecret),
		verifier: &stubVerifier{},
		// Midday: no time-of-day multiplier.
		clock: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	env.pricing = NewPricingService(config.PricingConfig{CommissionRate: 0.15, TimeZone: "UTC"}, PricingProviders{}, nil)
	env.promos = NewPromoService(repos.Promos)
	env.payments = NewPaymentService(PaymentDeps{
		Transactor: store,
		Repos:      repos,
		Gateway:    env.gateway,
		Verifiers:  map[domain.CryptoAsset]chain.Verifier{domain.AssetETH: env.verifier},
		Prices:     fixedPrice(1_000_000),
		Notifier:   notifier,
		Payment:    paymentCfg,
		Chain:      config.ChainConfig{RequiredConfirmations: 3, ETHAddress: "0xdeposit"},
	})
	env.dispatcher = NewDispatchService(index, nil, repos.Drivers, repos.Rides, notifier, dispatchCfg, nil)
	env.rides = NewRideService(RideDeps{
		Transactor:      store,
		Repos:           repos,
		Pricing:         env.pricing,
		Promos:          env.promos,
		Payments:        env.payments,
		Dispatcher:      env.dispatcher,
		Notifier:        notifier,
		Geofence:        geo.NewValidator(150, false),
		ServiceArea:     geo.Bounds{MinLat: 4, MaxLat: 14, MinLng: 3, MaxLng: 15},
		CancellationFee: paymentCfg.CancellationFee,
	})
	env.drivers = NewDriverService(index, nil, repos.Drivers, repos.Rides, notifier, nil)
	env.users = NewUserService(repos.Users, "NGN")
	env.sweeper = NewSweeper(repos.Rides, env.rides, env.dispatcher, env.payments, nil,
		dispatchCfg, paymentCfg, config.SweeperConfig{Batch: 100}, nil)

	env.pricing.now = env.now
	env.promos.now = env.now
	env.payments.now = env.now
	env.dispatcher.now = env.now
	env.rides.now = env.now
	env.drivers.now = env.now
	env.users.now = env.now
	env.sweeper.now = env.now
	return env
}

func (e *testEnv) now() time.Time {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	return e.clock
}

func (e *testEnv) advance(d time.Duration) {
	e.clockMu.Lock()
	e.clock = e.clock.Add(d)
	e.clockMu.Unlock()
}

func (e *testEnv) addRider(id string, balance float64) {
	e.t.Helper()
	err := e.repos.Users.Create(context.Background(), &domain.User{
		ID:             id,
		Name:           "Rider " + id,
		Phone:          "+2348000000000",
		Email:          id + "@example.com",
		Role:           domain.RoleRider,
		WalletBalance:  balance,
		WalletCurrency: "NGN",
	})
	if err != nil {
		e.t.Fatalf("failed to add rider: %v", err)
	}
}

// addDriver registers an approved, online driver positioned at p.
func (e *testEnv) addDriver(id string, class domain.VehicleClass, p domain.Point) {
	e.t.Helper()
	ctx := context.Background()
	err := e.repos.Drivers.Create(ctx, &domain.Driver{
		ID:          id,
		Name:        "Driver " + id,
		Vehicle:     domain.Vehicle{Class: class, Make: "Toyota", Model: "Corolla", Color: "Silver", Plate: "LAG-" + id},
		IsOnline:    true,
		IsAvailable: true,
		IsApproved:  true,
		Rating:      5,
		Bank:        &domain.BankDetails{BankCode: "058", AccountNumber: "0123456789", AccountName: "Driver " + id},
	})
	if err != nil {
		e.t.Fatalf("failed to add driver: %v", err)
	}
	if err := e.drivers.UpdateLocation(ctx, UpdateLocationRequest{DriverID: id, Location: p}); err != nil {
		e.t.Fatalf("failed to position driver: %v", err)
	}
}

func (e *testEnv) request(riderID string, method domain.PaymentMethod) *RequestRideResult {
	e.t.Helper()
	res, err := e.rides.RequestRide(context.Background(), RequestRideInput{
		RiderID:       riderID,
		Pickup:        domain.Location{Point: lagosPickup, Address: "Yaba"},
		Dropoff:       domain.Location{Point: lagosDropoff, Address: "Lagos Island"},
		VehicleClass:  domain.VehicleClassEconomy,
		PaymentMethod: method,
		CryptoAsset:   domain.AssetETH,
	})
	if err != nil {
		e.t.Fatalf("failed to request ride: %v", err)
	}
	return res
}

// startedRide returns an IN_PROGRESS ride between riderID and driverID.
func (e *testEnv) startedRide(riderID, driverID string, method domain.PaymentMethod) *domain.Ride {
	e.t.Helper()
	ctx := context.Background()
	ride := e.arrivedRide(riderID, driverID, method)
	if _, err := e.rides.StartRide(ctx, ride.ID, driverID, nil); err != nil {
		e.t.Fatalf("failed to start ride: %v", err)
	}
	return e.ride(ride.ID)
}

func (e *testEnv) arrivedRide(riderID, driverID string, method domain.PaymentMethod) *domain.Ride {
	e.t.Helper()
	ctx := context.Background()
	res := e.request(riderID, method)
	if _, err := e.rides.AcceptRide(ctx, res.Ride.ID, driverID); err != nil {
		e.t.Fatalf("failed to accept ride: %v", err)
	}
	if _, err := e.rides.DriverArrived(ctx, res.Ride.ID, driverID); err != nil {
		e.t.Fatalf("failed to mark arrival: %v", err)
	}
	return e.ride(res.Ride.ID)
}

func (e *testEnv) ride(id string) *domain.Ride {
	e.t.Helper()
	r, err := e.repos.Rides.GetByID(context.Background(), id)
	if err != nil {
		e.t.Fatalf("failed to load ride: %v", err)
	}
	return r
}

func (e *testEnv) user(id string) *domain.User {
	e.t.Helper()
	u, err := e.repos.Users.GetByID(context.Background(), id)
	if err != nil {
		e.t.Fatalf("failed to load user: %v", err)
	}
	return u
}

func (e *testEnv) driver(id string) *domain.Driver {
	e.t.Helper()
	d, err := e.repos.Drivers.GetByID(context.Background(), id)
	if err != nil {
		e.t.Fatalf("failed to load driver: %v", err)
	}
	return d
}

func (e *testEnv) payment(id string) *domain.Payment {
	e.t.Helper()
	p, err := e.repos.Payments.GetByID(context.Background(), id)
	if err != nil {
		e.t.Fatalf("failed to load payment: %v", err)
	}
	return p
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int { return &v }
