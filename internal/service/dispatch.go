package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/config"
	"ridehail/internal/domain"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// DispatchService offers PENDING rides to nearby drivers. It never binds a
// driver itself: the first driver to accept wins the conditional transition.
type DispatchService struct {
	locationStore redis.LocationStoreInterface
	cacheStore    *redis.CacheStore
	driverRepo    repository.DriverRepository
	rideRepo      repository.RideRepository
	notifier      *NotificationService
	cfg           config.DispatchConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewDispatchService creates a new DispatchService. cacheStore may be nil.
func NewDispatchService(
	locationStore redis.LocationStoreInterface,
	cacheStore *redis.CacheStore,
	driverRepo repository.DriverRepository,
	rideRepo repository.RideRepository,
	notifier *NotificationService,
	cfg config.DispatchConfig,
	logger *zap.Logger,
) *DispatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewNotificationService(nil, nil, nil, "", logger)
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 5
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 10
	}
	return &DispatchService{
		locationStore: locationStore,
		cacheStore:    cacheStore,
		driverRepo:    driverRepo,
		rideRepo:      rideRepo,
		notifier:      notifier,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// Dispatch broadcasts ride to up to MaxCandidates eligible drivers, nearest
// first, and records the attempt. Returns the IDs offered the ride.
func (s *DispatchService) Dispatch(ctx context.Context, ride *domain.Ride) ([]string, error) {
	candidates, err := s.Candidates(ctx, ride.Pickup.Point, ride.VehicleClass)
	if err != nil {
		return nil, err
	}

	if err := s.rideRepo.RecordDispatch(ctx, ride.ID, s.now()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Accepted or cancelled meanwhile.
			return nil, nil
		}
		return nil, err
	}
	ride.DispatchAttempts++

	if len(candidates) == 0 {
		dispatchRounds.WithLabelValues("empty").Inc()
		s.logger.Info("no drivers near pickup", zap.String("ride_id", ride.ID), zap.Int("attempt", ride.DispatchAttempts))
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.DriverID
	}
	s.notifier.NotifyRideRequested(ctx, ride, ids)
	dispatchRounds.WithLabelValues("offered").Inc()
	s.logger.Debug("ride offered", zap.String("ride_id", ride.ID), zap.Strings("drivers", ids))
	return ids, nil
}

// Candidates returns eligible drivers for class near p, nearest first.
func (s *DispatchService) Candidates(ctx context.Context, p domain.Point, class domain.VehicleClass) ([]domain.DriverPosition, error) {
	// Over-fetch: some nearby drivers will be busy or of another class.
	nearby, err := s.locationStore.FindNearbyDrivers(ctx, p, s.cfg.RadiusKm, s.cfg.MaxCandidates*3)
	if err != nil {
		return nil, err
	}
	if len(nearby) == 0 {
		return nil, nil
	}

	ids := make([]string, len(nearby))
	for i, loc := range nearby {
		ids[i] = loc.DriverID
	}
	eligible, err := s.eligibility(ctx, ids, class)
	if err != nil {
		return nil, err
	}

	out := make([]domain.DriverPosition, 0, s.cfg.MaxCandidates)
	for _, loc := range nearby {
		if !eligible[loc.DriverID] {
			continue
		}
		out = append(out, loc)
		if len(out) == s.cfg.MaxCandidates {
			break
		}
	}
	return out, nil
}

// eligibility checks the cache first and loads misses from the database in
// one query, caching what it loads.
func (s *DispatchService) eligibility(ctx context.Context, ids []string, class domain.VehicleClass) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	missing := ids

	if s.cacheStore != nil {
		cached, miss, err := s.cacheStore.GetDriversBatch(ctx, ids)
		if err == nil {
			for id, d := range cached {
				out[id] = driverFromCache(d).CanDispatch(class)
			}
			missing = miss
		} else {
			s.logger.Debug("driver cache unavailable", zap.Error(err))
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	drivers, err := s.driverRepo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	toCache := make([]*redis.CachedDriver, 0, len(drivers))
	for _, d := range drivers {
		out[d.ID] = d.CanDispatch(class)
		toCache = append(toCache, cachedDriver(d))
	}
	if s.cacheStore != nil {
		if err := s.cacheStore.SetDriversBatch(ctx, toCache); err != nil {
			s.logger.Debug("driver cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

func cachedDriver(d *domain.Driver) *redis.CachedDriver {
	return &redis.CachedDriver{
		ID:            d.ID,
		VehicleClass:  string(d.Vehicle.Class),
		IsOnline:      d.IsOnline,
		IsAvailable:   d.IsAvailable,
		IsApproved:    d.IsApproved,
		CurrentRideID: d.CurrentRideID,
	}
}

func driverFromCache(c *redis.CachedDriver) *domain.Driver {
	return &domain.Driver{
		ID:            c.ID,
		Vehicle:       domain.Vehicle{Class: domain.VehicleClass(c.VehicleClass)},
		IsOnline:      c.IsOnline,
		IsAvailable:   c.IsAvailable,
		IsApproved:    c.IsApproved,
		CurrentRideID: c.CurrentRideID,
	}
}

// invalidateDriver drops a driver's cache entry after its state changed.
func invalidateDriver(ctx context.Context, cache *redis.CacheStore, driverID string) {
	if cache == nil || driverID == "" {
		return
	}
	_ = cache.InvalidateDriver(ctx, driverID)
}
