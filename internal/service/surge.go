package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// SurgeService derives the demand multiplier from supply and demand near a pickup.
type SurgeService struct {
	locationStore redis.LocationStoreInterface
	rideRepo      repository.RideRepository
	cacheStore    *redis.CacheStore
	config        SurgeConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewSurgeService creates a new SurgeService. cacheStore may be nil.
func NewSurgeService(
	locationStore redis.LocationStoreInterface,
	rideRepo repository.RideRepository,
	cacheStore *redis.CacheStore,
	logger *zap.Logger,
) *SurgeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SurgeService{
		locationStore: locationStore,
		rideRepo:      rideRepo,
		cacheStore:    cacheStore,
		config:        DefaultSurgeConfig(),
		logger:        logger,
		now:           time.Now,
	}
}

// SurgeConfig contains surge pricing configuration.
type SurgeConfig struct {
	RadiusKm       float64       // Radius to check for supply/demand
	DemandWindow   time.Duration // How far back pending requests count as demand
	LowSurgeRatio  float64       // Demand/supply ratio for 1.25x surge
	MedSurgeRatio  float64       // Demand/supply ratio for 1.5x surge
	HighSurgeRatio float64       // Demand/supply ratio for 2.0x surge
	PeakSurgeRatio float64       // Demand/supply ratio for MaxSurge
	MaxSurge       float64
}

// DefaultSurgeConfig returns the default surge configuration.
func DefaultSurgeConfig() SurgeConfig {
	return SurgeConfig{
		RadiusKm:       5.0,
		DemandWindow:   15 * time.Minute,
		LowSurgeRatio:  1.2,
		MedSurgeRatio:  1.5,
		HighSurgeRatio: 2.0,
		PeakSurgeRatio: 3.0,
		MaxSurge:       2.5,
	}
}

// Factor implements FactorProvider. The value is cached per ~1km grid cell.
func (s *SurgeService) Factor(ctx context.Context, q FactorQuery) (Factor, error) {
	cell := gridCell(q.Pickup)
	if s.cacheStore != nil {
		if v, ok, err := s.cacheStore.GetDemand(ctx, cell); err == nil && ok {
			return Factor{Value: v, Confidence: 1}, nil
		}
	}

	supply, err := s.countDriversInArea(ctx, q.Pickup)
	if err != nil {
		return Factor{}, err
	}
	demand, err := s.rideRepo.CountPendingNear(ctx, q.Pickup, s.config.RadiusKm, s.now().Add(-s.config.DemandWindow))
	if err != nil {
		return Factor{}, err
	}

	value := s.calculateSurgeMultiplier(supply, demand)
	if s.cacheStore != nil {
		if err := s.cacheStore.SetDemand(ctx, cell, value); err != nil {
			s.logger.Debug("demand cache write failed", zap.String("cell", cell), zap.Error(err))
		}
	}

	// A handful of observations is a weak signal.
	confidence := 1.0
	if supply+demand < 5 {
		confidence = 0.5
	}
	return Factor{Value: value, Confidence: confidence}, nil
}

func (s *SurgeService) countDriversInArea(ctx context.Context, center domain.Point) (int, error) {
	drivers, err := s.locationStore.FindNearbyDrivers(ctx, center, s.config.RadiusKm, 0)
	if err != nil {
		return 0, err
	}
	return len(drivers), nil
}

// calculateSurgeMultiplier determines the multiplier based on supply/demand ratio.
func (s *SurgeService) calculateSurgeMultiplier(supply, demand int) float64 {
	if supply == 0 {
		if demand > 0 {
			return s.config.MaxSurge
		}
		return 1.0
	}

	ratio := float64(demand) / float64(supply)
	switch {
	case ratio >= s.config.PeakSurgeRatio:
		return s.config.MaxSurge
	case ratio >= s.config.HighSurgeRatio:
		return 2.0
	case ratio >= s.config.MedSurgeRatio:
		return 1.5
	case ratio >= s.config.LowSurgeRatio:
		return 1.25
	default:
		return 1.0
	}
}

func gridCell(p domain.Point) string {
	return fmt.Sprintf("%.2f:%.2f", p.Lat, p.Lng)
}
