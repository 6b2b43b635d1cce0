package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles shared caches in Redis so every service instance
// sees the same values.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	DriverCacheTTL = 30 * time.Second
	DemandCacheTTL = 60 * time.Second
)

const (
	driverCachePrefix = "cache:driver:"
	demandCachePrefix = "cache:demand:"
)

// CachedDriver is the dispatch-relevant slice of a driver record.
type CachedDriver struct {
	ID            string `json:"id"`
	VehicleClass  string `json:"vehicle_class"`
	IsOnline      bool   `json:"is_online"`
	IsAvailable   bool   `json:"is_available"`
	IsApproved    bool   `json:"is_approved"`
	CurrentRideID string `json:"current_ride_id,omitempty"`
}

// SetDriver stores a driver in cache.
func (s *CacheStore) SetDriver(ctx context.Context, driver *CachedDriver) error {
	data, err := json.Marshal(driver)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, driverCachePrefix+driver.ID, data, DriverCacheTTL).Err()
}

// InvalidateDriver removes a driver from cache.
func (s *CacheStore) InvalidateDriver(ctx context.Context, driverID string) error {
	return s.client.Del(ctx, driverCachePrefix+driverID).Err()
}

// GetDriversBatch retrieves multiple drivers from cache using a pipeline.
// Returns the hits keyed by ID and the IDs that missed.
func (s *CacheStore) GetDriversBatch(ctx context.Context, driverIDs []string) (map[string]*CachedDriver, []string, error) {
	result := make(map[string]*CachedDriver, len(driverIDs))
	if len(driverIDs) == 0 {
		return result, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(driverIDs))
	for i, id := range driverIDs {
		cmds[i] = pipe.Get(ctx, driverCachePrefix+id)
	}
	// Missing keys surface as redis.Nil on the individual commands.
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, err
	}

	var missing []string
	for i, cmd := range cmds {
		id := driverIDs[i]
		data, err := cmd.Bytes()
		if err != nil {
			missing = append(missing, id)
			continue
		}
		var driver CachedDriver
		if err := json.Unmarshal(data, &driver); err != nil {
			missing = append(missing, id)
			continue
		}
		result[id] = &driver
	}
	return result, missing, nil
}

// SetDriversBatch stores multiple drivers in cache using a pipeline.
func (s *CacheStore) SetDriversBatch(ctx context.Context, drivers []*CachedDriver) error {
	if len(drivers) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, driver := range drivers {
		data, err := json.Marshal(driver)
		if err != nil {
			continue
		}
		pipe.Set(ctx, driverCachePrefix+driver.ID, data, DriverCacheTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetDemand returns the cached demand multiplier for a grid cell.
// ok is false on a cache miss.
func (s *CacheStore) GetDemand(ctx context.Context, cell string) (value float64, ok bool, err error) {
	raw, err := s.client.Get(ctx, demandCachePrefix+cell).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	value, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// SetDemand caches the demand multiplier for a grid cell.
func (s *CacheStore) SetDemand(ctx context.Context, cell string, value float64) error {
	return s.client.Set(ctx, demandCachePrefix+cell, strconv.FormatFloat(value, 'f', 4, 64), DemandCacheTTL).Err()
}
