package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/domain"
)

const (
	driverLocationKey   = "drivers:locations"
	driverLocationTSKey = "drivers:locations:ts"
)

// updateLocationScript applies a GEOADD only when the reported timestamp is
// newer than the one already stored for the driver.
var updateLocationScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[2], ARGV[1])
if prev and tonumber(prev) >= tonumber(ARGV[4]) then
  return 0
end
redis.call('GEOADD', KEYS[1], ARGV[3], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[4])
return 1
`)

// LocationStore handles driver location operations in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a driver's position if at is newer than the stored one.
func (s *LocationStore) UpdateLocation(ctx context.Context, driverID string, p domain.Point, at time.Time) (bool, error) {
	res, err := updateLocationScript.Run(ctx, s.client,
		[]string{driverLocationKey, driverLocationTSKey},
		driverID, p.Lat, p.Lng, at.UnixMilli(),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// FindNearbyDrivers returns up to limit drivers within radiusKm, nearest first.
func (s *LocationStore) FindNearbyDrivers(ctx context.Context, center domain.Point, radiusKm float64, limit int) ([]domain.DriverPosition, error) {
	results, err := s.client.GeoSearchLocation(ctx, driverLocationKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}

	positions := make([]domain.DriverPosition, 0, len(results))
	for _, r := range results {
		positions = append(positions, domain.DriverPosition{
			DriverID:   r.Name,
			Point:      domain.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		})
	}
	return positions, nil
}

// RemoveLocation removes a driver from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, driverLocationKey, driverID)
	pipe.HDel(ctx, driverLocationTSKey, driverID)
	_, err := pipe.Exec(ctx)
	return err
}
