package geo

import (
	"context"
	"sort"
	"sync"
	"time"

	"ridehail/internal/domain"
)

type indexEntry struct {
	point domain.Point
	at    time.Time
}

// MemoryIndex is a process-local driver index used when Redis is not
// configured. It keeps the latest position per driver by timestamp.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]indexEntry
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]indexEntry)}
}

// UpdateLocation stores p for driverID unless a newer position is already held.
// Returns false when the update was stale and ignored.
func (g *MemoryIndex) UpdateLocation(ctx context.Context, driverID string, p domain.Point, at time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.entries[driverID]; ok && !at.After(prev.at) {
		return false, nil
	}
	g.entries[driverID] = indexEntry{point: p, at: at}
	return true, nil
}

// FindNearbyDrivers returns up to limit drivers within radiusKm, nearest first.
func (g *MemoryIndex) FindNearbyDrivers(ctx context.Context, center domain.Point, radiusKm float64, limit int) ([]domain.DriverPosition, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []domain.DriverPosition
	for id, e := range g.entries {
		d := DistanceKm(center, e.point)
		if d <= radiusKm {
			out = append(out, domain.DriverPosition{DriverID: id, Point: e.point, DistanceKm: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm == out[j].DistanceKm {
			return out[i].DriverID < out[j].DriverID
		}
		return out[i].DistanceKm < out[j].DistanceKm
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RemoveLocation drops a driver from the index.
func (g *MemoryIndex) RemoveLocation(ctx context.Context, driverID string) error {
	g.mu.Lock()
	delete(g.entries, driverID)
	g.mu.Unlock()
	return nil
}
