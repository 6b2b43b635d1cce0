package service

import (
	"context"
	"fmt"
	"testing"

	"ridehail/internal/domain"
)

func TestSurge_CalculateMultiplier(t *testing.T) {
	s := &SurgeService{config: DefaultSurgeConfig()}

	tests := []struct {
		name           string
		supply, demand int
		want           float64
	}{
		{name: "no supply no demand", supply: 0, demand: 0, want: 1.0},
		{name: "no supply with demand", supply: 0, demand: 2, want: 2.5},
		{name: "balanced", supply: 10, demand: 10, want: 1.0},
		{name: "low", supply: 10, demand: 12, want: 1.25},
		{name: "medium", supply: 10, demand: 15, want: 1.5},
		{name: "high", supply: 10, demand: 20, want: 2.0},
		{name: "peak", supply: 10, demand: 40, want: 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.calculateSurgeMultiplier(tt.supply, tt.demand); got != tt.want {
				t.Errorf("supply=%d demand=%d: expected %v, got %v", tt.supply, tt.demand, tt.want, got)
			}
		})
	}
}

func TestSurge_FactorFromNearbySupplyAndDemand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Setup: two drivers and five waiting rides around the pickup.
	env.addDriver("d1", domain.VehicleClassEconomy, lagosPickup)
	env.addDriver("d2", domain.VehicleClassEconomy, lagosPickup)
	for i := 0; i < 5; i++ {
		err := env.repos.Rides.Create(ctx, &domain.Ride{
			ID:        fmt.Sprintf("waiting-%d", i),
			RiderID:   "someone",
			Pickup:    domain.Location{Point: lagosPickup},
			Status:    domain.RideStatusPending,
			CreatedAt: env.now(),
		})
		if err != nil {
			t.Fatalf("failed to seed ride: %v", err)
		}
	}

	surge := NewSurgeService(env.index, env.repos.Rides, nil, nil)
	surge.now = env.now

	f, err := surge.Factor(ctx, FactorQuery{Pickup: lagosPickup, Class: domain.VehicleClassEconomy})
	if err != nil {
		t.Fatalf("Factor failed: %v", err)
	}
	// 5 / 2 = 2.5 falls in the 2.0 tier.
	if f.Value != 2.0 {
		t.Errorf("expected 2.0, got %v", f.Value)
	}
	if f.Confidence != 1 {
		t.Errorf("expected full confidence with 7 observations, got %v", f.Confidence)
	}
}

func TestSurge_SparseDataHasLowConfidence(t *testing.T) {
	env := newTestEnv(t)

	surge := NewSurgeService(env.index, env.repos.Rides, nil, nil)
	f, err := surge.Factor(context.Background(), FactorQuery{Pickup: lagosPickup})
	if err != nil {
		t.Fatalf("Factor failed: %v", err)
	}
	if f.Value != 1.0 || f.Confidence != 0.5 {
		t.Errorf("expected 1.0 at 0.5 confidence, got %+v", f)
	}
}
