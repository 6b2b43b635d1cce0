package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Pricing.CommissionRate != 0.15 {
		t.Errorf("expected commission 0.15, got %v", cfg.Pricing.CommissionRate)
	}
	if cfg.Payment.CancellationFee != 500 {
		t.Errorf("expected cancellation fee 500, got %v", cfg.Payment.CancellationFee)
	}
	if cfg.Dispatch.RadiusKm != 5 || cfg.Dispatch.MaxCandidates != 10 {
		t.Errorf("unexpected dispatch defaults: %+v", cfg.Dispatch)
	}
	if cfg.Geofence.RadiusMeters != 150 {
		t.Errorf("expected geofence 150m, got %v", cfg.Geofence.RadiusMeters)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("CANCELLATION_FEE", "750")
	t.Setenv("DISPATCH_OFFER_TTL", "45s")
	t.Setenv("GEOFENCE_REQUIRE_POSITION", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()

	if cfg.Store != "memory" {
		t.Errorf("expected memory store, got %s", cfg.Store)
	}
	if cfg.Redis.Enabled {
		t.Error("expected redis disabled by default in memory mode")
	}
	if cfg.Payment.CancellationFee != 750 {
		t.Errorf("expected 750, got %v", cfg.Payment.CancellationFee)
	}
	if cfg.Dispatch.OfferTTL != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.Dispatch.OfferTTL)
	}
	if !cfg.Geofence.RequirePosition {
		t.Error("expected RequirePosition")
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
}

func TestGetFloatEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("COMMISSION_RATE", "abc")
	if got := getFloatEnv("COMMISSION_RATE", 0.2); got != 0.2 {
		t.Errorf("expected fallback 0.2, got %v", got)
	}
}
