package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Pricing.PerKmRate != 25 {
		t.Errorf("PerKmRate = %d, want 25", cfg.Pricing.PerKmRate)
	}
	if cfg.Matching.LegLimitKm != 20 {
		t.Errorf("LegLimitKm = %v, want 20", cfg.Matching.LegLimitKm)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SCHOOLRIDE_HTTP_ADDR", ":9090")
	t.Setenv("SCHOOLRIDE_PRICE_PER_KM", "30")
	t.Setenv("SCHOOLRIDE_BALANCE_MONITOR_TICK", "5m")
	t.Setenv("SCHOOLRIDE_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Pricing.PerKmRate != 30 {
		t.Errorf("PerKmRate = %d", cfg.Pricing.PerKmRate)
	}
	if cfg.Payment.MonitorTick != 5*time.Minute {
		t.Errorf("MonitorTick = %v", cfg.Payment.MonitorTick)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SCHOOLRIDE_PRICE_PER_KM", "abc")
	t.Setenv("SCHOOLRIDE_MATCH_LEG_LIMIT_KM", "x")
	cfg, _ := Load()
	if cfg.Pricing.PerKmRate != 25 || cfg.Matching.LegLimitKm != 20 {
		t.Errorf("expected defaults, got %d / %v", cfg.Pricing.PerKmRate, cfg.Matching.LegLimitKm)
	}
}
