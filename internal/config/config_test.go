package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CONTRACT_MODE", "")
	t.Setenv("DB_DRIVER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Chain.Mode != ChainModeSimulated {
		t.Errorf("expected simulated mode, got %q", cfg.Chain.Mode)
	}
	if cfg.Chain.ChainID != 84532 {
		t.Errorf("expected Base Sepolia chain id, got %d", cfg.Chain.ChainID)
	}
	if cfg.Reconcile.Delay != 5*time.Second {
		t.Errorf("expected 5s reconcile delay, got %s", cfg.Reconcile.Delay)
	}
	if cfg.Chain.ETHUSDPrice.IntPart() != 2000 {
		t.Errorf("expected ETH price 2000, got %s", cfg.Chain.ETHUSDPrice)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing JWT_SECRET to fail")
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CONTRACT_MODE", "mainframe")
	if _, err := Load(); err == nil {
		t.Fatal("expected unknown contract mode to fail")
	}
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_DURATION", "10m")
	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 10*time.Minute {
		t.Errorf("expected 10m, got %s", got)
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Driver: "sqlite", SQLitePath: "x.db"}}
	if cfg.GetDSN() != "x.db" {
		t.Errorf("expected sqlite path, got %q", cfg.GetDSN())
	}
}
