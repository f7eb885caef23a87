package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Heartbeat.Interval != 30*time.Second {
		t.Errorf("expected default heartbeat interval, got %v", cfg.Heartbeat.Interval)
	}
	if cfg.Memory.CrystallizeEvery != 10 {
		t.Errorf("expected default crystallize_every, got %d", cfg.Memory.CrystallizeEvery)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "log:\n  level: debug\nmemory:\n  crystallize_every: 5\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Log.Level)
	}
	if cfg.Memory.CrystallizeEvery != 5 {
		t.Errorf("expected crystallize_every=5, got %d", cfg.Memory.CrystallizeEvery)
	}
}

func TestHeartbeatEnvOverrideAndFloor(t *testing.T) {
	t.Setenv(HeartbeatEnvVar, "100")
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Heartbeat.Interval != MinHeartbeatInterval {
		t.Errorf("expected heartbeat floored to %v, got %v", MinHeartbeatInterval, cfg.Heartbeat.Interval)
	}
}

func TestHeartbeatStalenessNeverInverts(t *testing.T) {
	cfg := Default()
	cfg.Heartbeat.Interval = MinHeartbeatInterval
	if got := cfg.HeartbeatStaleness(); got != 90*time.Second {
		t.Errorf("expected 90s floor, got %v", got)
	}

	cfg.Heartbeat.Interval = 60 * time.Second
	if got := cfg.HeartbeatStaleness(); got != 180*time.Second {
		t.Errorf("expected 3x interval, got %v", got)
	}
	if cfg.HeartbeatStaleness() <= cfg.Heartbeat.Interval {
		t.Error("staleness must exceed heartbeat interval")
	}
}

func TestValidateThemeHex(t *testing.T) {
	if err := ValidateThemeHex("#1a2B3c"); err != nil {
		t.Errorf("expected valid hex, got %v", err)
	}
	if err := ValidateThemeHex("#ZZZZZZ"); err == nil {
		t.Error("expected invalid hex to be rejected")
	}
	if err := ValidateThemeHex("1a2b3c"); err == nil {
		t.Error("expected missing # to be rejected")
	}
}
