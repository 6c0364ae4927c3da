package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"jogtrack/internal/platform/config"
)

func TestNewDerivesPathsAndDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg, err := config.New(dir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if cfg.SnapshotPath != filepath.Join(dir, ".jogtrack", "current-session.json") {
		t.Fatalf("unexpected snapshot path: %s", cfg.SnapshotPath)
	}
	if cfg.DriversPath != filepath.Join(dir, "drivers", "drivers.json") {
		t.Fatalf("unexpected drivers path: %s", cfg.DriversPath)
	}
	if cfg.Tracking.PersistEverySamples != 20 || cfg.Tracking.PersistInterval != 5*time.Second {
		t.Fatalf("unexpected tracking defaults: %+v", cfg.Tracking)
	}
	if len(cfg.Permissions.Required) != 1 || cfg.Permissions.Required[0] != "activity_recognition" {
		t.Fatalf("unexpected required permissions: %v", cfg.Permissions.Required)
	}
}

func TestNewOverlaysYAMLFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeConfig(t, dir, `
tracking:
  max_speed_mps: 7.5
  persist_interval: 2s
sensor:
  driver: replay
permissions:
  required: [activity_recognition, location]
log:
  level: debug
`)
	cfg, err := config.New(dir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if cfg.Tracking.MaxSpeedMPS != 7.5 || cfg.Tracking.PersistInterval != 2*time.Second {
		t.Fatalf("tracking overlay not applied: %+v", cfg.Tracking)
	}
	if cfg.Tracking.PersistEverySamples != 20 {
		t.Fatalf("unset field should keep default, got %d", cfg.Tracking.PersistEverySamples)
	}
	if cfg.Sensor.Driver != "replay" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected overlay: driver=%q level=%q", cfg.Sensor.Driver, cfg.Log.Level)
	}
	if len(cfg.Permissions.Required) != 2 {
		t.Fatalf("expected two required permissions, got %v", cfg.Permissions.Required)
	}
}

func TestNewRejectsUnknownAndInvalidFields(t *testing.T) {
	t.Parallel()
	if _, err := config.New(""); err == nil {
		t.Fatalf("empty data path must fail")
	}

	unknown := t.TempDir()
	writeConfig(t, unknown, "tracking:\n  max_sped_mps: 3\n")
	if _, err := config.New(unknown); err == nil {
		t.Fatalf("unknown field must fail")
	}

	invalid := t.TempDir()
	writeConfig(t, invalid, "tracking:\n  max_speed_mps: -1\n")
	if _, err := config.New(invalid); err == nil {
		t.Fatalf("negative max speed must fail")
	}
}

func writeConfig(t *testing.T, dataPath, body string) {
	t.Helper()
	dir := filepath.Join(dataPath, ".jogtrack")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir state dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
