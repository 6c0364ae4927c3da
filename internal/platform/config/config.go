package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const stateDirName = ".jogtrack"

type Config struct {
	DataPath     string `yaml:"-"`
	StateDir     string `yaml:"-"`
	SnapshotPath string `yaml:"-"`
	HistoryPath  string `yaml:"-"`
	DBPath       string `yaml:"-"`
	LogPath      string `yaml:"-"`
	NotesDir     string `yaml:"-"`
	DriversPath  string `yaml:"-"`

	Tracking    Tracking    `yaml:"tracking"`
	Persistence Persistence `yaml:"persistence"`
	Sensor      Sensor      `yaml:"sensor"`
	Permissions Permissions `yaml:"permissions"`
	Log         Log         `yaml:"log"`
}

type Tracking struct {
	MaxSpeedMPS         float64       `yaml:"max_speed_mps"`
	MaxAccuracyM        float64       `yaml:"max_accuracy_m"`
	PersistEverySamples int           `yaml:"persist_every_samples"`
	PersistInterval     time.Duration `yaml:"persist_interval"`
}

type Persistence struct {
	Retries       int           `yaml:"retries"`
	Backoff       time.Duration `yaml:"backoff"`
	DegradedAfter int           `yaml:"degraded_after"`
}

type Sensor struct {
	// Driver names the entry in drivers.json that supplies samples. Empty means no sensor.
	Driver       string        `yaml:"driver"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

type Permissions struct {
	Required []string `yaml:"required"`
	// Granted is only consulted when no driver answers permission queries.
	Granted []string `yaml:"granted"`
}

type Log struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Stderr bool   `yaml:"stderr"`
}

func Defaults() Config {
	return Config{
		Tracking: Tracking{
			MaxSpeedMPS:         10,
			PersistEverySamples: 20,
			PersistInterval:     5 * time.Second,
		},
		Persistence: Persistence{
			Retries:       3,
			Backoff:       100 * time.Millisecond,
			DegradedAfter: 3,
		},
		Sensor: Sensor{
			PollInterval: 250 * time.Millisecond,
			BatchSize:    64,
		},
		Permissions: Permissions{
			Required: []string{"activity_recognition"},
		},
		Log: Log{Level: "info"},
	}
}

func New(dataPath string) (Config, error) {
	if dataPath == "" {
		return Config{}, fmt.Errorf("data path is required")
	}
	cfg := Defaults()
	stateDir := filepath.Join(dataPath, stateDirName)
	if err := overlayFile(&cfg, filepath.Join(stateDir, "config.yaml")); err != nil {
		return Config{}, err
	}
	cfg.DataPath = dataPath
	cfg.StateDir = stateDir
	cfg.SnapshotPath = filepath.Join(stateDir, "current-session.json")
	cfg.HistoryPath = filepath.Join(stateDir, "history.jsonl")
	cfg.DBPath = filepath.Join(stateDir, "jogtrack.db")
	cfg.LogPath = filepath.Join(stateDir, "jogtrack.log")
	cfg.NotesDir = filepath.Join(dataPath, "sessions")
	cfg.DriversPath = filepath.Join(dataPath, "drivers", "drivers.json")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Tracking.MaxSpeedMPS <= 0 {
		return fmt.Errorf("tracking.max_speed_mps must be positive")
	}
	if c.Tracking.MaxAccuracyM < 0 {
		return fmt.Errorf("tracking.max_accuracy_m must be non-negative")
	}
	if c.Tracking.PersistEverySamples <= 0 {
		return fmt.Errorf("tracking.persist_every_samples must be positive")
	}
	if c.Tracking.PersistInterval <= 0 {
		return fmt.Errorf("tracking.persist_interval must be positive")
	}
	if c.Persistence.Retries < 0 {
		return fmt.Errorf("persistence.retries must be non-negative")
	}
	if c.Persistence.DegradedAfter <= 0 {
		return fmt.Errorf("persistence.degraded_after must be positive")
	}
	if c.Sensor.PollInterval <= 0 {
		return fmt.Errorf("sensor.poll_interval must be positive")
	}
	if c.Sensor.BatchSize <= 0 {
		return fmt.Errorf("sensor.batch_size must be positive")
	}
	return nil
}
