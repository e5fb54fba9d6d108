// Package config loads the wearable's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultSampleRateHz     = 50
	DefaultMaxReportLatency = 5 * time.Second
	DefaultBatchSize        = 25
	DefaultBatteryInterval  = 30 * time.Second
	DefaultReplayTick       = 20 * time.Millisecond
)

// Sampling modes.
const (
	ModeContinuous    = "continuous"
	ModeDeviceBatched = "device_batched"
	ModeReplay        = "replay"
)

// Config is the top-level wearable configuration.
type Config struct {
	Wearable WearableConfig `yaml:"wearable"`
}

// WearableConfig holds all wearable-side settings.
type WearableConfig struct {
	// CompanionURL is the companion's wearable link endpoint
	// (ws://host:port/link).
	CompanionURL string `yaml:"companion_url"`

	// DeviceID identifies this wearable. Generated when empty.
	DeviceID string `yaml:"device_id"`

	// Mode selects the sampling strategy: continuous | device_batched | replay.
	Mode string `yaml:"mode"`

	// SampleRateHz is the accelerometer sampling frequency.
	SampleRateHz int `yaml:"sample_rate_hz"`

	// MaxReportLatency is how long device_batched mode may hold readings
	// before delivering them in one burst.
	MaxReportLatency time.Duration `yaml:"max_report_latency"`

	// BatchSize is the number of samples per transport batch.
	BatchSize int `yaml:"batch_size"`

	// BatteryInterval is the minimum spacing between battery reports.
	BatteryInterval time.Duration `yaml:"battery_interval"`

	// ReplayFile is the CSV recording played back in replay mode.
	ReplayFile string `yaml:"replay_file"`

	// ReplayTick is the delay between replayed samples.
	ReplayTick time.Duration `yaml:"replay_tick"`
}

// Load reads and validates the config file at path, applying defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	w := &c.Wearable
	if w.DeviceID == "" {
		w.DeviceID = uuid.NewString()
	}
	if w.Mode == "" {
		w.Mode = ModeContinuous
	}
	if w.SampleRateHz <= 0 {
		w.SampleRateHz = DefaultSampleRateHz
	}
	if w.MaxReportLatency <= 0 {
		w.MaxReportLatency = DefaultMaxReportLatency
	}
	if w.BatchSize <= 0 {
		w.BatchSize = DefaultBatchSize
	}
	if w.BatteryInterval <= 0 {
		w.BatteryInterval = DefaultBatteryInterval
	}
	if w.ReplayTick <= 0 {
		w.ReplayTick = DefaultReplayTick
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	w := c.Wearable
	if w.CompanionURL == "" {
		return fmt.Errorf("config: wearable.companion_url is required")
	}
	switch w.Mode {
	case ModeContinuous, ModeDeviceBatched:
	case ModeReplay:
		if w.ReplayFile == "" {
			return fmt.Errorf("config: wearable.replay_file is required in replay mode")
		}
	default:
		return fmt.Errorf("config: unsupported mode %q", w.Mode)
	}
	return nil
}
