package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultListenAddr    = ":8600"
	DefaultDebugAddr     = ":8601"
	DefaultQueuePath     = "companion-queue.db"
	DefaultChartCapacity = 100
	DefaultFetchWindow   = 20
	DefaultRetryBackoff  = 30 * time.Second
	DefaultDirectTimeout = 10 * time.Second
)

// Config is the top-level companion configuration.
// Fields map 1:1 to companion.example.yaml.
type Config struct {
	Companion CompanionConfig `yaml:"companion"`
}

// CompanionConfig holds all companion-side settings.
type CompanionConfig struct {
	// ListenAddr is the address the wearable link endpoint listens on.
	ListenAddr string `yaml:"listen_addr"`

	// ServerURL is the base URL of the aggregation server's REST API,
	// e.g. "http://monitor.example.org:5000".
	ServerURL string `yaml:"server_url"`

	// ServerSocketURL is the duplex channel URL. Derived from ServerURL
	// when empty.
	ServerSocketURL string `yaml:"server_socket_url"`

	// DebugAddr serves /metrics and /status. Empty disables it.
	DebugAddr string `yaml:"debug_addr"`

	// QueuePath is the sqlite file backing the durable retry queue.
	QueuePath string `yaml:"queue_path"`

	// ChartCapacity bounds the live chart's most-recent-samples window.
	ChartCapacity int `yaml:"chart_capacity"`

	// Delivery tunes the retry uploader.
	Delivery DeliveryConfig `yaml:"delivery"`

	// Auth configures how the companion authenticates to the server.
	Auth AuthConfig `yaml:"auth"`
}

// DeliveryConfig tunes the direct send path and the retry uploader.
type DeliveryConfig struct {
	// FetchWindow is how many queued rows one drain pass reads.
	FetchWindow int `yaml:"fetch_window"`

	// RetryBackoff is the pause between drain passes while the server
	// stays unreachable.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// DirectTimeout caps one direct upload attempt.
	DirectTimeout time.Duration `yaml:"direct_timeout"`
}

// AuthConfig configures the API key sent to the server.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the key.
	KeyEnv string `yaml:"key_env"`
}

// SocketURL returns the duplex channel URL, deriving it from ServerURL
// when server_socket_url is not set explicitly.
func (c CompanionConfig) SocketURL() string {
	if c.ServerSocketURL != "" {
		return c.ServerSocketURL
	}
	u := c.ServerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimSuffix(u, "/") + "/socket"
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Companion: CompanionConfig{
			ListenAddr:    DefaultListenAddr,
			DebugAddr:     DefaultDebugAddr,
			QueuePath:     DefaultQueuePath,
			ChartCapacity: DefaultChartCapacity,
			Delivery: DeliveryConfig{
				FetchWindow:   DefaultFetchWindow,
				RetryBackoff:  DefaultRetryBackoff,
				DirectTimeout: DefaultDirectTimeout,
			},
		},
	}
}

func validate(cfg *Config) error {
	c := &cfg.Companion
	if c.ServerURL == "" {
		return fmt.Errorf("companion.server_url is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("companion.listen_addr is required")
	}
	if c.QueuePath == "" {
		return fmt.Errorf("companion.queue_path is required")
	}
	if c.ChartCapacity <= 0 {
		return fmt.Errorf("companion.chart_capacity must be positive")
	}
	if c.Delivery.FetchWindow <= 0 {
		return fmt.Errorf("companion.delivery.fetch_window must be positive")
	}
	if c.Delivery.RetryBackoff <= 0 {
		return fmt.Errorf("companion.delivery.retry_backoff must be positive")
	}
	if c.Delivery.DirectTimeout <= 0 {
		return fmt.Errorf("companion.delivery.direct_timeout must be positive")
	}
	switch c.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("companion.auth.mode %q is not supported", c.Auth.Mode)
	}
	return nil
}
