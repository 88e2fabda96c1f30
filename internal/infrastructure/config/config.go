package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all harness configuration.
type Config struct {
	Adapter AdapterConfig
	Run     RunConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// AdapterConfig identifies the adapter under test.
type AdapterConfig struct {
	Name           string `envconfig:"HARNESS_ADAPTER_NAME" default:"test"`
	Instance       int    `envconfig:"HARNESS_INSTANCE" default:"0"`
	Compact        bool   `envconfig:"HARNESS_COMPACT" default:"false"`
	HostDependency string `envconfig:"HARNESS_HOST_DEPENDENCY" default:"@iobroker/adapter-core"`
}

// RunConfig holds load cycle settings.
type RunConfig struct {
	Fixtures       string        `envconfig:"HARNESS_FIXTURES"`
	Timeout        time.Duration `envconfig:"HARNESS_TIMEOUT" default:"0s"`
	ForwardChanges bool          `envconfig:"HARNESS_FORWARD_CHANGES" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"HARNESS_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"HARNESS_LOG_DEV" default:"false"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `envconfig:"HARNESS_METRICS" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Adapter: AdapterConfig{
			Name:           "test",
			Instance:       0,
			Compact:        false,
			HostDependency: "@iobroker/adapter-core",
		},
		Run: RunConfig{
			Timeout: 0,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}
