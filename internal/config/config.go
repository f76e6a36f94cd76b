// Package config loads knxip's command line and example configuration
// from YAML, with environment variable overrides, in the same
// load-defaults-then-file-then-env order the bridge config this is
// adapted from uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a knxip-based program.
type Config struct {
	Gateway   GatewaySettings   `yaml:"gateway"`
	Discovery DiscoverySettings `yaml:"discovery"`
	Cache     CacheSettings     `yaml:"cache"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// GatewaySettings configures the tunnelling connection to a gateway.
type GatewaySettings struct {
	// Address is "host:port" of the KNXnet/IP gateway. Leave empty to
	// require discovery.
	Address string `yaml:"address"`

	// ConnectTimeout is the CONNECT_REQUEST handshake timeout (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// HeartbeatInterval is the CONNECTIONSTATE_REQUEST cadence (seconds).
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	// HeartbeatTimeout is how long to wait for each heartbeat reply (seconds).
	HeartbeatTimeout int `yaml:"heartbeat_timeout"`

	// HeartbeatRetries is how many heartbeat attempts before the
	// connection is considered lost.
	HeartbeatRetries int `yaml:"heartbeat_retries"`

	// AckTimeout is how long to wait for a TUNNELING_ACK (seconds,
	// fractional values like 1.5 are accepted).
	AckTimeout float64 `yaml:"ack_timeout"`
}

// DiscoverySettings configures multicast gateway discovery.
type DiscoverySettings struct {
	// Enabled turns on SEARCH_REQUEST discovery when Gateway.Address is
	// empty.
	Enabled bool `yaml:"enabled"`

	// Timeout is how long to wait for SEARCH_RESPONSE frames (seconds).
	Timeout int `yaml:"timeout"`
}

// CacheSettings configures the group address value cache.
type CacheSettings struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path, used when Backend is
	// "sqlite".
	Path string `yaml:"path"`
}

// LoggingConfig controls logger output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// LoadConfig reads configuration from a YAML file at path, applies
// environment variable overrides, and validates the result.
//
// Environment variables follow the pattern KNXIP_SECTION_KEY, for example
// KNXIP_GATEWAY_ADDRESS or KNXIP_DISCOVERY_ENABLED.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Gateway: GatewaySettings{
			ConnectTimeout:    10,
			HeartbeatInterval: 60,
			HeartbeatTimeout:  10,
			HeartbeatRetries:  3,
			AckTimeout:        1,
		},
		Discovery: DiscoverySettings{
			Enabled: true,
			Timeout: 5,
		},
		Cache: CacheSettings{
			Backend: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies KNXIP_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KNXIP_GATEWAY_ADDRESS"); v != "" {
		cfg.Gateway.Address = v
	}
	if v := os.Getenv("KNXIP_DISCOVERY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Discovery.Enabled = b
		}
	}
	if v := os.Getenv("KNXIP_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("KNXIP_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("KNXIP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !c.Discovery.Enabled && c.Gateway.Address == "" {
		errs = append(errs, "gateway.address is required when discovery.enabled is false")
	}
	if c.Gateway.ConnectTimeout < 1 {
		errs = append(errs, "gateway.connect_timeout must be at least 1 second")
	}
	if c.Gateway.HeartbeatRetries < 1 {
		errs = append(errs, "gateway.heartbeat_retries must be at least 1")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "sqlite" {
		errs = append(errs, "cache.backend must be \"memory\" or \"sqlite\"")
	}
	if c.Cache.Backend == "sqlite" && c.Cache.Path == "" {
		errs = append(errs, "cache.path is required when cache.backend is \"sqlite\"")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConnectTimeout returns the gateway connect timeout as a Duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Gateway.ConnectTimeout) * time.Second
}

// HeartbeatInterval returns the heartbeat cadence as a Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Gateway.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns the per-heartbeat wait as a Duration.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Gateway.HeartbeatTimeout) * time.Second
}

// AckTimeout returns the TUNNELING_ACK wait as a Duration.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Gateway.AckTimeout * float64(time.Second))
}

// DiscoveryTimeout returns the SEARCH_RESPONSE collection window as a
// Duration.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}
