// Package config provides configuration management for the trust engine.
//
// Config file locations (priority order):
//  1. $PEERTRUST_CONFIG
//  2. ./peertrust.yaml
//  3. $XDG_CONFIG_HOME/peertrust/config.yaml
//  4. ~/.config/peertrust/config.yaml
//  5. /etc/peertrust/config.yaml
//
// Values missing from the file keep their defaults.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Trust: TrustConfig{
			MinRecommendationTrust: 0.5,
			MinAggregationWeight:   0.5,
		},
		Cache: CacheConfig{TTL: Duration(time.Hour)},
		Store: StoreConfig{
			Backend: BackendSQLite,
			Timeout: Duration(5 * time.Second),
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "peertrust",
			},
			SQLite: SQLiteConfig{Path: "./peertrust.db"},
		},
		Server: ServerConfig{
			Addr:            ":3000",
			MetricsPath:     "/metrics",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			PeersSubject:   "peertrust.peers",
			ReportsSubject: "peertrust.reports",
			QueueGroup:     "peertrust",
		},
		Harness: HarnessConfig{
			MaxConcurrentUnits: 64,
			PollInterval:       Duration(time.Second),
			InboxSize:          1024,
			ShutdownTimeout:    Duration(10 * time.Second),
		},
		Log: LogConfig{Level: "info"},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Version == 0 {
		c.Version = d.Version
	}
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.Redis.KeyPrefix == "" {
		c.Store.Redis.KeyPrefix = d.Store.Redis.KeyPrefix
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Validate checks value ranges and cross-field requirements
func (c *Config) Validate() error {
	if !unit(c.Trust.MinRecommendationTrust) {
		return fmt.Errorf("trust.min_recommendation_trust %v outside [0,1]", c.Trust.MinRecommendationTrust)
	}
	if w := c.Trust.MinAggregationWeight; math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return fmt.Errorf("trust.min_aggregation_weight %v must be finite and >= 0", w)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL.Duration())
	}

	switch c.Store.Backend {
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store.backend %q (want redis, sqlite or memory)", c.Store.Backend)
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" || c.NATS.PeersSubject == "" || c.NATS.ReportsSubject == "" {
			return fmt.Errorf("nats.url, nats.peers_subject and nats.reports_subject are required when nats is enabled")
		}
	}

	if c.Harness.MaxConcurrentUnits <= 0 {
		return fmt.Errorf("harness.max_concurrent_units must be positive")
	}
	if c.Harness.InboxSize <= 0 {
		return fmt.Errorf("harness.inbox_size must be positive")
	}
	if c.Harness.PollInterval <= 0 {
		return fmt.Errorf("harness.poll_interval must be positive")
	}

	if _, err := logging.LevelFromString(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Store: %s, Cache TTL: %s\n", c.Store.Backend, c.Cache.TTL.Duration())
	summary += fmt.Sprintf("Thresholds: recommendation %.2f, aggregation weight %.2f\n",
		c.Trust.MinRecommendationTrust, c.Trust.MinAggregationWeight)
	if c.NATS.Enabled {
		summary += fmt.Sprintf("NATS: %s (%s, %s)", c.NATS.URL, c.NATS.PeersSubject, c.NATS.ReportsSubject)
	} else {
		summary += "NATS: disabled"
	}
	return summary
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
