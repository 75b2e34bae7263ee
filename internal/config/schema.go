package config

import (
	"time"
)

// Store backends
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the root configuration structure
type Config struct {
	Version int           `yaml:"version"`
	Trust   TrustConfig   `yaml:"trust"`
	Cache   CacheConfig   `yaml:"cache"`
	Store   StoreConfig   `yaml:"store"`
	Server  ServerConfig  `yaml:"server"`
	NATS    NATSConfig    `yaml:"nats"`
	Harness HarnessConfig `yaml:"harness"`
	Log     LogConfig     `yaml:"log"`
}

// TrustConfig holds the engine thresholds. Both can be reloaded at runtime.
type TrustConfig struct {
	MinRecommendationTrust float64 `yaml:"min_recommendation_trust"`
	MinAggregationWeight   float64 `yaml:"min_aggregation_weight"`
}

// CacheConfig holds opinion cache settings. TTL can be reloaded at runtime.
type CacheConfig struct {
	TTL Duration `yaml:"ttl"`
}

// StoreConfig selects and configures the trust store
type StoreConfig struct {
	Backend string       `yaml:"backend"` // redis, sqlite, memory
	Timeout Duration     `yaml:"timeout"` // per store call made by the API
	Redis   RedisConfig  `yaml:"redis"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	MetricsPath     string   `yaml:"metrics_path"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// NATSConfig holds transport subscription settings
type NATSConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	PeersSubject   string `yaml:"peers_subject"`
	ReportsSubject string `yaml:"reports_subject"`
	QueueGroup     string `yaml:"queue_group"`
}

// HarnessConfig holds the settings of the opinion module harness
type HarnessConfig struct {
	MaxConcurrentUnits int64    `yaml:"max_concurrent_units"`
	PollInterval       Duration `yaml:"poll_interval"`
	InboxSize          int      `yaml:"inbox_size"`
	ShutdownTimeout    Duration `yaml:"shutdown_timeout"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
