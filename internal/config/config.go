// Package config loads the concoro-api configuration from YAML with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/concoro-it/concoro/cache"
	"github.com/concoro-it/concoro/concorsi"
)

// Environment variables overriding file values.
const (
	EnvAddr          = "CONCORO_ADDR"
	EnvLogLevel      = "CONCORO_LOG_LEVEL"
	EnvStoreDriver   = "CONCORO_STORE_DRIVER"
	EnvStoreDSN      = "CONCORO_STORE_DSN"
	EnvRedisAddr     = "CONCORO_REDIS_ADDR"
	EnvRedisPassword = "CONCORO_REDIS_PASSWORD"
	EnvRedisDB       = "CONCORO_REDIS_DB"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the complete service configuration. Durations are Go duration
// strings ("30s", "5m").
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Cache  CacheConfig  `yaml:"cache"`
	Query  QueryConfig  `yaml:"query"`
	Dedupe DedupeConfig `yaml:"dedupe"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Address         string `yaml:"address"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite
	// DSN is the SQLite data source name.
	DSN string `yaml:"dsn,omitempty"`
	// SeedFile is a JSON array of concorsi loaded at startup.
	SeedFile string `yaml:"seed_file,omitempty"`
}

// CacheConfig defines the two cache tiers.
type CacheConfig struct {
	Capacity           int          `yaml:"capacity"`
	NumShards          int          `yaml:"num_shards"`
	TTL                string       `yaml:"ttl"`
	MaxTTL             string       `yaml:"max_ttl"`
	EvictionPercentage int          `yaml:"eviction_percentage"`
	Redis              *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig enables the remote tier.
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	Timeout   string `yaml:"timeout"`
}

// QueryConfig defines the concorsi service tunables.
type QueryConfig struct {
	Timeout           string `yaml:"timeout"`
	ListTTL           string `yaml:"list_ttl"`
	DetailTTL         string `yaml:"detail_ttl"`
	OptionsTTL        string `yaml:"options_ttl"`
	OptionsSampleSize int    `yaml:"options_sample_size"`
	// Location is an IANA zone name used for deadline windows.
	Location string `yaml:"location"`
}

// DedupeConfig defines the in-flight deduplicator.
type DedupeConfig struct {
	StaleAfter string `yaml:"stale_after"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     "10s",
			WriteTimeout:    "45s",
			ShutdownTimeout: "15s",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			Driver: DriverMemory,
		},
		Cache: CacheConfig{
			Capacity:           1000,
			NumShards:          64,
			TTL:                "5m",
			MaxTTL:             "1h",
			EvictionPercentage: 10,
		},
		Query: QueryConfig{
			Timeout:           "30s",
			ListTTL:           "5m",
			DetailTTL:         "15m",
			OptionsTTL:        "30m",
			OptionsSampleSize: 300,
			Location:          "Europe/Rome",
		},
		Dedupe: DedupeConfig{StaleAfter: "30s"},
	}
}

// Load reads path, applies environment overrides and validates the result.
// An empty path starts from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvAddr); v != "" {
		c.Server.Address = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvStoreDriver); v != "" {
		c.Store.Driver = v
	}
	if v := getenv(EnvStoreDSN); v != "" {
		c.Store.DSN = v
	}

	if v := getenv(EnvRedisAddr); v != "" {
		if c.Cache.Redis == nil {
			c.Cache.Redis = &RedisConfig{}
		}
		c.Cache.Redis.Address = v
	}
	if c.Cache.Redis != nil {
		if v := getenv(EnvRedisPassword); v != "" {
			c.Cache.Redis.Password = v
		}
		if v := getenv(EnvRedisDB); v != "" {
			db, err := strconv.Atoi(v)
			if err != nil {
				return &Error{Field: EnvRedisDB, Message: "must be an integer"}
			}
			c.Cache.Redis.DB = db
		}
	}
	return nil
}

// Error reports an invalid configuration value.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Message)
}

// Validate checks every section and the derived component configs.
func (c Config) Validate() error {
	if c.Server.Address == "" {
		return &Error{Field: "server.address", Message: "is required"}
	}
	for field, value := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"dedupe.stale_after":      c.Dedupe.StaleAfter,
	} {
		if _, err := parseDuration(field, value); err != nil {
			return err
		}
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.DSN == "" {
			return &Error{Field: "store.dsn", Message: "is required for the sqlite driver"}
		}
	default:
		return &Error{Field: "store.driver", Message: fmt.Sprintf("must be %q or %q", DriverMemory, DriverSQLite)}
	}

	cacheCfg, err := c.CacheConfig()
	if err != nil {
		return err
	}
	if err := cacheCfg.Validate(); err != nil {
		return err
	}

	serviceCfg, err := c.ServiceConfig()
	if err != nil {
		return err
	}
	return serviceCfg.Validate()
}

// CacheConfig converts the cache section.
func (c Config) CacheConfig() (cache.Config, error) {
	cfg := cache.DefaultConfig()
	cfg.Capacity = c.Cache.Capacity
	cfg.NumShards = c.Cache.NumShards
	cfg.EvictionPercentage = c.Cache.EvictionPercentage

	var err error
	if cfg.TTL, err = parseDuration("cache.ttl", c.Cache.TTL); err != nil {
		return cache.Config{}, err
	}
	if cfg.MaxTTL, err = parseDuration("cache.max_ttl", c.Cache.MaxTTL); err != nil {
		return cache.Config{}, err
	}

	if r := c.Cache.Redis; r != nil && r.Address != "" {
		remote := cache.DefaultRemoteConfig(r.Address)
		remote.Password = r.Password
		remote.DB = r.DB
		if r.KeyPrefix != "" {
			remote.KeyPrefix = r.KeyPrefix
		}
		if r.Timeout != "" {
			if remote.Timeout, err = parseDuration("cache.redis.timeout", r.Timeout); err != nil {
				return cache.Config{}, err
			}
		}
		cfg.Remote = &remote
	}
	return cfg, nil
}

// ServiceConfig converts the query section.
func (c Config) ServiceConfig() (concorsi.Config, error) {
	cfg := concorsi.DefaultConfig()
	cfg.OptionsSampleSize = c.Query.OptionsSampleSize

	durations := []struct {
		field string
		value string
		dest  *time.Duration
	}{
		{"query.timeout", c.Query.Timeout, &cfg.QueryTimeout},
		{"query.list_ttl", c.Query.ListTTL, &cfg.ListTTL},
		{"query.detail_ttl", c.Query.DetailTTL, &cfg.DetailTTL},
		{"query.options_ttl", c.Query.OptionsTTL, &cfg.OptionsTTL},
	}
	for _, d := range durations {
		v, err := parseDuration(d.field, d.value)
		if err != nil {
			return concorsi.Config{}, err
		}
		*d.dest = v
	}

	if c.Query.Location != "" {
		loc, err := time.LoadLocation(c.Query.Location)
		if err != nil {
			return concorsi.Config{}, &Error{Field: "query.location", Message: "is not a known time zone"}
		}
		cfg.Location = loc
	}
	return cfg, nil
}

// StaleAfter returns the deduplicator staleness bound.
func (c Config) StaleAfter() time.Duration {
	d, _ := parseDuration("dedupe.stale_after", c.Dedupe.StaleAfter)
	return d
}

// ServerTimeouts returns the read, write and shutdown timeouts.
func (c Config) ServerTimeouts() (read, write, shutdown time.Duration) {
	read, _ = parseDuration("server.read_timeout", c.Server.ReadTimeout)
	write, _ = parseDuration("server.write_timeout", c.Server.WriteTimeout)
	shutdown, _ = parseDuration("server.shutdown_timeout", c.Server.ShutdownTimeout)
	return read, write, shutdown
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, &Error{Field: field, Message: "is required"}
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, &Error{Field: field, Message: "must be a non-negative duration"}
	}
	return d, nil
}
