package cacheinfra

import (
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the tiered cache.
type Config struct {
	// Capacity defines the maximum number of entries held by the memory tier.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards for concurrent access.
	// Must be greater than 0. Default: 64
	NumShards int

	// TTL is the default time-to-live applied when a caller does not pass one.
	// Must be greater than 0.
	TTL time.Duration

	// MaxTTL is the upper bound for any entry. The memory tier drops entries
	// older than this regardless of their own TTL. Must be >= TTL.
	MaxTTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the memory tier reaches its capacity. Must be between 1-100.
	// Default: 10
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc scans for expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration

	// Remote configures the optional remote key-value tier. Nil means memory only.
	Remote *RemoteConfig
}

// RemoteConfig configures the Redis compatible remote tier.
type RemoteConfig struct {
	Address  string
	Password string
	DB       int

	// KeyPrefix namespaces every remote key. Default: "concoro:"
	KeyPrefix string

	// Timeout bounds every remote call. Default: 500ms
	Timeout time.Duration

	// WriteQueueSize is the capacity of the detached write queue. Default: 256
	WriteQueueSize int
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           1000,
		NumShards:          64,
		TTL:                5 * time.Minute,
		MaxTTL:             time.Hour,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// DefaultRemoteConfig returns the remote tier defaults for the given address.
func DefaultRemoteConfig(address string) RemoteConfig {
	return RemoteConfig{
		Address:        address,
		KeyPrefix:      "concoro:",
		Timeout:        500 * time.Millisecond,
		WriteQueueSize: 256,
	}
}

// ToSturdycOptions converts the Config to sturdyc options. Capacity,
// NumShards, MaxTTL and EvictionPercentage are handled by NewMemoryTier.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.Capacity < c.NumShards {
		return &ConfigError{Field: "Capacity", Message: "must be greater than or equal to NumShards"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.MaxTTL < c.TTL {
		return &ConfigError{Field: "MaxTTL", Message: "must be greater than or equal to TTL"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	if c.Remote != nil {
		if c.Remote.Address == "" {
			return &ConfigError{Field: "Remote.Address", Message: "is required"}
		}
		if c.Remote.Timeout < 0 {
			return &ConfigError{Field: "Remote.Timeout", Message: "must be non-negative"}
		}
		if c.Remote.WriteQueueSize < 0 {
			return &ConfigError{Field: "Remote.WriteQueueSize", Message: "must be non-negative"}
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
