package cacheinfra

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 1000 {
		t.Errorf("expected Capacity to be 1000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 64 {
		t.Errorf("expected NumShards to be 64, got %d", cfg.NumShards)
	}

	if cfg.TTL != 5*time.Minute {
		t.Errorf("expected TTL to be 5 minutes, got %v", cfg.TTL)
	}

	if cfg.MaxTTL != time.Hour {
		t.Errorf("expected MaxTTL to be 1 hour, got %v", cfg.MaxTTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if cfg.Remote != nil {
		t.Error("expected remote tier to be disabled by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		return Config{
			Capacity:           100,
			NumShards:          4,
			TTL:                time.Minute,
			MaxTTL:             time.Hour,
			EvictionPercentage: 10,
		}
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		field    string
		errorMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }, field: "Capacity", errorMsg: "must be greater than 0"},
		{name: "zero shards", mutate: func(c *Config) { c.NumShards = 0 }, field: "NumShards", errorMsg: "must be greater than 0"},
		{name: "capacity below shards", mutate: func(c *Config) { c.Capacity = 2 }, field: "Capacity", errorMsg: "NumShards"},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }, field: "TTL", errorMsg: "must be greater than 0"},
		{name: "max ttl below ttl", mutate: func(c *Config) { c.MaxTTL = time.Second }, field: "MaxTTL", errorMsg: "greater than or equal to TTL"},
		{name: "eviction too low", mutate: func(c *Config) { c.EvictionPercentage = 0 }, field: "EvictionPercentage", errorMsg: "between 1 and 100"},
		{name: "eviction too high", mutate: func(c *Config) { c.EvictionPercentage = 101 }, field: "EvictionPercentage", errorMsg: "between 1 and 100"},
		{name: "negative interval", mutate: func(c *Config) { c.EvictionInterval = -time.Second }, field: "EvictionInterval", errorMsg: "non-negative"},
		{
			name:     "remote without address",
			mutate:   func(c *Config) { c.Remote = &RemoteConfig{} },
			field:    "Remote.Address",
			errorMsg: "is required",
		},
		{
			name: "remote negative timeout",
			mutate: func(c *Config) {
				remote := DefaultRemoteConfig("localhost:6379")
				remote.Timeout = -1
				c.Remote = &remote
			},
			field:    "Remote.Timeout",
			errorMsg: "non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected no validation error but got: %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("field = %q, want %q", cfgErr.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error message to contain %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfig_ToSturdycOptions(t *testing.T) {
	cfg := DefaultConfig()
	if got := len(cfg.ToSturdycOptions()); got != 0 {
		t.Errorf("expected no sturdyc options for default config, got %d", got)
	}

	cfg.EvictionInterval = time.Second
	if got := len(cfg.ToSturdycOptions()); got != 1 {
		t.Errorf("expected 1 sturdyc option with eviction interval, got %d", got)
	}
}
