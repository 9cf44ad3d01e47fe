package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/concoro-it/concoro/pkg/testsupport"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	svc, err := cfg.ServiceConfig()
	if err != nil {
		t.Fatal(err)
	}
	if svc.QueryTimeout != 30*time.Second || svc.Location.String() != "Europe/Rome" {
		t.Errorf("unexpected service config %+v", svc)
	}

	cacheCfg, err := cfg.CacheConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cacheCfg.Remote != nil {
		t.Error("remote tier should be disabled by default")
	}
	if cfg.StaleAfter() != 30*time.Second {
		t.Errorf("StaleAfter() = %v", cfg.StaleAfter())
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  address: ":9090"
store:
  driver: sqlite
  dsn: "file:concorsi.db"
cache:
  capacity: 500
  num_shards: 8
  ttl: 2m
  max_ttl: 30m
  eviction_percentage: 20
  redis:
    address: "redis:6379"
    db: 2
    timeout: 250ms
query:
  list_ttl: 1m
  location: UTC
`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	if cfg.Server.Address != ":9090" || cfg.Server.ReadTimeout != "10s" {
		t.Errorf("server section not merged over defaults: %+v", cfg.Server)
	}

	cacheCfg, _ := cfg.CacheConfig()
	if cacheCfg.Capacity != 500 || cacheCfg.TTL != 2*time.Minute || cacheCfg.MaxTTL != 30*time.Minute {
		t.Errorf("unexpected cache config %+v", cacheCfg)
	}
	if cacheCfg.Remote == nil || cacheCfg.Remote.Address != "redis:6379" || cacheCfg.Remote.DB != 2 {
		t.Fatalf("unexpected remote config %+v", cacheCfg.Remote)
	}
	if cacheCfg.Remote.Timeout != 250*time.Millisecond || cacheCfg.Remote.KeyPrefix == "" {
		t.Errorf("remote defaults not applied: %+v", cacheCfg.Remote)
	}

	svc, _ := cfg.ServiceConfig()
	if svc.ListTTL != time.Minute || svc.DetailTTL != 15*time.Minute || svc.Location != time.UTC {
		t.Errorf("unexpected service config %+v", svc)
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("empty input should yield defaults: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Address = %q", cfg.Server.Address)
	}
}

func TestParse_UnknownField(t *testing.T) {
	if _, err := Parse([]byte("cache:\n  capacty: 10\n")); err == nil {
		t.Error("expected unknown field to be rejected")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAddr:          ":7000",
		EnvRedisAddr:     "cache:6379",
		EnvRedisPassword: "secret",
		EnvRedisDB:       "3",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Address != ":7000" {
		t.Errorf("Address = %q", cfg.Server.Address)
	}
	if cfg.Cache.Redis == nil || cfg.Cache.Redis.Address != "cache:6379" || cfg.Cache.Redis.Password != "secret" || cfg.Cache.Redis.DB != 3 {
		t.Errorf("unexpected redis config %+v", cfg.Cache.Redis)
	}

	env[EnvRedisDB] = "three"
	err := cfg.ApplyEnv(func(k string) string { return env[k] })
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || cfgErr.Field != EnvRedisDB {
		t.Errorf("expected redis db error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing address", mutate: func(c *Config) { c.Server.Address = "" }, want: "server.address"},
		{name: "bad timeout", mutate: func(c *Config) { c.Server.ReadTimeout = "soon" }, want: "server.read_timeout"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "firestore" }, want: "store.driver"},
		{name: "sqlite without dsn", mutate: func(c *Config) { c.Store.Driver = DriverSQLite }, want: "store.dsn"},
		{name: "negative ttl", mutate: func(c *Config) { c.Cache.TTL = "-1m" }, want: "cache.ttl"},
		{name: "cache capacity", mutate: func(c *Config) { c.Cache.Capacity = 0 }, want: "Capacity"},
		{name: "location", mutate: func(c *Config) { c.Query.Location = "Mars/Olympus" }, want: "query.location"},
		{name: "sample size", mutate: func(c *Config) { c.Query.OptionsSampleSize = 0 }, want: "OptionsSampleSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error to mention %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := testsupport.TempFile(t, "concoro.yaml", []byte("log:\n  level: debug\n"))
	t.Setenv(EnvStoreDriver, DriverMemory)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}

	if _, err := Load(path + ".missing"); err == nil {
		t.Error("expected error for a missing file")
	}
}
