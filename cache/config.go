package cache

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/concoro-it/concoro/internal/cacheinfra"
	"github.com/concoro-it/concoro/internal/logging"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	MaxTTL             time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
	Remote             *RemoteConfig
}

// RemoteConfig mirrors the remote tier options. A nil Remote disables the tier.
type RemoteConfig struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	Timeout        time.Duration
	WriteQueueSize int
}

// Dependencies are the optional collaborators of the default Service.
type Dependencies struct {
	// Remote overrides the Redis client built from Config.Remote.
	Remote   RemoteStore
	Logger   logging.Logger
	Clock    clockwork.Clock
	Observer Observer
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// DefaultRemoteConfig returns remote tier defaults for the given address.
func DefaultRemoteConfig(address string) RemoteConfig {
	remote := cacheinfra.DefaultRemoteConfig(address)
	return RemoteConfig(remote)
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewCacheService constructs the default two tier Service.
//
// When cfg.Remote is set and deps.Remote is nil a Redis client is dialed. If the
// server cannot be reached the service starts memory only and logs a warning.
func NewCacheService(cfg Config, deps Dependencies) (Service, error) {
	internal := cfg.toInternal()
	if err := internal.Validate(); err != nil {
		return nil, err
	}

	logger := logging.OrNop(deps.Logger)
	opts := []cacheinfra.Option{cacheinfra.WithLogger(logger)}
	if deps.Clock != nil {
		opts = append(opts, cacheinfra.WithClock(deps.Clock))
	}
	if deps.Observer != nil {
		opts = append(opts, cacheinfra.WithObserver(deps.Observer))
	}

	var owned *cacheinfra.RedisStore
	remote := deps.Remote
	if remote == nil && internal.Remote != nil {
		store, err := cacheinfra.NewRedisStore(*internal.Remote)
		if err != nil {
			logger.Warn("remote cache unreachable, starting memory only",
				"address", internal.Remote.Address, "error", err)
		} else {
			owned = store
			remote = store
		}
	}
	if remote != nil {
		opts = append(opts, cacheinfra.WithRemote(remote))
	}

	tiered, err := cacheinfra.NewTieredService(internal, opts...)
	if err != nil {
		if owned != nil {
			_ = owned.Close()
		}
		return nil, err
	}

	if owned == nil {
		return tiered, nil
	}
	return &ownedRemoteService{TieredService: tiered, remote: owned}, nil
}

// ownedRemoteService closes the Redis client it dialed itself.
type ownedRemoteService struct {
	*cacheinfra.TieredService
	remote *cacheinfra.RedisStore
}

func (s *ownedRemoteService) Close() error {
	if err := s.TieredService.Close(); err != nil {
		return err
	}
	return s.remote.Close()
}

func (c Config) toInternal() cacheinfra.Config {
	var remote *cacheinfra.RemoteConfig
	if c.Remote != nil {
		r := cacheinfra.RemoteConfig(*c.Remote)
		remote = &r
	}

	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		MaxTTL:             c.MaxTTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
		Remote:             remote,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	var remote *RemoteConfig
	if cfg.Remote != nil {
		r := RemoteConfig(*cfg.Remote)
		remote = &r
	}

	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		MaxTTL:             cfg.MaxTTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
		Remote:             remote,
	}
}
