package di

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/concoro-it/concoro/cache"
	"github.com/concoro-it/concoro/concorsi"
	"github.com/concoro-it/concoro/dedupe"
	"github.com/concoro-it/concoro/internal/api"
	"github.com/concoro-it/concoro/internal/bunstore"
	"github.com/concoro-it/concoro/internal/config"
	"github.com/concoro-it/concoro/internal/docstore"
	"github.com/concoro-it/concoro/internal/logging"
	"github.com/concoro-it/concoro/internal/metrics"
)

// Option customizes how a Container builds its components.
type Option func(*options)

type options struct {
	logger logging.Logger
	clock  clockwork.Clock
	store  concorsi.Store
	remote cache.RemoteStore
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock replaces the real clock, mostly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithStore skips the configured store driver and uses store instead.
func WithStore(store concorsi.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRemoteCache supplies the remote cache tier instead of dialing Redis.
func WithRemoteCache(remote cache.RemoteStore) Option {
	return func(o *options) {
		o.remote = remote
	}
}

// Container provides dependency injection for the concorsi service.
// It builds singleton instances of the cache, the deduplicator, the store and
// the service from a config.Config, and closes them in reverse order.
type Container struct {
	config  config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	cache   cache.Service
	group   *dedupe.Group
	manager *cache.Manager
	store   concorsi.Store
	service *concorsi.Service
	handler http.Handler
	closers []func() error
}

// NewContainer validates cfg and wires every component. A failure releases
// whatever was already built.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}

	c := &Container{
		config:  cfg,
		logger:  logging.OrNop(o.logger),
		metrics: metrics.New(),
	}
	built := false
	defer func() {
		if !built {
			_ = c.Close()
		}
	}()

	cacheCfg, err := cfg.CacheConfig()
	if err != nil {
		return nil, err
	}
	c.cache, err = cache.NewCacheService(cacheCfg, cache.Dependencies{
		Remote:   o.remote,
		Logger:   c.logger,
		Clock:    o.clock,
		Observer: c.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.closers = append(c.closers, c.cache.Close)

	c.group = dedupe.New(
		dedupe.WithStaleAfter(cfg.StaleAfter()),
		dedupe.WithClock(o.clock),
		dedupe.WithObserver(c.metrics),
		dedupe.WithLogger(c.logger),
	)
	c.manager = cache.NewManager(c.cache, c.group, cache.WithManagerLogger(c.logger))

	if o.store != nil {
		c.store = o.store
	} else if c.store, err = c.openStore(ctx); err != nil {
		return nil, err
	}

	serviceCfg, err := cfg.ServiceConfig()
	if err != nil {
		return nil, err
	}
	c.service, err = concorsi.NewService(serviceCfg, concorsi.Dependencies{
		Store:    c.store,
		Cache:    c.manager,
		Clock:    o.clock,
		Logger:   c.logger,
		Observer: c.metrics,
	})
	if err != nil {
		return nil, err
	}

	c.handler = api.NewServer(c.service, api.WithLogger(c.logger), api.WithMetrics(c.metrics))
	built = true
	return c, nil
}

// NewContainerWithDefaults creates a container from config.Default, serving an
// empty in-memory store.
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, config.Default(), opts...)
}

func (c *Container) openStore(ctx context.Context) (concorsi.Store, error) {
	var seed []concorsi.Concorso
	if path := c.config.Store.SeedFile; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("store seed: %w", err)
		}
		defer f.Close()
		mem, err := docstore.LoadJSON(f)
		if err != nil {
			return nil, err
		}
		if c.config.Store.Driver == config.DriverMemory {
			c.logger.Info("document store seeded", "driver", config.DriverMemory, "records", mem.Len())
			return mem, nil
		}
		if seed, err = mem.Query(ctx, concorsi.Plan{}); err != nil {
			return nil, err
		}
	}

	switch c.config.Store.Driver {
	case config.DriverSQLite:
		db, err := bunstore.OpenSQLite(c.config.Store.DSN)
		if err != nil {
			return nil, err
		}
		store := bunstore.New(db, bunstore.WithLogger(c.logger))
		c.closers = append(c.closers, store.Close)
		if err := store.CreateSchema(ctx); err != nil {
			return nil, err
		}
		if len(seed) > 0 {
			if err := store.Seed(ctx, seed); err != nil {
				return nil, err
			}
			c.logger.Info("document store seeded", "driver", config.DriverSQLite, "records", len(seed))
		}
		return store, nil
	default:
		return docstore.New(nil), nil
	}
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// Metrics returns the metrics registry shared by every component.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// CacheService returns the singleton cache service instance.
func (c *Container) CacheService() cache.Service {
	return c.cache
}

// Group returns the singleton deduplicator.
func (c *Container) Group() *dedupe.Group {
	return c.group
}

// Manager returns the cache manager combining cache and deduplicator.
func (c *Container) Manager() *cache.Manager {
	return c.manager
}

// Store returns the document store.
func (c *Container) Store() concorsi.Store {
	return c.store
}

// Service returns the concorsi service.
func (c *Container) Service() *concorsi.Service {
	return c.service
}

// Handler returns the HTTP API.
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Close releases the components in reverse construction order and returns
// the first error.
func (c *Container) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
