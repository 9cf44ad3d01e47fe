package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/concoro-it/concoro/dedupe"
	"github.com/concoro-it/concoro/internal/logging"
)

// Manager composes a Service with a dedupe.Group so that a cache miss issues
// one fetch no matter how many callers hit it at the same time.
type Manager struct {
	service Service
	group   *dedupe.Group
	keys    KeyBuilder
	logger  logging.Logger

	// epoch advances on every invalidation. A fetch that overlaps one
	// returns its result but does not store it. storeMu orders the epoch
	// check and the store against the advance.
	epoch   atomic.Uint64
	storeMu sync.RWMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithKeyBuilder overrides the default KeyBuilder.
func WithKeyBuilder(keys KeyBuilder) ManagerOption {
	return func(m *Manager) {
		m.keys = keys
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager builds a Manager. A nil group gets a default dedupe.Group.
func NewManager(service Service, group *dedupe.Group, opts ...ManagerOption) *Manager {
	if group == nil {
		group = dedupe.New()
	}
	m := &Manager{service: service, group: group}
	for _, opt := range opts {
		opt(m)
	}
	if m.keys == nil {
		m.keys = NewKeyBuilder()
	}
	m.logger = logging.OrNop(m.logger)
	return m
}

// Service returns the underlying cache.
func (m *Manager) Service() Service { return m.service }

// Group returns the underlying dedupe group.
func (m *Manager) Group() *dedupe.Group { return m.group }

// Key builds a canonical key with the manager's KeyBuilder.
func (m *Manager) Key(prefix string, params Params) string {
	return m.keys.Build(prefix, params)
}

// Invalidate removes every cached key starting with prefix.
func (m *Manager) Invalidate(ctx context.Context, prefix string) error {
	m.advance()
	return m.service.DeleteByPrefix(ctx, prefix)
}

// Forget removes a single cached key.
func (m *Manager) Forget(ctx context.Context, key string) error {
	m.advance()
	return m.service.Delete(ctx, key)
}

// advance waits for in-progress stores, so the delete that follows removes
// anything they wrote.
func (m *Manager) advance() {
	m.storeMu.Lock()
	m.epoch.Add(1)
	m.storeMu.Unlock()
}

// storeIfCurrent stores value unless an invalidation happened since epoch.
func storeIfCurrent[T any](ctx context.Context, m *Manager, key string, value T, ttl time.Duration, epoch uint64) bool {
	m.storeMu.RLock()
	defer m.storeMu.RUnlock()

	if m.epoch.Load() != epoch {
		return false
	}
	Set(ctx, m.service, key, value, ttl)
	return true
}

type operationOptions struct {
	ttl     time.Duration
	bypass  bool
	refresh bool
}

// OperationOption tunes a single CachedOperation call.
type OperationOption func(*operationOptions)

// WithTTL sets the entry TTL. Zero uses the service default.
func WithTTL(ttl time.Duration) OperationOption {
	return func(o *operationOptions) {
		o.ttl = ttl
	}
}

// WithBypass skips the cache and the dedupe group entirely.
func WithBypass() OperationOption {
	return func(o *operationOptions) {
		o.bypass = true
	}
}

// WithRefresh ignores any cached value, fetches and overwrites it. Concurrent
// refreshes for the same key are still deduplicated.
func WithRefresh() OperationOption {
	return func(o *operationOptions) {
		o.refresh = true
	}
}

// CachedOperation returns the cached value for key or runs op to produce it.
//
// On a miss, op runs once per key across concurrent callers. Only successful
// results of fetches that did not overlap an Invalidate or Forget are stored.
// An error reaches every caller sharing the execution and leaves the cache
// untouched.
func CachedOperation[T any](ctx context.Context, m *Manager, key string, op FetchFn[T], opts ...OperationOption) (T, error) {
	var o operationOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.bypass {
		return op(ctx)
	}

	if !o.refresh {
		if value, ok := Get[T](ctx, m.service, key); ok {
			return value, nil
		}
	}

	return dedupe.Do(ctx, m.group, key, func(ctx context.Context) (T, error) {
		// A caller that missed just before the previous execution stored its
		// result would otherwise fetch again.
		if !o.refresh {
			if value, ok := Get[T](ctx, m.service, key); ok {
				return value, nil
			}
		}

		epoch := m.epoch.Load()
		value, err := op(ctx)
		if err != nil {
			m.logger.Debug("cached operation failed, result not stored", "key", key, "error", err)
			return value, err
		}
		if !storeIfCurrent(ctx, m, key, value, o.ttl, epoch) {
			m.logger.Debug("cache invalidated during fetch, result not stored", "key", key)
		}
		return value, nil
	})
}
