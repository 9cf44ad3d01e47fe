package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/concoro-it/concoro/internal/logging"
)

// remoteEnvelope is the msgpack payload stored in the remote tier.
type remoteEnvelope struct {
	CreatedAt int64              `msgpack:"c"` // unix milliseconds
	TTL       int64              `msgpack:"t"` // milliseconds
	Value     msgpack.RawMessage `msgpack:"v"`
}

// Option configures a TieredService.
type Option func(*TieredService)

// WithRemote enables the remote tier.
func WithRemote(store RemoteStore) Option {
	return func(s *TieredService) {
		s.remote = store
	}
}

// WithClock overrides the clock used for entry validity.
func WithClock(clock clockwork.Clock) Option {
	return func(s *TieredService) {
		s.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *TieredService) {
		s.logger = logger
	}
}

// WithObserver sets the event observer.
func WithObserver(observer Observer) Option {
	return func(s *TieredService) {
		s.observer = observer
	}
}

// TieredService is a read-through cache over a memory tier and an optional remote tier.
//
// Remote failures never reach callers: they are logged, counted and the service
// behaves as memory only for that call.
type TieredService struct {
	memory   *MemoryTier
	remote   RemoteStore
	writer   *asyncWriter
	cfg      Config
	clock    clockwork.Clock
	logger   logging.Logger
	observer Observer
}

// NewTieredService validates cfg and builds the tiers.
func NewTieredService(cfg Config, opts ...Option) (*TieredService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &TieredService{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	s.logger = logging.OrNop(s.logger).With("component", "cache")
	if s.observer == nil {
		s.observer = NopObserver{}
	}

	memory, err := NewMemoryTier(cfg, s.clock, s.observer)
	if err != nil {
		return nil, err
	}
	s.memory = memory

	if s.remote != nil {
		queue, timeout := 0, time.Duration(0)
		if cfg.Remote != nil {
			queue, timeout = cfg.Remote.WriteQueueSize, cfg.Remote.Timeout
		}
		s.writer = newAsyncWriter(s.remote, queue, timeout, s.logger, s.observer)
	}

	return s, nil
}

// Get returns the value for key. The memory tier is checked first, then the
// remote tier; a remote hit is decoded with decode and copied into memory with
// its residual TTL.
func (s *TieredService) Get(ctx context.Context, key string, decode Decoder) (any, bool) {
	if entry, ok := s.memory.Get(key); ok {
		s.observer.CacheHit(TierMemory)
		return entry.Value, true
	}

	if s.remote == nil || decode == nil {
		s.observer.CacheMiss()
		return nil, false
	}

	value, residual, ok := s.getRemote(ctx, key, decode)
	if !ok {
		s.observer.CacheMiss()
		return nil, false
	}

	s.memory.Set(key, Entry{Value: value, CreatedAt: s.clock.Now(), TTL: residual})
	s.observer.CacheHit(TierRemote)
	return value, true
}

func (s *TieredService) getRemote(ctx context.Context, key string, decode Decoder) (any, time.Duration, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout())
	defer cancel()

	data, err := s.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrRemoteMiss) {
			s.remoteFailure("get", key, err)
		}
		return nil, 0, false
	}

	var env remoteEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		s.logger.Warn("discarding undecodable remote entry", "key", key, "error", err)
		return nil, 0, false
	}

	entry := Entry{
		CreatedAt: time.UnixMilli(env.CreatedAt),
		TTL:       time.Duration(env.TTL) * time.Millisecond,
	}
	now := s.clock.Now()
	if !entry.ValidAt(now) {
		return nil, 0, false
	}

	value, err := decode(env.Value)
	if err != nil {
		s.logger.Warn("discarding remote entry with mismatched type", "key", key, "error", err)
		return nil, 0, false
	}

	return value, entry.Remaining(now), true
}

// Set stores value in memory synchronously and schedules the remote write.
// A ttl <= 0 uses the configured default; ttl is capped at MaxTTL.
func (s *TieredService) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.cfg.TTL
	}
	if ttl > s.cfg.MaxTTL {
		ttl = s.cfg.MaxTTL
	}

	now := s.clock.Now()
	s.memory.Set(key, Entry{Value: value, CreatedAt: now, TTL: ttl})

	if s.writer == nil {
		return
	}

	payload, err := encodeEnvelope(value, now, ttl)
	if err != nil {
		s.logger.Warn("skipping remote write, value not encodable", "key", key, "error", err)
		return
	}
	s.writer.enqueue(remoteWrite{key: key, payload: payload, ttl: ttl})
}

func encodeEnvelope(value any, createdAt time.Time, ttl time.Duration) ([]byte, error) {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(remoteEnvelope{
		CreatedAt: createdAt.UnixMilli(),
		TTL:       ttl.Milliseconds(),
		Value:     raw,
	})
}

// Delete removes key from both tiers. Remote failures are logged, not returned.
func (s *TieredService) Delete(ctx context.Context, key string) error {
	s.memory.Delete(key)
	if s.remote == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout())
	defer cancel()
	if err := s.remote.Del(ctx, key); err != nil {
		s.remoteFailure("del", key, err)
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix from both tiers.
func (s *TieredService) DeleteByPrefix(ctx context.Context, prefix string) error {
	removed := s.memory.DeletePrefix(prefix)
	s.logger.Debug("invalidated memory keys", "prefix", prefix, "count", removed)

	if s.remote == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout())
	defer cancel()
	if err := s.remote.DelPrefix(ctx, prefix); err != nil {
		s.remoteFailure("del_prefix", prefix, err)
	}
	return nil
}

// Memory exposes the memory tier for inspection.
func (s *TieredService) Memory() *MemoryTier {
	return s.memory
}

// Close flushes pending remote writes.
func (s *TieredService) Close() error {
	if s.writer != nil {
		s.writer.close()
	}
	return nil
}

func (s *TieredService) remoteTimeout() time.Duration {
	if s.cfg.Remote != nil && s.cfg.Remote.Timeout > 0 {
		return s.cfg.Remote.Timeout
	}
	return 500 * time.Millisecond
}

func (s *TieredService) remoteFailure(op, key string, err error) {
	wrapped := fmt.Errorf("remote %s: %w: %w", op, ErrRemoteCacheUnavailable, err)
	s.logger.Warn("remote cache unavailable, using memory only", "op", op, "key", key, "error", wrapped)
	s.observer.RemoteError(op)
}
