package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/concoro-it/concoro/internal/cacheinfra"
)

// Entry wraps a cached value with its creation time and TTL.
type Entry = cacheinfra.Entry

// Decoder turns a remote tier payload back into a typed value.
type Decoder = cacheinfra.Decoder

// RemoteStore is the key-value contract of the remote tier.
type RemoteStore = cacheinfra.RemoteStore

// Observer receives cache hit, miss, eviction and remote error events.
type Observer = cacheinfra.Observer

// NopObserver ignores every event.
type NopObserver = cacheinfra.NopObserver

var (
	// ErrRemoteCacheUnavailable marks remote tier failures. Service never returns it;
	// it only shows up in logs.
	ErrRemoteCacheUnavailable = cacheinfra.ErrRemoteCacheUnavailable

	// ErrInvalidResultType is returned when a cached or shared value does not have
	// the type the caller asked for.
	ErrInvalidResultType = errors.New("cache: invalid result type")
)

// FetchFn is the function signature the cache expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Service is a two tier read-through cache.
//
// Get never fails: remote problems degrade to a miss. Set writes the memory tier
// synchronously and the remote tier in the background.
type Service interface {
	Get(ctx context.Context, key string, decode Decoder) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// DecoderFor returns a Decoder producing values of type T from msgpack payloads.
func DecoderFor[T any]() Decoder {
	return func(data []byte) (any, error) {
		var value T
		if err := msgpack.Unmarshal(data, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// Get is a type-safe wrapper around Service.Get. A value of the wrong type is
// reported as a miss.
func Get[T any](ctx context.Context, service Service, key string) (T, bool) {
	var zero T

	raw, ok := service.Get(ctx, key, DecoderFor[T]())
	if !ok {
		return zero, false
	}

	// A nil interface is a valid cached value for interface and pointer types.
	if raw == nil {
		return zero, true
	}

	value, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return value, true
}

// Set stores value under key. A ttl <= 0 uses the service default.
func Set[T any](ctx context.Context, service Service, key string, value T, ttl time.Duration) {
	service.Set(ctx, key, value, ttl)
}
