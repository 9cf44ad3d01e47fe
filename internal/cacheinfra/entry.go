package cacheinfra

import (
	"errors"
	"time"
)

// Sentinel errors for the cache tiers.
var (
	// ErrRemoteMiss is returned by RemoteStore.Get when the key does not exist.
	ErrRemoteMiss = errors.New("cacheinfra: remote miss")
	// ErrRemoteCacheUnavailable wraps every remote tier failure. It is logged and
	// absorbed, never returned to cache callers.
	ErrRemoteCacheUnavailable = errors.New("cacheinfra: remote cache unavailable")
)

// Entry wraps a cached value with its creation time and time-to-live.
// Entries are immutable; a write always stores a new Entry.
type Entry struct {
	Value     any
	CreatedAt time.Time
	TTL       time.Duration
}

// ValidAt reports whether the entry is still fresh at now.
func (e Entry) ValidAt(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) < e.TTL
}

// Remaining returns the residual TTL at now, or zero when expired.
func (e Entry) Remaining(now time.Time) time.Duration {
	left := e.TTL - now.Sub(e.CreatedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Decoder turns a remote payload back into a typed value.
type Decoder func(data []byte) (any, error)

// Tier names reported to observers.
const (
	TierMemory = "memory"
	TierRemote = "remote"
)

// Observer receives cache events. Implementations must be safe for concurrent use.
type Observer interface {
	CacheHit(tier string)
	CacheMiss()
	CacheEvicted(count int)
	RemoteError(op string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) CacheHit(string)    {}
func (NopObserver) CacheMiss()         {}
func (NopObserver) CacheEvicted(int)   {}
func (NopObserver) RemoteError(string) {}

var _ Observer = NopObserver{}
