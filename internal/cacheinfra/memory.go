package cacheinfra

import (
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/viccon/sturdyc"
)

// MemoryTier is the in-process tier backed by a sturdyc client.
//
// Capacity is enforced over the whole tier, not per shard. When a new key
// arrives at capacity, entries whose own TTL has passed are purged; only if
// that frees nothing are the oldest EvictionPercentage of entries, by
// CreatedAt, evicted. This is an approximation of LRU, not a strict one.
type MemoryTier struct {
	client   *sturdyc.Client[Entry]
	capacity int
	evictN   int
	clock    clockwork.Clock
	observer Observer

	mu sync.Mutex // serializes capacity checks with inserts
}

// NewMemoryTier validates cfg and builds the sturdyc client.
func NewMemoryTier(cfg Config, clock clockwork.Clock, observer Observer) (*MemoryTier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	// Each shard may hold the full capacity so sturdyc never evicts on its
	// own; Set keeps the total within cfg.Capacity.
	client := sturdyc.New[Entry](
		cfg.Capacity*cfg.NumShards,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	evictN := cfg.Capacity * cfg.EvictionPercentage / 100
	if evictN < 1 {
		evictN = 1
	}

	return &MemoryTier{
		client:   client,
		capacity: cfg.Capacity,
		evictN:   evictN,
		clock:    clock,
		observer: observer,
	}, nil
}

// Get returns the entry for key when present and unexpired.
// Expired entries are removed lazily.
func (m *MemoryTier) Get(key string) (Entry, bool) {
	entry, ok := m.client.Get(key)
	if !ok {
		return Entry{}, false
	}
	if !entry.ValidAt(m.clock.Now()) {
		m.client.Delete(key)
		return Entry{}, false
	}
	return entry, true
}

// Set stores entry under key, making room first when a new key arrives at
// capacity.
func (m *MemoryTier) Set(key string, entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.client.Get(key); !exists && m.client.Size() >= m.capacity {
		if removed := m.makeRoom(); removed > 0 {
			m.observer.CacheEvicted(removed)
		}
	}
	m.client.Set(key, entry)
}

func (m *MemoryTier) makeRoom() int {
	if purged := m.PurgeExpired(); purged > 0 {
		return purged
	}

	type aged struct {
		key       string
		createdAt int64
	}
	keys := m.client.ScanKeys()
	entries := make([]aged, 0, len(keys))
	for _, key := range keys {
		if entry, ok := m.client.Get(key); ok {
			entries = append(entries, aged{key: key, createdAt: entry.CreatedAt.UnixNano()})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt < entries[j].createdAt
	})

	n := min(m.evictN, len(entries))
	for _, e := range entries[:n] {
		m.client.Delete(e.key)
	}
	return n
}

// Delete removes key. Idempotent.
func (m *MemoryTier) Delete(key string) {
	m.client.Delete(key)
}

// DeletePrefix removes every key starting with prefix and returns how many were removed.
func (m *MemoryTier) DeletePrefix(prefix string) int {
	removed := 0
	for _, key := range m.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			m.client.Delete(key)
			removed++
		}
	}
	return removed
}

// PurgeExpired removes entries whose TTL has elapsed and returns how many were removed.
func (m *MemoryTier) PurgeExpired() int {
	now := m.clock.Now()
	purged := 0
	for _, key := range m.client.ScanKeys() {
		entry, ok := m.client.Get(key)
		if ok && !entry.ValidAt(now) {
			m.client.Delete(key)
			purged++
		}
	}
	return purged
}

// Len returns the number of entries currently held, expired ones included.
func (m *MemoryTier) Len() int {
	return m.client.Size()
}
