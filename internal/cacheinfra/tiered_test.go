package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/concoro-it/concoro/internal/logging"
)

// fakeRemote is an in-memory RemoteStore with failure injection.
type fakeRemote struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failErr error
	sets    int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRemote) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

func (f *fakeRemote) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	data, ok := f.data[key]
	if !ok {
		return nil, ErrRemoteMiss
	}
	return data, nil
}

func (f *fakeRemote) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.failErr != nil {
		return f.failErr
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRemote) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	delete(f.data, key)
	return nil
}

func (f *fakeRemote) DelPrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	for key := range f.data {
		if strings.HasPrefix(key, prefix) {
			delete(f.data, key)
		}
	}
	return nil
}

func (f *fakeRemote) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

type payload struct {
	Name  string
	Count int
}

func decodePayload(data []byte) (any, error) {
	var p payload
	err := msgpack.Unmarshal(data, &p)
	return p, err
}

func newTestService(t *testing.T, clock clockwork.Clock, remote RemoteStore, observer Observer) *TieredService {
	t.Helper()
	cfg := smallConfig(100)
	opts := []Option{WithClock(clock), WithObserver(observer)}
	if remote != nil {
		opts = append(opts, WithRemote(remote))
	}
	svc, err := NewTieredService(cfg, opts...)
	if err != nil {
		t.Fatalf("NewTieredService() failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestTieredService_MemoryOnly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	observer := newCountingObserver()
	svc := newTestService(t, clock, nil, observer)
	ctx := context.Background()

	if _, ok := svc.Get(ctx, "k", decodePayload); ok {
		t.Fatal("expected miss on empty cache")
	}

	svc.Set(ctx, "k", payload{Name: "a", Count: 1}, 30*time.Second)

	got, ok := svc.Get(ctx, "k", decodePayload)
	if !ok || got.(payload).Name != "a" {
		t.Fatalf("expected hit, got %v %v", got, ok)
	}

	clock.Advance(30 * time.Second)
	if _, ok := svc.Get(ctx, "k", decodePayload); ok {
		t.Fatal("expected miss at t >= ttl")
	}

	if observer.hits[TierMemory] != 1 || observer.misses != 2 {
		t.Errorf("unexpected counters hits=%v misses=%d", observer.hits, observer.misses)
	}
}

func TestTieredService_DefaultAndMaxTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := newTestService(t, clock, nil, nil)
	ctx := context.Background()

	svc.Set(ctx, "default", 1, 0)
	svc.Set(ctx, "capped", 2, 48*time.Hour)

	entry, _ := svc.Memory().Get("default")
	if entry.TTL != time.Minute {
		t.Errorf("default ttl = %v, want 1m", entry.TTL)
	}
	entry, _ = svc.Memory().Get("capped")
	if entry.TTL != time.Hour {
		t.Errorf("capped ttl = %v, want 1h", entry.TTL)
	}
}

func TestTieredService_WritesRemoteAsync(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := newFakeRemote()
	svc := newTestService(t, clock, remote, nil)

	svc.Set(context.Background(), "k", payload{Name: "remote", Count: 2}, time.Minute)
	_ = svc.Close()

	if !remote.has("k") {
		t.Fatal("expected remote write after flush")
	}
	if remote.ttls["k"] != time.Minute {
		t.Errorf("remote ttl = %v, want 1m", remote.ttls["k"])
	}
}

func TestTieredService_RemoteHitPopulatesMemoryWithResidualTTL(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))
	remote := newFakeRemote()
	ctx := context.Background()

	writer := newTestService(t, clock, remote, nil)
	writer.Set(ctx, "shared", payload{Name: "from-remote", Count: 3}, time.Minute)
	_ = writer.Close()

	clock.Advance(20 * time.Second)

	observer := newCountingObserver()
	reader := newTestService(t, clock, remote, observer)

	got, ok := reader.Get(ctx, "shared", decodePayload)
	if !ok {
		t.Fatal("expected remote hit")
	}
	if got.(payload).Name != "from-remote" {
		t.Errorf("decoded value = %+v", got)
	}
	if observer.hits[TierRemote] != 1 {
		t.Errorf("expected remote hit reported, got %v", observer.hits)
	}

	entry, ok := reader.Memory().Get("shared")
	if !ok {
		t.Fatal("remote hit should populate memory tier")
	}
	if entry.TTL != 40*time.Second {
		t.Errorf("memory ttl = %v, want residual 40s", entry.TTL)
	}

	clock.Advance(40 * time.Second)
	if _, ok := reader.Get(ctx, "shared", decodePayload); ok {
		t.Error("entry should expire when the original ttl elapses")
	}
}

func TestTieredService_RemoteFailureDegradesSilently(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := newFakeRemote()
	remote.fail(errors.New("connection refused"))
	observer := newCountingObserver()
	svc := newTestService(t, clock, remote, observer)
	ctx := context.Background()

	if _, ok := svc.Get(ctx, "k", decodePayload); ok {
		t.Fatal("expected miss")
	}

	svc.Set(ctx, "k", payload{Name: "local"}, time.Minute)
	got, ok := svc.Get(ctx, "k", decodePayload)
	if !ok || got.(payload).Name != "local" {
		t.Fatalf("memory tier should still serve, got %v %v", got, ok)
	}

	if err := svc.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete should absorb remote errors, got %v", err)
	}
	if err := svc.DeleteByPrefix(ctx, "k"); err != nil {
		t.Errorf("DeleteByPrefix should absorb remote errors, got %v", err)
	}

	_ = svc.Close()
	if observer.remoteErrorCount("get") != 1 {
		t.Errorf("expected one remote get error, got %d", observer.remoteErrorCount("get"))
	}
	if observer.remoteErrorCount("set") != 1 {
		t.Errorf("expected one remote set error, got %d", observer.remoteErrorCount("set"))
	}
	if observer.remoteErrorCount("del") != 1 || observer.remoteErrorCount("del_prefix") != 1 {
		t.Errorf("expected delete errors to be reported, got %v", observer.remoteErrors)
	}
}

func TestTieredService_ExpiredRemoteEntryIsMiss(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := newFakeRemote()
	ctx := context.Background()

	writer := newTestService(t, clock, remote, nil)
	writer.Set(ctx, "k", payload{Name: "old"}, 10*time.Second)
	_ = writer.Close()

	clock.Advance(10 * time.Second)
	reader := newTestService(t, clock, remote, nil)
	if _, ok := reader.Get(ctx, "k", decodePayload); ok {
		t.Error("expired remote entry must not be served")
	}
}

func TestTieredService_DeleteByPrefix(t *testing.T) {
	clock := clockwork.NewFakeClock()
	remote := newFakeRemote()
	svc := newTestService(t, clock, remote, nil)
	ctx := context.Background()

	svc.Set(ctx, "concorsi:list:a", 1, time.Minute)
	svc.Set(ctx, "concorsi:detail:1", 2, time.Minute)
	_ = svc.Close()

	if err := svc.DeleteByPrefix(ctx, "concorsi:list:"); err != nil {
		t.Fatalf("DeleteByPrefix() failed: %v", err)
	}

	if _, ok := svc.Memory().Get("concorsi:list:a"); ok {
		t.Error("list key should be removed from memory")
	}
	if remote.has("concorsi:list:a") {
		t.Error("list key should be removed from remote")
	}
	if !remote.has("concorsi:detail:1") {
		t.Error("detail key should survive")
	}
}

func TestAsyncWriter_DropsWhenClosed(t *testing.T) {
	remote := newFakeRemote()
	w := newAsyncWriter(remote, 1, time.Second, logging.NewNopLogger(), NopObserver{})
	w.close()

	if w.enqueue(remoteWrite{key: "late"}) {
		t.Error("enqueue after close should be rejected")
	}
}
