package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newRedisTestStore connects to CONCORO_TEST_REDIS_ADDR and isolates the test
// under a random key prefix.
func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()

	addr := os.Getenv("CONCORO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONCORO_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}

	store := NewRedisStoreWithClient(client, "concoro-test:"+uuid.NewString()+":")
	t.Cleanup(func() {
		_ = store.DelPrefix(context.Background(), "")
		_ = store.Close()
	})
	return store
}

func TestNewRedisStore_Validation(t *testing.T) {
	_, err := NewRedisStore(RemoteConfig{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "Remote.Address" {
		t.Fatalf("expected Remote.Address config error, got %v", err)
	}
}

func TestNewRedisStore_UnreachableServer(t *testing.T) {
	cfg := DefaultRemoteConfig("127.0.0.1:1")
	cfg.Timeout = 100 * time.Millisecond

	if _, err := NewRedisStore(cfg); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestNewRedisStoreWithClient_DefaultPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	store := NewRedisStoreWithClient(client, "")
	if got := store.fullKey("concorsi:list:a"); got != "concoro:concorsi:list:a" {
		t.Errorf("fullKey = %q", got)
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := newRedisTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrRemoteMiss) {
		t.Fatalf("expected ErrRemoteMiss, got %v", err)
	}

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	if err := store.Del(ctx, "k"); err != nil {
		t.Fatalf("Del() failed: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrRemoteMiss) {
		t.Errorf("expected miss after Del, got %v", err)
	}
}

func TestRedisStore_DelPrefixBatches(t *testing.T) {
	store := newRedisTestStore(t)
	ctx := context.Background()

	for i := 0; i < 450; i++ {
		if err := store.Set(ctx, fmt.Sprintf("concorsi:list:%d", i), []byte("x"), time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Set(ctx, "concorsi:detail:1", []byte("d"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if err := store.DelPrefix(ctx, "concorsi:list:"); err != nil {
		t.Fatalf("DelPrefix() failed: %v", err)
	}

	for _, i := range []int{0, 199, 200, 449} {
		if _, err := store.Get(ctx, fmt.Sprintf("concorsi:list:%d", i)); !errors.Is(err, ErrRemoteMiss) {
			t.Errorf("list key %d should be gone, got %v", i, err)
		}
	}
	if _, err := store.Get(ctx, "concorsi:detail:1"); err != nil {
		t.Errorf("detail key should survive, got %v", err)
	}
}

func TestTieredService_WithRedis(t *testing.T) {
	store := newRedisTestStore(t)
	ctx := context.Background()

	writer, err := NewTieredService(smallConfig(10), WithRemote(store))
	if err != nil {
		t.Fatal(err)
	}
	writer.Set(ctx, "shared", payload{Name: "redis", Count: 7}, time.Minute)
	_ = writer.Close()

	reader, err := NewTieredService(smallConfig(10), WithRemote(store))
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	got, ok := reader.Get(ctx, "shared", decodePayload)
	if !ok || got.(payload).Count != 7 {
		t.Fatalf("expected remote hit, got %v %v", got, ok)
	}
}
