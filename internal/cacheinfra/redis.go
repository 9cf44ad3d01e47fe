package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RemoteStore is the key-value contract of the remote tier.
//
// Contract:
// - Get returns ErrRemoteMiss when the key does not exist.
// - Set stores value with an expiry of ttl (EX semantics).
// - Concurrent writers to the same key overwrite each other (last write wins).
type RemoteStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	DelPrefix(ctx context.Context, prefix string) error
}

// RedisStore implements RemoteStore on any Redis protocol server (Redis, Vercel KV, Upstash).
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to the configured server and verifies it with PING.
func NewRedisStore(cfg RemoteConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, &ConfigError{Field: "Remote.Address", Message: "is required"}
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "concoro:"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "concoro:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) fullKey(key string) string {
	return r.keyPrefix + key
}

// Get implements RemoteStore.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRemoteMiss
		}
		return nil, err
	}
	return data, nil
}

// Set implements RemoteStore.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.fullKey(key), value, ttl).Err()
}

// Del implements RemoteStore.
func (r *RedisStore) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.fullKey(key)).Err()
}

// DelPrefix removes every key under prefix using SCAN, in batches.
func (r *RedisStore) DelPrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, r.fullKey(prefix)+"*", 200).Iterator()

	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ RemoteStore = (*RedisStore)(nil)
