package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "match:"

// RedisBackend stores entries in Redis with native TTL expiry. Expiry is
// handled by Redis itself, so EvictExpired is a no-op sweep.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend verifies connectivity and returns the backend.
func NewRedisBackend(ctx context.Context, opts *redis.Options) (*RedisBackend, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

// NewRedisBackendWithClient wraps an existing client, mainly for tests.
func NewRedisBackendWithClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key Key) (*Entry, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key.String()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	entry.LastAccess = time.Now().UTC()
	return &entry, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key Key, entry *Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key.String(), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key Key) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisBackend) EvictExpired(context.Context) (int, error) {
	return 0, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
