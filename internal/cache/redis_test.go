package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"resumatch/internal/types"
)

func setupTestRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendWithClient(client)

	return backend, mr, func() {
		backend.Close()
		mr.Close()
	}
}

func TestRedisBackendSetGet(t *testing.T) {
	backend, _, cleanup := setupTestRedisBackend(t)
	defer cleanup()

	ctx := context.Background()
	key := testKey("r1", "j1")

	if err := backend.Set(ctx, key, memEntry(88), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ok, err := backend.Get(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected entry present")
	}
	if entry.Result.Score != 88 {
		t.Errorf("expected score 88, got %v", entry.Result.Score)
	}
}

func TestRedisBackendMiss(t *testing.T) {
	backend, _, cleanup := setupTestRedisBackend(t)
	defer cleanup()

	_, ok, err := backend.Get(context.Background(), testKey("absent", "j"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestRedisBackendTTLExpiry(t *testing.T) {
	backend, mr, cleanup := setupTestRedisBackend(t)
	defer cleanup()

	ctx := context.Background()
	key := testKey("r1", "j1")

	if err := backend.Set(ctx, key, memEntry(10), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, ok, _ := backend.Get(ctx, key); ok {
		t.Error("expected entry to expire via redis TTL")
	}
}

func TestRedisBackendDelete(t *testing.T) {
	backend, _, cleanup := setupTestRedisBackend(t)
	defer cleanup()

	ctx := context.Background()
	key := testKey("r1", "j1")

	backend.Set(ctx, key, memEntry(7), time.Hour)
	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := backend.Get(ctx, key); ok {
		t.Error("expected entry to be deleted")
	}
}

func TestResultCacheOverRedis(t *testing.T) {
	backend, _, cleanup := setupTestRedisBackend(t)
	defer cleanup()

	c := New(backend, time.Hour, testLogger(t))
	ctx := context.Background()
	key := testKey("r1", "j1")

	computes := 0
	compute := func(context.Context) (*types.MatchResult, error) {
		computes++
		return testResult(91), nil
	}

	result, err := c.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 91 {
		t.Errorf("expected 91, got %v", result.Score)
	}

	if _, err := c.GetOrCompute(ctx, key, compute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if computes != 1 {
		t.Errorf("expected one computation across calls, got %d", computes)
	}
}
