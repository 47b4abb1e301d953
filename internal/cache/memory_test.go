package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func memEntry(score float64) *Entry {
	now := time.Now().UTC()
	return &Entry{Result: *testResult(score), CreatedAt: now, LastAccess: now}
}

func TestMemoryBackendTTL(t *testing.T) {
	backend := NewMemoryBackend(16)
	ctx := context.Background()
	key := testKey("r1", "j1")

	if err := backend.Set(ctx, key, memEntry(42), 30*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok, _ := backend.Get(ctx, key); !ok {
		t.Fatal("expected entry before expiry")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := backend.Get(ctx, key); ok {
		t.Error("expected entry to expire")
	}
}

func TestMemoryBackendLRUEviction(t *testing.T) {
	backend := NewMemoryBackend(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := testKey(fmt.Sprintf("r%d", i), "j")
		if err := backend.Set(ctx, key, memEntry(float64(i)), time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Touch r0 so r1 becomes the least recently used.
	if _, ok, _ := backend.Get(ctx, testKey("r0", "j")); !ok {
		t.Fatal("expected r0 present")
	}

	if err := backend.Set(ctx, testKey("r3", "j"), memEntry(3), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if backend.Len() != 3 {
		t.Errorf("expected capacity bound of 3, got %d", backend.Len())
	}
	if _, ok, _ := backend.Get(ctx, testKey("r1", "j")); ok {
		t.Error("expected least recently used entry to be evicted")
	}
	if _, ok, _ := backend.Get(ctx, testKey("r0", "j")); !ok {
		t.Error("expected recently used entry to survive")
	}
}

func TestMemoryBackendEvictExpired(t *testing.T) {
	backend := NewMemoryBackend(16)
	ctx := context.Background()

	backend.Set(ctx, testKey("short", "j"), memEntry(1), 10*time.Millisecond)
	backend.Set(ctx, testKey("long", "j"), memEntry(2), time.Hour)
	backend.Set(ctx, testKey("forever", "j"), memEntry(3), 0)

	time.Sleep(30 * time.Millisecond)

	evicted, err := backend.EvictExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evicted != 1 {
		t.Errorf("expected 1 eviction, got %d", evicted)
	}
	if backend.Len() != 2 {
		t.Errorf("expected 2 remaining entries, got %d", backend.Len())
	}
}

func TestMemoryBackendDelete(t *testing.T) {
	backend := NewMemoryBackend(16)
	ctx := context.Background()
	key := testKey("r1", "j1")

	backend.Set(ctx, key, memEntry(5), time.Minute)
	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := backend.Get(ctx, key); ok {
		t.Error("expected entry to be deleted")
	}
	// Deleting a missing key is not an error.
	if err := backend.Delete(ctx, key); err != nil {
		t.Errorf("unexpected error deleting absent key: %v", err)
	}
}
