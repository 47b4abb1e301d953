package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "resumatch/internal/errors"
	"resumatch/internal/types"
)

func testLogger(t *testing.T) *apperrors.Logger {
	t.Helper()
	logger, err := apperrors.New("error")
	if err != nil {
		t.Fatalf("unexpected error creating logger: %v", err)
	}
	return logger
}

func testKey(resume, job string) Key {
	return Key{Resume: types.Fingerprint(resume), Job: types.Fingerprint(job)}
}

func testResult(score float64) *types.MatchResult {
	return &types.MatchResult{Score: score, Recommendation: types.RecommendationGood}
}

func TestGetOrComputeMissThenHit(t *testing.T) {
	c := New(NewMemoryBackend(16), time.Minute, testLogger(t))
	defer c.Close()

	ctx := context.Background()
	key := testKey("r1", "j1")

	computes := 0
	compute := func(context.Context) (*types.MatchResult, error) {
		computes++
		return testResult(72), nil
	}

	first, err := c.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if computes != 1 {
		t.Errorf("expected exactly one computation, got %d", computes)
	}
	if first.Score != second.Score {
		t.Errorf("expected identical results, got %v and %v", first.Score, second.Score)
	}
	if c.Stats().Hits.Load() != 1 {
		t.Errorf("expected one hit, got %d", c.Stats().Hits.Load())
	}
}

func TestGetOrComputeCoalescing(t *testing.T) {
	c := New(NewMemoryBackend(16), time.Minute, testLogger(t))
	defer c.Close()

	ctx := context.Background()
	key := testKey("r1", "j1")

	var counter atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(context.Context) (*types.MatchResult, error) {
		counter.Add(1)
		close(started)
		<-release
		return testResult(50), nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*types.MatchResult, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.GetOrCompute(ctx, key, compute)
	}()
	<-started

	// Remaining callers arrive while the first computation is in flight.
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(ctx, key, compute)
		}(i)
	}
	// Give the waiters time to join the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := counter.Load(); got != 1 {
		t.Errorf("expected exactly one computation, got %d", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if results[i].Score != 50 {
			t.Errorf("caller %d got score %v, expected 50", i, results[i].Score)
		}
	}
}

func TestGetOrComputeDistinctKeysDoNotBlock(t *testing.T) {
	c := New(NewMemoryBackend(16), time.Minute, testLogger(t))
	defer c.Close()

	ctx := context.Background()
	blocked := make(chan struct{})

	go c.GetOrCompute(ctx, testKey("r1", "j1"), func(context.Context) (*types.MatchResult, error) {
		<-blocked
		return testResult(10), nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.GetOrCompute(ctx, testKey("r2", "j2"), func(context.Context) (*types.MatchResult, error) {
			return testResult(20), nil
		}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("caller for a different key was blocked")
	}
	close(blocked)
}

func TestGetOrComputeWaiterCancellation(t *testing.T) {
	backend := NewMemoryBackend(16)
	c := New(backend, time.Minute, testLogger(t))
	defer c.Close()

	key := testKey("r1", "j1")
	started := make(chan struct{})
	release := make(chan struct{})

	go c.GetOrCompute(context.Background(), key, func(context.Context) (*types.MatchResult, error) {
		close(started)
		<-release
		return testResult(33), nil
	})
	<-started

	// A waiter that cancels stops waiting without aborting the flight.
	waitCtx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.GetOrCompute(waitCtx, key, func(context.Context) (*types.MatchResult, error) {
		t.Error("waiter must not start its own computation")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The original computation completes and populates the cache.
	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := backend.Get(context.Background(), key); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache entry never populated after waiter cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetOrComputeBackendFailureDegrades(t *testing.T) {
	c := New(&failingBackend{}, time.Minute, testLogger(t))
	defer c.Close()

	computes := 0
	result, err := c.GetOrCompute(context.Background(), testKey("r1", "j1"),
		func(context.Context) (*types.MatchResult, error) {
			computes++
			return testResult(64), nil
		})
	if err != nil {
		t.Fatalf("cache failure must not fail the request: %v", err)
	}
	if result.Score != 64 {
		t.Errorf("expected computed result, got %v", result.Score)
	}
	if computes != 1 {
		t.Errorf("expected direct computation, got %d computes", computes)
	}
	if c.Stats().Errors.Load() == 0 {
		t.Error("expected backend errors to be counted")
	}
}

func TestGetOrComputeComputeError(t *testing.T) {
	c := New(NewMemoryBackend(16), time.Minute, testLogger(t))
	defer c.Close()

	wantErr := errors.New("capability down")
	_, err := c.GetOrCompute(context.Background(), testKey("r1", "j1"),
		func(context.Context) (*types.MatchResult, error) {
			return nil, wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected compute error, got %v", err)
	}

	// Failed computations leave no entry behind.
	if _, ok := c.Get(context.Background(), testKey("r1", "j1")); ok {
		t.Error("expected no cache entry after failed computation")
	}
}

func TestInvalidate(t *testing.T) {
	c := New(NewMemoryBackend(16), time.Minute, testLogger(t))
	defer c.Close()

	ctx := context.Background()
	key := testKey("r1", "j1")

	computes := 0
	compute := func(context.Context) (*types.MatchResult, error) {
		computes++
		return testResult(80), nil
	}

	if _, err := c.GetOrCompute(ctx, key, compute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Invalidate(ctx, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetOrCompute(ctx, key, compute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if computes != 2 {
		t.Errorf("expected recomputation after invalidation, got %d computes", computes)
	}
}

// failingBackend simulates a storage outage.
type failingBackend struct{}

func (f *failingBackend) Get(context.Context, Key) (*Entry, bool, error) {
	return nil, false, errors.New("backend down")
}

func (f *failingBackend) Set(context.Context, Key, *Entry, time.Duration) error {
	return errors.New("backend down")
}

func (f *failingBackend) Delete(context.Context, Key) error {
	return errors.New("backend down")
}

func (f *failingBackend) EvictExpired(context.Context) (int, error) {
	return 0, errors.New("backend down")
}

func (f *failingBackend) Close() error { return nil }
