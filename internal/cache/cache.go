// Package cache maps (résumé fingerprint, job fingerprint) pairs to computed
// match results. GetOrCompute coalesces concurrent computations per key and
// degrades to direct computation when the backing store fails: a cache outage
// costs performance, never correctness.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"resumatch/internal/errors"
	"resumatch/internal/types"
)

// Key identifies one (résumé, job) computation.
type Key struct {
	Resume types.Fingerprint
	Job    types.Fingerprint
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Resume, k.Job)
}

// Entry is a stored result with its bookkeeping times.
type Entry struct {
	Result     types.MatchResult `json:"result"`
	CreatedAt  time.Time         `json:"createdAt"`
	LastAccess time.Time         `json:"lastAccess"`
}

// Backend is the storage behind ResultCache. Get returns ok=false on a miss.
// Implementations are responsible for their own expiry of stored entries;
// EvictExpired exists for stores that need an explicit sweep.
type Backend interface {
	Get(ctx context.Context, key Key) (*Entry, bool, error)
	Set(ctx context.Context, key Key, entry *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key Key) error
	EvictExpired(ctx context.Context) (int, error)
	Close() error
}

// Stats counts cache outcomes. All fields are updated atomically.
type Stats struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Coalesced atomic.Int64
	Errors    atomic.Int64
}

// ResultCache enforces the at-most-one-computation-per-key contract on top of
// a Backend. Callers for different keys never block each other.
type ResultCache struct {
	backend  Backend
	ttl      time.Duration
	group    singleflight.Group
	logger   *errors.Logger
	stats    Stats
	onLookup func(hit, coalesced bool)
}

// New builds a ResultCache over the given backend.
func New(backend Backend, ttl time.Duration, logger *errors.Logger) *ResultCache {
	return &ResultCache{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
	}
}

// SetLookupHook registers a callback invoked on every lookup outcome, in
// addition to the internal counters. Must be set before the cache is shared.
func (c *ResultCache) SetLookupHook(hook func(hit, coalesced bool)) {
	c.onLookup = hook
}

func (c *ResultCache) recordLookup(hit, coalesced bool) {
	if c.onLookup != nil {
		c.onLookup(hit, coalesced)
	}
}

// Get returns the cached result for key, if present. Backend failures are
// reported as a miss with a CACHE_ERROR already logged.
func (c *ResultCache) Get(ctx context.Context, key Key) (*types.MatchResult, bool) {
	entry, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.stats.Errors.Add(1)
		c.logger.LogError(errors.NewCacheError("cache lookup failed", err), "cache degraded to miss",
			"key", key.String())
		c.recordLookup(false, false)
		return nil, false
	}
	if !ok {
		c.stats.Misses.Add(1)
		c.recordLookup(false, false)
		return nil, false
	}
	c.stats.Hits.Add(1)
	c.recordLookup(true, false)
	result := entry.Result
	return &result, true
}

// GetOrCompute returns the cached result for key or computes it. Concurrent
// callers for the same key trigger at most one execution of compute and all
// receive the same result. A waiter whose context is cancelled stops waiting;
// the in-flight computation continues and still populates the cache, so an
// originator's cancellation never leaves a half-written entry.
func (c *ResultCache) GetOrCompute(ctx context.Context, key Key, compute func(context.Context) (*types.MatchResult, error)) (*types.MatchResult, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		// Recheck after winning the flight: another caller may have
		// populated the entry between our miss and now.
		if entry, ok, err := c.backend.Get(ctx, key); err == nil && ok {
			result := entry.Result
			return &result, nil
		}

		// The computation is detached from the caller's deadline so a
		// cancelled originator cannot abandon it mid-write.
		result, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(context.WithoutCancel(ctx), key, result)
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.stats.Coalesced.Add(1)
			c.recordLookup(false, true)
		}
		return res.Val.(*types.MatchResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate removes the entry for key.
func (c *ResultCache) Invalidate(ctx context.Context, key Key) error {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.stats.Errors.Add(1)
		return errors.NewCacheError("cache invalidation failed", err).
			WithContext("key", key.String())
	}
	return nil
}

// EvictExpired sweeps expired entries and returns how many were removed.
func (c *ResultCache) EvictExpired(ctx context.Context) (int, error) {
	evicted, err := c.backend.EvictExpired(ctx)
	if err != nil {
		c.stats.Errors.Add(1)
		return 0, errors.NewCacheError("cache eviction sweep failed", err)
	}
	return evicted, nil
}

// Stats exposes the outcome counters.
func (c *ResultCache) Stats() *Stats {
	return &c.stats
}

// Close releases backend resources.
func (c *ResultCache) Close() error {
	return c.backend.Close()
}

func (c *ResultCache) store(ctx context.Context, key Key, result *types.MatchResult) {
	now := time.Now().UTC()
	entry := &Entry{
		Result:     *result,
		CreatedAt:  now,
		LastAccess: now,
	}
	if err := c.backend.Set(ctx, key, entry, c.ttl); err != nil {
		c.stats.Errors.Add(1)
		c.logger.LogError(errors.NewCacheError("cache store failed", err), "result not cached",
			"key", key.String())
	}
}
