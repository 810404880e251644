// Package cache holds the in-process keyed cache and the shared byte
// cache used for embedding memoization.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/singularity-ai/knowledge-core/internal/observability"
)

// FetchFunc produces the value for a key on miss or refresh.
type FetchFunc func(ctx context.Context) (any, error)

// Stats is a throughput snapshot for one operation kind. RPS covers the
// interval since the previous call to the same stats method.
type Stats struct {
	HitsCount int64
	RPS       float64
}

type payload struct {
	value     any
	expiresAt int64 // unix nanos; fresh while expiresAt > now
}

// entry persists per key so the refreshing flag survives value swaps.
type entry struct {
	payload    atomic.Pointer[payload]
	refreshing atomic.Bool
}

// Cache is a process-wide keyed cache with TTL freshness, per-key
// single-flight refill, and stale-while-revalidate background refresh.
// Fresh reads never block on writers.
type Cache struct {
	entries sync.Map // string -> *entry
	flight  singleflight.Group
	logger  *observability.Logger

	putOps  atomic.Int64
	putHits atomic.Int64
	getOps  atomic.Int64
	getHits atomic.Int64

	statsMu     sync.Mutex
	lastPutOps  int64
	lastPutTime time.Time
	lastGetOps  int64
	lastGetTime time.Time
}

// New creates an empty cache.
func New(logger *observability.Logger) *Cache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	now := time.Now()
	return &Cache{
		logger:      logger.WithComponent("cache"),
		lastPutTime: now,
		lastGetTime: now,
	}
}

// Put returns the cached value for key, producing it with fetch when
// missing. A fresh entry short-circuits without running fetch. A stale
// entry with asyncGet true is returned immediately while a single
// background task refreshes it; with asyncGet false the caller joins the
// per-key single-flight refill and waits for the fresh value.
func (c *Cache) Put(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc, asyncGet bool) (any, error) {
	c.putOps.Add(1)
	now := time.Now().UnixNano()

	if v, ok := c.entries.Load(key); ok {
		ent := v.(*entry)
		if p := ent.payload.Load(); p != nil {
			if p.expiresAt > now {
				c.putHits.Add(1)
				return p.value, nil
			}
			if asyncGet {
				c.maybeRefresh(ctx, key, ent, ttl, fetch)
				c.putHits.Add(1)
				return p.value, nil
			}
		}
	}

	value, err, _ := c.flight.Do(key, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have
		// filled the entry while this one waited.
		if v, ok := c.entries.Load(key); ok {
			if p := v.(*entry).payload.Load(); p != nil && p.expiresAt > time.Now().UnixNano() {
				return p.value, nil
			}
		}
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// maybeRefresh spawns at most one background refresh per key. The
// refresh outlives the caller's request context and shares the per-key
// flight with the synchronous slow path, so a blocking Put on the same
// stale key joins the refresh instead of running a second fetch.
func (c *Cache) maybeRefresh(ctx context.Context, key string, ent *entry, ttl time.Duration, fetch FetchFunc) {
	if !ent.refreshing.CompareAndSwap(false, true) {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer ent.refreshing.Store(false)
		_, err, _ := c.flight.Do(key, func() (any, error) {
			if v, ok := c.entries.Load(key); ok {
				if p := v.(*entry).payload.Load(); p != nil && p.expiresAt > time.Now().UnixNano() {
					return p.value, nil
				}
			}
			value, err := fetch(bg)
			if err != nil {
				return nil, err
			}
			c.store(key, value, ttl)
			return value, nil
		})
		if err != nil {
			// The stale value keeps serving; the next caller retries.
			c.logger.Warn().Err(err).Str("key", key).Msg("background refresh failed")
		}
	}()
}

func (c *Cache) store(key string, value any, ttl time.Duration) {
	v, _ := c.entries.LoadOrStore(key, &entry{})
	v.(*entry).payload.Store(&payload{value: value, expiresAt: time.Now().Add(ttl).UnixNano()})
}

// Get returns the value for key if a fresh entry exists. It never
// triggers a refill.
func (c *Cache) Get(key string) (any, bool) {
	c.getOps.Add(1)
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	p := v.(*entry).payload.Load()
	if p == nil || p.expiresAt <= time.Now().UnixNano() {
		return nil, false
	}
	c.getHits.Add(1)
	return p.value, true
}

// Clear drops every entry. In-flight refreshes may repopulate keys they
// were refreshing.
func (c *Cache) Clear() {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
}

// PutStats snapshots Put throughput since the previous PutStats call.
func (c *Cache) PutStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	ops := c.putOps.Load()
	now := time.Now()
	stats := Stats{
		HitsCount: c.putHits.Load(),
		RPS:       rate(ops-c.lastPutOps, now.Sub(c.lastPutTime)),
	}
	c.lastPutOps = ops
	c.lastPutTime = now
	return stats
}

// GetStats snapshots Get throughput since the previous GetStats call.
func (c *Cache) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	ops := c.getOps.Load()
	now := time.Now()
	stats := Stats{
		HitsCount: c.getHits.Load(),
		RPS:       rate(ops-c.lastGetOps, now.Sub(c.lastGetTime)),
	}
	c.lastGetOps = ops
	c.lastGetTime = now
	return stats
}

func rate(ops int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(ops) / elapsed.Seconds()
}
