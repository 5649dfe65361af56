// Package cache provides an in-memory TTL cache with per-key load
// coalescing.
//
// Freshness is checked lazily on read; nothing is evicted in the
// background. Concurrent misses on the same key share one loader call
// through singleflight. Entries are replaced whole under a lock, so a
// reader never observes a half-built value.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used by callers that have no configured TTL.
const DefaultTTL = 5 * time.Minute

// Loader fetches the value for one key. The context it receives is not
// cancelled when the caller that triggered the load goes away.
type Loader[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Stats are cumulative counters, safe to read concurrently.
type Stats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Loads    uint64 `json:"loads"`
	Failures uint64 `json:"failures"`
}

// Cache is a keyed TTL cache. The zero value is not usable; call New.
type Cache[T any] struct {
	ttl   time.Duration
	clone func(T) T
	now   func() time.Time
	log   *logger.Logger

	mu       sync.RWMutex
	entries  map[string]entry[T]
	gens     map[string]uint64
	epoch    uint64
	inflight map[string]int

	group singleflight.Group

	hits, misses, loads, failures atomic.Uint64
	waiting                       atomic.Int64
}

// Option configures a Cache.
type Option[T any] func(*Cache[T])

// WithClone sets the function used to copy values handed out to callers.
// Without it values are returned as stored, which is only safe for
// immutable T.
func WithClone[T any](fn func(T) T) Option[T] {
	return func(c *Cache[T]) { c.clone = fn }
}

// WithClock overrides time.Now, for tests.
func WithClock[T any](fn func() time.Time) Option[T] {
	return func(c *Cache[T]) { c.now = fn }
}

// WithLogger sets the logger used for hit/miss/load debug lines.
func WithLogger[T any](l *logger.Logger) Option[T] {
	return func(c *Cache[T]) { c.log = l }
}

// New creates an empty cache. A ttl <= 0 disables freshness: every
// GetOrLoad reloads, though concurrent loads are still coalesced.
func New[T any](ttl time.Duration, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		ttl:      ttl,
		now:      time.Now,
		log:      logger.Nop(),
		entries:  make(map[string]entry[T]),
		gens:     make(map[string]uint64),
		inflight: make(map[string]int),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache[T]) TTL() time.Duration { return c.ttl }

// GetOrLoad returns the cached value for key when fresh; otherwise it
// runs loader once for all concurrent callers of the same key and stores
// the result.
//
// A loader failure stores nothing and is returned to every coalesced
// waiter as the same *errs.CacheLoadError. If ctx is done before the load
// finishes, only this caller returns ctx.Err(); the load keeps running
// for the other waiters and its result is still stored.
func (c *Cache[T]) GetOrLoad(ctx context.Context, key string, loader Loader[T]) (T, error) {
	var zero T

	if v, ok := c.lookup(key); ok {
		c.hits.Add(1)
		c.log.Debug().Str("key", key).Msg("cache hit")
		return c.copy(v), nil
	}
	c.misses.Add(1)
	c.log.Debug().Str("key", key).Msg("cache miss")

	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(ctx, key, loader)
	})
	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return c.copy(v), nil
	}
}

func (c *Cache[T]) load(ctx context.Context, key string, loader Loader[T]) (v any, err error) {
	c.mu.Lock()
	// A caller that missed just before a previous load stored its result
	// can start a new flight; serve it the stored value.
	if e, ok := c.entries[key]; ok && c.fresh(e) {
		c.mu.Unlock()
		return e.value, nil
	}
	gen, epoch := c.gens[key], c.epoch
	c.inflight[key]++
	c.mu.Unlock()

	c.loads.Add(1)
	start := c.now()

	defer func() {
		if r := recover(); r != nil {
			err = &errs.CacheLoadError{Key: key, Err: fmt.Errorf("loader panic: %v", r)}
		}
		c.mu.Lock()
		if c.inflight[key]--; c.inflight[key] <= 0 {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
		if err != nil {
			c.failures.Add(1)
			c.log.Debug().Str("key", key).Err(err).Msg("cache load failed")
		}
	}()

	value, lerr := loader(context.WithoutCancel(ctx))
	if lerr != nil {
		return nil, &errs.CacheLoadError{Key: key, Err: lerr}
	}

	fetchedAt := c.now()
	c.mu.Lock()
	// An Invalidate or Clear during the load makes this result stale.
	if c.gens[key] == gen && c.epoch == epoch {
		c.entries[key] = entry[T]{value: value, fetchedAt: fetchedAt}
	}
	c.mu.Unlock()

	c.log.Debug().Str("key", key).Dur("took", fetchedAt.Sub(start)).Msg("cache loaded")
	return value, nil
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.fresh(e) {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *Cache[T]) fresh(e entry[T]) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(e.fetchedAt) <= c.ttl
}

func (c *Cache[T]) copy(v T) T {
	if c.clone == nil {
		return v
	}
	return c.clone(v)
}

// IsFresh reports whether key holds a value younger than the TTL.
func (c *Cache[T]) IsFresh(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// FetchedAt returns when key was last loaded, if it is stored at all.
func (c *Cache[T]) FetchedAt(key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.fetchedAt, ok
}

// Invalidate drops key. A load already in flight for key completes for its
// waiters but its result is not stored. The next call starts a new load
// even while the old one is still running, so two loaders for key can
// overlap; only the newer one stores its value.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(key)
}

// Clear drops every entry, with the same in-flight semantics as Invalidate.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[T])
	c.epoch++
	keys := make([]string, 0, len(c.inflight))
	for k := range c.inflight {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.group.Forget(k)
	}
}

// Len returns the number of stored entries, fresh or stale.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache[T]) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Loads:    c.loads.Load(),
		Failures: c.failures.Load(),
	}
}
