package caching

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

// CachedValue memoizes a single value produced by fn.
// Concurrent callers share one in-flight computation. A success is kept for
// the cache TTL, a failure for the (shorter) error TTL.
type CachedValue[V any] struct {
	mu  sync.Mutex
	cfg config

	fn  func(ctx context.Context) (V, error)
	ttl time.Duration

	fut     *Future[V]
	exp     mclock.AbsTime
	pending bool
}

func NewCachedValue[V any](fn func(ctx context.Context) (V, error), ttl time.Duration, opts ...Option) *CachedValue[V] {
	cfg := defaultConfig()
	cfg.apply(opts...)
	return &CachedValue[V]{
		cfg: cfg,
		fn:  fn,
		ttl: ttl,
	}
}

// Get returns the cached value, or waits for the in-flight computation,
// or starts a new one when nothing valid is held.
func (c *CachedValue[V]) Get(ctx context.Context) (V, error) {
	c.mu.Lock()
	if c.fut != nil && (c.pending || c.exp > c.cfg.clock.Now()) {
		f := c.fut
		c.mu.Unlock()
		c.cfg.metrics.CacheGet(c.cfg.label, true)
		return f.Wait(ctx)
	}
	f := NewFuture[V]()
	c.fut = f
	c.pending = true
	c.mu.Unlock()
	c.cfg.metrics.CacheGet(c.cfg.label, false)

	go c.produce(context.WithoutCancel(ctx), f)
	return f.Wait(ctx)
}

func (c *CachedValue[V]) produce(ctx context.Context, f *Future[V]) {
	v, err := c.fn(ctx)
	c.mu.Lock()
	// a Set or Clear while we were running wins
	if c.fut == f {
		ttl := c.ttl
		if err != nil {
			ttl = c.cfg.errorTTL
		}
		c.exp = c.cfg.clock.Now().Add(ttl)
		c.pending = false
		c.cfg.metrics.CacheAdd(c.cfg.label, 1, false)
	}
	c.mu.Unlock()
	f.Settle(v, err)
}

// Set replaces the held value with v, valid for the cache TTL.
func (c *CachedValue[V]) Set(v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fut = Resolved(v)
	c.exp = c.cfg.clock.Now().Add(c.ttl)
	c.pending = false
}

// Clear drops the held value. Waiters of an in-flight computation still receive its result.
func (c *CachedValue[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fut = nil
	c.pending = false
}

// Value returns the currently held future, possibly expired or unsettled, without starting a computation.
func (c *CachedValue[V]) Value() *Future[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fut
}
