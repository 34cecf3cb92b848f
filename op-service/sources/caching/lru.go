package caching

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultLRUSize is the default capacity of an LRU.
const DefaultLRUSize = 8192

// LRU is a bounded cache of futures without expiry.
// In-flight computations occupy a slot immediately; failed ones are dropped
// so the next access retries.
type LRU[K comparable, V any] struct {
	mu  sync.Mutex
	cfg config
	lru *simplelru.LRU[K, *Future[V]]
}

func NewLRU[K comparable, V any](size int, opts ...Option) (*LRU[K, V], error) {
	cfg := defaultConfig()
	cfg.apply(opts...)
	c, err := simplelru.NewLRU[K, *Future[V]](size, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU of size %d: %w", size, err)
	}
	return &LRU[K, V]{cfg: cfg, lru: c}, nil
}

// Cache returns the value held for key, computing it with fn on a miss.
// A hit marks key as most recently used.
func (c *LRU[K, V]) Cache(ctx context.Context, key K, fn func(ctx context.Context, key K) (V, error)) (V, error) {
	c.mu.Lock()
	if f, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		c.cfg.metrics.CacheGet(c.cfg.label, true)
		return f.Wait(ctx)
	}
	f := NewFuture[V]()
	c.addLocked(key, f)
	c.mu.Unlock()
	c.cfg.metrics.CacheGet(c.cfg.label, false)

	go func(ctx context.Context) {
		v, err := fn(ctx, key)
		c.mu.Lock()
		if cur, ok := c.lru.Peek(key); ok && cur == f {
			if err != nil {
				c.lru.Remove(key)
			} else {
				// re-add as most recent
				c.lru.Get(key)
			}
		}
		c.mu.Unlock()
		f.Settle(v, err)
	}(context.WithoutCancel(ctx))
	return f.Wait(ctx)
}

func (c *LRU[K, V]) addLocked(key K, f *Future[V]) {
	evicted := c.lru.Add(key, f)
	c.cfg.metrics.CacheAdd(c.cfg.label, c.lru.Len(), evicted)
}

// Touch returns the future held for key and marks it most recently used, or nil.
func (c *LRU[K, V]) Touch(key K) *Future[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, _ := c.lru.Get(key)
	return f
}

// SetValue stores a resolved value for key as most recently used.
func (c *LRU[K, V]) SetValue(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(key, Resolved(v))
}

func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Keys returns the keys from least to most recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
