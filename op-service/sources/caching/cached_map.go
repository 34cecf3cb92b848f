package caching

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

type cachedEntry[V any] struct {
	exp mclock.AbsTime
	fut *Future[V]
}

// CachedMap coalesces and memoizes keyed computations.
//
// It holds two maps: in-flight futures by key, and settled futures with their
// expiry. Requests for the same key share a single future. Successful results
// are kept for the TTL passed to GetTTL (the map default for Get), failures
// for the error TTL. When the settled map is full, the ceil(maxCached/16)
// entries closest to expiry are dropped in one batch.
type CachedMap[K comparable, V any] struct {
	mu  sync.Mutex
	cfg config

	ttl       time.Duration
	maxCached int

	cached  map[K]cachedEntry[V]
	pending map[K]*Future[V]

	// single timer armed for the nearest expiry
	timer    mclock.Timer
	timerAt  mclock.AbsTime
	timerGen uint64
}

// NewCachedMap creates a map that caches results for ttl and holds at most maxCached settled entries.
// A maxCached of 0 disables caching of settled results; in-flight requests are still coalesced.
func NewCachedMap[K comparable, V any](ttl time.Duration, maxCached int, opts ...Option) *CachedMap[K, V] {
	cfg := defaultConfig()
	cfg.apply(opts...)
	return &CachedMap[K, V]{
		cfg:       cfg,
		ttl:       ttl,
		maxCached: maxCached,
		cached:    make(map[K]cachedEntry[V]),
		pending:   make(map[K]*Future[V]),
	}
}

// Get returns the value for key, computing it with fn if nothing valid is held.
func (m *CachedMap[K, V]) Get(ctx context.Context, key K, fn func(ctx context.Context, key K) (V, error)) (V, error) {
	return m.GetTTL(ctx, key, fn, m.ttl)
}

// GetTTL is Get with a per-call success TTL. A ttl <= 0 only coalesces concurrent requests.
func (m *CachedMap[K, V]) GetTTL(ctx context.Context, key K, fn func(ctx context.Context, key K) (V, error), ttl time.Duration) (V, error) {
	return m.future(ctx, key, fn, ttl).Wait(ctx)
}

// GetFuture starts or joins the computation for key and returns its future without waiting.
func (m *CachedMap[K, V]) GetFuture(ctx context.Context, key K, fn func(ctx context.Context, key K) (V, error)) *Future[V] {
	return m.future(ctx, key, fn, m.ttl)
}

func (m *CachedMap[K, V]) future(ctx context.Context, key K, fn func(ctx context.Context, key K) (V, error), ttl time.Duration) *Future[V] {
	m.mu.Lock()
	if f := m.peekLocked(key); f != nil {
		m.mu.Unlock()
		m.cfg.metrics.CacheGet(m.cfg.label, true)
		return f
	}
	f := NewFuture[V]()
	m.pending[key] = f
	m.mu.Unlock()
	m.cfg.metrics.CacheGet(m.cfg.label, false)

	go func(ctx context.Context) {
		v, err := fn(ctx, key)
		m.mu.Lock()
		// a Delete, Set or Clear while in flight detaches this computation
		if m.pending[key] == f {
			delete(m.pending, key)
			if err != nil {
				ttl = m.cfg.errorTTL
			}
			m.setLocked(key, f, ttl)
		}
		m.mu.Unlock()
		f.Settle(v, err)
	}(context.WithoutCancel(ctx))
	return f
}

// Set stores v under key for the default TTL, replacing any cached or in-flight entry.
func (m *CachedMap[K, V]) Set(key K, v V) {
	m.SetTTL(key, v, m.ttl)
}

// SetTTL stores v under key for ttl. A ttl <= 0 only removes the existing entry.
func (m *CachedMap[K, V]) SetTTL(key K, v V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	m.setLocked(key, Resolved(v), ttl)
}

func (m *CachedMap[K, V]) setLocked(key K, f *Future[V], ttl time.Duration) {
	delete(m.cached, key)
	if m.maxCached <= 0 || ttl <= 0 {
		return
	}
	evicted := false
	if len(m.cached) >= m.maxCached {
		m.evictLocked()
		evicted = true
	}
	exp := m.cfg.clock.Now().Add(ttl)
	m.cached[key] = cachedEntry[V]{exp: exp, fut: f}
	m.cfg.metrics.CacheAdd(m.cfg.label, len(m.cached), evicted)
	m.scheduleLocked(exp)
}

// evictLocked drops the ceil(maxCached/16) entries with the earliest expiry.
func (m *CachedMap[K, V]) evictLocked() {
	n := (m.maxCached + 15) / 16
	type kexp struct {
		key K
		exp mclock.AbsTime
	}
	all := make([]kexp, 0, len(m.cached))
	for k, e := range m.cached {
		all = append(all, kexp{k, e.exp})
	}
	slices.SortFunc(all, func(a, b kexp) int {
		switch {
		case a.exp < b.exp:
			return -1
		case a.exp > b.exp:
			return 1
		}
		return 0
	})
	for _, e := range all[:min(n, len(all))] {
		delete(m.cached, e.key)
	}
}

func (m *CachedMap[K, V]) scheduleLocked(exp mclock.AbsTime) {
	now := m.cfg.clock.Now()
	t := max(now.Add(expirySlop), exp)
	if m.timer != nil && m.timerAt <= t {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerGen++
	gen := m.timerGen
	m.timerAt = t
	m.timer = m.cfg.clock.AfterFunc(time.Duration(t-now), func() {
		m.sweep(gen)
	})
}

func (m *CachedMap[K, V]) sweep(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.timerGen {
		return
	}
	m.timer = nil
	m.timerAt = 0
	now := m.cfg.clock.Now()
	var next mclock.AbsTime
	for k, e := range m.cached {
		if e.exp <= now {
			delete(m.cached, k)
		} else if next == 0 || e.exp < next {
			next = e.exp
		}
	}
	if next != 0 {
		m.scheduleLocked(next)
	}
}

func (m *CachedMap[K, V]) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerGen++
	m.timer = nil
	m.timerAt = 0
}

// Delete removes key from both the cached and the in-flight map.
// Callers already waiting on an in-flight computation still receive its result.
func (m *CachedMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cached, key)
	delete(m.pending, key)
}

// Clear removes every entry and disarms the expiry timer.
func (m *CachedMap[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.cached)
	clear(m.pending)
	m.stopTimerLocked()
}

// Peek returns the valid cached future for key, else the in-flight one, else nil.
// It never starts a computation.
func (m *CachedMap[K, V]) Peek(key K) *Future[V] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peekLocked(key)
}

func (m *CachedMap[K, V]) peekLocked(key K) *Future[V] {
	if f := m.cachedLocked(key); f != nil {
		return f
	}
	return m.pending[key]
}

func (m *CachedMap[K, V]) cachedLocked(key K) *Future[V] {
	e, ok := m.cached[key]
	if !ok {
		return nil
	}
	if e.exp > m.cfg.clock.Now() {
		return e.fut
	}
	delete(m.cached, key)
	return nil
}

// CachedValue returns the settled, non-expired future for key, or nil.
func (m *CachedMap[K, V]) CachedValue(key K) *Future[V] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cachedLocked(key)
}

// CachedRemaining returns how long the cached entry for key stays valid, 0 if none.
func (m *CachedMap[K, V]) CachedRemaining(key K) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cached[key]
	if !ok {
		return 0
	}
	if rem := time.Duration(e.exp - m.cfg.clock.Now()); rem > 0 {
		return rem
	}
	return 0
}

// CachedKeys returns the keys of the settled map, which may include entries
// that expired but were not swept yet.
func (m *CachedMap[K, V]) CachedKeys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]K, 0, len(m.cached))
	for k := range m.cached {
		keys = append(keys, k)
	}
	return keys
}

func (m *CachedMap[K, V]) PendingSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *CachedMap[K, V]) CachedSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cached)
}

// NextExpiration returns when the expiry timer fires next; ok is false if it is not armed.
func (m *CachedMap[K, V]) NextExpiration() (at mclock.AbsTime, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timerAt, m.timer != nil
}
