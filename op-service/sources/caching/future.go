package caching

import (
	"context"
	"sync"
)

// Future is the result of a computation that settles exactly once.
// Any number of goroutines may wait on it.
type Future[V any] struct {
	once sync.Once
	done chan struct{}
	val  V
	err  error
}

func NewFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Resolved returns a future that already holds v.
func Resolved[V any](v V) *Future[V] {
	f := NewFuture[V]()
	f.Settle(v, nil)
	return f
}

// Settle stores the outcome and releases all waiters.
// Only the first call has an effect; it reports whether this call settled the future.
func (f *Future[V]) Settle(v V, err error) (settled bool) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the outcome is available.
func (f *Future[V]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Peek returns the outcome without blocking. ok is false while the future is unsettled.
func (f *Future[V]) Peek() (v V, err error, ok bool) {
	if !f.Settled() {
		return v, nil, false
	}
	return f.val, f.err, true
}

// Wait blocks until the future settles or ctx is done.
// A cancelled wait does not affect the computation or other waiters.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Go runs fn in a new goroutine and returns its future.
func Go[V any](ctx context.Context, fn func(ctx context.Context) (V, error)) *Future[V] {
	f := NewFuture[V]()
	go func() {
		f.Settle(fn(ctx))
	}()
	return f
}
