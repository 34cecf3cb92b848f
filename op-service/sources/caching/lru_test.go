package caching

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	adds, hits, misses int
	evictions          int
}

func (r *recordingMetrics) CacheAdd(label string, cacheSize int, evicted bool) {
	r.adds++
	if evicted {
		r.evictions++
	}
}

func (r *recordingMetrics) CacheGet(label string, hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func TestLRU(t *testing.T) {
	ctx := context.Background()

	_, err := NewLRU[string, int](0)
	require.Error(t, err)

	t.Run("evicts least recently touched", func(t *testing.T) {
		c, err := NewLRU[string, int](2)
		require.NoError(t, err)
		c.SetValue("a", 1)
		c.SetValue("b", 2)
		require.NotNil(t, c.Touch("a"))
		c.SetValue("c", 3)

		require.Equal(t, 2, c.Len())
		require.Nil(t, c.Touch("b"))
		require.Equal(t, []string{"a", "c"}, c.Keys())
	})

	t.Run("cache computes once", func(t *testing.T) {
		m := new(recordingMetrics)
		c, err := NewLRU[string, int](4, WithMetrics(m, "test"))
		require.NoError(t, err)
		calls := 0
		fn := func(ctx context.Context, key string) (int, error) {
			calls++
			return len(key), nil
		}
		v, err := c.Cache(ctx, "abc", fn)
		require.NoError(t, err)
		require.Equal(t, 3, v)
		v, err = c.Cache(ctx, "abc", fn)
		require.NoError(t, err)
		require.Equal(t, 3, v)
		require.Equal(t, 1, calls)
		require.Equal(t, 1, m.hits)
		require.Equal(t, 1, m.misses)
	})

	t.Run("concurrent callers share a pending computation", func(t *testing.T) {
		c, err := NewLRU[string, int](4)
		require.NoError(t, err)
		var calls atomic.Int32
		release := make(chan struct{})
		fn := func(ctx context.Context, key string) (int, error) {
			calls.Add(1)
			<-release
			return 7, nil
		}

		const callers = 16
		var entered, wg sync.WaitGroup
		entered.Add(callers)
		wg.Add(callers)
		results := make(chan int, callers)
		errs := make(chan error, callers)
		for range callers {
			go func() {
				defer wg.Done()
				entered.Done()
				v, err := c.Cache(ctx, "k", fn)
				results <- v
				errs <- err
			}()
		}
		entered.Wait()
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		// give the remaining callers time to find the pending future
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()
		close(results)
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		for v := range results {
			require.Equal(t, 7, v)
		}
		require.EqualValues(t, 1, calls.Load())
		require.Equal(t, 1, c.Len())
	})

	t.Run("failures are not kept", func(t *testing.T) {
		c, err := NewLRU[string, int](4)
		require.NoError(t, err)
		boom := errors.New("boom")
		_, err = c.Cache(ctx, "k", func(ctx context.Context, key string) (int, error) {
			return 0, boom
		})
		require.ErrorIs(t, err, boom)
		require.Zero(t, c.Len())

		v, err := c.Cache(ctx, "k", func(ctx context.Context, key string) (int, error) {
			return 5, nil
		})
		require.NoError(t, err)
		require.Equal(t, 5, v)
	})

	t.Run("success becomes most recent", func(t *testing.T) {
		c, err := NewLRU[string, int](2)
		require.NoError(t, err)
		release := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = c.Cache(ctx, "slow", func(ctx context.Context, key string) (int, error) {
				<-release
				return 1, nil
			})
		}()
		require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
		c.SetValue("fast", 2)
		close(release)
		<-done
		require.Equal(t, []string{"fast", "slow"}, c.Keys())
	})

	t.Run("delete and clear", func(t *testing.T) {
		c, err := NewLRU[int, int](3)
		require.NoError(t, err)
		c.SetValue(1, 1)
		c.SetValue(2, 2)
		c.Delete(1)
		require.Equal(t, []int{2}, c.Keys())
		c.Clear()
		require.Zero(t, c.Len())
	})
}
