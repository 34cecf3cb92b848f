package caching

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderCache(t *testing.T) {
	m := new(recordingMetrics)
	c := NewOrderCache[string](m, "blocks", 3)

	require.False(t, c.Add(10, "a"))
	require.False(t, c.Add(20, "b"))
	require.False(t, c.Add(30, "c"))
	require.False(t, c.Add(20, "b2"), "replacing does not evict")
	require.True(t, c.Add(40, "d"))
	require.Equal(t, 3, c.Len())
	require.Equal(t, 1, m.evictions)

	_, ok := c.Get(10)
	require.False(t, ok, "lowest key was evicted")
	v, ok := c.Get(20)
	require.True(t, ok)
	require.Equal(t, "b2", v)

	k, v, ok := c.Floor(35)
	require.True(t, ok)
	require.Equal(t, uint64(30), k)
	require.Equal(t, "c", v)
	_, _, ok = c.Floor(5)
	require.False(t, ok)

	require.True(t, c.RemoveLessThan(31))
	require.Equal(t, 1, c.Len())
	require.False(t, c.RemoveLessThan(31))

	c.RemoveAll()
	require.Zero(t, c.Len())
}
