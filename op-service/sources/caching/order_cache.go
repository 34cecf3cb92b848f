package caching

import (
	"sync"

	"github.com/google/btree"
)

type orderedItem[V any] struct {
	number uint64
	value  V
}

func lessOrdered[V any](a, b orderedItem[V]) bool {
	return a.number < b.number
}

// OrderCache holds values keyed by a monotonically growing number, such as a
// block number. When full, the lowest key is evicted to make room.
type OrderCache[V any] struct {
	m       Metrics
	label   string
	data    *btree.BTreeG[orderedItem[V]]
	lock    sync.Mutex
	maxSize int
}

func NewOrderCache[V any](m Metrics, label string, maxSize int) *OrderCache[V] {
	if m == nil {
		m = noopMetrics{}
	}
	return &OrderCache[V]{
		m:       m,
		label:   label,
		data:    btree.NewG(32, lessOrdered[V]),
		maxSize: maxSize,
	}
}

// Add stores value under key, replacing an existing entry.
// It reports whether the lowest entry was evicted to make room.
func (v *OrderCache[V]) Add(key uint64, value V) (evicted bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if !v.data.Has(orderedItem[V]{number: key}) && v.data.Len() >= v.maxSize {
		v.data.DeleteMin()
		evicted = true
	}
	v.data.ReplaceOrInsert(orderedItem[V]{number: key, value: value})
	v.m.CacheAdd(v.label, v.data.Len(), evicted)
	return evicted
}

func (v *OrderCache[V]) Get(key uint64) (V, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	it, ok := v.data.Get(orderedItem[V]{number: key})
	v.m.CacheGet(v.label, ok)
	return it.value, ok
}

// Floor returns the entry with the greatest key <= key.
func (v *OrderCache[V]) Floor(key uint64) (uint64, V, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	var (
		found orderedItem[V]
		ok    bool
	)
	v.data.DescendLessOrEqual(orderedItem[V]{number: key}, func(it orderedItem[V]) bool {
		found, ok = it, true
		return false
	})
	return found.number, found.value, ok
}

func (v *OrderCache[V]) Len() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.data.Len()
}

func (v *OrderCache[V]) RemoveAll() {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.data.Clear(false)
}

// RemoveLessThan drops every entry with a key below p.
func (v *OrderCache[V]) RemoveLessThan(p uint64) (isRemoved bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	for {
		it, ok := v.data.Min()
		if !ok || it.number >= p {
			return isRemoved
		}
		v.data.DeleteMin()
		isRemoved = true
	}
}
