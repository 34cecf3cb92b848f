package program

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

// StorageElement is a resolved command: the slots that hold its value, and the value itself.
// The slots are fixed when the element is created. The value is loaded on first use,
// at most once, and the outcome (including a failure) is shared by every caller.
type StorageElement struct {
	Slots     []common.Hash
	IsDynamic bool

	once  sync.Once
	load  func(ctx context.Context) ([]byte, error)
	value *caching.Future[[]byte]
}

func newLazyElement(slots []common.Hash, dynamic bool, load func(ctx context.Context) ([]byte, error)) *StorageElement {
	return &StorageElement{Slots: slots, IsDynamic: dynamic, load: load}
}

func newResolvedElement(slots []common.Hash, dynamic bool, value []byte) *StorageElement {
	return &StorageElement{Slots: slots, IsDynamic: dynamic, value: caching.Resolved(value)}
}

// Value returns the value of the element, loading it on the first call.
// The load is not cancelled when the first caller gives up, later callers still get its result.
func (e *StorageElement) Value(ctx context.Context) ([]byte, error) {
	e.once.Do(func() {
		if e.value == nil {
			e.value = caching.Go(context.WithoutCancel(ctx), e.load)
		}
	})
	return e.value.Wait(ctx)
}
