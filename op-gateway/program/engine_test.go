package program

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
	"github.com/mantlenetworkio/evm-gateway/op-service/testutils"
)

type memoryStorage struct {
	mu    sync.Mutex
	words map[common.Hash]common.Hash
	reads atomic.Int64
	fail  error
}

func newMemoryStorage(layouts ...map[common.Hash]common.Hash) *memoryStorage {
	m := &memoryStorage{words: make(map[common.Hash]common.Hash)}
	for _, l := range layouts {
		for k, v := range l {
			m.words[k] = v
		}
	}
	return m
}

func (m *memoryStorage) StorageAt(ctx context.Context, slot common.Hash) (common.Hash, error) {
	m.reads.Add(1)
	if m.fail != nil {
		return common.Hash{}, m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[slot], nil
}

func resolved(elems ...*StorageElement) []*caching.Future[*StorageElement] {
	out := make([]*caching.Future[*StorageElement], len(elems))
	for i, e := range elems {
		out[i] = caching.Resolved(e)
	}
	return out
}

func TestComputeBaseSlot(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(Config{})

	t.Run("FOLLOW_CONST vector", func(t *testing.T) {
		// keccak256 of 32 zero bytes: mapping at slot 0 with an empty key
		slot, err := e.ComputeBaseSlot(ctx, MustCommand(false, FollowConst(0)), [][]byte{{}}, nil)
		require.NoError(t, err)
		require.Equal(t, common.HexToHash("0x290decd9548b62a8d60345a988386fc84ba6bc95484008f6362f93160ef3e563"), slot)
	})

	t.Run("nested mapping", func(t *testing.T) {
		constants := [][]byte{common.LeftPadBytes([]byte{5}, 32), []byte("Money Skeleton"), []byte("inner")}
		cmd := MustCommand(false, AddConst(0), FollowConst(1), FollowConst(2))
		slot, err := e.ComputeBaseSlot(ctx, cmd, constants, nil)
		require.NoError(t, err)
		outer := crypto.Keccak256Hash([]byte("Money Skeleton"), testutils.SlotOf(5).Bytes())
		require.Equal(t, crypto.Keccak256Hash([]byte("inner"), outer.Bytes()), slot)

		again, err := e.ComputeBaseSlot(ctx, cmd, constants, nil)
		require.NoError(t, err)
		require.Equal(t, slot, again, "deterministic")
	})

	t.Run("ADD_CONST", func(t *testing.T) {
		slot, err := e.ComputeBaseSlot(ctx, MustCommand(false, AddConst(0), AddConst(1)), [][]byte{{0x05}, {0x01, 0x00}}, nil)
		require.NoError(t, err)
		require.Equal(t, testutils.SlotOf(0x105), slot)
	})

	t.Run("ADD_CONST wraps", func(t *testing.T) {
		max := common.MaxHash.Bytes()
		slot, err := e.ComputeBaseSlot(ctx, MustCommand(false, AddConst(0), AddConst(1)), [][]byte{max, {0x02}}, nil)
		require.NoError(t, err)
		require.Equal(t, testutils.SlotOf(1), slot)
	})

	t.Run("FOLLOW_REF uses the referenced value", func(t *testing.T) {
		ref := newResolvedElement([]common.Hash{{}}, true, []byte("alice"))
		slot, err := e.ComputeBaseSlot(ctx, MustCommand(false, AddConst(0), FollowRef(0)), [][]byte{{0x03}}, resolved(ref))
		require.NoError(t, err)
		require.Equal(t, crypto.Keccak256Hash([]byte("alice"), testutils.SlotOf(3).Bytes()), slot)
	})

	t.Run("empty command is slot zero", func(t *testing.T) {
		slot, err := e.ComputeBaseSlot(ctx, MustCommand(false), nil, nil)
		require.NoError(t, err)
		require.Equal(t, common.Hash{}, slot)
	})
}

func TestComputeBaseSlotErrors(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(Config{})

	var unknown Command
	unknown[1] = 0x61
	unknown[2] = byte(OpEnd)

	tests := []struct {
		name      string
		cmd       Command
		constants [][]byte
		prior     []*caching.Future[*StorageElement]
		err       error
	}{
		{name: "unknown opcode", cmd: unknown, err: ErrUnknownOpcode},
		{name: "constant out of range", cmd: MustCommand(false, FollowConst(1)), constants: [][]byte{{}}, err: ErrOperandOutOfRange},
		{name: "add constant out of range", cmd: MustCommand(false, AddConst(0)), err: ErrOperandOutOfRange},
		{name: "constant too long", cmd: MustCommand(false, AddConst(0)), constants: [][]byte{make([]byte, 33)}, err: ErrConstantTooLong},
		{name: "self reference", cmd: MustCommand(false, FollowRef(1)), prior: resolved(newResolvedElement(nil, false, nil)), err: ErrOperandOutOfRange},
		{name: "reference without prior", cmd: MustCommand(false, FollowRef(0)), err: ErrOperandOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ComputeBaseSlot(ctx, tt.cmd, tt.constants, tt.prior)
			require.ErrorIs(t, err, tt.err)
			var pe *ProgramError
			require.ErrorAs(t, err, &pe)
			require.Equal(t, len(tt.prior), pe.Command)
		})
	}

	t.Run("failed dependency", func(t *testing.T) {
		boom := errors.New("boom")
		f := caching.NewFuture[*StorageElement]()
		f.Settle(nil, boom)
		_, err := e.ComputeBaseSlot(ctx, MustCommand(false, FollowRef(0)), nil, []*caching.Future[*StorageElement]{f})
		require.ErrorIs(t, err, boom)
		var de *DependencyError
		require.ErrorAs(t, err, &de)
		require.Equal(t, 0, de.Index)
		require.False(t, IsProgramError(err))
	})
}

func TestResolveFixed(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(Config{})
	value := common.HexToHash("0x2a")
	store := newMemoryStorage(map[common.Hash]common.Hash{testutils.SlotOf(7): value})

	elem, err := e.Resolve(ctx, store, MustCommand(false, AddConst(0)), [][]byte{{7}}, nil)
	require.NoError(t, err)
	require.False(t, elem.IsDynamic)
	require.Equal(t, []common.Hash{testutils.SlotOf(7)}, elem.Slots)
	require.Zero(t, store.reads.Load(), "fixed values are loaded lazily")

	v, err := elem.Value(ctx)
	require.NoError(t, err)
	require.Equal(t, value.Bytes(), v)
	_, err = elem.Value(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), store.reads.Load(), "value is memoized")

	t.Run("uninitialized", func(t *testing.T) {
		elem, err := e.Resolve(ctx, store, MustCommand(false, AddConst(0)), [][]byte{{8}}, nil)
		require.NoError(t, err)
		v, err := elem.Value(ctx)
		require.NoError(t, err)
		require.Equal(t, make([]byte, 32), v)
	})

	t.Run("failure is memoized", func(t *testing.T) {
		failing := newMemoryStorage()
		failing.fail = errors.New("rpc down")
		elem, err := e.Resolve(ctx, failing, MustCommand(false), nil, nil)
		require.NoError(t, err)
		_, err = elem.Value(ctx)
		require.ErrorIs(t, err, failing.fail)
		_, err = elem.Value(ctx)
		require.ErrorIs(t, err, failing.fail)
		require.Equal(t, int64(1), failing.reads.Load())
	})

	t.Run("load outlives the first caller", func(t *testing.T) {
		reader := StorageReaderFunc(func(ctx context.Context, slot common.Hash) (common.Hash, error) {
			if err := ctx.Err(); err != nil {
				return common.Hash{}, err
			}
			return value, nil
		})
		elem, err := e.Resolve(ctx, reader, MustCommand(false), nil, nil)
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _ = elem.Value(cctx)
		v, err := elem.Value(ctx)
		require.NoError(t, err)
		require.Equal(t, value.Bytes(), v)
	})
}

func TestResolveDynamic(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(Config{})

	t.Run("short", func(t *testing.T) {
		base := testutils.SlotOf(2)
		store := newMemoryStorage(testutils.EncodeBytes(base, []byte("Vitalik Buterin")))
		elem, err := e.Resolve(ctx, store, MustCommand(true, AddConst(0)), [][]byte{{2}}, nil)
		require.NoError(t, err)
		require.True(t, elem.IsDynamic)
		require.Equal(t, []common.Hash{base}, elem.Slots)
		v, err := elem.Value(ctx)
		require.NoError(t, err)
		require.Equal(t, "Vitalik Buterin", string(v))
		require.Equal(t, int64(1), store.reads.Load())
	})

	t.Run("31 bytes is still short", func(t *testing.T) {
		data := []byte(strings.Repeat("x", 31))
		store := newMemoryStorage(testutils.EncodeBytes(common.Hash{}, data))
		elem, err := e.Resolve(ctx, store, MustCommand(true), nil, nil)
		require.NoError(t, err)
		require.Len(t, elem.Slots, 1)
		v, err := elem.Value(ctx)
		require.NoError(t, err)
		require.Equal(t, data, v)
	})

	t.Run("long", func(t *testing.T) {
		base := testutils.SlotOf(1)
		data := []byte(strings.Repeat("0123456789", 10)) // 100 bytes, 4 data slots
		store := newMemoryStorage(testutils.EncodeBytes(base, data))
		elem, err := e.Resolve(ctx, store, MustCommand(true, AddConst(0)), [][]byte{{1}}, nil)
		require.NoError(t, err)
		require.Len(t, elem.Slots, 1+4)
		require.Equal(t, base, elem.Slots[0])
		// keccak256(uint256(1)), the data location of a dynamic value at slot 1
		first := common.HexToHash("0xb10e2d527612073b26eecdfd717e6a320cf44b4afac2b0732d9fcbe2b7fa0cf6")
		require.Equal(t, first, elem.Slots[1])
		require.Equal(t, common.BigToHash(new(big.Int).Add(first.Big(), big.NewInt(3))), elem.Slots[4])

		v, err := elem.Value(ctx)
		require.NoError(t, err)
		require.Equal(t, data, v)
		require.Equal(t, int64(1+4), store.reads.Load())
	})

	t.Run("exactly 32 bytes", func(t *testing.T) {
		data := []byte(strings.Repeat("y", 32))
		store := newMemoryStorage(testutils.EncodeBytes(common.Hash{}, data))
		elem, err := e.Resolve(ctx, store, MustCommand(true), nil, nil)
		require.NoError(t, err)
		require.Len(t, elem.Slots, 2)
		v, err := elem.Value(ctx)
		require.NoError(t, err)
		require.Equal(t, data, v)
	})

	t.Run("uninitialized", func(t *testing.T) {
		store := newMemoryStorage()
		elem, err := e.Resolve(ctx, store, MustCommand(true), nil, nil)
		require.NoError(t, err)
		require.Len(t, elem.Slots, 1)
		v, err := elem.Value(ctx)
		require.NoError(t, err)
		require.Empty(t, v)
	})

	t.Run("too long", func(t *testing.T) {
		small := NewEngine(Config{MaxDynamicLength: 64})
		store := newMemoryStorage(testutils.EncodeBytes(common.Hash{}, make([]byte, 65)))
		_, err := small.Resolve(ctx, store, MustCommand(true), nil, nil)
		require.ErrorIs(t, err, ErrValueTooLong)

		huge := newMemoryStorage(map[common.Hash]common.Hash{{}: common.MaxHash})
		_, err = e.Resolve(ctx, huge, MustCommand(true), nil, nil)
		require.ErrorIs(t, err, ErrValueTooLong)
	})

	t.Run("malformed short", func(t *testing.T) {
		store := newMemoryStorage(map[common.Hash]common.Hash{{}: {31: 0xfe}})
		_, err := e.Resolve(ctx, store, MustCommand(true), nil, nil)
		require.ErrorIs(t, err, ErrMalformedValue)
	})

	t.Run("read failure", func(t *testing.T) {
		store := newMemoryStorage()
		store.fail = errors.New("rpc down")
		_, err := e.Resolve(ctx, store, MustCommand(true), nil, nil)
		require.ErrorIs(t, err, store.fail)
	})
}
