package testutils

import (
	"context"
	"fmt"
	"math/big"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mantlenetworkio/evm-gateway/op-service/eth"
)

// FakeEth serves a minimal eth JSON-RPC namespace over a chain of blocks,
// each committing to a WorldState.
type FakeEth struct {
	mu        sync.Mutex
	headers   []*types.Header
	states    []*WorldState
	finalized uint64

	// per-method call counters, keyed by the JSON-RPC method name
	calls sync.Map
}

func NewFakeEth() *FakeEth {
	return &FakeEth{}
}

// AddBlock appends a block on top of the chain, committing to state.
func (f *FakeEth) AddBlock(state *WorldState) *types.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &types.Header{
		Number:     big.NewInt(int64(len(f.headers))),
		Root:       state.Root(),
		Difficulty: new(big.Int),
		GasLimit:   30_000_000,
		Time:       uint64(1_700_000_000 + 12*len(f.headers)),
		BaseFee:    big.NewInt(7),
	}
	if n := len(f.headers); n > 0 {
		h.ParentHash = f.headers[n-1].Hash()
	}
	f.headers = append(f.headers, h)
	f.states = append(f.states, state)
	return h
}

func (f *FakeEth) SetFinalized(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = n
}

func (f *FakeEth) Calls(method string) int64 {
	v, ok := f.calls.Load(method)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (f *FakeEth) count(method string) {
	v, _ := f.calls.LoadOrStore(method, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (f *FakeEth) resolve(tag string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headers) == 0 {
		return 0, ethereum.NotFound
	}
	switch tag {
	case "latest", "safe", "pending":
		return len(f.headers) - 1, nil
	case "finalized":
		return int(f.finalized), nil
	case "earliest":
		return 0, nil
	}
	if len(tag) == 66 && strings.HasPrefix(tag, "0x") {
		hash := common.HexToHash(tag)
		for i, h := range f.headers {
			if h.Hash() == hash {
				return i, nil
			}
		}
		return 0, fmt.Errorf("header not found: %s", tag)
	}
	n, err := hexutil.DecodeUint64(tag)
	if err != nil {
		return 0, fmt.Errorf("invalid block tag %q: %w", tag, err)
	}
	if n >= uint64(len(f.headers)) {
		return 0, fmt.Errorf("header not found: %d", n)
	}
	return int(n), nil
}

type fakeEthAPI struct {
	f *FakeEth
}

func (api *fakeEthAPI) BlockNumber() hexutil.Uint64 {
	api.f.count("eth_blockNumber")
	api.f.mu.Lock()
	defer api.f.mu.Unlock()
	return hexutil.Uint64(len(api.f.headers) - 1)
}

func (api *fakeEthAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(900))
}

func (api *fakeEthAPI) GetBlockByNumber(tag string, fullTx bool) (*types.Header, error) {
	api.f.count("eth_getBlockByNumber")
	i, err := api.f.resolve(tag)
	if err != nil {
		return nil, nil
	}
	return api.f.headers[i], nil
}

func (api *fakeEthAPI) GetBlockByHash(hash common.Hash, fullTx bool) (*types.Header, error) {
	api.f.count("eth_getBlockByHash")
	i, err := api.f.resolve(hash.Hex())
	if err != nil {
		return nil, nil
	}
	return api.f.headers[i], nil
}

func (api *fakeEthAPI) GetStorageAt(ctx context.Context, addr common.Address, slot common.Hash, tag string) (hexutil.Bytes, error) {
	api.f.count("eth_getStorageAt")
	i, err := api.f.resolve(tag)
	if err != nil {
		return nil, err
	}
	v := api.f.states[i].Storage(addr, slot)
	return v[:], nil
}

func (api *fakeEthAPI) GetProof(ctx context.Context, addr common.Address, keys []common.Hash, tag string) (*eth.AccountResult, error) {
	api.f.count("eth_getProof")
	i, err := api.f.resolve(tag)
	if err != nil {
		return nil, err
	}
	return api.f.states[i].GetProof(addr, keys)
}

func (f *FakeEth) server(t *testing.T) *rpc.Server {
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &fakeEthAPI{f: f}); err != nil {
		t.Fatalf("failed to register fake eth api: %v", err)
	}
	return srv
}

// Dial serves the fake over an in-process RPC server and returns a client for it.
func (f *FakeEth) Dial(t *testing.T) *rpc.Client {
	srv := f.server(t)
	cl := rpc.DialInProc(srv)
	t.Cleanup(func() {
		cl.Close()
		srv.Stop()
	})
	return cl
}

// Listen serves the fake over HTTP and returns its URL.
func (f *FakeEth) Listen(t *testing.T) string {
	srv := f.server(t)
	httpSrv := httptest.NewServer(srv)
	t.Cleanup(func() {
		httpSrv.Close()
		srv.Stop()
	})
	return httpSrv.URL
}
