package scroll

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/evmproof"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
	"github.com/mantlenetworkio/evm-gateway/op-service/client"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources"
	"github.com/mantlenetworkio/evm-gateway/op-service/testlog"
	"github.com/mantlenetworkio/evm-gateway/op-service/testutils"
)

var target = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")

type searchAPI struct {
	hits atomic.Int64
	srv  *httptest.Server
}

func newSearchAPI(t *testing.T) *searchAPI {
	api := new(searchAPI)
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("keyword") {
		case "1":
			_, _ = w.Write([]byte(`{"batch_index": 12}`))
		case "2":
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	t.Cleanup(api.srv.Close)
	return api
}

func setup(t *testing.T) (*ProofService, *searchAPI) {
	lgr := testlog.Logger(t, log.LevelDebug)
	fake := testutils.NewFakeEth()
	fake.AddBlock(testutils.NewWorldState())
	fake.AddBlock(testutils.NewWorldState().SetStorageMap(target, testutils.ScoreboardStorage()))
	fake.AddBlock(testutils.NewWorldState())
	fake.SetFinalized(1)
	l2, err := sources.NewEthClient(client.NewBaseRPCClient(fake.Dial(t)), lgr, nil, sources.DefaultEthClientConfig(10))
	require.NoError(t, err)
	api := newSearchAPI(t)
	helper := evmproof.NewHelper(lgr, l2, nil, evmproof.DefaultConfig())
	return NewProofService(lgr, l2, helper, api.srv.URL, time.Second, nil, time.Minute), api
}

func TestCompressProof(t *testing.T) {
	out, err := CompressProof([]hexutil.Bytes{{0x01, 0x02}, {0x03}}, []hexutil.Bytes{{0x04}})
	require.NoError(t, err)
	require.Equal(t, []byte{2, 0x01, 0x02, 0x03, 1, 0x04}, out)

	_, err = CompressProof(make([]hexutil.Bytes, 256), nil)
	require.ErrorIs(t, err, ErrProofTooLong)
}

func TestBatchIndex(t *testing.T) {
	ctx := context.Background()
	s, api := setup(t)

	index, err := s.BatchIndex(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(12), index)
	_, err = s.BatchIndex(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), api.hits.Load())

	_, err = s.BatchIndex(ctx, 2)
	require.ErrorIs(t, err, ErrBatchNotFound)

	_, err = s.BatchIndex(ctx, 3)
	require.ErrorContains(t, err, "status 502")
}

func TestGetProofs(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t)

	block, err := s.GetProvableBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Number)

	_, err = s.GetProofs(ctx, block, target, nil)
	require.ErrorIs(t, err, ErrNoSlots)

	gw := prover.NewGateway[Block](testlog.Logger(t, log.LevelDebug), nil, s, program.Config{})
	cmds := []program.Command{program.MustCommand(false, program.AddConst(0))}
	consts := [][]byte{testutils.SlotOf(testutils.ScoreboardLatestSlot).Bytes()}
	bundle, err := gw.CreateProofs(ctx, target, cmds, consts)
	require.NoError(t, err)

	out, err := abi.Arguments{{Type: CommitmentType}, {Type: evmproof.RawWitnessType}}.Unpack(bundle)
	require.NoError(t, err)
	commitment := abi.ConvertType(out[0], new(Commitment)).(*Commitment)
	require.Equal(t, uint64(12), commitment.BatchIndex.Uint64())
	require.Zero(t, commitment.StorageKey.Sign())
	witness := abi.ConvertType(out[1], new(evmproof.RawWitness)).(*evmproof.RawWitness)
	require.Len(t, witness.StorageProofs, 1)

	var nodes []hexutil.Bytes
	for _, n := range witness.StateTrieWitness {
		nodes = append(nodes, n)
	}
	var storage []hexutil.Bytes
	for _, n := range witness.StorageProofs[0] {
		storage = append(storage, n)
	}
	expected, err := CompressProof(nodes, storage)
	require.NoError(t, err)
	require.Equal(t, expected, commitment.CompressedProof)
}
