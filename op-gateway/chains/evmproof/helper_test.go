package evmproof

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/evm-gateway/op-service/client"
	"github.com/mantlenetworkio/evm-gateway/op-service/eth"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources"
	"github.com/mantlenetworkio/evm-gateway/op-service/testlog"
	"github.com/mantlenetworkio/evm-gateway/op-service/testutils"
)

var target = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")

func setup(t *testing.T, cfg Config) (*Helper, *testutils.FakeEth) {
	lgr := testlog.Logger(t, log.LevelDebug)
	fake := testutils.NewFakeEth()
	fake.AddBlock(testutils.NewWorldState())
	fake.AddBlock(testutils.NewWorldState().SetStorageMap(target, testutils.ScoreboardStorage()))
	cl, err := sources.NewEthClient(client.NewBaseRPCClient(fake.Dial(t)), lgr, nil, sources.DefaultEthClientConfig(10))
	require.NoError(t, err)
	return NewHelper(lgr, cl, nil, cfg), fake
}

func TestGetStorageAt(t *testing.T) {
	ctx := context.Background()
	h, fake := setup(t, DefaultConfig())

	v, err := h.GetStorageAt(ctx, 1, target, testutils.SlotOf(testutils.ScoreboardLatestSlot))
	require.NoError(t, err)
	require.Equal(t, testutils.SlotOf(testutils.ScoreboardLatest), v)

	v, err = h.GetStorageAt(ctx, 1, target, testutils.SlotOf(testutils.ScoreboardLatestSlot))
	require.NoError(t, err)
	require.Equal(t, testutils.SlotOf(testutils.ScoreboardLatest), v)
	require.Equal(t, int64(1), fake.Calls("eth_getStorageAt"), "reads at a fixed block are cached")

	v, err = h.GetStorageAt(ctx, 0, target, testutils.SlotOf(testutils.ScoreboardLatestSlot))
	require.NoError(t, err)
	require.Equal(t, common.Hash{}, v, "other blocks are separate entries")
	require.Equal(t, int64(2), fake.Calls("eth_getStorageAt"))

	_, err = h.GetStorageAt(ctx, 7, target, common.Hash{})
	require.ErrorContains(t, err, "block 7")
}

func TestGetProofs(t *testing.T) {
	ctx := context.Background()
	slots := []common.Hash{
		testutils.SlotOf(testutils.ScoreboardLatestSlot),
		testutils.SlotOf(testutils.ScoreboardZeroSlot),
		testutils.SlotOf(testutils.ScoreboardLatestSlot),
	}

	t.Run("verified", func(t *testing.T) {
		h, fake := setup(t, DefaultConfig())
		root := testutils.NewWorldState().SetStorageMap(target, testutils.ScoreboardStorage()).Root()
		res, err := h.GetProofs(ctx, 1, root, target, slots)
		require.NoError(t, err)
		require.Len(t, res.StorageProof, 3)
		require.Equal(t, int64(1), fake.Calls("eth_getProof"))
	})

	t.Run("wrong root", func(t *testing.T) {
		h, _ := setup(t, DefaultConfig())
		_, err := h.GetProofs(ctx, 1, common.HexToHash("0x1234"), target, slots)
		require.ErrorContains(t, err, "invalid proof at block 1")
	})

	t.Run("unverified", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.VerifyProofs = false
		h, _ := setup(t, cfg)
		_, err := h.GetProofs(ctx, 1, common.HexToHash("0x1234"), target, slots)
		require.NoError(t, err)
	})
}

type shortProofClient struct{}

func (shortProofClient) GetStorageAt(ctx context.Context, address common.Address, storageSlot common.Hash, blockTag string) (common.Hash, error) {
	return common.Hash{}, nil
}

func (shortProofClient) GetProof(ctx context.Context, address common.Address, storage []common.Hash, blockTag string) (*eth.AccountResult, error) {
	return &eth.AccountResult{Address: address}, nil
}

func TestGetProofsIncomplete(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VerifyProofs = false
	h := NewHelper(testlog.Logger(t, log.LevelDebug), shortProofClient{}, nil, cfg)
	_, err := h.GetProofs(context.Background(), 1, common.Hash{}, target, []common.Hash{testutils.SlotOf(0)})
	require.ErrorIs(t, err, ErrIncompleteProof)
}

func TestNewWitness(t *testing.T) {
	ctx := context.Background()
	h, _ := setup(t, DefaultConfig())
	state := testutils.NewWorldState().SetStorageMap(target, testutils.ScoreboardStorage())
	slots := []common.Hash{testutils.SlotOf(testutils.ScoreboardLatestSlot), testutils.SlotOf(testutils.ScoreboardNameSlot)}
	res, err := h.GetProofs(ctx, 1, state.Root(), target, slots)
	require.NoError(t, err)

	w, err := NewWitness(res)
	require.NoError(t, err)
	require.Len(t, w.StorageProofs, 2)

	decode := func(enc []byte) [][]byte {
		out, err := abi.Arguments{{Type: bytesListType}}.Unpack(enc)
		require.NoError(t, err)
		return out[0].([][]byte)
	}
	raw := NewRawWitness(res)
	require.Equal(t, raw.StateTrieWitness, decode(w.StateTrieWitness))
	for i := range slots {
		require.Equal(t, raw.StorageProofs[i], decode(w.StorageProofs[i]))
	}

	bundle, err := EncodeBundle(MustType("uint256"), common.Big1, WitnessType, w)
	require.NoError(t, err)
	// head: the commitment word and the offset of the dynamic witness tuple
	require.Equal(t, common.BigToHash(common.Big1).Bytes(), bundle[:32])
	require.Equal(t, common.BigToHash(big.NewInt(64)).Bytes(), bundle[32:64])
}
