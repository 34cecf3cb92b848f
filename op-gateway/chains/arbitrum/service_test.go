package arbitrum

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/evmproof"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
	"github.com/mantlenetworkio/evm-gateway/op-service/client"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources"
	"github.com/mantlenetworkio/evm-gateway/op-service/testlog"
	"github.com/mantlenetworkio/evm-gateway/op-service/testutils"
)

var (
	target   = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	rollup   = common.HexToAddress("0x45e5caea8768f42b385a366d3551ad1e0cbfab17")
	sendRoot = common.HexToHash("0x5e4d")
)

type mockL1 struct {
	mock.Mock
}

func (m *mockL1) Call(ctx context.Context, to common.Address, data []byte, blockTag string) ([]byte, error) {
	args := m.Called(to, data, blockTag)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockL1) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(q)
	return args.Get(0).([]types.Log), args.Error(1)
}

func (m *mockL1) expectLatestNode(t *testing.T, node uint64) *mock.Call {
	call, err := rollupABI.Pack("latestNodeCreated")
	require.NoError(t, err)
	ret, err := rollupABI.Methods["latestNodeCreated"].Outputs.Pack(node)
	require.NoError(t, err)
	return m.On("Call", rollup, call, "latest").Return(ret, nil)
}

func (m *mockL1) expectNode(t *testing.T, node uint64, blockHash common.Hash) *mock.Call {
	event := rollupABI.Events["NodeCreated"]
	var after GlobalState
	after.Bytes32Vals = [2][32]byte{blockHash, sendRoot}
	assertion := Assertion{AfterState: ExecutionState{GlobalState: after, MachineStatus: 1}, NumBlocks: 3}
	data, err := event.Inputs.NonIndexed().Pack([32]byte{0xee}, assertion, [32]byte{0xaa}, [32]byte{0xbb}, big.NewInt(5))
	require.NoError(t, err)
	nodeTopic := common.BigToHash(new(big.Int).SetUint64(node))
	q := ethereum.FilterQuery{
		FromBlock: common.Big0,
		Addresses: []common.Address{rollup},
		Topics:    [][]common.Hash{{event.ID}, {nodeTopic}},
	}
	logs := []types.Log{{Address: rollup, Topics: []common.Hash{event.ID, nodeTopic, {}, {}}, Data: data}}
	return m.On("FilterLogs", q).Return(logs, nil)
}

func setup(t *testing.T) (*ProofService, *mockL1, *testutils.FakeEth, *types.Header) {
	lgr := testlog.Logger(t, log.LevelDebug)
	fake := testutils.NewFakeEth()
	fake.AddBlock(testutils.NewWorldState())
	header := fake.AddBlock(testutils.NewWorldState().SetStorageMap(target, testutils.ScoreboardStorage()))
	l2, err := sources.NewEthClient(client.NewBaseRPCClient(fake.Dial(t)), lgr, nil, sources.DefaultEthClientConfig(10))
	require.NoError(t, err)
	l1 := new(mockL1)
	t.Cleanup(func() { l1.AssertExpectations(t) })
	helper := evmproof.NewHelper(lgr, l2, nil, evmproof.DefaultConfig())
	// a zero TTL makes every request look up the latest node
	s, err := NewProofService(lgr, l1, l2, rollup, helper, nil, 0)
	require.NoError(t, err)
	return s, l1, fake, header
}

func TestGetProvableBlock(t *testing.T) {
	ctx := context.Background()
	s, l1, fake, header := setup(t)
	l1.expectLatestNode(t, 7).Twice()
	l1.expectNode(t, 7, header.Hash()).Once()

	block, err := s.GetProvableBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(7), block.NodeIndex)
	require.Equal(t, uint64(1), block.Number)
	require.Equal(t, sendRoot, block.SendRoot)
	require.Equal(t, header.Hash(), block.Header.Hash())

	// same node: the block comes from the node cache
	_, err = s.GetProvableBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), fake.Calls("eth_getBlockByHash"))
}

func TestGetProvableBlockNewNode(t *testing.T) {
	ctx := context.Background()
	s, l1, _, header := setup(t)
	l1.expectLatestNode(t, 7).Once()
	l1.expectNode(t, 7, header.Hash()).Once()
	_, err := s.GetProvableBlock(ctx)
	require.NoError(t, err)

	l1.expectLatestNode(t, 8).Once()
	l1.expectNode(t, 8, header.Hash()).Once()
	block, err := s.GetProvableBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(8), block.NodeIndex)
	require.Equal(t, []uint64{8}, s.nodes.Keys())
}

func TestGetProvableBlockUnknownHash(t *testing.T) {
	s, l1, _, _ := setup(t)
	l1.expectLatestNode(t, 7).Once()
	l1.expectNode(t, 7, common.HexToHash("0xdead")).Once()
	_, err := s.GetProvableBlock(context.Background())
	require.Error(t, err)
}

func TestGetProofs(t *testing.T) {
	ctx := context.Background()
	s, l1, _, header := setup(t)
	l1.expectLatestNode(t, 7).Once()
	l1.expectNode(t, 7, header.Hash()).Once()

	gw := prover.NewGateway[Block](testlog.Logger(t, log.LevelDebug), nil, s, program.Config{})
	cmds := []program.Command{program.MustCommand(true, program.AddConst(0))}
	consts := [][]byte{testutils.SlotOf(testutils.ScoreboardNameSlot).Bytes()}
	bundle, err := gw.CreateProofs(ctx, target, cmds, consts)
	require.NoError(t, err)

	out, err := abi.Arguments{{Type: CommitmentType}, {Type: evmproof.WitnessType}}.Unpack(bundle)
	require.NoError(t, err)
	commitment := abi.ConvertType(out[0], new(Commitment)).(*Commitment)
	require.Equal(t, [32]byte{}, commitment.Version)
	require.Equal(t, [32]byte(sendRoot), commitment.SendRoot)
	require.Equal(t, uint64(7), commitment.NodeIndex)
	var decoded types.Header
	require.NoError(t, rlp.DecodeBytes(commitment.RlpEncodedBlock, &decoded))
	require.Equal(t, header.Hash(), decoded.Hash())
}
