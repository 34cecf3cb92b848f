// Package arbitrum proves storage of an Arbitrum Nitro L2 contract against the
// latest node created in the rollup contract on L1.
package arbitrum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/evmproof"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

var (
	ErrNodeNotFound      = errors.New("node creation event not found")
	ErrBlockHashMismatch = errors.New("L2 header does not match assertion block hash")
)

// CommitmentType is (bytes32 version, bytes32 sendRoot, uint64 nodeIndex, bytes rlpEncodedBlock).
var CommitmentType = evmproof.MustType("tuple",
	abi.ArgumentMarshaling{Name: "version", Type: "bytes32"},
	abi.ArgumentMarshaling{Name: "sendRoot", Type: "bytes32"},
	abi.ArgumentMarshaling{Name: "nodeIndex", Type: "uint64"},
	abi.ArgumentMarshaling{Name: "rlpEncodedBlock", Type: "bytes"},
)

type Commitment struct {
	Version         [32]byte
	SendRoot        [32]byte
	NodeIndex       uint64
	RlpEncodedBlock []byte
}

// L1Client reads the rollup contract.
type L1Client interface {
	Call(ctx context.Context, to common.Address, data []byte, blockTag string) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type L2Client interface {
	evmproof.Client
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
}

// Block is the L2 block asserted by a rollup node.
type Block struct {
	NodeIndex uint64
	Number    uint64
	SendRoot  common.Hash
	Header    *types.Header
	// RLPHeader is the encoded header, its hash is the asserted block hash.
	RLPHeader []byte
}

type ProofService struct {
	log    log.Logger
	l1     L1Client
	l2     L2Client
	rollup common.Address
	helper *evmproof.Helper

	latest *caching.CachedValue[Block]
	// the block of the latest node; nodes are immutable so one entry suffices
	nodes *caching.LRU[uint64, Block]
}

var _ prover.ProofService[Block] = (*ProofService)(nil)

func NewProofService(log log.Logger, l1 L1Client, l2 L2Client, rollup common.Address, helper *evmproof.Helper, m caching.Metrics, blockTTL time.Duration, opts ...caching.Option) (*ProofService, error) {
	nodes, err := caching.NewLRU[uint64, Block](1, append([]caching.Option{caching.WithMetrics(m, "nodes")}, opts...)...)
	if err != nil {
		return nil, err
	}
	s := &ProofService{
		log:    log,
		l1:     l1,
		l2:     l2,
		rollup: rollup,
		helper: helper,
		nodes:  nodes,
	}
	s.latest = caching.NewCachedValue(s.fetchProvableBlock, blockTTL, append([]caching.Option{caching.WithMetrics(m, "provable_block")}, opts...)...)
	return s, nil
}

// LatestNodeCreated returns the index of the newest node in the rollup.
func (s *ProofService) LatestNodeCreated(ctx context.Context) (uint64, error) {
	data, err := rollupABI.Pack("latestNodeCreated")
	if err != nil {
		return 0, err
	}
	ret, err := s.l1.Call(ctx, s.rollup, data, "latest")
	if err != nil {
		return 0, fmt.Errorf("failed to call latestNodeCreated on %s: %w", s.rollup, err)
	}
	out, err := rollupABI.Unpack("latestNodeCreated", ret)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack latestNodeCreated result: %w", err)
	}
	return *abi.ConvertType(out[0], new(uint64)).(*uint64), nil
}

// NodeAssertion returns the assertion the rollup recorded when node was created.
func (s *ProofService) NodeAssertion(ctx context.Context, node uint64) (*Assertion, error) {
	event := rollupABI.Events["NodeCreated"]
	logs, err := s.l1.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: common.Big0,
		Addresses: []common.Address{s.rollup},
		Topics:    [][]common.Hash{{event.ID}, {common.BigToHash(new(big.Int).SetUint64(node))}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch creation of node %d: %w", node, err)
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("%w: node %d", ErrNodeNotFound, node)
	}
	out, err := event.Inputs.NonIndexed().Unpack(logs[0].Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack creation of node %d: %w", node, err)
	}
	// executionHash, assertion, afterInboxBatchAcc, wasmModuleRoot, inboxMaxCount
	return abi.ConvertType(out[1], new(Assertion)).(*Assertion), nil
}

func (s *ProofService) fetchProvableBlock(ctx context.Context) (Block, error) {
	node, err := s.LatestNodeCreated(ctx)
	if err != nil {
		return Block{}, err
	}
	return s.nodes.Cache(ctx, node, s.fetchNodeBlock)
}

func (s *ProofService) fetchNodeBlock(ctx context.Context, node uint64) (Block, error) {
	assertion, err := s.NodeAssertion(ctx, node)
	if err != nil {
		return Block{}, err
	}
	state := assertion.AfterState.GlobalState
	blockHash := common.Hash(state.BlockHash())
	header, err := s.l2.HeaderByHash(ctx, blockHash)
	if err != nil {
		return Block{}, fmt.Errorf("failed to get L2 block %s of node %d: %w", blockHash, node, err)
	}
	if header.Hash() != blockHash {
		return Block{}, fmt.Errorf("%w: node %d asserts %s, got %s", ErrBlockHashMismatch, node, blockHash, header.Hash())
	}
	enc, err := rlp.EncodeToBytes(header)
	if err != nil {
		return Block{}, fmt.Errorf("failed to encode L2 header %s: %w", blockHash, err)
	}
	s.log.Debug("New provable block", "node", node, "number", header.Number, "hash", blockHash)
	return Block{
		NodeIndex: node,
		Number:    header.Number.Uint64(),
		SendRoot:  state.SendRoot(),
		Header:    header,
		RLPHeader: enc,
	}, nil
}

func (s *ProofService) GetProvableBlock(ctx context.Context) (Block, error) {
	return s.latest.Get(ctx)
}

func (s *ProofService) GetStorageAt(ctx context.Context, block Block, address common.Address, slot common.Hash) (common.Hash, error) {
	return s.helper.GetStorageAt(ctx, block.Number, address, slot)
}

func (s *ProofService) GetProofs(ctx context.Context, block Block, address common.Address, slots []common.Hash) ([]byte, error) {
	res, err := s.helper.GetProofs(ctx, block.Number, block.Header.Root, address, slots)
	if err != nil {
		return nil, err
	}
	witness, err := evmproof.NewWitness(res)
	if err != nil {
		return nil, err
	}
	commitment := Commitment{
		SendRoot:        block.SendRoot,
		NodeIndex:       block.NodeIndex,
		RlpEncodedBlock: block.RLPHeader,
	}
	return evmproof.EncodeBundle(CommitmentType, commitment, evmproof.WitnessType, witness)
}
