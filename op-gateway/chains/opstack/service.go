// Package opstack proves storage of an OP-stack L2 contract against an output root
// posted to the L2OutputOracle on L1.
package opstack

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/evmproof"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
	"github.com/mantlenetworkio/evm-gateway/op-service/eth"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

var ErrOutputRootMismatch = errors.New("output root does not match L2 state")

// L2ToL1MessagePasserAddr is the predeploy whose storage root is part of every output.
var L2ToL1MessagePasserAddr = common.HexToAddress("0x4200000000000000000000000000000000000016")

const l2OutputOracleABI = `[
	{"type":"function","name":"latestOutputIndex","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getL2Output","stateMutability":"view","inputs":[{"name":"_l2OutputIndex","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"outputRoot","type":"bytes32"},
		{"name":"timestamp","type":"uint128"},
		{"name":"l2BlockNumber","type":"uint128"}]}]}
]`

var oracleABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(l2OutputOracleABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// CommitmentType is (uint256 l2OutputIndex, (bytes32 version, bytes32 stateRoot, bytes32 messagePasserStorageRoot, bytes32 latestBlockhash) outputRootProof).
var CommitmentType = evmproof.MustType("tuple",
	abi.ArgumentMarshaling{Name: "l2OutputIndex", Type: "uint256"},
	abi.ArgumentMarshaling{Name: "outputRootProof", Type: "tuple", Components: []abi.ArgumentMarshaling{
		{Name: "version", Type: "bytes32"},
		{Name: "stateRoot", Type: "bytes32"},
		{Name: "messagePasserStorageRoot", Type: "bytes32"},
		{Name: "latestBlockhash", Type: "bytes32"},
	}},
)

type OutputRootProof struct {
	Version                  [32]byte
	StateRoot                [32]byte
	MessagePasserStorageRoot [32]byte
	LatestBlockhash          [32]byte
}

type Commitment struct {
	L2OutputIndex   *big.Int
	OutputRootProof OutputRootProof
}

// OutputProposal is an entry of the L2OutputOracle.
type OutputProposal struct {
	OutputRoot    [32]byte
	Timestamp     *big.Int
	L2BlockNumber *big.Int
}

// L1Client reads the L2OutputOracle.
type L1Client interface {
	Call(ctx context.Context, to common.Address, data []byte, blockTag string) ([]byte, error)
}

type L2Client interface {
	evmproof.Client
	HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error)
}

// Block is the L2 block of the latest output, with the output preimage.
type Block struct {
	OutputIndex *big.Int
	Number      uint64
	Output      eth.OutputV0
}

type ProofService struct {
	log    log.Logger
	l1     L1Client
	l2     L2Client
	oracle common.Address
	helper *evmproof.Helper
	latest *caching.CachedValue[Block]
}

var _ prover.ProofService[Block] = (*ProofService)(nil)

func NewProofService(log log.Logger, l1 L1Client, l2 L2Client, oracle common.Address, helper *evmproof.Helper, m caching.Metrics, blockTTL time.Duration, opts ...caching.Option) *ProofService {
	s := &ProofService{
		log:    log,
		l1:     l1,
		l2:     l2,
		oracle: oracle,
		helper: helper,
	}
	opts = append([]caching.Option{caching.WithMetrics(m, "provable_block")}, opts...)
	s.latest = caching.NewCachedValue(s.fetchProvableBlock, blockTTL, opts...)
	return s
}

func (s *ProofService) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := oracleABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	ret, err := s.l1.Call(ctx, s.oracle, data, "latest")
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, s.oracle, err)
	}
	out, err := oracleABI.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return out, nil
}

// LatestOutput returns the index and contents of the newest output in the oracle.
func (s *ProofService) LatestOutput(ctx context.Context) (*big.Int, *OutputProposal, error) {
	out, err := s.call(ctx, "latestOutputIndex")
	if err != nil {
		return nil, nil, err
	}
	index := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	out, err = s.call(ctx, "getL2Output", index)
	if err != nil {
		return nil, nil, err
	}
	proposal := abi.ConvertType(out[0], new(OutputProposal)).(*OutputProposal)
	return index, proposal, nil
}

func (s *ProofService) fetchProvableBlock(ctx context.Context) (Block, error) {
	index, proposal, err := s.LatestOutput(ctx)
	if err != nil {
		return Block{}, err
	}
	if !proposal.L2BlockNumber.IsUint64() {
		return Block{}, fmt.Errorf("output %d has invalid L2 block number %s", index, proposal.L2BlockNumber)
	}
	number := proposal.L2BlockNumber.Uint64()
	header, err := s.l2.HeaderByNumber(ctx, number)
	if err != nil {
		return Block{}, fmt.Errorf("failed to get L2 header %d: %w", number, err)
	}
	passer, err := s.helper.GetProofs(ctx, number, header.Root, L2ToL1MessagePasserAddr, []common.Hash{})
	if err != nil {
		return Block{}, fmt.Errorf("failed to get message passer storage root: %w", err)
	}
	output := eth.OutputV0{
		StateRoot:                eth.Bytes32(header.Root),
		MessagePasserStorageRoot: eth.Bytes32(passer.StorageHash),
		BlockHash:                header.Hash(),
	}
	if root := eth.OutputRoot(&output); root != eth.Bytes32(proposal.OutputRoot) {
		return Block{}, fmt.Errorf("%w: output %d commits to %s, L2 block %d gives %s", ErrOutputRootMismatch, index, common.Hash(proposal.OutputRoot), number, root)
	}
	s.log.Debug("New provable block", "output", index, "number", number, "hash", output.BlockHash)
	return Block{OutputIndex: index, Number: number, Output: output}, nil
}

func (s *ProofService) GetProvableBlock(ctx context.Context) (Block, error) {
	return s.latest.Get(ctx)
}

func (s *ProofService) GetStorageAt(ctx context.Context, block Block, address common.Address, slot common.Hash) (common.Hash, error) {
	return s.helper.GetStorageAt(ctx, block.Number, address, slot)
}

func (s *ProofService) GetProofs(ctx context.Context, block Block, address common.Address, slots []common.Hash) ([]byte, error) {
	res, err := s.helper.GetProofs(ctx, block.Number, common.Hash(block.Output.StateRoot), address, slots)
	if err != nil {
		return nil, err
	}
	witness, err := evmproof.NewWitness(res)
	if err != nil {
		return nil, err
	}
	commitment := Commitment{
		L2OutputIndex: block.OutputIndex,
		OutputRootProof: OutputRootProof{
			Version:                  block.Output.Version(),
			StateRoot:                block.Output.StateRoot,
			MessagePasserStorageRoot: block.Output.MessagePasserStorageRoot,
			LatestBlockhash:          block.Output.BlockHash,
		},
	}
	return evmproof.EncodeBundle(CommitmentType, commitment, evmproof.WitnessType, witness)
}
