// Package l1 proves storage of an L1 contract against a recent L1 block header.
package l1

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/evmproof"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

var ErrNoProvableBlock = errors.New("no provable block yet")

// CommitmentType is (uint256 blockNumber, bytes blockHeader).
var CommitmentType = evmproof.MustType("tuple",
	abi.ArgumentMarshaling{Name: "blockNumber", Type: "uint256"},
	abi.ArgumentMarshaling{Name: "blockHeader", Type: "bytes"},
)

type Commitment struct {
	BlockNumber *big.Int
	BlockHeader []byte
}

type Client interface {
	evmproof.Client
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error)
}

// Block is the parent of the latest block: the most recent block whose hash
// the verifier can still look up on chain.
type Block struct {
	Number uint64
	Header *types.Header
}

type ProofService struct {
	log    log.Logger
	client Client
	helper *evmproof.Helper
	latest *caching.CachedValue[Block]
}

var _ prover.ProofService[Block] = (*ProofService)(nil)

func NewProofService(log log.Logger, client Client, helper *evmproof.Helper, m caching.Metrics, blockTTL time.Duration, opts ...caching.Option) *ProofService {
	s := &ProofService{
		log:    log,
		client: client,
		helper: helper,
	}
	opts = append([]caching.Option{caching.WithMetrics(m, "provable_block")}, opts...)
	s.latest = caching.NewCachedValue(s.fetchProvableBlock, blockTTL, opts...)
	return s
}

func (s *ProofService) fetchProvableBlock(ctx context.Context) (Block, error) {
	latest, err := s.client.BlockNumber(ctx)
	if err != nil {
		return Block{}, fmt.Errorf("failed to get latest block number: %w", err)
	}
	if latest == 0 {
		return Block{}, ErrNoProvableBlock
	}
	header, err := s.client.HeaderByNumber(ctx, latest-1)
	if err != nil {
		return Block{}, fmt.Errorf("failed to get header %d: %w", latest-1, err)
	}
	s.log.Debug("New provable block", "number", latest-1, "hash", header.Hash())
	return Block{Number: latest - 1, Header: header}, nil
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
	header, err := rlp.EncodeToBytes(block.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to encode header %d: %w", block.Number, err)
	}
	commitment := Commitment{
		BlockNumber: new(big.Int).SetUint64(block.Number),
		BlockHeader: header,
	}
	return evmproof.EncodeBundle(CommitmentType, commitment, evmproof.WitnessType, witness)
}
