// Package scroll proves storage of a Scroll L2 contract against a finalized batch.
package scroll

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-resty/resty/v2"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/evmproof"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
	"github.com/mantlenetworkio/evm-gateway/op-service/eth"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

const (
	DefaultSearchURL = "https://sepolia-api-re.scroll.io/api/search"

	batchIndexCacheSize = 1000
)

var (
	ErrNoSlots       = errors.New("scroll proofs need at least one slot")
	ErrProofTooLong  = errors.New("proof has more than 255 nodes")
	ErrBatchNotFound = errors.New("batch of block not found")
)

// CommitmentType is (uint256 batchIndex, uint256 storageKey, bytes compressedProof).
var CommitmentType = evmproof.MustType("tuple",
	abi.ArgumentMarshaling{Name: "batchIndex", Type: "uint256"},
	abi.ArgumentMarshaling{Name: "storageKey", Type: "uint256"},
	abi.ArgumentMarshaling{Name: "compressedProof", Type: "bytes"},
)

type Commitment struct {
	BatchIndex      *big.Int
	StorageKey      *big.Int
	CompressedProof []byte
}

type L2Client interface {
	evmproof.Client
	HeaderByLabel(ctx context.Context, label eth.BlockLabel) (*types.Header, error)
}

type Block struct {
	Number uint64
	Header *types.Header
}

type searchResult struct {
	BatchIndex *uint64 `json:"batch_index"`
}

type ProofService struct {
	log       log.Logger
	l2        L2Client
	helper    *evmproof.Helper
	search    *resty.Client
	searchURL string

	latest *caching.CachedValue[Block]
	// batch index by block number, finalized blocks never move to another batch
	batches *caching.OrderCache[uint64]
}

var _ prover.ProofService[Block] = (*ProofService)(nil)

func NewProofService(log log.Logger, l2 L2Client, helper *evmproof.Helper, searchURL string, httpTimeout time.Duration, m caching.Metrics, blockTTL time.Duration, opts ...caching.Option) *ProofService {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	s := &ProofService{
		log:       log,
		l2:        l2,
		helper:    helper,
		search:    resty.New().SetTimeout(httpTimeout).SetHeader("Accept", "application/json"),
		searchURL: searchURL,
		batches:   caching.NewOrderCache[uint64](m, "batch_index", batchIndexCacheSize),
	}
	s.latest = caching.NewCachedValue(s.fetchProvableBlock, blockTTL, append([]caching.Option{caching.WithMetrics(m, "provable_block")}, opts...)...)
	return s
}

func (s *ProofService) fetchProvableBlock(ctx context.Context) (Block, error) {
	header, err := s.l2.HeaderByLabel(ctx, eth.Finalized)
	if err != nil {
		return Block{}, fmt.Errorf("failed to get finalized L2 header: %w", err)
	}
	s.log.Debug("New provable block", "number", header.Number, "hash", header.Hash())
	return Block{Number: header.Number.Uint64(), Header: header}, nil
}

func (s *ProofService) GetProvableBlock(ctx context.Context) (Block, error) {
	return s.latest.Get(ctx)
}

func (s *ProofService) GetStorageAt(ctx context.Context, block Block, address common.Address, slot common.Hash) (common.Hash, error) {
	return s.helper.GetStorageAt(ctx, block.Number, address, slot)
}

// BatchIndex looks up the batch that committed block number.
func (s *ProofService) BatchIndex(ctx context.Context, number uint64) (uint64, error) {
	if index, ok := s.batches.Get(number); ok {
		return index, nil
	}
	var res searchResult
	resp, err := s.search.R().
		SetContext(ctx).
		SetQueryParam("keyword", strconv.FormatUint(number, 10)).
		SetResult(&res).
		Get(s.searchURL)
	if err != nil {
		return 0, fmt.Errorf("failed to search batch of block %d: %w", number, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("failed to search batch of block %d: status %d", number, resp.StatusCode())
	}
	if res.BatchIndex == nil {
		return 0, fmt.Errorf("%w: %d", ErrBatchNotFound, number)
	}
	s.batches.Add(number, *res.BatchIndex)
	return *res.BatchIndex, nil
}

// CompressProof packs the account proof and the first storage proof as
// [count] ++ nodes ++ [count] ++ nodes.
func CompressProof(accountProof []hexutil.Bytes, storageProof []hexutil.Bytes) ([]byte, error) {
	if len(accountProof) > 255 || len(storageProof) > 255 {
		return nil, ErrProofTooLong
	}
	var out []byte
	out = append(out, byte(len(accountProof)))
	for _, n := range accountProof {
		out = append(out, n...)
	}
	out = append(out, byte(len(storageProof)))
	for _, n := range storageProof {
		out = append(out, n...)
	}
	return out, nil
}

func (s *ProofService) GetProofs(ctx context.Context, block Block, address common.Address, slots []common.Hash) ([]byte, error) {
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}
	batch, err := s.BatchIndex(ctx, block.Number)
	if err != nil {
		return nil, err
	}
	res, err := s.helper.GetProofs(ctx, block.Number, block.Header.Root, address, slots)
	if err != nil {
		return nil, err
	}
	compressed, err := CompressProof(res.AccountProof, res.StorageProof[0].Proof)
	if err != nil {
		return nil, err
	}
	commitment := Commitment{
		BatchIndex:      new(big.Int).SetUint64(batch),
		StorageKey:      slots[0].Big(),
		CompressedProof: compressed,
	}
	return evmproof.EncodeBundle(CommitmentType, commitment, evmproof.RawWitnessType, evmproof.NewRawWitness(res))
}
