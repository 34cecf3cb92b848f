// Package evmproof fetches and encodes Merkle-Patricia storage proofs for any chain
// that exposes the standard eth_getStorageAt and eth_getProof methods.
package evmproof

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/evm-gateway/op-service/eth"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

// ErrIncompleteProof is returned when a node answers eth_getProof with a storage proof count other than the slots asked for.
var ErrIncompleteProof = errors.New("storage proof count does not match requested slots")

// Client is the subset of sources.EthClient the helper needs.
type Client interface {
	GetStorageAt(ctx context.Context, address common.Address, storageSlot common.Hash, blockTag string) (common.Hash, error)
	GetProof(ctx context.Context, address common.Address, storage []common.Hash, blockTag string) (*eth.AccountResult, error)
}

type Config struct {
	// StorageCacheTTL is how long a storage read at a given block is reused.
	StorageCacheTTL time.Duration
	// StorageCacheSize bounds the number of cached storage reads.
	StorageCacheSize int
	// ErrorCacheTTL is how long a failed read is remembered before it is retried.
	ErrorCacheTTL time.Duration
	// VerifyProofs checks every proof against the state root of the provable block before it is served.
	VerifyProofs bool
}

func DefaultConfig() Config {
	return Config{
		StorageCacheTTL:  caching.DefaultCacheTTL,
		StorageCacheSize: caching.DefaultMaxCached,
		ErrorCacheTTL:    caching.DefaultErrorTTL,
		VerifyProofs:     true,
	}
}

type storageKey struct {
	block   uint64
	address common.Address
	slot    common.Hash
}

type Helper struct {
	log    log.Logger
	client Client
	verify bool

	// storage words never change for a fixed block, so reads are shared across requests
	storage *caching.CachedMap[storageKey, common.Hash]
}

func NewHelper(log log.Logger, client Client, m caching.Metrics, cfg Config, opts ...caching.Option) *Helper {
	opts = append([]caching.Option{caching.WithMetrics(m, "storage"), caching.WithErrorTTL(cfg.ErrorCacheTTL)}, opts...)
	return &Helper{
		log:     log,
		client:  client,
		verify:  cfg.VerifyProofs,
		storage: caching.NewCachedMap[storageKey, common.Hash](cfg.StorageCacheTTL, cfg.StorageCacheSize, opts...),
	}
}

// GetStorageAt returns the word at slot of address in block blockNumber. Unset slots read as zero.
func (h *Helper) GetStorageAt(ctx context.Context, blockNumber uint64, address common.Address, slot common.Hash) (common.Hash, error) {
	key := storageKey{block: blockNumber, address: address, slot: slot}
	return h.storage.Get(ctx, key, func(ctx context.Context, key storageKey) (common.Hash, error) {
		v, err := h.client.GetStorageAt(ctx, key.address, key.slot, hexutil.EncodeUint64(key.block))
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to read slot %s of %s at block %d: %w", key.slot, key.address, key.block, err)
		}
		return v, nil
	})
}

// GetProofs fetches the account proof of address and one storage proof per slot, in order.
// If verification is enabled the result is checked against stateRoot first.
func (h *Helper) GetProofs(ctx context.Context, blockNumber uint64, stateRoot common.Hash, address common.Address, slots []common.Hash) (*eth.AccountResult, error) {
	res, err := h.client.GetProof(ctx, address, slots, hexutil.EncodeUint64(blockNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to get proof of %d slots of %s at block %d: %w", len(slots), address, blockNumber, err)
	}
	if len(res.StorageProof) != len(slots) {
		return nil, fmt.Errorf("%w: got %d proofs for %d slots at block %d", ErrIncompleteProof, len(res.StorageProof), len(slots), blockNumber)
	}
	if h.verify {
		if err := res.Verify(stateRoot); err != nil {
			return nil, fmt.Errorf("invalid proof at block %d: %w", blockNumber, err)
		}
	}
	h.log.Trace("Fetched storage proofs", "address", address, "block", blockNumber, "slots", len(slots))
	return res, nil
}
