// Package sources exports the clients the gateway uses to access chain data.
//
// [EthClient] wraps an RPC client with typed bindings for headers, storage,
// storage proofs, contract calls and logs. It applies a [LimitRPC] wrapper to
// bound the number of concurrent requests to the RPC provider.
package sources

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/evm-gateway/op-service/client"
	"github.com/mantlenetworkio/evm-gateway/op-service/eth"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

type EthClientConfig struct {
	// limit concurrent requests, applies to the source as a whole
	MaxConcurrentRequests int

	// Number of block headers to cache, by hash
	HeadersCacheSize int

	// If the RPC is trusted, storage reads are served by eth_getStorageAt
	// instead of being verified with eth_getProof.
	TrustRPC bool
}

// DefaultEthClientConfig creates a new eth client config,
// caching cacheSize headers.
func DefaultEthClientConfig(cacheSize int) *EthClientConfig {
	return &EthClientConfig{
		MaxConcurrentRequests: 10,
		HeadersCacheSize:      cacheSize,
		TrustRPC:              true,
	}
}

func (c *EthClientConfig) Check() error {
	if c.HeadersCacheSize < 1 {
		return fmt.Errorf("invalid headers cache size: %d", c.HeadersCacheSize)
	}
	if c.MaxConcurrentRequests < 1 {
		return fmt.Errorf("expected at least 1 concurrent request, but max is %d", c.MaxConcurrentRequests)
	}
	return nil
}

// EthClient retrieves ethereum data with a bounded number of concurrent requests and cached headers.
type EthClient struct {
	client client.RPC

	trustRPC bool

	log log.Logger

	// cache block headers of blocks by hash
	headersCache *caching.LRU[common.Hash, *types.Header]
}

// NewEthClient returns an [EthClient], wrapping an RPC with bindings to fetch ethereum data with
// metric tracking and caching.
func NewEthClient(client client.RPC, log log.Logger, metrics caching.Metrics, config *EthClientConfig) (*EthClient, error) {
	if err := config.Check(); err != nil {
		return nil, fmt.Errorf("bad config, cannot create eth source: %w", err)
	}
	headers, err := caching.NewLRU[common.Hash, *types.Header](config.HeadersCacheSize, caching.WithMetrics(metrics, "headers"))
	if err != nil {
		return nil, err
	}
	return &EthClient{
		client:       LimitRPC(client, config.MaxConcurrentRequests),
		trustRPC:     config.TrustRPC,
		log:          log,
		headersCache: headers,
	}, nil
}

// rpcBlockID is an internal type to enforce header results match the requested identifier
type rpcBlockID interface {
	// Arg translates the object into an RPC argument
	Arg() any
	// CheckID verifies a header result matches the requested block identifier
	CheckID(id eth.BlockID) error
}

// hashID implements rpcBlockID for safe block-by-hash fetching
type hashID common.Hash

func (h hashID) Arg() any { return common.Hash(h) }
func (h hashID) CheckID(id eth.BlockID) error {
	if common.Hash(h) != id.Hash {
		return fmt.Errorf("expected block hash %s but got block %s", common.Hash(h), id)
	}
	return nil
}

// numberID implements rpcBlockID for safe block-by-number fetching
type numberID uint64

func (n numberID) Arg() any { return hexutil.EncodeUint64(uint64(n)) }
func (n numberID) CheckID(id eth.BlockID) error {
	if uint64(n) != id.Number {
		return fmt.Errorf("expected block number %d but got block %s", uint64(n), id)
	}
	return nil
}

// labelID implements rpcBlockID for named heads, which can be any block
type labelID eth.BlockLabel

func (l labelID) Arg() any                  { return string(l) }
func (l labelID) CheckID(eth.BlockID) error { return nil }

func (s *EthClient) headerCall(ctx context.Context, method string, id rpcBlockID) (*types.Header, error) {
	var header *types.Header
	err := s.client.CallContext(ctx, &header, method, id.Arg(), false) // headers are just blocks without txs
	if err != nil {
		return nil, eth.MaybeAsNotFoundErr(err)
	}
	if header == nil {
		return nil, ethereum.NotFound
	}
	// the hash is recomputed from the returned fields, so the header cannot lie about its identity
	hash := header.Hash()
	if err := id.CheckID(eth.BlockID{Hash: hash, Number: header.Number.Uint64()}); err != nil {
		return nil, fmt.Errorf("fetched block header does not match requested ID: %w", err)
	}
	s.headersCache.SetValue(hash, header)
	return header, nil
}

// ChainID fetches the chain id of the internal RPC.
func (s *EthClient) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	err := s.client.CallContext(ctx, &id, "eth_chainId")
	if err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

// BlockNumber returns the number of the latest block.
func (s *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := s.client.CallContext(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (s *EthClient) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	if f := s.headersCache.Touch(hash); f != nil {
		if h, err, ok := f.Peek(); ok && err == nil {
			return h, nil
		}
	}
	return s.headerCall(ctx, "eth_getBlockByHash", hashID(hash))
}

func (s *EthClient) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	// can't hit the cache when querying by number due to reorgs.
	return s.headerCall(ctx, "eth_getBlockByNumber", numberID(number))
}

func (s *EthClient) HeaderByLabel(ctx context.Context, label eth.BlockLabel) (*types.Header, error) {
	// can't hit the cache when querying the head due to reorgs / changes.
	return s.headerCall(ctx, "eth_getBlockByNumber", labelID(label))
}

// GetProof returns an account proof result, with any optional requested storage proofs.
// The retrieval does sanity-check that storage proofs for the expected keys are present in the response,
// but does not verify the result. Call accountResult.Verify(stateRoot) to verify the result.
func (s *EthClient) GetProof(ctx context.Context, address common.Address, storage []common.Hash, blockTag string) (*eth.AccountResult, error) {
	var getProofResponse *eth.AccountResult
	err := s.client.CallContext(ctx, &getProofResponse, "eth_getProof", address, storage, blockTag)
	if err != nil {
		return nil, err
	}
	if getProofResponse == nil {
		return nil, ethereum.NotFound
	}
	if len(getProofResponse.StorageProof) != len(storage) {
		return nil, fmt.Errorf("missing storage proof data, got %d proof entries but requested %d storage keys", len(getProofResponse.StorageProof), len(storage))
	}
	for i, key := range storage {
		got := common.BytesToHash(getProofResponse.StorageProof[i].Key)
		if !bytes.Equal(key[:], got[:]) {
			return nil, fmt.Errorf("unexpected storage proof key difference for entry %d: got %s but requested %s", i, got, key)
		}
	}
	return getProofResponse, nil
}

// GetStorageAt returns the storage value at the given address and storage slot, **without verifying the correctness of the result**.
func (s *EthClient) GetStorageAt(ctx context.Context, address common.Address, storageSlot common.Hash, blockTag string) (common.Hash, error) {
	var out hexutil.Bytes
	err := s.client.CallContext(ctx, &out, "eth_getStorageAt", address, storageSlot, blockTag)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(out), nil
}

// ReadStorageAt is a convenience method to read a single storage value at the given slot in the given account.
// The storage slot value is verified against the state-root of the given block if we do not trust the RPC provider,
// or directly retrieved without proof if we do trust the RPC.
func (s *EthClient) ReadStorageAt(ctx context.Context, address common.Address, storageSlot common.Hash, blockHash common.Hash) (common.Hash, error) {
	if s.trustRPC {
		return s.GetStorageAt(ctx, address, storageSlot, blockHash.String())
	}
	block, err := s.HeaderByHash(ctx, blockHash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to retrieve state root of block %s: %w", blockHash, err)
	}

	result, err := s.GetProof(ctx, address, []common.Hash{storageSlot}, blockHash.String())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch proof of storage slot %s at block %s: %w", storageSlot, blockHash, err)
	}

	if err := result.Verify(block.Root); err != nil {
		return common.Hash{}, fmt.Errorf("failed to verify retrieved proof against state root: %w", err)
	}
	value := result.StorageProof[0].Value.ToInt()
	return common.BigToHash(value), nil
}

// Call executes a read-only message call against the state of blockTag.
func (s *EthClient) Call(ctx context.Context, to common.Address, data []byte, blockTag string) ([]byte, error) {
	arg := map[string]any{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var result hexutil.Bytes
	if err := s.client.CallContext(ctx, &result, "eth_call", arg, blockTag); err != nil {
		return nil, err
	}
	return result, nil
}

// FilterLogs returns the logs matching q.
func (s *EthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	arg := map[string]any{
		"address": q.Addresses,
		"topics":  q.Topics,
	}
	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
	} else {
		arg["fromBlock"] = toBlockNumArg(q.FromBlock)
		arg["toBlock"] = toBlockNumArg(q.ToBlock)
	}
	var logs []types.Log
	if err := s.client.CallContext(ctx, &logs, "eth_getLogs", arg); err != nil {
		return nil, err
	}
	return logs, nil
}

func toBlockNumArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}

func (s *EthClient) Close() {
	s.client.Close()
}

func (s *EthClient) RPC() client.RPC {
	return s.client
}
