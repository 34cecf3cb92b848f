package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/evmproof"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/scroll"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
	oplog "github.com/mantlenetworkio/evm-gateway/op-service/log"
	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
	oprpc "github.com/mantlenetworkio/evm-gateway/op-service/rpc"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

// Chain names the kind of chain whose storage is proven.
type Chain string

const (
	ChainL1       Chain = "l1"
	ChainOPStack  Chain = "opstack"
	ChainArbitrum Chain = "arbitrum"
	ChainScroll   Chain = "scroll"
)

var Chains = []Chain{ChainL1, ChainOPStack, ChainArbitrum, ChainScroll}

func (c Chain) String() string {
	return string(c)
}

func (c Chain) Valid() bool {
	for _, v := range Chains {
		if c == v {
			return true
		}
	}
	return false
}

// NeedsL1 reports whether the chain commits to its state through L1 contracts.
func (c Chain) NeedsL1() bool {
	return c == ChainL1 || c == ChainOPStack || c == ChainArbitrum
}

// NeedsL2 reports whether the storage lives on a chain other than L1.
func (c Chain) NeedsL2() bool {
	return c != ChainL1
}

var (
	ErrUnknownChain       = errors.New("unknown chain")
	ErrMissingL1RPC       = errors.New("missing L1 RPC endpoint")
	ErrMissingL2RPC       = errors.New("missing L2 RPC endpoint")
	ErrMissingRollup      = errors.New("missing rollup contract address")
	ErrMissingSearchURL   = errors.New("missing scroll search API URL")
	ErrInvalidCacheSize   = errors.New("storage cache size must be positive")
	ErrInvalidRateLimit   = errors.New("rate limit must not be negative")
	ErrInvalidBurst       = errors.New("rate limit burst must be positive")
	ErrInvalidBlockTTL    = errors.New("provable block TTL must not be negative")
	ErrInvalidHTTPTimeout = errors.New("HTTP timeout must be positive")
)

type Config struct {
	Version string `yaml:"-"`

	LogConfig     oplog.CLIConfig     `yaml:"log"`
	MetricsConfig opmetrics.CLIConfig `yaml:"metrics"`
	RPC           oprpc.CLIConfig     `yaml:"rpc"`

	Chain Chain `yaml:"chain"`

	L1RPC string `yaml:"l1_eth_rpc"`
	L2RPC string `yaml:"l2_eth_rpc"`

	// RollupAddress is the L2OutputOracle of an OP-stack chain, or the rollup contract of an Arbitrum chain.
	RollupAddress common.Address `yaml:"rollup_address"`

	ScrollSearchURL string        `yaml:"scroll_search_url"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`

	ProvableBlockTTL time.Duration `yaml:"provable_block_ttl"`
	StorageCacheTTL  time.Duration `yaml:"storage_cache_ttl"`
	StorageCacheSize int           `yaml:"storage_cache_size"`
	ErrorCacheTTL    time.Duration `yaml:"error_cache_ttl"`
	VerifyProofs     bool          `yaml:"verify_proofs"`
	MaxDynamicLength uint64        `yaml:"max_dynamic_length"`

	// RateLimit is the number of proof requests per second served, 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

func (c *Config) Check() error {
	var result error
	result = errors.Join(result, c.MetricsConfig.Check())
	result = errors.Join(result, c.RPC.Check())
	if !c.Chain.Valid() {
		result = errors.Join(result, fmt.Errorf("%w: %q", ErrUnknownChain, c.Chain))
	}
	if c.Chain.NeedsL1() && c.L1RPC == "" {
		result = errors.Join(result, ErrMissingL1RPC)
	}
	if c.Chain.NeedsL2() && c.L2RPC == "" {
		result = errors.Join(result, ErrMissingL2RPC)
	}
	if (c.Chain == ChainOPStack || c.Chain == ChainArbitrum) && c.RollupAddress == (common.Address{}) {
		result = errors.Join(result, ErrMissingRollup)
	}
	if c.Chain == ChainScroll && c.ScrollSearchURL == "" {
		result = errors.Join(result, ErrMissingSearchURL)
	}
	if c.HTTPTimeout <= 0 {
		result = errors.Join(result, ErrInvalidHTTPTimeout)
	}
	if c.ProvableBlockTTL < 0 {
		result = errors.Join(result, ErrInvalidBlockTTL)
	}
	if c.StorageCacheSize <= 0 {
		result = errors.Join(result, ErrInvalidCacheSize)
	}
	if c.RateLimit < 0 {
		result = errors.Join(result, ErrInvalidRateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		result = errors.Join(result, ErrInvalidBurst)
	}
	return result
}

// ProofConfig returns the proof helper settings. Scroll state is a zktrie, which the MPT verifier cannot check.
func (c *Config) ProofConfig() evmproof.Config {
	return evmproof.Config{
		StorageCacheTTL:  c.StorageCacheTTL,
		StorageCacheSize: c.StorageCacheSize,
		ErrorCacheTTL:    c.ErrorCacheTTL,
		VerifyProofs:     c.VerifyProofs && c.Chain != ChainScroll,
	}
}

func (c *Config) ProgramConfig() program.Config {
	return program.Config{MaxDynamicLength: c.MaxDynamicLength}
}

func DefaultCLIConfig() *Config {
	proof := evmproof.DefaultConfig()
	return &Config{
		Version:          "dev",
		LogConfig:        oplog.DefaultCLIConfig(),
		MetricsConfig:    opmetrics.DefaultCLIConfig(),
		RPC:              oprpc.DefaultCLIConfig(),
		Chain:            ChainL1,
		ScrollSearchURL:  scroll.DefaultSearchURL,
		HTTPTimeout:      10 * time.Second,
		ProvableBlockTTL: 5 * time.Minute,
		StorageCacheTTL:  proof.StorageCacheTTL,
		StorageCacheSize: proof.StorageCacheSize,
		ErrorCacheTTL:    caching.DefaultErrorTTL,
		VerifyProofs:     proof.VerifyProofs,
		MaxDynamicLength: program.DefaultMaxDynamicLength,
		RateBurst:        10,
	}
}
