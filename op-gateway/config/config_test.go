package config

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultCLIConfig()
	cfg.Chain = ChainOPStack
	cfg.L1RPC = "http://localhost:8545"
	cfg.L2RPC = "http://localhost:9545"
	cfg.RollupAddress = common.Address{0xaa}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultCLIConfig()
	cfg.L1RPC = "http://localhost:8545"
	require.NoError(t, cfg.Check())
	require.True(t, cfg.ProofConfig().VerifyProofs)
}

func TestCheck(t *testing.T) {
	require.NoError(t, validConfig().Check())

	tests := []struct {
		name   string
		modify func(cfg *Config)
		err    error
	}{
		{"unknown chain", func(cfg *Config) { cfg.Chain = "solana" }, ErrUnknownChain},
		{"missing l1", func(cfg *Config) { cfg.L1RPC = "" }, ErrMissingL1RPC},
		{"missing l2", func(cfg *Config) { cfg.L2RPC = "" }, ErrMissingL2RPC},
		{"missing rollup", func(cfg *Config) { cfg.RollupAddress = common.Address{} }, ErrMissingRollup},
		{"missing search url", func(cfg *Config) {
			cfg.Chain = ChainScroll
			cfg.ScrollSearchURL = ""
		}, ErrMissingSearchURL},
		{"zero cache", func(cfg *Config) { cfg.StorageCacheSize = 0 }, ErrInvalidCacheSize},
		{"negative rate", func(cfg *Config) { cfg.RateLimit = -1 }, ErrInvalidRateLimit},
		{"zero burst", func(cfg *Config) {
			cfg.RateLimit = 5
			cfg.RateBurst = 0
		}, ErrInvalidBurst},
		{"negative block ttl", func(cfg *Config) { cfg.ProvableBlockTTL = -1 }, ErrInvalidBlockTTL},
		{"zero http timeout", func(cfg *Config) { cfg.HTTPTimeout = 0 }, ErrInvalidHTTPTimeout},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := validConfig()
			test.modify(cfg)
			require.ErrorIs(t, cfg.Check(), test.err)
		})
	}
}

func TestScrollSkipsVerification(t *testing.T) {
	cfg := validConfig()
	cfg.Chain = ChainScroll
	require.NoError(t, cfg.Check())
	require.False(t, cfg.ProofConfig().VerifyProofs)
	require.False(t, cfg.Chain.NeedsL1())
}
