package flags

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/config"
	opservice "github.com/mantlenetworkio/evm-gateway/op-service"
	oplog "github.com/mantlenetworkio/evm-gateway/op-service/log"
	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
	oprpc "github.com/mantlenetworkio/evm-gateway/op-service/rpc"
)

const EnvVarPrefix = "OP_GATEWAY"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

var defaults = config.DefaultCLIConfig()

var (
	ConfigFlag = &cli.StringFlag{
		Name:      "config",
		Usage:     "YAML configuration file path. Flags that are set explicitly override its values.",
		EnvVars:   prefixEnvVars("CONFIG"),
		TakesFile: true,
	}
	ChainFlag = &cli.StringFlag{
		Name:    "chain",
		Usage:   fmt.Sprintf("Kind of chain whose storage is proven, one of %v", config.Chains),
		EnvVars: prefixEnvVars("CHAIN"),
		Value:   defaults.Chain.String(),
	}
	L1EthRpcFlag = &cli.StringFlag{
		Name:    "l1-eth-rpc",
		Usage:   "HTTP provider URL for L1",
		EnvVars: prefixEnvVars("L1_ETH_RPC"),
	}
	L2EthRpcFlag = &cli.StringFlag{
		Name:    "l2-eth-rpc",
		Usage:   "HTTP provider URL for L2",
		EnvVars: prefixEnvVars("L2_ETH_RPC"),
	}
	RollupAddressFlag = &cli.StringFlag{
		Name:    "rollup-address",
		Usage:   "Address of the L2OutputOracle (opstack) or the rollup contract (arbitrum) on L1",
		EnvVars: prefixEnvVars("ROLLUP_ADDRESS"),
	}
	ScrollSearchURLFlag = &cli.StringFlag{
		Name:    "scroll-search-url",
		Usage:   "Scroll API endpoint that maps a block number to its batch index",
		EnvVars: prefixEnvVars("SCROLL_SEARCH_URL"),
		Value:   defaults.ScrollSearchURL,
	}
	HTTPTimeoutFlag = &cli.DurationFlag{
		Name:    "http-timeout",
		Usage:   "Timeout of requests to HTTP APIs other than the chain RPCs",
		EnvVars: prefixEnvVars("HTTP_TIMEOUT"),
		Value:   defaults.HTTPTimeout,
	}
	ProvableBlockTTLFlag = &cli.DurationFlag{
		Name:    "provable-block-ttl",
		Usage:   "How long a provable block is reused before the chain commitment is looked up again",
		EnvVars: prefixEnvVars("PROVABLE_BLOCK_TTL"),
		Value:   defaults.ProvableBlockTTL,
	}
	StorageCacheTTLFlag = &cli.DurationFlag{
		Name:    "storage-cache-ttl",
		Usage:   "How long a storage read at a given block is cached",
		EnvVars: prefixEnvVars("STORAGE_CACHE_TTL"),
		Value:   defaults.StorageCacheTTL,
	}
	StorageCacheSizeFlag = &cli.IntFlag{
		Name:    "storage-cache-size",
		Usage:   "Maximum number of cached storage reads",
		EnvVars: prefixEnvVars("STORAGE_CACHE_SIZE"),
		Value:   defaults.StorageCacheSize,
	}
	ErrorCacheTTLFlag = &cli.DurationFlag{
		Name:    "error-cache-ttl",
		Usage:   "How long a failed read is remembered before it is retried",
		EnvVars: prefixEnvVars("ERROR_CACHE_TTL"),
		Value:   defaults.ErrorCacheTTL,
	}
	VerifyProofsFlag = &cli.BoolFlag{
		Name:    "verify-proofs",
		Usage:   "Verify proofs against the state root before serving them. Ignored for scroll.",
		EnvVars: prefixEnvVars("VERIFY_PROOFS"),
		Value:   defaults.VerifyProofs,
	}
	MaxDynamicLengthFlag = &cli.Uint64Flag{
		Name:    "max-dynamic-length",
		Usage:   "Largest dynamic value, in bytes, that a command may resolve to",
		EnvVars: prefixEnvVars("MAX_DYNAMIC_LENGTH"),
		Value:   defaults.MaxDynamicLength,
	}
	RateLimitFlag = &cli.Float64Flag{
		Name:    "rate-limit",
		Usage:   "Proof requests served per second, across transports. 0 disables rate limiting.",
		EnvVars: prefixEnvVars("RATE_LIMIT"),
		Value:   defaults.RateLimit,
	}
	RateBurstFlag = &cli.IntFlag{
		Name:    "rate-burst",
		Usage:   "Proof requests that may be served at once above the rate limit",
		EnvVars: prefixEnvVars("RATE_BURST"),
		Value:   defaults.RateBurst,
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	ConfigFlag,
	ChainFlag,
	L1EthRpcFlag,
	L2EthRpcFlag,
	RollupAddressFlag,
	ScrollSearchURLFlag,
	HTTPTimeoutFlag,
	ProvableBlockTTLFlag,
	StorageCacheTTLFlag,
	StorageCacheSizeFlag,
	ErrorCacheTTLFlag,
	VerifyProofsFlag,
	MaxDynamicLengthFlag,
	RateLimitFlag,
	RateBurstFlag,
}

var (
	rpcFlags     = oprpc.CLIFlags(EnvVarPrefix)
	logFlags     = oplog.CLIFlags(EnvVarPrefix)
	metricsFlags = opmetrics.CLIFlags(EnvVarPrefix)
)

func init() {
	optionalFlags = append(optionalFlags, rpcFlags...)
	optionalFlags = append(optionalFlags, logFlags...)
	optionalFlags = append(optionalFlags, metricsFlags...)

	Flags = append(Flags, requiredFlags...)
	Flags = append(Flags, optionalFlags...)
}

// Flags contains the list of configuration options available to the binary.
var Flags []cli.Flag

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}

func anySet(ctx *cli.Context, flags []cli.Flag) bool {
	for _, f := range flags {
		if ctx.IsSet(f.Names()[0]) {
			return true
		}
	}
	return false
}

// ConfigFromCLI reads the config file, if any, and applies the flags on top of it.
// Without a config file every flag applies, with its default value if unset.
func ConfigFromCLI(ctx *cli.Context, version string) (*config.Config, error) {
	cfg := config.DefaultCLIConfig()
	fromFile := false
	if path := ctx.String(ConfigFlag.Name); path != "" {
		loaded, err := (&config.YamlLoader{Path: path}).Load(ctx.Context)
		if err != nil {
			return nil, err
		}
		cfg, fromFile = loaded, true
	}
	cfg.Version = version

	// shared flag groups replace the file section as a whole
	if !fromFile || anySet(ctx, logFlags) {
		cfg.LogConfig = oplog.ReadCLIConfig(ctx)
	}
	if !fromFile || anySet(ctx, metricsFlags) {
		cfg.MetricsConfig = opmetrics.ReadCLIConfig(ctx)
	}
	if !fromFile || anySet(ctx, rpcFlags) {
		cfg.RPC = oprpc.ReadCLIConfig(ctx)
	}

	apply := func(f cli.Flag) bool {
		return !fromFile || ctx.IsSet(f.Names()[0])
	}
	if apply(ChainFlag) {
		cfg.Chain = config.Chain(ctx.String(ChainFlag.Name))
	}
	if apply(L1EthRpcFlag) {
		cfg.L1RPC = ctx.String(L1EthRpcFlag.Name)
	}
	if apply(L2EthRpcFlag) {
		cfg.L2RPC = ctx.String(L2EthRpcFlag.Name)
	}
	if ctx.IsSet(RollupAddressFlag.Name) {
		addr := ctx.String(RollupAddressFlag.Name)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid rollup address %q", addr)
		}
		cfg.RollupAddress = common.HexToAddress(addr)
	}
	if apply(ScrollSearchURLFlag) {
		cfg.ScrollSearchURL = ctx.String(ScrollSearchURLFlag.Name)
	}
	for f, dst := range map[*cli.DurationFlag]*time.Duration{
		HTTPTimeoutFlag:      &cfg.HTTPTimeout,
		ProvableBlockTTLFlag: &cfg.ProvableBlockTTL,
		StorageCacheTTLFlag:  &cfg.StorageCacheTTL,
		ErrorCacheTTLFlag:    &cfg.ErrorCacheTTL,
	} {
		if apply(f) {
			*dst = ctx.Duration(f.Name)
		}
	}
	if apply(StorageCacheSizeFlag) {
		cfg.StorageCacheSize = ctx.Int(StorageCacheSizeFlag.Name)
	}
	if apply(VerifyProofsFlag) {
		cfg.VerifyProofs = ctx.Bool(VerifyProofsFlag.Name)
	}
	if apply(MaxDynamicLengthFlag) {
		cfg.MaxDynamicLength = ctx.Uint64(MaxDynamicLengthFlag.Name)
	}
	if apply(RateLimitFlag) {
		cfg.RateLimit = ctx.Float64(RateLimitFlag.Name)
	}
	if apply(RateBurstFlag) {
		cfg.RateBurst = ctx.Int(RateBurstFlag.Name)
	}
	return cfg, nil
}
