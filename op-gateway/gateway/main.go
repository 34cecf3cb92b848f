package gateway

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/config"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/flags"
	opservice "github.com/mantlenetworkio/evm-gateway/op-service"
	"github.com/mantlenetworkio/evm-gateway/op-service/cliapp"
	oplog "github.com/mantlenetworkio/evm-gateway/op-service/log"
)

type MainFn func(ctx context.Context, cfg *config.Config, logger log.Logger) (cliapp.Lifecycle, error)

// Main is the entrypoint into the gateway.
// It reads the config from the CLI, sets up logging and hands over to fn.
func Main(version string, fn MainFn) cliapp.LifecycleAction {
	return func(cliCtx *cli.Context, _ context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		if err := flags.CheckRequired(cliCtx); err != nil {
			return nil, err
		}
		cfg, err := flags.ConfigFromCLI(cliCtx, version)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid CLI flags: %w", err)
		}

		l := oplog.NewLogger(oplog.AppOut(cliCtx), cfg.LogConfig)
		oplog.SetGlobalLogHandler(l.Handler())
		opservice.ValidateEnvVars(flags.EnvVarPrefix, flags.Flags, l.Warn)

		l.Info("Initializing gateway", "version", version, "chain", cfg.Chain)
		return fn(cliCtx.Context, cfg, l)
	}
}
