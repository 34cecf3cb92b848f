package main

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/config"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/flags"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/gateway"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/metrics"
	opservice "github.com/mantlenetworkio/evm-gateway/op-service"
	"github.com/mantlenetworkio/evm-gateway/op-service/cliapp"
	"github.com/mantlenetworkio/evm-gateway/op-service/ctxinterrupt"
	oplog "github.com/mantlenetworkio/evm-gateway/op-service/log"
	"github.com/mantlenetworkio/evm-gateway/op-service/metrics/doc"
)

var (
	Version   = "v0.0.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	ctx := ctxinterrupt.WithSignalWaiterMain(context.Background())
	err := run(ctx, os.Stdout, os.Stderr, os.Args, fromConfig)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx context.Context, w io.Writer, ew io.Writer, args []string, fn gateway.MainFn) error {
	oplog.SetupDefaults()

	app := cli.NewApp()
	app.Writer = w
	app.ErrWriter = ew
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Version = opservice.FormatVersion(Version, GitCommit, GitDate, "")
	app.Name = "op-gateway"
	app.Usage = "op-gateway proves storage of contracts on L1 and rollup chains."
	app.Description = "Storage proof gateway for CCIP-read resolvers.\n" +
		" Query it over CCIP-read on /ccip/{sender}/{data}.json, or over JSON-RPC with gateway_getStorageSlots."
	app.Action = cliapp.LifecycleCmd(gateway.Main(app.Version, fn))
	app.Commands = []*cli.Command{
		{
			Name:        "doc",
			Subcommands: doc.NewSubcommands(metrics.NewMetrics("default")),
		},
	}
	return app.RunContext(ctx, args)
}

func fromConfig(ctx context.Context, cfg *config.Config, logger log.Logger) (cliapp.Lifecycle, error) {
	return gateway.FromConfig(ctx, cfg, logger)
}
