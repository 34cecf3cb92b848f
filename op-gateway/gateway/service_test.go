package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/evmproof"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/l1"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/config"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
	oplog "github.com/mantlenetworkio/evm-gateway/op-service/log"
	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
	oprpc "github.com/mantlenetworkio/evm-gateway/op-service/rpc"
	"github.com/mantlenetworkio/evm-gateway/op-service/testlog"
	"github.com/mantlenetworkio/evm-gateway/op-service/testutils"
)

// TestService is a quick smoke-test to check the service is up and running,
// serving proofs of an L1 contract over both transports.
func TestService(t *testing.T) {
	ctx := context.Background()
	logger := testlog.LoggerWithHandlerMod(t, log.LevelTrace, func(h slog.Handler) slog.Handler {
		return oplog.NewDynamicLogLevelHandler(log.LevelInfo, h)
	})

	fake := testutils.NewFakeEth()
	fake.AddBlock(testutils.NewWorldState())
	provable := fake.AddBlock(testutils.NewWorldState().SetStorageMap(target, testutils.ScoreboardStorage()))
	fake.AddBlock(testutils.NewWorldState())

	cfg := config.DefaultCLIConfig()
	cfg.Version = "v0.0.1"
	cfg.Chain = config.ChainL1
	cfg.L1RPC = fake.Listen(t)
	cfg.MetricsConfig = opmetrics.CLIConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1",
		ListenPort: 0,
	}
	cfg.RPC = oprpc.CLIConfig{
		ListenAddr:  "127.0.0.1",
		ListenPort:  0,
		EnableAdmin: true,
	}
	require.NoError(t, cfg.Check())

	srv, err := FromConfig(ctx, cfg, logger)
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	require.NotEmpty(t, srv.HTTPEndpoint())
	require.Contains(t, srv.CCIPEndpoint(), "/ccip/{sender}/{data}.json")
	require.False(t, srv.Stopped())

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.HTTPEndpoint() + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		var health oprpc.HealthzResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		require.Equal(t, "v0.0.1", health.Version)
	})

	t.Run("ccip", func(t *testing.T) {
		data, err := EncodeCalldata(&Request{
			Address:   target,
			Commands:  []program.Command{program.MustCommand(true, program.AddConst(0), program.FollowConst(1))},
			Constants: [][]byte{testutils.SlotOf(testutils.ScoreboardNicknamesSlot).Bytes(), []byte("Money Skeleton")},
		})
		require.NoError(t, err)
		resp, err := http.Get(fmt.Sprintf("%s/ccip/%s/%s.json", srv.HTTPEndpoint(), sender, hexutil.Encode(data)))
		require.NoError(t, err)
		status, out, msg := readCCIP(t, resp)
		require.Equal(t, http.StatusOK, status, msg)

		bundle, err := DecodeResponse(out)
		require.NoError(t, err)
		args, err := abi.Arguments{{Type: l1.CommitmentType}, {Type: evmproof.WitnessType}}.Unpack(bundle)
		require.NoError(t, err)
		commitment := abi.ConvertType(args[0], new(l1.Commitment)).(*l1.Commitment)
		require.Equal(t, provable.Number.Uint64(), commitment.BlockNumber.Uint64())
		witness := abi.ConvertType(args[1], new(evmproof.Witness)).(*evmproof.Witness)
		require.Len(t, witness.StorageProofs, 1)
	})

	t.Run("rpc", func(t *testing.T) {
		cl, err := rpc.Dial(srv.HTTPEndpoint())
		require.NoError(t, err)
		defer cl.Close()

		var chain string
		require.NoError(t, cl.CallContext(ctx, &chain, "gateway_chain"))
		require.Equal(t, "l1", chain)

		_, err = getStorageSlots(ctx, cl, &Request{
			Address:  target,
			Commands: []program.Command{program.MustCommand(false, program.FollowRef(0))},
		})
		var rpcErr rpc.Error
		require.ErrorAs(t, err, &rpcErr)
		require.Equal(t, invalidParamsCode, rpcErr.ErrorCode())

		require.NoError(t, cl.CallContext(ctx, nil, "admin_setLogLevel", "debug"))
		require.True(t, logger.Enabled(ctx, log.LevelDebug))
	})

	require.NoError(t, srv.Stop(ctx))
	require.True(t, srv.Stopped())
	require.NoError(t, srv.Stop(ctx), "stopping twice is a no-op")
}

func TestServiceDialFailure(t *testing.T) {
	cfg := config.DefaultCLIConfig()
	cfg.L1RPC = "http://127.0.0.1:1"
	cfg.RPC.ListenAddr = "127.0.0.1"
	cfg.RPC.ListenPort = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FromConfig(ctx, cfg, testlog.Logger(t, log.LevelCrit))
	require.ErrorContains(t, err, "failed to dial chain RPCs")
}
