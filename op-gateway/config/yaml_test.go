package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	oplog "github.com/mantlenetworkio/evm-gateway/op-service/log"
)

func TestYamlLoader_Load(t *testing.T) {
	x := &YamlLoader{Path: filepath.Join(".", "testdata", "config.yaml")}
	result, err := x.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, result.Check())

	require.Equal(t, ChainOPStack, result.Chain)
	require.Equal(t, common.HexToAddress("0xdfe97868233d1aa22e815a266982f2cf17685a27"), result.RollupAddress)
	require.Equal(t, 30*time.Second, result.ProvableBlockTTL)
	require.Equal(t, 500, result.StorageCacheSize)
	require.False(t, result.VerifyProofs)
	require.Equal(t, 25.0, result.RateLimit)
	require.Equal(t, slog.LevelDebug, result.LogConfig.Level)
	require.Equal(t, oplog.FormatJSON, result.LogConfig.Format)
	require.Equal(t, "127.0.0.1", result.RPC.ListenAddr)
	require.Equal(t, 8080, result.RPC.ListenPort)
	require.True(t, result.RPC.EnableAdmin)
	require.True(t, result.MetricsConfig.Enabled)
	require.Equal(t, 7301, result.MetricsConfig.ListenPort)

	// fields missing from the file keep their defaults
	defaults := DefaultCLIConfig()
	require.Equal(t, defaults.StorageCacheTTL, result.StorageCacheTTL)
	require.Equal(t, defaults.MaxDynamicLength, result.MaxDynamicLength)
	require.Equal(t, defaults.MetricsConfig.ListenAddr, result.MetricsConfig.ListenAddr)
}

func TestYamlLoader_NotFound(t *testing.T) {
	x := &YamlLoader{Path: filepath.Join(t.TempDir(), "missing.yaml")}
	_, err := x.Load(context.Background())
	require.ErrorContains(t, err, "failed to read config")
}

func TestYamlLoader_Invalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "invalid.yaml")
	// Strictly speaking a valid yaml map, but the config decoder is strict.
	require.NoError(t, os.WriteFile(p, []byte("foobar: invalid"), 0755))

	x := &YamlLoader{Path: p}
	_, err := x.Load(context.Background())
	require.ErrorContains(t, err, "field foobar not found")
}

func TestStaticLoader(t *testing.T) {
	cfg := validConfig()
	out, err := cfg.Load(context.Background())
	require.NoError(t, err)
	require.Same(t, cfg, out)
}
