package log

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	elog "github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestJSONMsHandler(t *testing.T) {
	var buf bytes.Buffer
	lgr := elog.NewLogger(JSONMsHandlerWithLevel(&buf, elog.LevelInfo))
	var nilInt *big.Int
	lgr.Info("proved", "slot", uint256.NewInt(7), "value", big.NewInt(42), "missing", nilInt, "hash", common.Hash{0x01})
	lgr.Debug("hidden")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, "info", out["lvl"])
	require.Contains(t, out, "t")
	require.Equal(t, "7", out["slot"])
	require.Equal(t, "42", out["value"])
	require.Equal(t, "<nil>", out["missing"])
	require.Equal(t, common.Hash{0x01}.String(), out["hash"])
	require.Equal(t, 1, strings.Count(buf.String(), "\n"), "debug record filtered")
}

func TestLogfmtMsHandler(t *testing.T) {
	var buf bytes.Buffer
	lgr := elog.NewLogger(LogfmtMsHandlerWithLevel(&buf, elog.LevelDebug))
	lgr.Debug("cached", "size", uint256.NewInt(3))
	line := buf.String()
	require.True(t, strings.HasPrefix(line, "t="), line)
	require.Contains(t, line, "lvl=debug")
	require.Contains(t, line, "size=3")
}
