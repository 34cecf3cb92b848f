package gateway

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
)

func TestCalldata(t *testing.T) {
	req := &Request{
		Address: common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3"),
		Commands: []program.Command{
			program.MustCommand(false, program.AddConst(0)),
			program.MustCommand(true, program.AddConst(1), program.FollowRef(0)),
		},
		Constants: [][]byte{{0x03}, []byte("Money Skeleton")},
	}
	data, err := EncodeCalldata(req)
	require.NoError(t, err)
	require.Equal(t, gatewayABI.Methods["getStorageSlots"].ID, data[:4])

	out, err := DecodeCalldata(data)
	require.NoError(t, err)
	require.Equal(t, req, out)

	t.Run("empty", func(t *testing.T) {
		data, err := EncodeCalldata(&Request{})
		require.NoError(t, err)
		out, err := DecodeCalldata(data)
		require.NoError(t, err)
		require.Empty(t, out.Commands)
		require.Empty(t, out.Constants)
	})

	t.Run("unknown selector", func(t *testing.T) {
		_, err := DecodeCalldata(append([]byte{0xde, 0xad, 0xbe, 0xef}, data[4:]...))
		require.ErrorIs(t, err, ErrUnknownSelector)
	})

	t.Run("short", func(t *testing.T) {
		_, err := DecodeCalldata(data[:3])
		require.ErrorIs(t, err, ErrMalformedCalldata)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeCalldata(data[:40])
		require.ErrorIs(t, err, ErrMalformedCalldata)
	})
}

func TestResponse(t *testing.T) {
	witness := []byte("witness bytes")
	data, err := EncodeResponse(witness)
	require.NoError(t, err)
	// offset, length, one padded word
	require.Len(t, data, 96)

	out, err := DecodeResponse(data)
	require.NoError(t, err)
	require.Equal(t, witness, out)
}
