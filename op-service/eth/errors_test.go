package eth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/require"
)

func TestMaybeAsNotFoundErr(t *testing.T) {
	require.NoError(t, MaybeAsNotFoundErr(nil))
	require.Same(t, ethereum.NotFound, MaybeAsNotFoundErr(ethereum.NotFound))

	for _, msg := range []string{"block not found", "Header not found", "Unknown block"} {
		err := fmt.Errorf("rpc: %w", errors.New(msg))
		out := MaybeAsNotFoundErr(err)
		require.ErrorIs(t, out, ethereum.NotFound, msg)
		require.ErrorIs(t, out, err, msg)
	}

	other := errors.New("execution reverted")
	require.Same(t, other, MaybeAsNotFoundErr(other))
}
