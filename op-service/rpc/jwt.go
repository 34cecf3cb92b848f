package rpc

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/evm-gateway/op-service/eth"
)

// ObtainJWTSecret reads the hex-encoded 32 byte secret at path.
// A missing file is created with a random secret if generateMissing is set.
// Other read errors are returned as is, an existing secret is never overwritten.
func ObtainJWTSecret(logger log.Logger, path string, generateMissing bool) (eth.Bytes32, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return eth.Bytes32{}, errors.New("JWT secret path is empty")
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && generateMissing:
		logger.Warn("JWT secret not found, generating a new one", "path", path)
		return writeJWTSecret(path)
	case errors.Is(err, fs.ErrNotExist):
		return eth.Bytes32{}, fmt.Errorf("JWT secret %q does not exist: %w", path, err)
	case err != nil:
		return eth.Bytes32{}, fmt.Errorf("failed to read JWT secret %q: %w", path, err)
	}
	secret := common.FromHex(strings.TrimSpace(string(data)))
	if len(secret) != len(eth.Bytes32{}) {
		return eth.Bytes32{}, fmt.Errorf("invalid JWT secret in %q, want 32 hex encoded bytes", path)
	}
	return eth.Bytes32(secret), nil
}

func writeJWTSecret(path string) (eth.Bytes32, error) {
	var secret eth.Bytes32
	if _, err := rand.Read(secret[:]); err != nil {
		return eth.Bytes32{}, fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	if err := os.WriteFile(path, []byte(hexutil.Encode(secret[:])), 0o600); err != nil {
		return eth.Bytes32{}, fmt.Errorf("failed to write JWT secret %q: %w", path, err)
	}
	return secret, nil
}
