package gateway

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
)

const (
	invalidParamsCode = -32602
	limitExceededCode = -32005
)

// apiError carries a JSON-RPC error code for errors the caller can act on.
type apiError struct {
	code int
	err  error
}

func (e *apiError) Error() string  { return e.err.Error() }
func (e *apiError) ErrorCode() int { return e.code }
func (e *apiError) Unwrap() error  { return e.err }

// GatewayAPI is the "gateway" JSON-RPC namespace.
type GatewayAPI struct {
	frontend
	chain string
}

func NewGatewayAPI(log log.Logger, chain string, p Prover, limiter *rate.Limiter, m RequestMetricer) *GatewayAPI {
	return &GatewayAPI{
		frontend: frontend{log: log, prover: p, limiter: limiter, metrics: m},
		chain:    chain,
	}
}

// GetStorageSlots returns the proof bundle of the slots the commands resolve to in the storage of addr.
func (api *GatewayAPI) GetStorageSlots(ctx context.Context, addr common.Address, commands []common.Hash, constants []hexutil.Bytes) (hexutil.Bytes, error) {
	req := &Request{
		Address:   addr,
		Commands:  make([]program.Command, len(commands)),
		Constants: make([][]byte, len(constants)),
	}
	for i, c := range commands {
		req.Commands[i] = program.Command(c)
	}
	for i, c := range constants {
		req.Constants[i] = c
	}
	witness, err := api.createProofs(ctx, TransportRPC, req)
	switch {
	case err == nil:
		return witness, nil
	case errors.Is(err, ErrRateLimited):
		return nil, &apiError{code: limitExceededCode, err: err}
	case prover.Outcome(err) == prover.OutcomeInvalid:
		return nil, &apiError{code: invalidParamsCode, err: err}
	default:
		return nil, err
	}
}

// Chain returns the kind of chain the gateway proves storage of.
func (api *GatewayAPI) Chain() string {
	return api.chain
}
