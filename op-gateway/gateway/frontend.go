package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
)

const (
	TransportCCIP = "ccip"
	TransportRPC  = "rpc"

	outcomeLimited = "limited"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Prover creates the proof bundle of a batch of slot programs. prover.Gateway implements it for every chain.
type Prover interface {
	CreateProofs(ctx context.Context, address common.Address, commands []program.Command, constants [][]byte) ([]byte, error)
}

type RequestMetricer interface {
	RecordRequest(transport string, outcome string)
}

// NewLimiter returns a limiter allowing perSecond requests with the given burst. Zero disables limiting.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond == 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// frontend is shared by the CCIP-read and JSON-RPC transports.
type frontend struct {
	log     log.Logger
	prover  Prover
	limiter *rate.Limiter
	metrics RequestMetricer
}

func (f *frontend) createProofs(ctx context.Context, transport string, req *Request) ([]byte, error) {
	if !f.limiter.Allow() {
		f.metrics.RecordRequest(transport, outcomeLimited)
		return nil, ErrRateLimited
	}
	lgr := f.log.New("request", uuid.New())
	start := time.Now()
	witness, err := f.prover.CreateProofs(ctx, req.Address, req.Commands, req.Constants)
	outcome := prover.Outcome(err)
	f.metrics.RecordRequest(transport, outcome)
	if err != nil {
		lvl := log.LevelWarn
		if outcome == prover.OutcomeInvalid {
			lvl = log.LevelDebug
		}
		lgr.Log(lvl, "Failed to create proofs", "transport", transport, "address", req.Address,
			"commands", len(req.Commands), "outcome", outcome, "err", err)
		return nil, err
	}
	lgr.Debug("Created proofs", "transport", transport, "address", req.Address,
		"commands", len(req.Commands), "size", len(witness), "duration", time.Since(start))
	return witness, nil
}
