package prover

import (
	"errors"
	"time"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
)

const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

type Metricer interface {
	RecordBatch(commands int, slots int, duration time.Duration, outcome string)
}

type NoopMetricer struct{}

func (NoopMetricer) RecordBatch(commands int, slots int, duration time.Duration, outcome string) {}

// Outcome classifies the result of a batch for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case program.IsProgramError(err), errors.Is(err, program.ErrValueTooLong), errors.Is(err, program.ErrMalformedValue):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}
