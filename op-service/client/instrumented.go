package client

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"

	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
)

// InstrumentedRPCClient is an RPC client that tracks
// Prometheus metrics for each call.
type InstrumentedRPCClient struct {
	c RPC
	m opmetrics.RPCClientMetricer
}

var _ RPC = (*InstrumentedRPCClient)(nil)

// NewInstrumentedRPC creates a new instrumented RPC client.
func NewInstrumentedRPC(c RPC, m opmetrics.RPCClientMetricer) *InstrumentedRPCClient {
	return &InstrumentedRPCClient{
		c: c,
		m: m,
	}
}

func (ic *InstrumentedRPCClient) Close() {
	ic.c.Close()
}

func (ic *InstrumentedRPCClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	done := ic.m.RecordRPCClientRequest(method)
	err := ic.c.CallContext(ctx, result, method, args...)
	done(err)
	return err
}

func (ic *InstrumentedRPCClient) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	done := ic.m.RecordRPCClientBatch(len(b))
	err := ic.c.BatchCallContext(ctx, b)
	done(err)
	return err
}
