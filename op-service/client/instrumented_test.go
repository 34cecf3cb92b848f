package client_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/evm-gateway/op-service/client"
)

type stubRPC struct {
	err error
}

func (s *stubRPC) Close() {}

func (s *stubRPC) CallContext(ctx context.Context, result any, method string, args ...any) error {
	return s.err
}

func (s *stubRPC) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	return s.err
}

type recordedCall struct {
	method string
	err    error
}

type recordingMetrics struct {
	calls   []recordedCall
	batches []int
}

func (r *recordingMetrics) RecordRPCClientRequest(method string) func(err error) {
	return func(err error) {
		r.calls = append(r.calls, recordedCall{method: method, err: err})
	}
}

func (r *recordingMetrics) RecordRPCClientBatch(size int) func(err error) {
	r.batches = append(r.batches, size)
	return r.RecordRPCClientRequest("<batch>")
}

func TestInstrumentedRPC(t *testing.T) {
	boom := errors.New("boom")
	stub := &stubRPC{}
	m := &recordingMetrics{}
	cl := client.NewInstrumentedRPC(stub, m)

	require.NoError(t, cl.CallContext(context.Background(), nil, "eth_getProof"))
	stub.err = boom
	require.ErrorIs(t, cl.CallContext(context.Background(), nil, "eth_call"), boom)
	require.ErrorIs(t, cl.BatchCallContext(context.Background(), make([]rpc.BatchElem, 3)), boom)

	require.Equal(t, []recordedCall{
		{method: "eth_getProof"},
		{method: "eth_call", err: boom},
		{method: "<batch>", err: boom},
	}, m.calls)
	require.Equal(t, []int{3}, m.batches)
}
