package metrics

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

const RPCClientSubsystem = "rpc_client"

type RPCClientMetricer interface {
	// RecordRPCClientRequest starts tracking a request, and returns a function to call with its outcome.
	RecordRPCClientRequest(method string) func(err error)
	RecordRPCClientBatch(size int) func(err error)
}

// RPCClientMetrics tracks the requests the service makes to upstream RPC endpoints.
type RPCClientMetrics struct {
	clientRequestsTotal          *prometheus.CounterVec
	clientRequestDurationSeconds *prometheus.HistogramVec
	clientResponsesTotal         *prometheus.CounterVec
	clientBatchSize              prometheus.Histogram
}

var _ RPCClientMetricer = (*RPCClientMetrics)(nil)

// MakeRPCClientMetrics creates a new RPCClientMetrics with the given namespace.
// This struct is intended to be embedded into the larger metrics struct.
func MakeRPCClientMetrics(ns string, factory Factory) RPCClientMetrics {
	return RPCClientMetrics{
		clientRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "requests_total",
			Help:      "Total RPC requests initiated",
		}, []string{
			"method",
		}),
		clientRequestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "request_duration_seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Help:      "Histogram of RPC client request durations",
		}, []string{
			"method",
		}),
		clientResponsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "responses_total",
			Help:      "Total RPC request responses received",
		}, []string{
			"method",
			"error",
		}),
		clientBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "batch_size",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
			Help:      "Number of requests per RPC batch",
		}),
	}
}

func (m *RPCClientMetrics) RecordRPCClientRequest(method string) func(err error) {
	m.clientRequestsTotal.WithLabelValues(method).Inc()
	timer := prometheus.NewTimer(m.clientRequestDurationSeconds.WithLabelValues(method))
	return func(err error) {
		timer.ObserveDuration()
		m.clientResponsesTotal.WithLabelValues(method, errLabel(err)).Inc()
	}
}

func (m *RPCClientMetrics) RecordRPCClientBatch(size int) func(err error) {
	m.clientBatchSize.Observe(float64(size))
	return m.RecordRPCClientRequest("<batch>")
}

// errLabel maps an RPC error to a low-cardinality label value.
func errLabel(err error) string {
	if err == nil {
		return "<nil>"
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Sprintf("rpc_%d", rpcErr.ErrorCode())
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("http_%d", httpErr.StatusCode)
	}
	return "<unknown>"
}

type NoopRPCClientMetrics struct{}

func (NoopRPCClientMetrics) RecordRPCClientRequest(string) func(err error) {
	return func(error) {}
}

func (NoopRPCClientMetrics) RecordRPCClientBatch(int) func(err error) {
	return func(error) {}
}

var _ RPCClientMetricer = NoopRPCClientMetrics{}
