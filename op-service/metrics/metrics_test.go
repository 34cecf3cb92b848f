package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestFactoryDocument(t *testing.T) {
	factory := With(NewRegistry())
	factory.NewCounter(prometheus.CounterOpts{Namespace: "ns", Name: "foo_total", Help: "foo"})
	factory.NewGaugeVec(prometheus.GaugeOpts{Namespace: "ns", Subsystem: "sub", Name: "bar", Help: "bar"}, []string{"a", "b"})
	docs := factory.Document()
	require.Equal(t, []DocumentedMetric{
		{Type: "counter", Name: "ns_foo_total", Help: "foo"},
		{Type: "gauge", Name: "ns_sub_bar", Help: "bar", Labels: []string{"a", "b"}},
	}, docs)
}

type codedErr int

func (e codedErr) Error() string  { return fmt.Sprintf("rpc error %d", int(e)) }
func (e codedErr) ErrorCode() int { return int(e) }

func TestRPCClientMetrics(t *testing.T) {
	reg := NewRegistry()
	m := MakeRPCClientMetrics("testservice", With(reg))

	m.RecordRPCClientRequest("eth_getProof")(nil)
	m.RecordRPCClientRequest("eth_getProof")(codedErr(-32000))
	m.RecordRPCClientRequest("eth_getProof")(fmt.Errorf("wrapped: %w", rpc.HTTPError{StatusCode: 429}))
	m.RecordRPCClientRequest("eth_call")(errors.New("boom"))
	m.RecordRPCClientBatch(3)(nil)

	c := NewMetricChecker(t, reg)
	requests := c.FindByName("testservice_rpc_client_requests_total")
	require.Equal(t, 3.0, requests.FindByLabels(map[string]string{"method": "eth_getProof"}).Counter.GetValue())
	require.Equal(t, 1.0, requests.FindByLabels(map[string]string{"method": "<batch>"}).Counter.GetValue())

	responses := c.FindByName("testservice_rpc_client_responses_total")
	for _, label := range []string{"<nil>", "rpc_-32000", "http_429"} {
		rec := responses.FindByLabels(map[string]string{"method": "eth_getProof", "error": label})
		require.Equal(t, 1.0, rec.Counter.GetValue(), label)
	}
	rec := responses.FindByLabels(map[string]string{"method": "eth_call", "error": "<unknown>"})
	require.Equal(t, 1.0, rec.Counter.GetValue())

	batch := c.FindByName("testservice_rpc_client_batch_size").FindByLabels(nil)
	require.Equal(t, uint64(1), batch.Histogram.GetSampleCount())
	require.Equal(t, 3.0, batch.Histogram.GetSampleSum())
}

func TestHTTPRecordingMiddleware(t *testing.T) {
	reg := NewRegistry()
	m := MakeHTTPMetrics("testservice", With(reg))
	h := NewHTTPRecordingMiddleware(&m, "ccip", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("nope"))
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ccip/", nil))
	}

	c := NewMetricChecker(t, reg)
	rec := c.FindByName("testservice_http_requests_total").FindByLabels(map[string]string{
		"method": "POST", "route": "ccip", "status": "400",
	})
	require.Equal(t, 2.0, rec.Counter.GetValue())
	rec = c.FindByName("testservice_http_response_bytes_total").FindByLabels(map[string]string{"route": "ccip"})
	require.Equal(t, 8.0, rec.Counter.GetValue())
}

func TestRefMetrics(t *testing.T) {
	reg := NewRegistry()
	m := MakeRefMetrics("testservice", With(reg))
	header := &types.Header{Number: big.NewInt(42), Time: 1_700_000_000, Difficulty: new(big.Int)}
	m.RecordHeaderRef("l2", "provable", header)
	m.RecordRef("l1", "anchor", 7, 0, common.Hash{1})

	c := NewMetricChecker(t, reg)
	num := c.FindByName("testservice_refs_number")
	require.Equal(t, 42.0, num.FindByLabels(map[string]string{"layer": "l2", "type": "provable"}).Gauge.GetValue())
	require.Equal(t, 7.0, num.FindByLabels(map[string]string{"layer": "l1", "type": "anchor"}).Gauge.GetValue())
	tm := c.FindByName("testservice_refs_time").FindByLabels(map[string]string{"type": "provable"})
	require.Equal(t, 1_700_000_000.0, tm.Gauge.GetValue())
}

func TestStartServer(t *testing.T) {
	reg := NewRegistry()
	With(reg).NewCounter(prometheus.CounterOpts{Namespace: "testservice", Name: "hits_total", Help: "hits"}).Inc()
	srv, err := StartServer(reg, "127.0.0.1", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	resp, err := http.Get(srv.HTTPEndpoint() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "testservice_hits_total 1"))
}

func TestCLIConfigCheck(t *testing.T) {
	cfg := DefaultCLIConfig()
	require.NoError(t, cfg.Check())
	cfg.Enabled = true
	cfg.ListenPort = 70000
	require.ErrorIs(t, cfg.Check(), ErrInvalidPort)
	cfg.Enabled = false
	require.NoError(t, cfg.Check(), "disabled metrics ignore the port")
}
