package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mantlenetworkio/evm-gateway/op-service/httputil"
)

const HTTPSubsystem = "http"

type HTTPParams struct {
	Method      string
	StatusCode  int
	Route       string
	Duration    time.Duration
	ResponseLen int
}

type HTTPRecorder interface {
	RecordHTTPRequest(params *HTTPParams)
}

// HTTPMetrics tracks requests served by an HTTP server, labelled by route.
type HTTPMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	responseBytesTotal     *prometheus.CounterVec
}

var _ HTTPRecorder = (*HTTPMetrics)(nil)

// MakeHTTPMetrics creates HTTP server metrics in the given namespace.
// It is intended to be embedded into the larger metrics struct of a service.
func MakeHTTPMetrics(ns string, factory Factory) HTTPMetrics {
	return HTTPMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: HTTPSubsystem,
			Name:      "requests_total",
			Help:      "Total HTTP requests served",
		}, []string{"method", "route", "status"}),
		requestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: HTTPSubsystem,
			Name:      "request_duration_seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Help:      "Histogram of HTTP request durations",
		}, []string{"method", "route"}),
		responseBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: HTTPSubsystem,
			Name:      "response_bytes_total",
			Help:      "Total bytes of HTTP responses written",
		}, []string{"method", "route"}),
	}
}

func (m *HTTPMetrics) RecordHTTPRequest(params *HTTPParams) {
	m.requestsTotal.WithLabelValues(params.Method, params.Route, strconv.Itoa(params.StatusCode)).Inc()
	m.requestDurationSeconds.WithLabelValues(params.Method, params.Route).Observe(params.Duration.Seconds())
	m.responseBytesTotal.WithLabelValues(params.Method, params.Route).Add(float64(params.ResponseLen))
}

type NoopHTTPRecorder struct{}

func (NoopHTTPRecorder) RecordHTTPRequest(*HTTPParams) {}

var _ HTTPRecorder = NoopHTTPRecorder{}

// NewHTTPRecordingMiddleware records every request served by next under the given route label.
// The route is fixed per handler to keep the label cardinality bounded.
func NewHTTPRecordingMiddleware(rec HTTPRecorder, route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := httputil.NewWrappedResponseWriter(w)
		start := time.Now()
		next.ServeHTTP(ww, r)
		rec.RecordHTTPRequest(&HTTPParams{
			Method:      r.Method,
			StatusCode:  ww.StatusCode,
			Route:       route,
			Duration:    time.Since(start),
			ResponseLen: ww.ResponseLen,
		})
	})
}
