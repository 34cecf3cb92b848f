package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
)

const Namespace = "op_gateway"

type Metrics struct {
	ns       string
	registry *prometheus.Registry
	factory  opmetrics.Factory

	opmetrics.RPCClientMetrics
	opmetrics.HTTPMetrics
	opmetrics.RefMetrics

	requestsTotal *prometheus.CounterVec

	batchesTotal  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchCommands prometheus.Histogram
	batchSlots    prometheus.Histogram
	cacheSizeVec  *prometheus.GaugeVec
	cacheGetVec   *prometheus.CounterVec
	cacheAddVec   *prometheus.CounterVec

	info prometheus.GaugeVec
	up   prometheus.Gauge
}

var _ Metricer = (*Metrics)(nil)

// implements the Registry getter, for metrics HTTP server to hook into
var _ opmetrics.RegistryMetricer = (*Metrics)(nil)

func NewMetrics(procName string) *Metrics {
	return newMetrics(procName, opmetrics.NewRegistry())
}

func newMetrics(procName string, registry *prometheus.Registry) *Metrics {
	if procName == "" {
		procName = "default"
	}
	ns := Namespace + "_" + procName

	factory := opmetrics.With(registry)
	return &Metrics{
		ns:       ns,
		registry: registry,
		factory:  factory,

		info: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "info",
			Help:      "Pseudo-metric tracking version and config info",
		}, []string{
			"version",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "up",
			Help:      "1 if op-gateway has finished starting up",
		}),

		RPCClientMetrics: opmetrics.MakeRPCClientMetrics(ns, factory),
		HTTPMetrics:      opmetrics.MakeHTTPMetrics(ns, factory),
		RefMetrics:       opmetrics.MakeRefMetrics(ns, factory),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_total",
			Help:      "Proof requests received, by transport and outcome",
		}, []string{"transport", "outcome"}),

		batchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "batches_total",
			Help:      "Count of command batches processed",
		}, []string{"outcome"}),
		batchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "batch_duration_seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Help:      "Duration it takes to resolve and prove a batch",
		}, []string{"outcome"}),
		batchCommands: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "batch_commands",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
			Help:      "Number of commands per batch",
		}),
		batchSlots: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "batch_slots",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 1024},
			Help:      "Number of storage slots proven per batch",
		}),

		cacheSizeVec: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "cache_size",
			Help:      "Cache size",
		}, []string{
			"type",
		}),
		cacheGetVec: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_get",
			Help:      "Cache lookups, hitting or not",
		}, []string{
			"type",
			"hit",
		}),
		cacheAddVec: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_add",
			Help:      "Cache additions, evicting previous values or not",
		}, []string{
			"type",
			"evicted",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Document() []opmetrics.DocumentedMetric {
	return m.factory.Document()
}

// RecordInfo sets a pseudo-metric that contains versioning and config info.
func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

// RecordUp sets the up metric to 1.
func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) RecordRequest(transport string, outcome string) {
	m.requestsTotal.WithLabelValues(transport, outcome).Inc()
}

func (m *Metrics) RecordBatch(commands int, slots int, duration time.Duration, outcome string) {
	m.batchesTotal.WithLabelValues(outcome).Inc()
	m.batchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.batchCommands.Observe(float64(commands))
	m.batchSlots.Observe(float64(slots))
}

func (m *Metrics) CacheAdd(label string, cacheSize int, evicted bool) {
	m.cacheSizeVec.WithLabelValues(label).Set(float64(cacheSize))
	m.cacheAddVec.WithLabelValues(label, strconv.FormatBool(evicted)).Inc()
}

func (m *Metrics) CacheGet(label string, hit bool) {
	m.cacheGetVec.WithLabelValues(label, strconv.FormatBool(hit)).Inc()
}
