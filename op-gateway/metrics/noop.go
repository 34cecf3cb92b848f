package metrics

import (
	"time"

	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
)

type NoopMetrics struct {
	opmetrics.NoopRPCClientMetrics
	opmetrics.NoopHTTPRecorder
	opmetrics.NoopRefMetrics
}

func (n NoopMetrics) RecordInfo(version string) {}

func (n NoopMetrics) RecordUp() {}

func (n NoopMetrics) RecordRequest(transport string, outcome string) {}

func (n NoopMetrics) RecordBatch(commands int, slots int, duration time.Duration, outcome string) {}

func (n NoopMetrics) CacheAdd(label string, cacheSize int, evicted bool) {}

func (n NoopMetrics) CacheGet(label string, hit bool) {}

var _ Metricer = (*NoopMetrics)(nil)
