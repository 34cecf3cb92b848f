package metrics

import (
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

type Metricer interface {
	RecordInfo(version string)
	RecordUp()

	RecordRequest(transport string, outcome string)

	prover.Metricer
	caching.Metrics

	opmetrics.RPCClientMetricer
	opmetrics.HTTPRecorder
	opmetrics.RefMetricer
}
