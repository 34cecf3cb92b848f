package rpc

import (
	"github.com/ethereum/go-ethereum/log"

	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
)

type Option func(h *Handler)

// WithCORSHosts sets the allowed CORS origins of the JSON-RPC endpoint. Defaults to any.
func WithCORSHosts(hosts []string) Option {
	return func(h *Handler) {
		h.corsHosts = hosts
	}
}

// WithVHosts sets the accepted Host headers of the JSON-RPC endpoint. Defaults to any.
func WithVHosts(hosts []string) Option {
	return func(h *Handler) {
		h.vHosts = hosts
	}
}

// WithJWTSecret requires JWT authentication on the JSON-RPC endpoint.
func WithJWTSecret(secret []byte) Option {
	return func(h *Handler) {
		h.jwtSecret = secret
	}
}

func WithHTTPRecorder(recorder opmetrics.HTTPRecorder) Option {
	return func(h *Handler) {
		h.httpRecorder = recorder
	}
}

func WithLogger(lgr log.Logger) Option {
	return func(h *Handler) {
		h.log = lgr
	}
}
