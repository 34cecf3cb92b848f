package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/node"
	"github.com/ethereum/go-ethereum/rpc"

	oplog "github.com/mantlenetworkio/evm-gateway/op-service/log"
	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
)

const (
	rpcRoute     = "rpc"
	healthzRoute = "healthz"
)

// Handler is an http.Handler that serves JSON-RPC on the root path and
// the service version on /healthz. Other HTTP endpoints are mounted with AddHandler.
//
// The JWT secret, if set, guards the JSON-RPC endpoint only.
type Handler struct {
	appVersion   string
	corsHosts    []string
	vHosts       []string
	jwtSecret    []byte
	httpRecorder opmetrics.HTTPRecorder
	log          log.Logger

	server *rpc.Server
	mux    *http.ServeMux
	outer  http.Handler
}

func NewHandler(appVersion string, opts ...Option) *Handler {
	h := &Handler{
		appVersion:   appVersion,
		corsHosts:    []string{"*"},
		vHosts:       []string{"*"},
		httpRecorder: opmetrics.NoopHTTPRecorder{},
		log:          log.Root(),
		server:       rpc.NewServer(),
		mux:          http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.server.RegisterName("health", &healthzAPI{appVersion: appVersion}); err != nil {
		panic(fmt.Errorf("failed to register health RPC namespace: %w", err))
	}

	rpcHandler := node.NewHTTPHandlerStack(h.server, h.corsHosts, h.vHosts, h.jwtSecret)
	h.mux.Handle("/{$}", h.record(rpcRoute, rpcHandler))
	h.mux.Handle("GET /"+healthzRoute, h.record(healthzRoute, healthzHandler(appVersion)))
	h.outer = oplog.NewLoggingMiddleware(h.log, h.mux)
	return h
}

var _ http.Handler = (*Handler)(nil)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.outer.ServeHTTP(w, r)
}

func (h *Handler) record(route string, next http.Handler) http.Handler {
	return opmetrics.NewHTTPRecordingMiddleware(h.httpRecorder, route, next)
}

// AddAPI registers a JSON-RPC namespace.
func (h *Handler) AddAPI(api rpc.API) error {
	if err := h.server.RegisterName(api.Namespace, api.Service); err != nil {
		return fmt.Errorf("failed to register API namespace %s: %w", api.Namespace, err)
	}
	h.log.Info("Registered API", "namespace", api.Namespace)
	return nil
}

// AddHandler mounts handler on path, which may be a subtree pattern ending in "/".
// Requests are recorded in the HTTP metrics with the path as route.
func (h *Handler) AddHandler(path string, handler http.Handler) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	h.mux.Handle(path, h.record(path, handler))
}

func (h *Handler) Stop() {
	h.log.Debug("Stopping RPC server")
	h.server.Stop()
}

type HealthzResponse struct {
	Version string `json:"version"`
}

func healthzHandler(appVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&HealthzResponse{Version: appVersion})
	}
}

type healthzAPI struct {
	appVersion string
}

func (h *healthzAPI) Status() string {
	return h.appVersion
}
