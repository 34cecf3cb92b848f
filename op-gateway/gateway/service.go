// Package gateway serves storage proofs over CCIP-read and JSON-RPC.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/config"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/metrics"
	"github.com/mantlenetworkio/evm-gateway/op-service/cliapp"
	"github.com/mantlenetworkio/evm-gateway/op-service/client"
	"github.com/mantlenetworkio/evm-gateway/op-service/httputil"
	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
	oprpc "github.com/mantlenetworkio/evm-gateway/op-service/rpc"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources"
)

type Service struct {
	closing atomic.Bool

	log log.Logger

	clients chainClients
	prover  Prover

	metrics    metrics.Metricer
	metricsSrv *httputil.HTTPServer
	rpcHandler *oprpc.Handler
	httpServer *httputil.HTTPServer
}

var _ cliapp.Lifecycle = (*Service)(nil)

func FromConfig(ctx context.Context, cfg *config.Config, logger log.Logger) (*Service, error) {
	su := &Service{log: logger}
	if err := su.initFromCLIConfig(ctx, cfg); err != nil {
		return nil, errors.Join(err, su.Stop(ctx)) // try to clean up our failed initialization attempt
	}
	return su, nil
}

func (s *Service) initFromCLIConfig(ctx context.Context, cfg *config.Config) error {
	s.initMetrics(cfg)
	if err := s.initMetricsServer(cfg); err != nil {
		return fmt.Errorf("failed to start Metrics server: %w", err)
	}
	if err := s.initClients(ctx, cfg); err != nil {
		return fmt.Errorf("failed to dial chain RPCs: %w", err)
	}
	if err := s.initProver(cfg); err != nil {
		return fmt.Errorf("failed to setup prover: %w", err)
	}
	if err := s.initRPCHandler(cfg); err != nil {
		return fmt.Errorf("failed to start RPC handler: %w", err)
	}
	s.initHTTPServer(cfg)
	return nil
}

func (s *Service) initMetrics(cfg *config.Config) {
	if cfg.MetricsConfig.Enabled {
		procName := "default"
		s.metrics = metrics.NewMetrics(procName)
		s.metrics.RecordInfo(cfg.Version)
	} else {
		s.metrics = &metrics.NoopMetrics{}
	}
}

func (s *Service) initMetricsServer(cfg *config.Config) error {
	if !cfg.MetricsConfig.Enabled {
		s.log.Info("Metrics disabled")
		return nil
	}
	m, ok := s.metrics.(opmetrics.RegistryMetricer)
	if !ok {
		return fmt.Errorf("metrics were enabled, but metricer %T does not expose registry for metrics-server", s.metrics)
	}
	s.log.Debug("Starting metrics server", "addr", cfg.MetricsConfig.ListenAddr, "port", cfg.MetricsConfig.ListenPort)
	metricsSrv, err := opmetrics.StartServer(m.Registry(), cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	s.log.Info("Started metrics server", "addr", metricsSrv.Addr())
	s.metricsSrv = metricsSrv
	return nil
}

func (s *Service) dial(ctx context.Context, name string, addr string) (*sources.EthClient, error) {
	lgr := s.log.New("chain", name)
	rpcClient, err := client.NewRPC(ctx, lgr, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s RPC: %w", name, err)
	}
	src, err := sources.NewEthClient(client.NewInstrumentedRPC(rpcClient, s.metrics), lgr, s.metrics, sources.DefaultEthClientConfig(headersCacheSize))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to create %s source: %w", name, err)
	}
	chainID, err := src.ChainID(ctx)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to get %s chain ID: %w", name, err)
	}
	lgr.Info("Connected to RPC", "chain_id", chainID)
	return src, nil
}

func (s *Service) initClients(ctx context.Context, cfg *config.Config) error {
	if cfg.Chain.NeedsL1() {
		src, err := s.dial(ctx, "l1", cfg.L1RPC)
		if err != nil {
			return err
		}
		s.clients.L1 = src
	}
	if cfg.Chain.NeedsL2() {
		src, err := s.dial(ctx, "l2", cfg.L2RPC)
		if err != nil {
			return err
		}
		s.clients.L2 = src
	}
	return nil
}

func (s *Service) initProver(cfg *config.Config) error {
	p, err := NewProver(s.log, s.metrics, cfg, s.clients)
	if err != nil {
		return err
	}
	s.prover = p
	s.log.Info("Initialized prover", "chain", cfg.Chain)
	return nil
}

func (s *Service) initRPCHandler(cfg *config.Config) error {
	opts := []oprpc.Option{
		oprpc.WithLogger(s.log),
		oprpc.WithHTTPRecorder(s.metrics),
	}
	if cfg.RPC.JWTSecretPath != "" {
		secret, err := oprpc.ObtainJWTSecret(s.log, cfg.RPC.JWTSecretPath, true)
		if err != nil {
			return fmt.Errorf("failed to obtain JWT secret: %w", err)
		}
		opts = append(opts, oprpc.WithJWTSecret(secret[:]))
	}
	s.rpcHandler = oprpc.NewHandler(cfg.Version, opts...)

	limiter := NewLimiter(cfg.RateLimit, cfg.RateBurst)
	if err := s.rpcHandler.AddAPI(rpc.API{
		Namespace: "gateway",
		Service:   NewGatewayAPI(s.log, cfg.Chain.String(), s.prover, limiter, s.metrics),
	}); err != nil {
		return fmt.Errorf("failed to add gateway API: %w", err)
	}
	if cfg.RPC.EnableAdmin {
		s.log.Info("Admin RPC enabled")
		if err := s.rpcHandler.AddAPI(rpc.API{
			Namespace:     "admin",
			Service:       oprpc.NewCommonAdminAPI(s.log),
			Authenticated: true,
		}); err != nil {
			return fmt.Errorf("failed to add admin API: %w", err)
		}
	}
	s.rpcHandler.AddHandler(CCIPRoute, NewCCIPHandler(s.log, s.prover, limiter, s.metrics))
	return nil
}

func (s *Service) initHTTPServer(cfg *config.Config) {
	endpoint := net.JoinHostPort(cfg.RPC.ListenAddr, strconv.Itoa(cfg.RPC.ListenPort))
	s.httpServer = httputil.NewHTTPServer(endpoint, s.rpcHandler)
}

func (s *Service) Start(ctx context.Context) error {
	s.log.Info("Starting gateway server")
	if err := s.httpServer.Start(); err != nil {
		return fmt.Errorf("unable to start gateway server: %w", err)
	}

	s.metrics.RecordUp()
	s.log.Info("Gateway server started", "endpoint", s.httpServer.HTTPEndpoint())
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if !s.closing.CompareAndSwap(false, true) {
		s.log.Warn("Already closing")
		return nil // already closing
	}
	s.log.Info("Stopping gateway server")
	var result error
	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
	}
	if s.rpcHandler != nil {
		s.rpcHandler.Stop()
	}
	s.log.Info("Stopped RPC Server")
	if s.clients.L2 != nil {
		s.clients.L2.Close()
	}
	if s.clients.L1 != nil {
		s.clients.L1.Close()
	}
	s.log.Info("Closed chain clients")
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	s.log.Info("Gateway server stopped")
	return result
}

func (s *Service) Stopped() bool {
	return s.closing.Load()
}

// HTTPEndpoint is the base URL of the JSON-RPC and CCIP-read server.
func (s *Service) HTTPEndpoint() string {
	return s.httpServer.HTTPEndpoint()
}

// CCIPEndpoint is the gateway URL template to configure in a CCIP-read verifier.
func (s *Service) CCIPEndpoint() string {
	return s.HTTPEndpoint() + CCIPRoute + "{sender}/{data}.json"
}
