package gateway

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/arbitrum"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/evmproof"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/l1"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/opstack"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/chains/scroll"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/config"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/metrics"
	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
	opmetrics "github.com/mantlenetworkio/evm-gateway/op-service/metrics"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources"
)

const headersCacheSize = 100

// refRecorder reports every provable block handed out by a proof service.
type refRecorder[B any] struct {
	prover.ProofService[B]
	m     opmetrics.RefMetricer
	layer string
	ref   func(B) (number uint64, timestamp uint64, hash common.Hash)
}

func (r *refRecorder[B]) GetProvableBlock(ctx context.Context) (B, error) {
	b, err := r.ProofService.GetProvableBlock(ctx)
	if err == nil {
		num, ts, hash := r.ref(b)
		r.m.RecordRef(r.layer, "provable", num, ts, hash)
	}
	return b, err
}

func headerRef(h *types.Header) (uint64, uint64, common.Hash) {
	return h.Number.Uint64(), h.Time, h.Hash()
}

// chainClients are the RPC sources a chain adapter reads from. L1 is nil for scroll, L2 for l1.
type chainClients struct {
	L1 *sources.EthClient
	L2 *sources.EthClient
}

// NewProver wires the proof service of cfg.Chain into a prover.Gateway.
func NewProver(log log.Logger, m metrics.Metricer, cfg *config.Config, clients chainClients) (Prover, error) {
	programCfg := cfg.ProgramConfig()
	ttl := cfg.ProvableBlockTTL
	switch cfg.Chain {
	case config.ChainL1:
		helper := evmproof.NewHelper(log, clients.L1, m, cfg.ProofConfig())
		svc := l1.NewProofService(log, clients.L1, helper, m, ttl)
		rec := &refRecorder[l1.Block]{ProofService: svc, m: m, layer: "l1", ref: func(b l1.Block) (uint64, uint64, common.Hash) {
			return headerRef(b.Header)
		}}
		return prover.NewGateway[l1.Block](log, m, rec, programCfg), nil
	case config.ChainOPStack:
		helper := evmproof.NewHelper(log, clients.L2, m, cfg.ProofConfig())
		svc := opstack.NewProofService(log, clients.L1, clients.L2, cfg.RollupAddress, helper, m, ttl)
		rec := &refRecorder[opstack.Block]{ProofService: svc, m: m, layer: "l2", ref: func(b opstack.Block) (uint64, uint64, common.Hash) {
			return b.Number, 0, b.Output.BlockHash
		}}
		return prover.NewGateway[opstack.Block](log, m, rec, programCfg), nil
	case config.ChainArbitrum:
		helper := evmproof.NewHelper(log, clients.L2, m, cfg.ProofConfig())
		svc, err := arbitrum.NewProofService(log, clients.L1, clients.L2, cfg.RollupAddress, helper, m, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to create arbitrum proof service: %w", err)
		}
		rec := &refRecorder[arbitrum.Block]{ProofService: svc, m: m, layer: "l2", ref: func(b arbitrum.Block) (uint64, uint64, common.Hash) {
			return headerRef(b.Header)
		}}
		return prover.NewGateway[arbitrum.Block](log, m, rec, programCfg), nil
	case config.ChainScroll:
		helper := evmproof.NewHelper(log, clients.L2, m, cfg.ProofConfig())
		svc := scroll.NewProofService(log, clients.L2, helper, cfg.ScrollSearchURL, cfg.HTTPTimeout, m, ttl)
		rec := &refRecorder[scroll.Block]{ProofService: svc, m: m, layer: "l2", ref: func(b scroll.Block) (uint64, uint64, common.Hash) {
			return headerRef(b.Header)
		}}
		return prover.NewGateway[scroll.Block](log, m, rec, programCfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownChain, cfg.Chain)
	}
}
