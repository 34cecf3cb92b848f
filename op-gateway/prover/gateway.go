// Package prover assembles storage proofs for slot programs.
//
// A [Gateway] resolves every command of a batch against one provable block of a
// [ProofService], then asks the service for the proofs of all touched slots at once.
package prover

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

// batchReadTTL outlives any batch; the batch read cache is cleared when the batch ends.
const batchReadTTL = time.Hour

type Gateway[B any] struct {
	log     log.Logger
	metrics Metricer
	engine  *program.Engine
	service ProofService[B]
}

func NewGateway[B any](log log.Logger, m Metricer, service ProofService[B], cfg program.Config) *Gateway[B] {
	if m == nil {
		m = NoopMetricer{}
	}
	return &Gateway[B]{
		log:     log,
		metrics: m,
		engine:  program.NewEngine(cfg),
		service: service,
	}
}

// CreateProofs resolves commands against the storage of address and returns the proof bundle
// covering every slot they touched, in command order. Any failure aborts the whole batch.
func (g *Gateway[B]) CreateProofs(ctx context.Context, address common.Address, commands []program.Command, constants [][]byte) (out []byte, err error) {
	start := time.Now()
	slotCount := 0
	defer func() {
		g.metrics.RecordBatch(len(commands), slotCount, time.Since(start), Outcome(err))
	}()

	block, err := g.service.GetProvableBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get provable block: %w", err)
	}

	// two commands reading the same slot share one fetch
	reads := caching.NewCachedMap[common.Hash, common.Hash](batchReadTTL, caching.DefaultMaxCached, caching.WithErrorTTL(batchReadTTL))
	defer reads.Clear()
	reader := program.StorageReaderFunc(func(ctx context.Context, slot common.Hash) (common.Hash, error) {
		return reads.Get(ctx, slot, func(ctx context.Context, slot common.Hash) (common.Hash, error) {
			return g.service.GetStorageAt(ctx, block, address, slot)
		})
	})

	group, gctx := errgroup.WithContext(ctx)
	futures := make([]*caching.Future[*program.StorageElement], len(commands))
	for i := range futures {
		futures[i] = caching.NewFuture[*program.StorageElement]()
	}
	for i, cmd := range commands {
		// a command only ever sees the commands before it
		prior := futures[:i:i]
		group.Go(func() error {
			elem, err := g.engine.Resolve(gctx, reader, cmd, constants, prior)
			futures[i].Settle(elem, err)
			if err != nil {
				return fmt.Errorf("failed to resolve command %d: %w", i, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var slots []common.Hash
	for _, f := range futures {
		elem, _, _ := f.Peek()
		slots = append(slots, elem.Slots...)
	}
	slotCount = len(slots)
	g.log.Debug("Resolved storage slots", "address", address, "commands", len(commands), "slots", slotCount)

	out, err = g.service.GetProofs(ctx, block, address, slots)
	if err != nil {
		return nil, fmt.Errorf("failed to get proofs of %d slots: %w", len(slots), err)
	}
	return out, nil
}
