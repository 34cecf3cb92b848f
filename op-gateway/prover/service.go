package prover

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ProofService is the chain-specific half of the gateway: it picks a block whose state
// the verifier can authenticate, reads storage at that block, and encodes the proofs
// of a set of slots into the bundle the verifier contract expects.
type ProofService[B any] interface {
	// GetProvableBlock returns the most recent block the verifier can check proofs against.
	GetProvableBlock(ctx context.Context) (B, error)
	// GetStorageAt returns the raw storage word at slot of address, zero if unset.
	GetStorageAt(ctx context.Context, block B, address common.Address, slot common.Hash) (common.Hash, error)
	// GetProofs returns the encoded proof bundle for slots, one storage proof per slot, in order.
	GetProofs(ctx context.Context, block B, address common.Address, slots []common.Hash) ([]byte, error)
}
