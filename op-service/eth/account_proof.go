package eth

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

var ErrProofMismatch = errors.New("proof does not match claimed value")

type StorageProofEntry struct {
	Key   hexutil.Bytes   `json:"key"`
	Value hexutil.Big     `json:"value"`
	Proof []hexutil.Bytes `json:"proof"`
}

// AccountResult is the eth_getProof response.
type AccountResult struct {
	AccountProof []hexutil.Bytes `json:"accountProof"`

	Address     common.Address `json:"address"`
	Balance     *hexutil.Big   `json:"balance"`
	CodeHash    common.Hash    `json:"codeHash"`
	Nonce       hexutil.Uint64 `json:"nonce"`
	StorageHash common.Hash    `json:"storageHash"`

	// Optional
	StorageProof []StorageProofEntry `json:"storageProof,omitempty"`
}

// Verify checks the account proof against the given state root,
// and every storage proof against the claimed storage root of the account.
func (res *AccountResult) Verify(stateRoot common.Hash) error {
	balance := res.Balance
	if balance == nil {
		balance = new(hexutil.Big)
	}
	accountClaimed := []any{uint64(res.Nonce), balance.ToInt().Bytes(), res.StorageHash, res.CodeHash}
	accountClaimedValue, err := rlp.EncodeToBytes(accountClaimed)
	if err != nil {
		return fmt.Errorf("failed to encode account from retrieved values: %w", err)
	}

	accountProofValue, err := verifyNodes(stateRoot, crypto.Keccak256(res.Address[:]), res.AccountProof)
	if err != nil {
		return fmt.Errorf("failed to verify account value with key %s (path %x) in account trie %s: %w",
			res.Address, crypto.Keccak256(res.Address[:]), stateRoot, err)
	}
	if len(accountProofValue) == 0 && res.claimsEmpty() {
		// proof of absence: every slot of a missing account is zero
		for i, entry := range res.StorageProof {
			if entry.Value.ToInt().Sign() != 0 {
				return fmt.Errorf("storage value %d of absent account %s is not zero: %w", i, res.Address, ErrProofMismatch)
			}
		}
		return nil
	}
	if !bytes.Equal(accountClaimedValue, accountProofValue) {
		return fmt.Errorf("L1 RPC is tricking us, account proof does not match provided deserialized values:\n"+
			"  claimed: %x\n"+
			"  proof:   %x: %w", accountClaimedValue, accountProofValue, ErrProofMismatch)
	}

	for i, entry := range res.StorageProof {
		key := common.BytesToHash(entry.Key)
		if res.StorageHash == types.EmptyRootHash {
			if entry.Value.ToInt().Sign() != 0 {
				return fmt.Errorf("storage slot %s of empty storage trie is not zero: %w", key, ErrProofMismatch)
			}
			continue
		}
		value, err := verifyNodes(res.StorageHash, crypto.Keccak256(key[:]), entry.Proof)
		if err != nil {
			return fmt.Errorf("failed to verify storage value %d with key %s in storage trie %s: %w", i, key, res.StorageHash, err)
		}
		claimed := entry.Value.ToInt()
		if claimed.Sign() == 0 {
			if len(value) != 0 {
				return fmt.Errorf("storage slot %s claimed empty but proof holds %x: %w", key, value, ErrProofMismatch)
			}
			continue
		}
		claimedValue, err := rlp.EncodeToBytes(claimed.Bytes())
		if err != nil {
			return fmt.Errorf("failed to encode storage value %d: %w", i, err)
		}
		if !bytes.Equal(claimedValue, value) {
			return fmt.Errorf("storage slot %s claimed %x but proof holds %x: %w", key, claimedValue, value, ErrProofMismatch)
		}
	}
	return nil
}

func (res *AccountResult) claimsEmpty() bool {
	return res.Nonce == 0 &&
		(res.Balance == nil || res.Balance.ToInt().Sign() == 0) &&
		(res.StorageHash == types.EmptyRootHash || res.StorageHash == common.Hash{}) &&
		(res.CodeHash == types.EmptyCodeHash || res.CodeHash == common.Hash{})
}

// verifyNodes loads the proof nodes into an in-memory db and walks path from root.
// An absent key proves an empty value.
func verifyNodes(root common.Hash, path []byte, proof []hexutil.Bytes) ([]byte, error) {
	db := memorydb.New()
	for i, encodedNode := range proof {
		nodeKey := crypto.Keccak256(encodedNode)
		if err := db.Put(nodeKey, encodedNode); err != nil {
			return nil, fmt.Errorf("failed to load proof node %d into mem db: %w", i, err)
		}
	}
	return trie.VerifyProof(root, path, db)
}
