package testutils

import (
	"fmt"
	"maps"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"

	"github.com/mantlenetworkio/evm-gateway/op-service/eth"
)

type account struct {
	nonce   uint64
	balance *uint256.Int
	code    []byte
	storage map[common.Hash]common.Hash
}

// WorldState is an in-memory account/storage state that serves Merkle-Patricia proofs
// in the same shape as eth_getProof.
type WorldState struct {
	accounts map[common.Address]*account

	// built lazily, reset on mutation
	accountTrie  *trie.Trie
	storageTries map[common.Address]*trie.Trie
}

func NewWorldState() *WorldState {
	return &WorldState{accounts: make(map[common.Address]*account)}
}

func (w *WorldState) acc(addr common.Address) *account {
	a, ok := w.accounts[addr]
	if !ok {
		a = &account{balance: new(uint256.Int), storage: make(map[common.Hash]common.Hash)}
		w.accounts[addr] = a
	}
	w.accountTrie = nil
	return a
}

func (w *WorldState) SetStorage(addr common.Address, slot common.Hash, value common.Hash) *WorldState {
	w.acc(addr).storage[slot] = value
	return w
}

func (w *WorldState) SetStorageMap(addr common.Address, storage map[common.Hash]common.Hash) *WorldState {
	maps.Copy(w.acc(addr).storage, storage)
	return w
}

func (w *WorldState) SetCode(addr common.Address, code []byte) *WorldState {
	w.acc(addr).code = code
	return w
}

func (w *WorldState) SetBalance(addr common.Address, balance uint64) *WorldState {
	w.acc(addr).balance = uint256.NewInt(balance)
	return w
}

// Storage returns the raw word at slot, zero if unset.
func (w *WorldState) Storage(addr common.Address, slot common.Hash) common.Hash {
	if a, ok := w.accounts[addr]; ok {
		return a.storage[slot]
	}
	return common.Hash{}
}

func newTrie() *trie.Trie {
	return trie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
}

func (w *WorldState) build() {
	if w.accountTrie != nil {
		return
	}
	w.accountTrie = newTrie()
	w.storageTries = make(map[common.Address]*trie.Trie, len(w.accounts))
	for addr, a := range w.accounts {
		st := newTrie()
		for slot, value := range a.storage {
			if value == (common.Hash{}) {
				continue
			}
			enc, err := rlp.EncodeToBytes(common.TrimLeftZeroes(value[:]))
			if err != nil {
				panic(err)
			}
			st.MustUpdate(crypto.Keccak256(slot[:]), enc)
		}
		w.storageTries[addr] = st
		codeHash := types.EmptyCodeHash
		if len(a.code) > 0 {
			codeHash = crypto.Keccak256Hash(a.code)
		}
		enc, err := rlp.EncodeToBytes(&types.StateAccount{
			Nonce:    a.nonce,
			Balance:  a.balance,
			Root:     st.Hash(),
			CodeHash: codeHash[:],
		})
		if err != nil {
			panic(err)
		}
		w.accountTrie.MustUpdate(crypto.Keccak256(addr[:]), enc)
	}
}

// Root is the state root committing to every account.
func (w *WorldState) Root() common.Hash {
	w.build()
	return w.accountTrie.Hash()
}

// proofList collects trie nodes, root first.
type proofList []hexutil.Bytes

func (n *proofList) Put(key []byte, value []byte) error {
	*n = append(*n, value)
	return nil
}

func (n *proofList) Delete(key []byte) error {
	panic("not supported")
}

// GetProof returns the eth_getProof result for addr and the given storage keys.
func (w *WorldState) GetProof(addr common.Address, keys []common.Hash) (*eth.AccountResult, error) {
	w.build()
	res := &eth.AccountResult{
		Address:      addr,
		Balance:      new(hexutil.Big),
		CodeHash:     types.EmptyCodeHash,
		StorageHash:  types.EmptyRootHash,
		StorageProof: make([]eth.StorageProofEntry, 0, len(keys)),
	}
	var accountProof proofList
	if err := w.accountTrie.Prove(crypto.Keccak256(addr[:]), &accountProof); err != nil {
		return nil, fmt.Errorf("failed to prove account %s: %w", addr, err)
	}
	res.AccountProof = accountProof

	a, ok := w.accounts[addr]
	st := w.storageTries[addr]
	if ok {
		res.Nonce = hexutil.Uint64(a.nonce)
		res.Balance = (*hexutil.Big)(a.balance.ToBig())
		if len(a.code) > 0 {
			res.CodeHash = crypto.Keccak256Hash(a.code)
		}
		res.StorageHash = st.Hash()
	}
	for _, key := range keys {
		entry := eth.StorageProofEntry{Key: hexutil.Bytes(key[:]), Proof: []hexutil.Bytes{}}
		if ok {
			var p proofList
			if err := st.Prove(crypto.Keccak256(key[:]), &p); err != nil {
				return nil, fmt.Errorf("failed to prove slot %s: %w", key, err)
			}
			entry.Proof = p
			entry.Value = hexutil.Big(*w.Storage(addr, key).Big())
		}
		res.StorageProof = append(res.StorageProof, entry)
	}
	return res, nil
}
