package testutils

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SlotOf returns the slot number n as a storage key.
func SlotOf(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n))
}

// MappingSlot is the slot of key in a mapping declared at slot.
func MappingSlot(slot common.Hash, key []byte) common.Hash {
	return crypto.Keccak256Hash(key, slot[:])
}

// EncodeBytes lays out a Solidity bytes/string value rooted at slot.
// Values up to 31 bytes are kept inline with length*2 in the lowest byte,
// longer values store length*2+1 at slot and the data from keccak256(slot) onwards.
func EncodeBytes(slot common.Hash, data []byte) map[common.Hash]common.Hash {
	out := make(map[common.Hash]common.Hash)
	if len(data) < 32 {
		var word common.Hash
		copy(word[:], data)
		word[31] = byte(len(data) * 2)
		out[slot] = word
		return out
	}
	out[slot] = common.BigToHash(big.NewInt(int64(len(data)*2 + 1)))
	start := new(big.Int).SetBytes(crypto.Keccak256(slot[:]))
	for i := 0; i*32 < len(data); i++ {
		var word common.Hash
		copy(word[:], data[i*32:])
		out[common.BigToHash(new(big.Int).Add(start, big.NewInt(int64(i))))] = word
	}
	return out
}

// SetBytes stores a Solidity bytes/string value at slot of addr.
func (w *WorldState) SetBytes(addr common.Address, slot common.Hash, data []byte) *WorldState {
	return w.SetStorageMap(addr, EncodeBytes(slot, data))
}
