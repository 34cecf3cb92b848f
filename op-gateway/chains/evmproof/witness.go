package evmproof

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mantlenetworkio/evm-gateway/op-service/eth"
)

var (
	bytesListType = MustType("bytes[]")

	// WitnessType is (bytes stateTrieWitness, bytes[] storageProofs), each element an abi encoded bytes[].
	WitnessType = MustType("tuple",
		abi.ArgumentMarshaling{Name: "stateTrieWitness", Type: "bytes"},
		abi.ArgumentMarshaling{Name: "storageProofs", Type: "bytes[]"},
	)

	// RawWitnessType is (bytes[] stateTrieWitness, bytes[][] storageProofs), the proof nodes as they are.
	RawWitnessType = MustType("tuple",
		abi.ArgumentMarshaling{Name: "stateTrieWitness", Type: "bytes[]"},
		abi.ArgumentMarshaling{Name: "storageProofs", Type: "bytes[][]"},
	)
)

// MustType builds an abi type, panicking on malformed declarations.
func MustType(t string, components ...abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

// Witness is the value of WitnessType.
type Witness struct {
	StateTrieWitness []byte
	StorageProofs    [][]byte
}

// RawWitness is the value of RawWitnessType.
type RawWitness struct {
	StateTrieWitness [][]byte
	StorageProofs    [][][]byte
}

func toBytesList(nodes []hexutil.Bytes) [][]byte {
	out := make([][]byte, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}

// NewRawWitness copies the account and storage proof nodes of res.
func NewRawWitness(res *eth.AccountResult) RawWitness {
	w := RawWitness{
		StateTrieWitness: toBytesList(res.AccountProof),
		StorageProofs:    make([][][]byte, len(res.StorageProof)),
	}
	for i, p := range res.StorageProof {
		w.StorageProofs[i] = toBytesList(p.Proof)
	}
	return w
}

// EncodeNodes abi encodes a list of trie nodes as bytes[].
func EncodeNodes(nodes [][]byte) ([]byte, error) {
	return abi.Arguments{{Type: bytesListType}}.Pack(nodes)
}

// NewWitness flattens the account proof and every storage proof of res into abi encoded node lists.
func NewWitness(res *eth.AccountResult) (Witness, error) {
	raw := NewRawWitness(res)
	account, err := EncodeNodes(raw.StateTrieWitness)
	if err != nil {
		return Witness{}, fmt.Errorf("failed to encode account proof: %w", err)
	}
	w := Witness{StateTrieWitness: account, StorageProofs: make([][]byte, len(raw.StorageProofs))}
	for i, nodes := range raw.StorageProofs {
		if w.StorageProofs[i], err = EncodeNodes(nodes); err != nil {
			return Witness{}, fmt.Errorf("failed to encode storage proof %d: %w", i, err)
		}
	}
	return w, nil
}

// EncodeBundle abi encodes a chain specific commitment of type commitmentType, followed by witness.
func EncodeBundle(commitmentType abi.Type, commitment any, witnessType abi.Type, witness any) ([]byte, error) {
	out, err := abi.Arguments{{Type: commitmentType}, {Type: witnessType}}.Pack(commitment, witness)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proof bundle: %w", err)
	}
	return out, nil
}
