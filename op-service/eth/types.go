package eth

import (
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type Bytes32 [32]byte

var bytes32Type = reflect.TypeOf(Bytes32{})

func (b *Bytes32) UnmarshalJSON(text []byte) error {
	return hexutil.UnmarshalFixedJSON(bytes32Type, text, b[:])
}

func (b *Bytes32) UnmarshalText(text []byte) error {
	return hexutil.UnmarshalFixedText("Bytes32", text, b[:])
}

func (b Bytes32) MarshalText() ([]byte, error) {
	return hexutil.Bytes(b[:]).MarshalText()
}

func (b Bytes32) String() string {
	return hexutil.Encode(b[:])
}

// TerminalString implements log.TerminalStringer, formatting a string for console
// output during logging.
func (b Bytes32) TerminalString() string {
	return fmt.Sprintf("%x..%x", b[:3], b[29:])
}

// BlockLabel is a named block tag accepted by the eth JSON-RPC namespace.
type BlockLabel string

const (
	// Unsafe is the latest block, on L2 possibly not yet derived from L1.
	Unsafe BlockLabel = "latest"
	// Safe is the latest block whose inputs are considered safe.
	Safe BlockLabel = "safe"
	// Finalized is the latest block that can no longer be reorged.
	Finalized BlockLabel = "finalized"
)

func (label BlockLabel) Arg() any { return string(label) }

// BlockID identifies a block by hash and number.
type BlockID struct {
	Hash   common.Hash `json:"hash"`
	Number uint64      `json:"number"`
}

func (id BlockID) String() string {
	return fmt.Sprintf("%s:%d", id.Hash.String(), id.Number)
}

// TerminalString implements log.TerminalStringer, formatting a string for console
// output during logging.
func (id BlockID) TerminalString() string {
	return fmt.Sprintf("%s:%d", id.Hash.TerminalString(), id.Number)
}
