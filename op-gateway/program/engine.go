// Package program interprets slot programs: compact bytecode that derives EVM storage slots
// the way Solidity lays out mappings, arrays and struct fields, and decodes the values found there.
package program

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/mantlenetworkio/evm-gateway/op-service/sources/caching"
)

// DefaultMaxDynamicLength bounds the length of a dynamic value, and thus the number of slots it spans.
const DefaultMaxDynamicLength = 1 << 20

// StorageReader reads raw storage words of one contract at one block.
type StorageReader interface {
	StorageAt(ctx context.Context, slot common.Hash) (common.Hash, error)
}

// StorageReaderFunc adapts a function to a StorageReader.
type StorageReaderFunc func(ctx context.Context, slot common.Hash) (common.Hash, error)

func (fn StorageReaderFunc) StorageAt(ctx context.Context, slot common.Hash) (common.Hash, error) {
	return fn(ctx, slot)
}

type Config struct {
	// MaxDynamicLength is the largest dynamic value, in bytes, that is decoded. 0 means the default.
	MaxDynamicLength uint64
}

type Engine struct {
	maxDynamicLength uint64
}

func NewEngine(cfg Config) *Engine {
	maxLen := cfg.MaxDynamicLength
	if maxLen == 0 {
		maxLen = DefaultMaxDynamicLength
	}
	return &Engine{maxDynamicLength: maxLen}
}

// FollowMapping derives the slot of key in the mapping rooted at slot: keccak256(key ++ uint256(slot)).
func FollowMapping(slot common.Hash, key []byte) common.Hash {
	return crypto.Keccak256Hash(key, slot[:])
}

// ComputeBaseSlot runs the instructions of cmd and returns the resulting slot.
// prior holds the elements of the commands before cmd in its batch, and nothing else:
// FOLLOW_REF can only name earlier commands.
func (e *Engine) ComputeBaseSlot(ctx context.Context, cmd Command, constants [][]byte, prior []*caching.Future[*StorageElement]) (common.Hash, error) {
	index := len(prior)
	var slot uint256.Int
	for pos, ins := range cmd.Instructions() {
		operand := ins.Operand()
		switch ins.Opcode() {
		case OpFollowConst:
			if operand >= len(constants) {
				return common.Hash{}, &ProgramError{Command: index, Pos: pos, Err: fmt.Errorf("%w: constant %d of %d", ErrOperandOutOfRange, operand, len(constants))}
			}
			slot.SetBytes32(FollowMapping(slot.Bytes32(), constants[operand]).Bytes())
		case OpFollowRef:
			if operand >= len(prior) {
				return common.Hash{}, &ProgramError{Command: index, Pos: pos, Err: fmt.Errorf("%w: reference %d from command %d", ErrOperandOutOfRange, operand, index)}
			}
			elem, err := prior[operand].Wait(ctx)
			if err != nil {
				return common.Hash{}, &DependencyError{Index: operand, Err: err}
			}
			key, err := elem.Value(ctx)
			if err != nil {
				return common.Hash{}, &DependencyError{Index: operand, Err: err}
			}
			slot.SetBytes32(FollowMapping(slot.Bytes32(), key).Bytes())
		case OpAddConst:
			if operand >= len(constants) {
				return common.Hash{}, &ProgramError{Command: index, Pos: pos, Err: fmt.Errorf("%w: constant %d of %d", ErrOperandOutOfRange, operand, len(constants))}
			}
			c := constants[operand]
			if len(c) > 32 {
				return common.Hash{}, &ProgramError{Command: index, Pos: pos, Err: fmt.Errorf("%w: %d bytes", ErrConstantTooLong, len(c))}
			}
			// wraps modulo 2**256, like slot arithmetic on chain
			slot.Add(&slot, new(uint256.Int).SetBytes(c))
		default:
			return common.Hash{}, &ProgramError{Command: index, Pos: pos, Err: fmt.Errorf("%w: %#02x", ErrUnknownOpcode, byte(ins))}
		}
	}
	return slot.Bytes32(), nil
}

// Resolve computes the base slot of cmd and describes the value stored there.
// Fixed values occupy the base slot only. Dynamic values are decoded from the base word:
// the short form keeps up to 31 bytes inline, the long form stores the length in the base
// slot and the data in consecutive slots starting at keccak256(base).
func (e *Engine) Resolve(ctx context.Context, reader StorageReader, cmd Command, constants [][]byte, prior []*caching.Future[*StorageElement]) (*StorageElement, error) {
	base, err := e.ComputeBaseSlot(ctx, cmd, constants, prior)
	if err != nil {
		return nil, err
	}
	if !cmd.IsDynamic() {
		return newLazyElement([]common.Hash{base}, false, func(ctx context.Context) ([]byte, error) {
			word, err := reader.StorageAt(ctx, base)
			if err != nil {
				return nil, err
			}
			return word.Bytes(), nil
		}), nil
	}
	return e.resolveDynamic(ctx, reader, base)
}

func (e *Engine) resolveDynamic(ctx context.Context, reader StorageReader, base common.Hash) (*StorageElement, error) {
	word, err := reader.StorageAt(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("failed to read dynamic value header at slot %s: %w", base, err)
	}
	if word[31]&0x01 == 0 {
		length := int(word[31] / 2)
		if length > 31 {
			return nil, fmt.Errorf("%w: short value at slot %s claims %d bytes", ErrMalformedValue, base, length)
		}
		return newResolvedElement([]common.Hash{base}, true, word[:length]), nil
	}

	// long form: the word is length*2 + 1
	var n uint256.Int
	n.SetBytes32(word[:])
	n.Rsh(&n, 1)
	if !n.IsUint64() || n.Uint64() > e.maxDynamicLength {
		return nil, fmt.Errorf("%w: value at slot %s exceeds %d bytes", ErrValueTooLong, base, e.maxDynamicLength)
	}
	length := n.Uint64()
	count := (length + 31) / 32

	var start uint256.Int
	start.SetBytes32(crypto.Keccak256(base[:]))
	data := make([]common.Hash, count)
	for i := range data {
		var s uint256.Int
		s.AddUint64(&start, uint64(i))
		data[i] = s.Bytes32()
	}
	slots := make([]common.Hash, 0, 1+count)
	slots = append(slots, base)
	slots = append(slots, data...)

	return newLazyElement(slots, true, func(ctx context.Context) ([]byte, error) {
		words := make([]common.Hash, len(data))
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range data {
			g.Go(func() error {
				w, err := reader.StorageAt(gctx, s)
				if err != nil {
					return fmt.Errorf("failed to read slot %s of dynamic value: %w", s, err)
				}
				words[i] = w
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(words)*32)
		for _, w := range words {
			out = append(out, w[:]...)
		}
		return out[:length], nil
	}), nil
}
