package program

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxInstructions is the number of instruction bytes that follow the flag byte of a command.
	MaxInstructions = 31
	// MaxOperand is the largest operand an instruction can carry.
	MaxOperand = 0x1f

	FlagDynamic byte = 0x01
)

// Instruction is one byte of a command: opcode in the top 3 bits, operand in the bottom 5.
type Instruction byte

const (
	OpFollowConst Instruction = 0 << 5
	OpFollowRef   Instruction = 1 << 5
	OpAddConst    Instruction = 2 << 5
	// OpEnd is matched on the whole byte, not just the opcode bits.
	OpEnd Instruction = 0xff
)

func (i Instruction) Opcode() Instruction {
	return i & 0xe0
}

func (i Instruction) Operand() int {
	return int(i & 0x1f)
}

func (i Instruction) String() string {
	if i == OpEnd {
		return "END"
	}
	switch i.Opcode() {
	case OpFollowConst:
		return fmt.Sprintf("FOLLOW_CONST(%d)", i.Operand())
	case OpFollowRef:
		return fmt.Sprintf("FOLLOW_REF(%d)", i.Operand())
	case OpAddConst:
		return fmt.Sprintf("ADD_CONST(%d)", i.Operand())
	default:
		return fmt.Sprintf("UNKNOWN(%#02x)", byte(i))
	}
}

func FollowConst(index int) Instruction {
	return OpFollowConst | Instruction(index&MaxOperand)
}

func FollowRef(index int) Instruction {
	return OpFollowRef | Instruction(index&MaxOperand)
}

func AddConst(index int) Instruction {
	return OpAddConst | Instruction(index&MaxOperand)
}

// Command computes the base slot of one storage value.
// Byte 0 holds the flags, bytes 1..31 the instructions.
type Command [32]byte

// NewCommand packs instructions into a command word.
// Unused instruction bytes are filled with END.
func NewCommand(dynamic bool, instructions ...Instruction) (Command, error) {
	var c Command
	if len(instructions) > MaxInstructions {
		return c, fmt.Errorf("%w: %d instructions, at most %d fit a command", ErrTooManyInstructions, len(instructions), MaxInstructions)
	}
	if dynamic {
		c[0] = FlagDynamic
	}
	for i := 1; i < len(c); i++ {
		c[i] = byte(OpEnd)
	}
	for i, ins := range instructions {
		c[i+1] = byte(ins)
	}
	return c, nil
}

// MustCommand is NewCommand for statically known programs. It panics on error.
func MustCommand(dynamic bool, instructions ...Instruction) Command {
	c, err := NewCommand(dynamic, instructions...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Command) Flags() byte {
	return c[0]
}

// IsDynamic reports whether the value is a dynamically sized bytes/string value.
func (c Command) IsDynamic() bool {
	return c[0]&FlagDynamic != 0
}

// Instructions returns the instructions up to the first END, or all 31 if there is none.
func (c Command) Instructions() []Instruction {
	out := make([]Instruction, 0, MaxInstructions)
	for _, b := range c[1:] {
		if Instruction(b) == OpEnd {
			break
		}
		out = append(out, Instruction(b))
	}
	return out
}

func (c Command) Hash() common.Hash {
	return common.Hash(c)
}

func (c Command) String() string {
	var sb strings.Builder
	if c.IsDynamic() {
		sb.WriteString("dynamic")
	} else {
		sb.WriteString("fixed")
	}
	for _, ins := range c.Instructions() {
		sb.WriteByte(' ')
		sb.WriteString(ins.String())
	}
	return sb.String()
}
