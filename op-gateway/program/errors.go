package program

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOpcode       = errors.New("unknown opcode")
	ErrOperandOutOfRange   = errors.New("operand out of range")
	ErrConstantTooLong     = errors.New("constant does not fit 32 bytes")
	ErrTooManyInstructions = errors.New("too many instructions")

	// ErrValueTooLong is returned for dynamic values whose encoded length exceeds the configured maximum.
	ErrValueTooLong = errors.New("dynamic value too long")
	// ErrMalformedValue is returned when storage does not hold a valid dynamic value encoding.
	ErrMalformedValue = errors.New("malformed dynamic value")
)

// ProgramError is a defect of the submitted program. It is never retried.
type ProgramError struct {
	// Command is the index of the failing command in its batch.
	Command int
	// Pos is the instruction position within the command.
	Pos int
	Err error
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("invalid program: command %d, instruction %d: %v", e.Command, e.Pos, e.Err)
}

func (e *ProgramError) Unwrap() error {
	return e.Err
}

// DependencyError is returned when a command depends on an earlier command that failed.
type DependencyError struct {
	Index int
	Err   error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency on command %d failed: %v", e.Index, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// IsProgramError reports whether err is caused by the program itself rather than by the chain or network.
func IsProgramError(err error) bool {
	var pe *ProgramError
	return errors.As(err, &pe)
}
