package cpu

import (
	"errors"
	"fmt"
)

// Sentinel errors produced by Tick.
var (
	// ErrPcBreak is returned when the program counter has reached 0 at
	// the top of a tick. This is the normal termination signal.
	ErrPcBreak = errors.New("cpu: pc break")

	// ErrInvalidInterrupt is returned when a pending interrupt names a
	// bus that is not registered with the machine.
	ErrInvalidInterrupt = errors.New("cpu: invalid interrupt: bus not registered")

	// ErrDivideByZero is returned by DIV when the divisor is zero.
	ErrDivideByZero = errors.New("cpu: division by zero")

	// ErrUnknownOpcode is returned when a reserved opcode slot is fetched.
	ErrUnknownOpcode = errors.New("cpu: unknown opcode")
)

// Error wraps a runtime error with the program counter it occurred at.
type Error struct {
	PC  uint16
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%04x: %v", e.PC, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(pc uint16, err error) *Error {
	return &Error{PC: pc, Err: err}
}
