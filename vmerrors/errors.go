// Package vmerrors collects the typed error taxonomy the emulator and
// classifier surface, following go-ethereum's convention of sentinel
// errors (vm.ErrOutOfGas, vm.ErrExecutionReverted, ...) that callers can
// compare with errors.Is/errors.As instead of parsing message strings.
package vmerrors

import "fmt"

var (
	// ErrNoBytecode means the target account has no code at the requested block.
	ErrNoBytecode = fmt.Errorf("no bytecode at target address")

	// ErrExplorerUnavailable means a transport/protocol error reaching the chain occurred.
	// It is the only error class that aborts an entire classification rather than just a frame.
	ErrExplorerUnavailable = fmt.Errorf("explorer unavailable")

	// ErrMemoryBound means an auto-extension request exceeded the memory cap.
	ErrMemoryBound = fmt.Errorf("memory extension exceeds bound")

	// ErrCallUnresolved means a nested CALL/DELEGATECALL halted before RETURN/REVERT.
	ErrCallUnresolved = fmt.Errorf("nested call did not resolve to RETURN or REVERT")
)

// StackUnderflowError reports insufficient stack depth for a dispatched opcode.
type StackUnderflowError struct {
	Op       string
	Have     int
	Required int
}

func (e *StackUnderflowError) Error() string {
	return fmt.Sprintf("stack underflow executing %s: have %d, need %d", e.Op, e.Have, e.Required)
}

// BadJumpError reports a JUMP/JUMPI to an offset that is not a JUMPDEST.
// It halts only the frame it occurs in and is treated as a warning, not
// fatal to the overall classification.
type BadJumpError struct {
	Offset uint64
}

func (e *BadJumpError) Error() string {
	return fmt.Sprintf("bad jump destination 0x%x", e.Offset)
}

// InconcreteOpcodeError reports that execution encountered one or more
// consensus-dependent opcodes whose emulated value is a stand-in. The
// result the classifier produced around it must be treated as advisory.
type InconcreteOpcodeError struct {
	Opcodes []string
}

func (e *InconcreteOpcodeError) Error() string {
	return fmt.Sprintf("encountered inconcrete opcode(s): %v", e.Opcodes)
}

// InternalError wraps any other failure: disassembly mismatch, invalid
// instruction reached, or a programmer error. Fatal to the frame.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal emulation error: %v", e.Cause)
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}
