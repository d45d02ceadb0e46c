package vm

import (
	"github.com/holiman/uint256"
)

// VMState is the mutable execution context threaded through the emulator:
// stack, memory, storage, program counter, remaining gas,
// and the last dispatched instruction (kept for diagnostics/trace output).
type VMState struct {
	Stack           []uint256.Int
	Memory          *Memory
	Storage         *Storage
	PC              int
	Gas             uint64
	LastInstruction *Instruction
	Halted          bool
	ReturnData      []byte
	Reverted        bool
}

// NewVMState returns a fresh VMState with the given storage and starting gas.
func NewVMState(storage *Storage, gas uint64) *VMState {
	return &VMState{
		Stack:   make([]uint256.Int, 0, 16),
		Memory:  NewMemory(),
		Storage: storage,
		Gas:     gas,
	}
}

// Push pushes v onto the stack.
func (s *VMState) Push(v *uint256.Int) {
	s.Stack = append(s.Stack, *v)
}

// Pop removes and returns the top of stack. Returns vmerrors.StackUnderflowError via ok=false.
func (s *VMState) Pop() (*uint256.Int, bool) {
	n := len(s.Stack)
	if n == 0 {
		return nil, false
	}
	v := s.Stack[n-1]
	s.Stack = s.Stack[:n-1]
	return &v, true
}

// Peek returns the i-th element from the top (0-indexed) without popping.
func (s *VMState) Peek(i int) (*uint256.Int, bool) {
	n := len(s.Stack)
	if i < 0 || i >= n {
		return nil, false
	}
	v := s.Stack[n-1-i]
	return &v, true
}

// Swap exchanges the top of stack with the element i positions below it.
func (s *VMState) Swap(i int) bool {
	n := len(s.Stack)
	if i <= 0 || i >= n {
		return false
	}
	s.Stack[n-1], s.Stack[n-1-i] = s.Stack[n-1-i], s.Stack[n-1]
	return true
}

// Dup pushes a copy of the i-th element from the top (0-indexed).
func (s *VMState) Dup(i int) bool {
	v, ok := s.Peek(i)
	if !ok {
		return false
	}
	s.Push(v)
	return true
}
