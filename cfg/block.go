// Package cfg builds a control-flow graph over disassembled bytecode and
// implements the backward stack-slot tracer used to recover concrete
// values pushed before SLOAD/SSTORE/PUSH4-selector instructions.
package cfg

import "github.com/onchainlabs/proxion/vm"

// BasicBlock is a maximal straight-line run of instructions terminated by
// a flow-altering opcode (JUMP/JUMPI/STOP/RETURN/REVERT/INVALID/
// SELFDESTRUCT) or by falling into a JUMPDEST.
type BasicBlock struct {
	Start        uint64
	End          uint64
	Instructions []*vm.Instruction
	Out          []uint64 // successor block start offsets
}

// Last returns the block's final instruction, or nil if the block is empty.
func (b *BasicBlock) Last() *vm.Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[len(b.Instructions)-1]
}

// Graph is the full CFG: blocks keyed by start offset, plus a reverse-edge
// (predecessor) map built alongside it.
type Graph struct {
	Blocks map[uint64]*BasicBlock
	Pred   map[uint64][]uint64
	Order  []uint64 // block start offsets in program order
}
