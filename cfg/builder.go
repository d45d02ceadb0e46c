package cfg

import "github.com/onchainlabs/proxion/vm"

func isTerminator(op vm.OpCode) bool {
	switch op {
	case vm.JUMP, vm.JUMPI, vm.STOP, vm.RETURN, vm.REVERT, vm.INVALID, vm.SELFDESTRUCT:
		return true
	default:
		return false
	}
}

// Build performs a linear scan of instrs, splitting it into basic blocks
// at every flow-altering opcode and at every JUMPDEST landing pad, then
// builds the reverse-edge predecessor map.
func Build(instrs []*vm.Instruction) (*Graph, error) {
	g := &Graph{
		Blocks: make(map[uint64]*BasicBlock),
		Pred:   make(map[uint64][]uint64),
	}
	if len(instrs) == 0 {
		return g, nil
	}

	offsetIdx := vm.OffsetIndex(instrs)

	var current *BasicBlock
	startBlock := func(i int) {
		current = &BasicBlock{Start: instrs[i].Offset}
		g.Blocks[current.Start] = current
		g.Order = append(g.Order, current.Start)
	}
	startBlock(0)

	for i, instr := range instrs {
		if instr.IsJumpdest() && instr.Offset != current.Start && len(current.Instructions) > 0 {
			// falling through into a JUMPDEST starts a new block
			current.Out = append(current.Out, instr.Offset)
			g.Pred[instr.Offset] = append(g.Pred[instr.Offset], current.Start)
			startBlock(i)
		}
		current.Instructions = append(current.Instructions, instr)
		current.End = instr.Offset

		if isTerminator(instr.Op) {
			resolveSuccessors(g, current, instr, instrs, offsetIdx, i)
			if i+1 < len(instrs) {
				startBlock(i + 1)
			}
		}
	}

	return g, nil
}

// resolveSuccessors implements the successor rule: JUMP/JUMPI targets
// are only known when the immediately preceding instruction is a PUSH
// (the jump destination is then a concrete, disassembly-time constant);
// otherwise the jump is symbolic and contributes no successor edge.
func resolveSuccessors(g *Graph, block *BasicBlock, terminator *vm.Instruction, instrs []*vm.Instruction, offsetIdx map[uint64]int, termIdx int) {
	switch terminator.Op {
	case vm.JUMP:
		if target, ok := pushedTarget(instrs, offsetIdx, termIdx); ok {
			block.Out = append(block.Out, target)
			g.Pred[target] = append(g.Pred[target], block.Start)
		}
	case vm.JUMPI:
		fallthroughOffset := terminator.Offset + 1
		block.Out = append(block.Out, fallthroughOffset)
		g.Pred[fallthroughOffset] = append(g.Pred[fallthroughOffset], block.Start)
		if target, ok := pushedTarget(instrs, offsetIdx, termIdx); ok {
			block.Out = append(block.Out, target)
			g.Pred[target] = append(g.Pred[target], block.Start)
		}
	default:
		// STOP/RETURN/REVERT/INVALID/SELFDESTRUCT: terminal, no successors
	}
}

// pushedTarget returns the jump destination when the instruction
// immediately preceding the JUMP/JUMPI at termIdx is a PUSH, and that
// offset resolves to an actual JUMPDEST in the instruction stream.
func pushedTarget(instrs []*vm.Instruction, offsetIdx map[uint64]int, termIdx int) (uint64, bool) {
	if termIdx == 0 {
		return 0, false
	}
	prev := instrs[termIdx-1]
	if !prev.IsPush() {
		return 0, false
	}
	target := prev.OperandValue().Uint64()
	i, ok := offsetIdx[target]
	if !ok || !instrs[i].IsJumpdest() {
		return 0, false
	}
	return target, true
}
