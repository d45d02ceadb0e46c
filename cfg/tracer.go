package cfg

import "github.com/onchainlabs/proxion/vm"

// Word is the sealed result of a backward trace,
// mirroring the Python original's ConcreteWord/HashedWord NamedTuples:
// a traced stack slot either resolves to a literal PUSH operand, to the
// (untracked) output of a SHA3, or is left unknown.
type Word interface {
	isWord()
}

// Concrete is a stack slot traced back to a literal PUSH operand.
type Concrete struct {
	Bytes []byte
}

func (Concrete) isWord() {}

// Hashed is a stack slot traced back to a SHA3 result, whose origin bytes
// this tracer does not attempt to recover — a Hashed word is excluded
// from slot-equality comparisons by any caller that needs equality.
type Hashed struct {
	Origin *string
}

func (Hashed) isWord() {}

// Trace implements the backward stack-slot walk: given the basic
// block containing pc, the 1-based stackIndex of the slot of interest,
// and a visited set guarding against cycles, it walks predecessor
// instructions in reverse looking for the PUSH (or SHA3) that produced
// the slot. Returns nil when the origin cannot be determined.
func Trace(g *Graph, stackIndex int, pc uint64, visited map[uint64]bool) Word {
	block := blockContaining(g, pc)
	if block == nil {
		return nil
	}
	startIdx := instructionIndexAtOrBefore(block, pc)
	return traceInBlock(g, block, startIdx, stackIndex, visited)
}

func blockContaining(g *Graph, pc uint64) *BasicBlock {
	var best *BasicBlock
	for _, start := range g.Order {
		b := g.Blocks[start]
		if b.Start <= pc && pc <= b.End {
			if best == nil || b.Start > best.Start {
				best = b
			}
		}
	}
	return best
}

func instructionIndexAtOrBefore(b *BasicBlock, pc uint64) int {
	idx := len(b.Instructions) - 1
	for i, instr := range b.Instructions {
		if instr.Offset == pc {
			idx = i
			break
		}
	}
	return idx
}

// traceInBlock walks block.Instructions[0:fromIdx+1] in reverse, tracking
// stackIndex as it goes, and recurses into predecessor blocks when it
// reaches the block's JUMPDEST-headed start without resolving.
func traceInBlock(g *Graph, block *BasicBlock, fromIdx, stackIndex int, visited map[uint64]bool) Word {
	if visited[block.Start] {
		return nil
	}

	for i := fromIdx; i >= 0; i-- {
		instr := block.Instructions[i]

		if instr.IsPush() && stackIndex == 1 {
			return Concrete{Bytes: append([]byte(nil), instr.Operand...)}
		}
		if instr.Op == vm.SHA3 && stackIndex == 1 {
			return Hashed{}
		}
		if vm.IsDup(instr.Op) {
			n := vm.DupPosition(instr.Op)
			if stackIndex == 1 {
				stackIndex = n + 1
			}
			continue
		}
		if vm.IsSwap(instr.Op) {
			n := vm.SwapPosition(instr.Op)
			switch stackIndex {
			case 1:
				stackIndex = n + 1
			case n + 1:
				stackIndex = 1
			}
			continue
		}
		if instr.IsJumpdest() {
			visited[block.Start] = true
			return traceAcrossPredecessors(g, block, stackIndex, visited)
		}

		stackIndex += instr.Pops - instr.Pushes
		if stackIndex < 1 {
			return nil
		}
	}

	// exhausted this block without resolving or hitting a JUMPDEST: fall
	// back to predecessors (the block may have started mid-program with
	// no explicit JUMPDEST, e.g. bytecode offset 0).
	visited[block.Start] = true
	return traceAcrossPredecessors(g, block, stackIndex, visited)
}

func traceAcrossPredecessors(g *Graph, block *BasicBlock, stackIndex int, visited map[uint64]bool) Word {
	preds := g.Pred[block.Start]
	for _, predStart := range preds {
		pred := g.Blocks[predStart]
		if pred == nil || len(pred.Instructions) == 0 {
			continue
		}
		if w := traceInBlock(g, pred, len(pred.Instructions)-1, stackIndex, visited); w != nil {
			return w
		}
	}
	return nil
}
