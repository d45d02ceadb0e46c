package cfg

import (
	"testing"

	"github.com/onchainlabs/proxion/vm"
)

// A PUSH-preceded JUMP to a JUMPDEST contributes a successor edge; the
// reverse-edge map records the predecessor relationship.
func TestBuildResolvesPushPrecededJump(t *testing.T) {
	code := []byte{
		byte(vm.PUSH1), 5, // target offset
		byte(vm.JUMP),
		byte(vm.INVALID), // offset 3, dead code
		byte(vm.INVALID), // offset 4
		byte(vm.JUMPDEST), // offset 5
		byte(vm.STOP),
	}
	instrs := vm.Disassemble(code)
	graph, err := Build(instrs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	entry := graph.Blocks[0]
	if len(entry.Out) != 1 || entry.Out[0] != 5 {
		t.Fatalf("entry block successors = %v, want [5]", entry.Out)
	}
	preds := graph.Pred[5]
	if len(preds) != 1 || preds[0] != 0 {
		t.Fatalf("predecessors of block 5 = %v, want [0]", preds)
	}
}

// JUMPI always has a fallthrough successor, plus the PUSH-preceded target
// when resolvable.
func TestBuildJUMPISuccessors(t *testing.T) {
	code := []byte{
		byte(vm.PUSH1), 0x00, // condition
		byte(vm.PUSH1), 6, // target offset
		byte(vm.JUMPI), // offset 4
		byte(vm.INVALID), // offset 5 (fallthrough)
		byte(vm.JUMPDEST), // offset 6
		byte(vm.STOP),
	}
	instrs := vm.Disassemble(code)
	graph, err := Build(instrs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	entry := graph.Blocks[0]
	wantOut := map[uint64]bool{5: true, 6: true}
	if len(entry.Out) != 2 {
		t.Fatalf("entry block successors = %v, want two edges (fallthrough + target)", entry.Out)
	}
	for _, o := range entry.Out {
		if !wantOut[o] {
			t.Fatalf("unexpected successor %d, want one of %v", o, wantOut)
		}
	}
}

// A JUMP whose target cannot be resolved at disassembly time (no
// preceding PUSH) contributes no successor edge.
func TestBuildUnresolvedJumpHasNoSuccessor(t *testing.T) {
	code := []byte{
		byte(vm.PUSH1), 2, // push something unrelated to the jump target
		byte(vm.POP),
		byte(vm.JUMP), // offset 3, no immediately preceding PUSH
	}
	instrs := vm.Disassemble(code)
	graph, err := Build(instrs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	entry := graph.Blocks[0]
	if len(entry.Out) != 0 {
		t.Fatalf("unresolved JUMP successors = %v, want none", entry.Out)
	}
}
