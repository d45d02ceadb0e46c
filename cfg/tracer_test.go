package cfg

import (
	"testing"

	"github.com/onchainlabs/proxion/vm"
)

// Tracer soundness on straight-line code: for a contract whose SLOAD key
// is produced by PUSH32 k, the Backward Slot Tracer returns Concrete(k).
func TestTraceStraightLinePush32ThenSload(t *testing.T) {
	key := make([]byte, 32)
	key[31] = 0x2a // 42

	code := append([]byte{byte(vm.PUSH1 + 31)}, key...)
	code = append(code, byte(vm.SLOAD), byte(vm.STOP))

	instrs := vm.Disassemble(code)
	graph, err := Build(instrs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sloadOffset := instrs[1].Offset // the SLOAD instruction, right after the PUSH32
	word := Trace(graph, 1, sloadOffset, make(map[uint64]bool))

	concrete, ok := word.(Concrete)
	if !ok {
		t.Fatalf("Trace returned %#v, want Concrete", word)
	}
	if len(concrete.Bytes) != 32 || concrete.Bytes[31] != 0x2a {
		t.Fatalf("Trace returned Concrete(%x), want the PUSH32 operand", concrete.Bytes)
	}
}

func TestTraceSHA3ResultIsHashed(t *testing.T) {
	code := []byte{
		byte(vm.PUSH1), 0, // size
		byte(vm.PUSH1), 0, // offset
		byte(vm.SHA3),
		byte(vm.SLOAD),
		byte(vm.STOP),
	}
	instrs := vm.Disassemble(code)
	graph, err := Build(instrs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sloadOffset := instrs[len(instrs)-2].Offset
	word := Trace(graph, 1, sloadOffset, make(map[uint64]bool))
	if _, ok := word.(Hashed); !ok {
		t.Fatalf("Trace returned %#v, want Hashed", word)
	}
}
