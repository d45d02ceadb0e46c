package vm

// Disassemble walks runtime bytecode sequentially, translating it
// into an ordered list of Instructions. Unknown bytes (no opcodeTable
// entry, and not a PUSH-range byte) produce an INVALID-categorised
// instruction — dispatching it halts the interpreter.
func Disassemble(code []byte) []*Instruction {
	instrs := make([]*Instruction, 0, len(code))
	for pc := 0; pc < len(code); {
		op := OpCode(code[pc])
		offset := uint64(pc)

		if IsPush(op) {
			size := PushSize(op)
			end := pc + 1 + size
			if end > len(code) {
				end = len(code)
			}
			operand := append([]byte(nil), code[pc+1:end]...)
			instrs = append(instrs, &Instruction{
				Offset:   offset,
				Op:       op,
				Name:     pushName(size),
				Pops:     0,
				Pushes:   1,
				Fee:      3,
				category: catPushDupSwapLog,
				Operand:  operand,
			})
			pc = end
			continue
		}

		info, ok := opcodeTable[op]
		if !ok {
			instrs = append(instrs, &Instruction{
				Offset:   offset,
				Op:       op,
				Name:     "INVALID",
				category: catSystem,
			})
			pc++
			continue
		}

		instrs = append(instrs, &Instruction{
			Offset:   offset,
			Op:       op,
			Name:     info.name,
			Pops:     info.pops,
			Pushes:   info.pushes,
			Fee:      info.fee,
			category: info.category,
		})
		pc++
	}
	return instrs
}

// OffsetIndex builds a byte-offset → instruction-list-index map in a
// single pass, so JUMP/JUMPI target resolution is O(1) instead of a
// linear scan per jump.
func OffsetIndex(instrs []*Instruction) map[uint64]int {
	idx := make(map[uint64]int, len(instrs))
	for i, instr := range instrs {
		idx[instr.Offset] = i
	}
	return idx
}
