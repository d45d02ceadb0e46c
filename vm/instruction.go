package vm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Instruction is one disassembled opcode: offset,
// mnemonic, category flags, pop/push arity, nominal gas fee, and — for
// PUSH-family opcodes — the raw immediate bytes and their integer value.
type Instruction struct {
	Offset   uint64
	Op       OpCode
	Name     string
	Pops     int
	Pushes   int
	Fee      uint64
	category category
	Operand  []byte // raw immediate bytes, PUSH-family only
}

func (i *Instruction) String() string {
	if len(i.Operand) > 0 {
		return fmt.Sprintf("0x%04x %s 0x%x", i.Offset, i.Name, i.Operand)
	}
	return fmt.Sprintf("0x%04x %s", i.Offset, i.Name)
}

func (i *Instruction) IsArithmetic() bool         { return i.category == catArithmetic }
func (i *Instruction) IsComparisonLogic() bool     { return i.category == catComparisonLogic }
func (i *Instruction) IsSHA3() bool                { return i.category == catSHA3 }
func (i *Instruction) IsEnvironmental() bool       { return i.category == catEnvironmental }
func (i *Instruction) IsBlockInfo() bool           { return i.category == catBlockInfo }
func (i *Instruction) IsStackMemStorageFlow() bool { return i.category == catStackMemStorageFlow }
func (i *Instruction) IsPushDupSwapLog() bool      { return i.category == catPushDupSwapLog }
func (i *Instruction) IsSystem() bool              { return i.category == catSystem }
func (i *Instruction) IsPush() bool                { return IsPush(i.Op) }
func (i *Instruction) IsJumpdest() bool            { return i.Op == JUMPDEST }

// OperandValue returns the PUSH-family operand as a 256-bit integer,
// zero for non-PUSH instructions.
func (i *Instruction) OperandValue() *uint256.Int {
	return new(uint256.Int).SetBytes(i.Operand)
}
