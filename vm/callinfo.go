package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallInfo is the synthetic call context an emulator frame executes
// against. StorageAddress differs from Address for
// DELEGATECALL/CALLCODE, where the caller's storage is retained rather
// than the callee's.
type CallInfo struct {
	Address        common.Address
	Caller         common.Address
	Origin         common.Address
	StorageAddress common.Address
	Calldata       []byte
	CallValue      *uint256.Int
	Gas            uint64
	CodeSize       uint64
}

// Copy returns a deep-enough copy of c for use by a nested frame.
func (c CallInfo) Copy() CallInfo {
	cp := c
	cp.Calldata = append([]byte(nil), c.Calldata...)
	if c.CallValue != nil {
		cp.CallValue = new(uint256.Int).Set(c.CallValue)
	}
	return cp
}

// DelegateRecord is appended to the outer frame's result for every
// DELEGATECALL observed during emulation.
type DelegateRecord struct {
	CallInfo   CallInfo
	ArgOffset  uint64
	ArgLength  uint64
	CallResult bool
	Nested     []*DelegateRecord
}

// UnresolvedCall records a nested CALL/DELEGATECALL that halted before a
// RETURN/REVERT, preventing the outer frame from determining success.
type UnresolvedCall struct {
	CallInfo   CallInfo
	CallResult *EmulationResult
}

// EmulationResult is what Emulator.Run returns after a frame halts.
type EmulationResult struct {
	LastOpcode        OpCode
	ReturnData        []byte
	Success           bool
	Unresolved        *UnresolvedCall
	DelegateRecords   []*DelegateRecord
	InconcreteOpcodes map[string]struct{}
}

// NewEmulationResult returns a zero-value EmulationResult with its maps/slices initialized.
func NewEmulationResult() *EmulationResult {
	return &EmulationResult{
		DelegateRecords:   nil,
		InconcreteOpcodes: make(map[string]struct{}),
	}
}

// InconcreteOpcodeNames returns the recorded inconcrete opcode names, sorted
// is left to callers that need deterministic order (e.g. JSON output).
func (r *EmulationResult) InconcreteOpcodeNames() []string {
	names := make([]string, 0, len(r.InconcreteOpcodes))
	for name := range r.InconcreteOpcodes {
		names = append(names, name)
	}
	return names
}
