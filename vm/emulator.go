package vm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/onchainlabs/proxion/vmerrors"
)

// Emulator interprets a single VMState to completion: a halt-loop that
// fetches, dispatches and loops until a halt flag is set, never
// using panics/exceptions for control flow — every dispatch arm returns
// an explicit (halt, error) pair instead.
type Emulator struct {
	handler   *Handler
	state     *VMState
	callinfo  CallInfo
	debug     bool
	result    *EmulationResult
	instrs    []*Instruction
	offsetIdx map[uint64]int
	returnBuf []byte
	rawCode   []byte
}

// NewEmulator returns an Emulator for callinfo, dispatching against state
// and delegating CALL-family/CREATE-family opcodes to handler.
func NewEmulator(handler *Handler, state *VMState, callinfo CallInfo, debug bool) *Emulator {
	return &Emulator{
		handler:  handler,
		state:    state,
		callinfo: callinfo,
		debug:    debug,
	}
}

// Run disassembles code and executes it to a halt, returning the frame's result.
func (e *Emulator) Run(code []byte) (*EmulationResult, error) {
	e.rawCode = code
	e.instrs = Disassemble(code)
	e.offsetIdx = OffsetIndex(e.instrs)
	e.result = NewEmulationResult()

	idx := 0
	for idx < len(e.instrs) {
		instr := e.instrs[idx]
		e.state.LastInstruction = instr
		e.state.PC = int(instr.Offset)

		if e.debug {
			log.Trace("emulate: dispatch", "pc", instr.Offset, "op", instr.Name, "gas", e.state.Gas)
		}

		if instr.Fee <= e.state.Gas {
			e.state.Gas -= instr.Fee
		} else {
			e.state.Gas = 0
		}

		halt, next, err := e.dispatch(instr, idx)
		if halt {
			e.state.Halted = true
			e.result.LastOpcode = instr.Op
			return e.result, err
		}
		if err != nil {
			return e.result, err
		}
		idx = next
	}
	return e.result, nil
}

func (e *Emulator) dispatch(instr *Instruction, idx int) (halt bool, next int, err error) {
	switch {
	case instr.IsArithmetic():
		return e.dispatchArithmetic(instr, idx)
	case instr.IsComparisonLogic():
		return e.dispatchComparisonLogic(instr, idx)
	case instr.IsSHA3():
		return e.dispatchSHA3(instr, idx)
	case instr.IsEnvironmental():
		return e.dispatchEnvironmental(instr, idx)
	case instr.IsBlockInfo():
		return e.dispatchBlockInfo(instr, idx)
	case instr.IsStackMemStorageFlow():
		return e.dispatchStackMemStorageFlow(instr, idx)
	case instr.IsPushDupSwapLog():
		return e.dispatchPushDupSwapLog(instr, idx)
	case instr.IsSystem():
		return e.dispatchSystem(instr, idx)
	default:
		return true, idx, &vmerrors.InternalError{Cause: fmt.Errorf("unreachable instruction category for op 0x%02x", byte(instr.Op))}
	}
}

func (e *Emulator) pop(op string, n int) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, n)
	for i := 0; i < n; i++ {
		v, ok := e.state.Pop()
		if !ok {
			return nil, &vmerrors.StackUnderflowError{Op: op, Have: i, Required: n}
		}
		out[i] = v
	}
	return out, nil
}

func (e *Emulator) markInconcrete(name string) {
	e.result.InconcreteOpcodes[name] = struct{}{}
}

// --- Arithmetic ---

func (e *Emulator) dispatchArithmetic(instr *Instruction, idx int) (bool, int, error) {
	ops, err := e.pop(instr.Name, 2)
	if err != nil {
		return true, idx, err
	}
	x, y := ops[0], ops[1]
	z := new(uint256.Int)

	switch instr.Op {
	case ADD:
		z.Add(x, y)
	case MUL:
		z.Mul(x, y)
	case SUB:
		z.Sub(x, y)
	case DIV:
		z.Div(x, y)
	case SDIV:
		z.SDiv(x, y)
	case MOD:
		z.Mod(x, y)
	case SMOD:
		z.SMod(x, y)
	case EXP:
		z.Exp(x, y)
	case SIGNEXTEND:
		z.ExtendSign(y, x)
	case ADDMOD:
		ops2, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		m := ops2[0]
		if m.IsZero() {
			z.Clear()
		} else {
			z.AddMod(x, y, m)
		}
	case MULMOD:
		ops2, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		m := ops2[0]
		if m.IsZero() {
			z.Clear()
		} else {
			z.MulMod(x, y, m)
		}
	}
	e.state.Push(z)
	return false, idx + 1, nil
}

// --- Comparison/logic ---

func (e *Emulator) dispatchComparisonLogic(instr *Instruction, idx int) (bool, int, error) {
	arity := instr.Pops
	ops, err := e.pop(instr.Name, arity)
	if err != nil {
		return true, idx, err
	}
	z := new(uint256.Int)

	boolResult := func(b bool) {
		if b {
			z.SetOne()
		} else {
			z.Clear()
		}
	}

	switch instr.Op {
	case LT:
		boolResult(ops[0].Lt(ops[1]))
	case GT:
		boolResult(ops[0].Gt(ops[1]))
	case SLT:
		boolResult(ops[0].Slt(ops[1]))
	case SGT:
		boolResult(ops[0].Sgt(ops[1]))
	case EQ:
		boolResult(ops[0].Eq(ops[1]))
	case ISZERO:
		boolResult(ops[0].IsZero())
	case AND:
		z.And(ops[0], ops[1])
	case OR:
		z.Or(ops[0], ops[1])
	case XOR:
		z.Xor(ops[0], ops[1])
	case NOT:
		z.Not(ops[0])
	case BYTE:
		z.Set(ops[1])
		z.Byte(ops[0])
	case SHL:
		if ops[0].LtUint64(256) {
			z.Lsh(ops[1], uint(ops[0].Uint64()))
		}
	case SHR:
		if ops[0].LtUint64(256) {
			z.Rsh(ops[1], uint(ops[0].Uint64()))
		}
	case SAR:
		if ops[0].GtUint64(256) {
			if ops[1].Sign() >= 0 {
				z.Clear()
			} else {
				z.SetAllOne()
			}
		} else {
			z.SRsh(ops[1], uint(ops[0].Uint64()))
		}
	}
	e.state.Push(z)
	return false, idx + 1, nil
}

// --- SHA3") ---

func (e *Emulator) dispatchSHA3(instr *Instruction, idx int) (bool, int, error) {
	ops, err := e.pop(instr.Name, 2)
	if err != nil {
		return true, idx, err
	}
	pos, n := ops[0].Uint64(), ops[1].Uint64()
	data := e.state.Memory.Slice(pos, pos+n)
	hash := crypto.Keccak256(data)
	e.state.Push(new(uint256.Int).SetBytes(hash))
	return false, idx + 1, nil
}

func wordFromAddress(a [20]byte) *uint256.Int {
	return new(uint256.Int).SetBytes(a[:])
}

// --- Environmental ---

func (e *Emulator) dispatchEnvironmental(instr *Instruction, idx int) (bool, int, error) {
	switch instr.Op {
	case ADDRESS:
		addr := e.callinfo.Address
		e.state.Push(wordFromAddress(addr))
	case CALLER:
		e.state.Push(wordFromAddress(e.callinfo.Caller))
	case ORIGIN:
		e.markInconcrete("ORIGIN")
		e.state.Push(wordFromAddress(e.callinfo.Origin))
	case CALLVALUE:
		v := e.callinfo.CallValue
		if v == nil {
			v = new(uint256.Int)
		}
		e.state.Push(v)
	case CALLDATASIZE:
		e.state.Push(uint256.NewInt(uint64(len(e.callinfo.Calldata))))
	case CODESIZE:
		e.state.Push(uint256.NewInt(e.callinfo.CodeSize))
	case GASPRICE:
		e.markInconcrete("GASPRICE")
		e.state.Push(e.handler.GetGasPrice())
	case BALANCE:
		ops, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		e.markInconcrete("BALANCE")
		addr := addressFromWord(ops[0])
		e.state.Push(e.handler.GetBalance(addr))
	case EXTCODESIZE:
		ops, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		addr := addressFromWord(ops[0])
		e.state.Push(uint256.NewInt(e.handler.GetExtCodeSize(addr)))
	case EXTCODEHASH:
		ops, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		addr := addressFromWord(ops[0])
		hash := e.handler.GetExtCodeHash(addr)
		e.state.Push(new(uint256.Int).SetBytes(hash.Bytes()))
	case CALLDATALOAD:
		ops, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		off := ops[0].Uint64()
		e.state.Push(new(uint256.Int).SetBytes(rightPad32(e.callinfo.Calldata, off)))
	case CALLDATACOPY:
		ops, err := e.pop(instr.Name, 3)
		if err != nil {
			return true, idx, err
		}
		dest, off, length := ops[0].Uint64(), ops[1].Uint64(), ops[2].Uint64()
		if err := e.state.Memory.StoreBytes(dest, sliceOrZero(e.callinfo.Calldata, off, length)); err != nil {
			return true, idx, err
		}
	case CODECOPY:
		ops, err := e.pop(instr.Name, 3)
		if err != nil {
			return true, idx, err
		}
		dest, off, length := ops[0].Uint64(), ops[1].Uint64(), ops[2].Uint64()
		code := e.currentCode()
		if err := e.state.Memory.StoreBytes(dest, sliceOrZero(code, off, length)); err != nil {
			return true, idx, err
		}
	case EXTCODECOPY:
		ops, err := e.pop(instr.Name, 4)
		if err != nil {
			return true, idx, err
		}
		addr := addressFromWord(ops[0])
		dest, off, length := ops[1].Uint64(), ops[2].Uint64(), ops[3].Uint64()
		extCode, _ := e.handler.code(addr)
		if err := e.state.Memory.StoreBytes(dest, sliceOrZero(extCode, off, length)); err != nil {
			return true, idx, err
		}
	case RETURNDATASIZE:
		e.state.Push(uint256.NewInt(uint64(len(e.returnBuf))))
	case RETURNDATACOPY:
		ops, err := e.pop(instr.Name, 3)
		if err != nil {
			return true, idx, err
		}
		dest, off, length := ops[0].Uint64(), ops[1].Uint64(), ops[2].Uint64()
		if err := e.state.Memory.StoreBytes(dest, sliceOrZero(e.returnBuf, off, length)); err != nil {
			return true, idx, err
		}
	}
	return false, idx + 1, nil
}

func addressFromWord(w *uint256.Int) [20]byte {
	b := w.Bytes32()
	var a [20]byte
	copy(a[:], b[12:])
	return a
}

func rightPad32(data []byte, off uint64) []byte {
	buf := make([]byte, 32)
	if off >= uint64(len(data)) {
		return buf
	}
	end := off + 32
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	copy(buf, data[off:end])
	return buf
}

func sliceOrZero(data []byte, off, length uint64) []byte {
	out := make([]byte, length)
	if off >= uint64(len(data)) {
		return out
	}
	end := off + length
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	copy(out, data[off:end])
	return out
}

func (e *Emulator) currentCode() []byte {
	return e.rawCode
}

// coinbaseStandIn and baseFeeStandInWei are fixed, non-consensus stand-in
// values for block-context opcodes the Handler doesn't source from the
// Explorer: a fixed miner address and a 50 Gwei base fee, rather than
// an arbitrary zero.
var coinbaseStandIn = wordFromAddress([20]byte{
	0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb,
	0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb,
})

const baseFeeStandInWei = 50_000_000_000 // 50 Gwei stand-in

// --- Block info ---

func (e *Emulator) dispatchBlockInfo(instr *Instruction, idx int) (bool, int, error) {
	e.markInconcrete(instr.Name)
	switch instr.Op {
	case BLOCKHASH:
		ops, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		info, blkErr := e.handler.GetBlockByNumber(ops[0].Uint64())
		if blkErr != nil || info == nil {
			e.state.Push(new(uint256.Int))
		} else {
			e.state.Push(new(uint256.Int).SetBytes(info.Hash.Bytes()))
		}
	case COINBASE:
		e.state.Push(new(uint256.Int).Set(coinbaseStandIn))
	case TIMESTAMP:
		e.state.Push(new(uint256.Int))
	case NUMBER:
		e.state.Push(uint256.NewInt(e.handler.GetBlockNumber()))
	case DIFFICULTY:
		e.state.Push(e.handler.GetDifficulty())
	case GASLIMIT:
		e.state.Push(uint256.NewInt(e.handler.GetGasLimit()))
	case CHAINID:
		e.state.Push(uint256.NewInt(1))
	case SELFBALANCE:
		e.state.Push(e.handler.GetBalance(e.callinfo.Address))
	case BASEFEE:
		e.state.Push(uint256.NewInt(baseFeeStandInWei))
	}
	return false, idx + 1, nil
}

// --- Stack/memory/storage/flow ---

func (e *Emulator) dispatchStackMemStorageFlow(instr *Instruction, idx int) (bool, int, error) {
	switch instr.Op {
	case POP:
		if _, err := e.pop(instr.Name, 1); err != nil {
			return true, idx, err
		}
	case MLOAD:
		ops, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		e.state.Push(e.state.Memory.Load32(ops[0].Uint64()))
	case MSTORE:
		ops, err := e.pop(instr.Name, 2)
		if err != nil {
			return true, idx, err
		}
		if err := e.state.Memory.Store32(ops[0].Uint64(), ops[1]); err != nil {
			return true, idx, err
		}
	case MSTORE8:
		ops, err := e.pop(instr.Name, 2)
		if err != nil {
			return true, idx, err
		}
		if err := e.state.Memory.Store8(ops[0].Uint64(), ops[1]); err != nil {
			return true, idx, err
		}
	case SLOAD:
		ops, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		v, err := e.state.Storage.Load(ops[0])
		if err != nil {
			return true, idx, err
		}
		e.state.Push(v)
	case SSTORE:
		ops, err := e.pop(instr.Name, 2)
		if err != nil {
			return true, idx, err
		}
		e.state.Storage.Store(ops[0], ops[1])
	case JUMP:
		ops, err := e.pop(instr.Name, 1)
		if err != nil {
			return true, idx, err
		}
		target, ok := e.jumpdest(ops[0].Uint64())
		if !ok {
			return true, idx, &vmerrors.BadJumpError{Offset: ops[0].Uint64()}
		}
		return false, target, nil
	case JUMPI:
		ops, err := e.pop(instr.Name, 2)
		if err != nil {
			return true, idx, err
		}
		if ops[1].IsZero() {
			return false, idx + 1, nil
		}
		target, ok := e.jumpdest(ops[0].Uint64())
		if !ok {
			return true, idx, &vmerrors.BadJumpError{Offset: ops[0].Uint64()}
		}
		return false, target, nil
	case PC:
		e.state.Push(uint256.NewInt(uint64(e.state.PC)))
	case MSIZE:
		e.state.Push(uint256.NewInt(uint64(e.state.Memory.Len())))
	case GAS:
		e.state.Push(uint256.NewInt(e.state.Gas))
	case JUMPDEST:
		// no-op landing pad
	}
	return false, idx + 1, nil
}

func (e *Emulator) jumpdest(offset uint64) (int, bool) {
	i, ok := e.offsetIdx[offset]
	if !ok || e.instrs[i].Op != JUMPDEST {
		return 0, false
	}
	return i, true
}

// --- Push/dup/swap/log ---

func (e *Emulator) dispatchPushDupSwapLog(instr *Instruction, idx int) (bool, int, error) {
	switch {
	case instr.IsPush():
		e.state.Push(instr.OperandValue())
	case IsDup(instr.Op):
		n := DupPosition(instr.Op)
		if !e.state.Dup(n - 1) {
			return true, idx, &vmerrors.StackUnderflowError{Op: instr.Name, Have: len(e.state.Stack), Required: n}
		}
	case IsSwap(instr.Op):
		n := SwapPosition(instr.Op)
		if !e.state.Swap(n) {
			return true, idx, &vmerrors.StackUnderflowError{Op: instr.Name, Have: len(e.state.Stack), Required: n + 1}
		}
	case IsLog(instr.Op):
		// side effects ignored; only stack discipline matters
		if _, err := e.pop(instr.Name, instr.Pops); err != nil {
			return true, idx, err
		}
	case instr.Op == PUSH0:
		e.state.Push(new(uint256.Int))
	}
	return false, idx + 1, nil
}

// --- System ---

func (e *Emulator) dispatchSystem(instr *Instruction, idx int) (bool, int, error) {
	switch instr.Op {
	case STOP:
		e.result.Success = true
		return true, idx, nil
	case RETURN:
		ops, err := e.pop(instr.Name, 2)
		if err != nil {
			return true, idx, err
		}
		off, length := ops[0].Uint64(), ops[1].Uint64()
		e.result.ReturnData = e.state.Memory.Slice(off, off+length)
		e.result.Success = true
		return true, idx, nil
	case REVERT:
		ops, err := e.pop(instr.Name, 2)
		if err != nil {
			return true, idx, err
		}
		off, length := ops[0].Uint64(), ops[1].Uint64()
		e.result.ReturnData = e.state.Memory.Slice(off, off+length)
		e.result.Success = false
		e.state.Reverted = true
		return true, idx, nil
	case INVALID:
		e.result.Success = false
		return true, idx, nil
	case SELFDESTRUCT:
		if _, err := e.pop(instr.Name, 1); err != nil {
			return true, idx, err
		}
		e.result.Success = true
		return true, idx, nil
	case CREATE:
		return e.dispatchCreate(instr, idx, false)
	case CREATE2:
		return e.dispatchCreate(instr, idx, true)
	case CALL, CALLCODE, DELEGATECALL, STATICCALL:
		return e.dispatchCall(instr, idx)
	}
	return true, idx, &vmerrors.InternalError{Cause: fmt.Errorf("unreachable system op 0x%02x", byte(instr.Op))}
}

// dispatchCreate handles CREATE/CREATE2: pops
// {value, offset, length} (CREATE) or {value, offset, length, salt}
// (CREATE2, salt popped and discarded — the synthetic address counter is
// used instead, regardless of salt or init code).
func (e *Emulator) dispatchCreate(instr *Instruction, idx int, isCreate2 bool) (bool, int, error) {
	e.markInconcrete(instr.Name)
	arity := 3
	if isCreate2 {
		arity = 4
	}
	ops, err := e.pop(instr.Name, arity)
	if err != nil {
		return true, idx, err
	}
	off, length := ops[1].Uint64(), ops[2].Uint64()
	initCode := e.state.Memory.Slice(off, off+length)

	// The init-code frame runs under this frame's own callinfo unchanged:
	// address/caller/storage_address are not rebased to a new contract
	// context.
	success, addr := e.handler.Create(e.callinfo.Copy(), initCode, e.state.Storage, e.state.Gas, e.debug)
	if success {
		e.state.Push(wordFromAddress(addr))
	} else {
		e.state.Push(new(uint256.Int))
	}
	return false, idx + 1, nil
}

// dispatchCall handles CALL/CALLCODE/DELEGATECALL/STATICCALL: pops the call arguments, spawns a nested Emulator frame via
// the Handler, and splices its outcome back onto this frame's stack and
// memory. DELEGATECALL additionally appends a DelegateRecord.
func (e *Emulator) dispatchCall(instr *Instruction, idx int) (bool, int, error) {
	hasValue := instr.Op == CALL || instr.Op == CALLCODE
	arity := instr.Pops
	ops, err := e.pop(instr.Name, arity)
	if err != nil {
		return true, idx, err
	}

	var addrArg, valueArg, argOff, argLen, retOff, retLen *uint256.Int
	if hasValue {
		_, addrArg, valueArg, argOff, argLen, retOff, retLen = ops[0], ops[1], ops[2], ops[3], ops[4], ops[5], ops[6]
	} else {
		_, addrArg, argOff, argLen, retOff, retLen = ops[0], ops[1], ops[2], ops[3], ops[4], ops[5]
	}

	target := addressFromWord(addrArg)
	callData := e.state.Memory.Slice(argOff.Uint64(), argOff.Uint64()+argLen.Uint64())

	// nested starts as a copy of this frame's callinfo (caller, origin,
	// value, storage_address all retained unless overridden below).
	nested := e.callinfo.Copy()
	nested.Calldata = callData
	nested.Address = target

	switch instr.Op {
	case CALL:
		nested.StorageAddress = target
		nested.CallValue = valueArg
		nested.Caller = e.callinfo.Address
	case CALLCODE:
		nested.CallValue = valueArg
		nested.Caller = e.callinfo.Address
		// storage_address retained from the outer frame (caller's storage).
	case STATICCALL:
		nested.StorageAddress = target
		// caller and value retained from the outer frame.
	case DELEGATECALL:
		// storage_address, caller and value all retained from the outer frame.
	}

	result, callErr := e.handler.Call(nested, e.state.Storage, e.state.Gas, e.debug)

	if instr.Op == DELEGATECALL {
		record := &DelegateRecord{
			CallInfo:  nested.Copy(),
			ArgOffset: argOff.Uint64(),
			ArgLength: argLen.Uint64(),
		}
		if result != nil {
			record.CallResult = result.Success
			if result.DelegateRecords != nil {
				record.Nested = result.DelegateRecords
			}
		}
		e.result.DelegateRecords = append(e.result.DelegateRecords, record)
	}

	if callErr != nil || result == nil || (!isHaltedOnReturnOrRevert(result)) {
		e.result.Unresolved = &UnresolvedCall{CallInfo: nested, CallResult: result}
		e.result.Success = false
		return true, idx, nil
	}

	e.returnBuf = result.ReturnData
	if result.Success {
		e.state.Push(uint256.NewInt(1))
	} else {
		e.state.Push(new(uint256.Int))
	}
	if retLen.Uint64() > 0 {
		data := result.ReturnData
		if uint64(len(data)) > retLen.Uint64() {
			data = data[:retLen.Uint64()]
		}
		if err := e.state.Memory.StoreBytes(retOff.Uint64(), data); err != nil {
			return true, idx, err
		}
	}
	return false, idx + 1, nil
}

// isHaltedOnReturnOrRevert reports whether a nested call frame halted
// successfully, as opposed to running out of dispatchable instructions
// or hitting STOP/INVALID/SELFDESTRUCT.
func isHaltedOnReturnOrRevert(r *EmulationResult) bool {
	return r.LastOpcode == RETURN || r.LastOpcode == REVERT
}
