package vm

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/onchainlabs/proxion/explorer"
)

func push32(v *uint256.Int) []byte {
	b := v.Bytes32()
	return append([]byte{byte(PUSH32)}, b[:]...)
}

func runFrame(t *testing.T, code []byte, callinfo CallInfo, exp explorer.Explorer) *EmulationResult {
	t.Helper()
	handler := NewHandler(exp, explorer.BlockTagLatest)
	storage := NewStorage(exp, callinfo.StorageAddress, explorer.BlockTagLatest)
	state := NewVMState(storage, 10_000_000)
	em := NewEmulator(handler, state, callinfo, false)
	result, err := em.Run(code)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return result
}

// Arithmetic wrap: PUSH32 x; PUSH32 y; ADD must yield (x+y) mod 2**256.
func TestArithmeticWrap(t *testing.T) {
	maxUint := new(uint256.Int).Not(new(uint256.Int)) // 2**256 - 1
	one := uint256.NewInt(1)

	code := append(push32(maxUint), push32(one)...)
	code = append(code, byte(ADD), byte(PUSH1), 0x00, byte(MSTORE), byte(PUSH1), 0x20, byte(PUSH1), 0x00, byte(RETURN))

	exp := explorer.NewFakeExplorer()
	addr := common.HexToAddress("0x1")
	result := runFrame(t, code, CallInfo{Address: addr, StorageAddress: addr, CallValue: new(uint256.Int)}, exp)

	got := new(uint256.Int).SetBytes(result.ReturnData)
	if !got.IsZero() {
		t.Fatalf("(2**256-1)+1 mod 2**256 = %s, want 0", got)
	}
}

// Signed comparison: SLT leaves 1 iff x < y as two's complement.
func TestSignedComparisonSLT(t *testing.T) {
	negOne := new(uint256.Int).Not(new(uint256.Int)) // -1
	zero := new(uint256.Int)

	// push y=0, push x=-1, SLT computes x < y i.e. -1 < 0 -> 1
	code := append(push32(zero), push32(negOne)...)
	code = append(code, byte(SLT), byte(PUSH1), 0x00, byte(MSTORE), byte(PUSH1), 0x20, byte(PUSH1), 0x00, byte(RETURN))

	exp := explorer.NewFakeExplorer()
	addr := common.HexToAddress("0x2")
	result := runFrame(t, code, CallInfo{Address: addr, StorageAddress: addr, CallValue: new(uint256.Int)}, exp)

	got := new(uint256.Int).SetBytes(result.ReturnData)
	if !got.Eq(uint256.NewInt(1)) {
		t.Fatalf("SLT(-1, 0) = %s, want 1", got)
	}
}

// Memory expansion: after MSTORE(pos, _), MSIZE == ceil((pos+32)/32)*32.
func TestMemoryExpansionOnMStore(t *testing.T) {
	pos := uint64(40)
	val := new(uint256.Int)

	code := append(push32(val), byte(PUSH1), byte(pos), byte(MSTORE))
	code = append(code, byte(MSIZE), byte(PUSH1), 0x00, byte(MSTORE), byte(PUSH1), 0x20, byte(PUSH1), 0x00, byte(RETURN))

	exp := explorer.NewFakeExplorer()
	addr := common.HexToAddress("0x3")
	result := runFrame(t, code, CallInfo{Address: addr, StorageAddress: addr, CallValue: new(uint256.Int)}, exp)

	got := new(uint256.Int).SetBytes(result.ReturnData).Uint64()
	want := uint64(math.Ceil(float64(pos+32)/32)) * 32
	if got != want {
		t.Fatalf("MSIZE after MSTORE(%d, _) = %d, want %d", pos, got, want)
	}
}

// DELEGATECALL isolation: the callee's SSTORE must be observable in the
// caller's storage cache after return.
func TestDelegatecallSharesCallerStorage(t *testing.T) {
	callee := common.HexToAddress("0xcafe")
	caller := common.HexToAddress("0xbeef")

	// callee: SSTORE(slot 7, value 42); STOP
	calleeCode := []byte{
		byte(PUSH1), 42,
		byte(PUSH1), 7,
		byte(SSTORE),
		byte(STOP),
	}

	exp := explorer.NewFakeExplorer()
	exp.SetCode(callee, calleeCode)

	// caller: DELEGATECALL(gas=0, callee, argsOffset=0, argsLength=0, retOffset=0, retLength=0); STOP
	callerCode := []byte{
		byte(PUSH1), 0, // retLen
		byte(PUSH1), 0, // retOffset
		byte(PUSH1), 0, // argsLength
		byte(PUSH1), 0, // argsOffset
	}
	callerCode = append(callerCode, push32(new(uint256.Int).SetBytes(callee.Bytes()))...)
	callerCode = append(callerCode, byte(PUSH1), 0, byte(DELEGATECALL), byte(STOP))

	handler := NewHandler(exp, explorer.BlockTagLatest)
	storage := NewStorage(exp, caller, explorer.BlockTagLatest)
	state := NewVMState(storage, 10_000_000)
	em := NewEmulator(handler, state, CallInfo{Address: caller, StorageAddress: caller, CallValue: new(uint256.Int)}, false)
	if _, err := em.Run(callerCode); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := storage.Load(uint256.NewInt(7))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Eq(uint256.NewInt(42)) {
		t.Fatalf("caller storage[7] = %s after DELEGATECALL, want 42", got)
	}
}

// CALL isolation: a CALL target's storage writes must not leak into the
// caller's storage cache.
func TestCallDoesNotShareCallerStorage(t *testing.T) {
	callee := common.HexToAddress("0xdead")
	caller := common.HexToAddress("0xface")

	calleeCode := []byte{
		byte(PUSH1), 99,
		byte(PUSH1), 7,
		byte(SSTORE),
		byte(STOP),
	}

	exp := explorer.NewFakeExplorer()
	exp.SetCode(callee, calleeCode)

	callerCode := []byte{
		byte(PUSH1), 0, // retLen
		byte(PUSH1), 0, // retOffset
		byte(PUSH1), 0, // argsLength
		byte(PUSH1), 0, // argsOffset
		byte(PUSH1), 0, // value
	}
	callerCode = append(callerCode, push32(new(uint256.Int).SetBytes(callee.Bytes()))...)
	callerCode = append(callerCode, byte(PUSH1), 0, byte(CALL), byte(STOP))

	handler := NewHandler(exp, explorer.BlockTagLatest)
	storage := NewStorage(exp, caller, explorer.BlockTagLatest)
	state := NewVMState(storage, 10_000_000)
	em := NewEmulator(handler, state, CallInfo{Address: caller, StorageAddress: caller, CallValue: new(uint256.Int)}, false)
	if _, err := em.Run(callerCode); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := storage.Load(uint256.NewInt(7))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("caller storage[7] = %s after CALL to unrelated contract, want 0 (isolated)", got)
	}
}

func TestCreateReturnsSyntheticAddressOnReturn(t *testing.T) {
	caller := common.HexToAddress("0x10")
	// init code: store a single STOP byte at memory[0], then RETURN it as
	// the 1-byte runtime code.
	initCode := []byte{
		byte(PUSH1), byte(STOP), // value
		byte(PUSH1), 0, // position
		byte(MSTORE8),
		byte(PUSH1), 1, // length
		byte(PUSH1), 0, // offset
		byte(RETURN),
	}

	exp := explorer.NewFakeExplorer()
	handler := NewHandler(exp, explorer.BlockTagLatest)
	storage := NewStorage(exp, caller, explorer.BlockTagLatest)

	ok, addr := handler.Create(CallInfo{Address: caller, StorageAddress: caller, CallValue: new(uint256.Int)}, initCode, storage, 10_000_000, false)
	if !ok {
		t.Fatal("Create: expected success")
	}
	if addr == (common.Address{}) {
		t.Fatal("Create: expected a non-zero synthetic address")
	}
}

func TestGetExtCodeHashOfDeployedCode(t *testing.T) {
	addr := common.HexToAddress("0x20")
	code := []byte{byte(STOP)}
	exp := explorer.NewFakeExplorer()
	exp.SetCode(addr, code)

	handler := NewHandler(exp, explorer.BlockTagLatest)
	if handler.GetExtCodeHash(addr) == (common.Hash{}) {
		t.Fatal("GetExtCodeHash: expected a non-zero hash for deployed code")
	}
	if handler.GetExtCodeSize(addr) != uint64(len(code)) {
		t.Fatalf("GetExtCodeSize = %d, want %d", handler.GetExtCodeSize(addr), len(code))
	}
}
