package analysis

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/onchainlabs/proxion/explorer"
	"github.com/onchainlabs/proxion/vm"
)

const push4 = vm.PUSH1 + 3

func push32Bytes(n uint64) []byte {
	v := uint256.NewInt(n)
	b := v.Bytes32()
	return append([]byte{byte(vm.PUSH32)}, b[:]...)
}

func pushSelector(sel uint32) []byte {
	return []byte{byte(push4), byte(sel >> 24), byte(sel >> 16), byte(sel >> 8), byte(sel)}
}

// TestAnalyzeReportsCrossContractCollisions builds a proxy that reads
// slot 1 and writes slot 2, a first logic contract that reads slot 2
// (write/read collision) and declares a shared selector, and a second
// logic contract that both reads and writes slot 1 and writes slot 2
// (read/read, read/write and write/write collisions), then checks every
// reported intersection and the selector collision.
func TestAnalyzeReportsCrossContractCollisions(t *testing.T) {
	proxyAddr := common.HexToAddress("0x10")
	logicA := common.HexToAddress("0x11")
	logicB := common.HexToAddress("0x12")

	sharedSelector := uint32(0xaabbccdd)
	onlyLogicASelector := uint32(0x11112222)

	proxyCode := append([]byte{}, pushSelector(sharedSelector)...)
	proxyCode = append(proxyCode, byte(vm.POP))
	proxyCode = append(proxyCode, push32Bytes(1)...) // slot 1
	proxyCode = append(proxyCode, byte(vm.SLOAD), byte(vm.POP))
	proxyCode = append(proxyCode, byte(vm.PUSH1), 5) // value
	proxyCode = append(proxyCode, push32Bytes(2)...) // slot 2
	proxyCode = append(proxyCode, byte(vm.SSTORE), byte(vm.STOP))

	logicACode := append([]byte{}, pushSelector(sharedSelector)...)
	logicACode = append(logicACode, byte(vm.POP))
	logicACode = append(logicACode, pushSelector(onlyLogicASelector)...)
	logicACode = append(logicACode, byte(vm.POP))
	logicACode = append(logicACode, push32Bytes(2)...) // slot 2
	logicACode = append(logicACode, byte(vm.SLOAD), byte(vm.POP))
	logicACode = append(logicACode, byte(vm.PUSH1), 9)
	logicACode = append(logicACode, push32Bytes(3)...) // slot 3
	logicACode = append(logicACode, byte(vm.SSTORE), byte(vm.STOP))

	logicBCode := append([]byte{}, push32Bytes(1)...) // slot 1
	logicBCode = append(logicBCode, byte(vm.SLOAD), byte(vm.POP))
	logicBCode = append(logicBCode, byte(vm.PUSH1), 7)
	logicBCode = append(logicBCode, push32Bytes(1)...) // slot 1
	logicBCode = append(logicBCode, byte(vm.SSTORE))
	logicBCode = append(logicBCode, byte(vm.PUSH1), 8)
	logicBCode = append(logicBCode, push32Bytes(2)...) // slot 2
	logicBCode = append(logicBCode, byte(vm.SSTORE), byte(vm.STOP))

	exp := explorer.NewFakeExplorer()
	exp.SetCode(proxyAddr, proxyCode)
	exp.SetCode(logicA, logicACode)
	exp.SetCode(logicB, logicBCode)

	report, err := Analyze(proxyAddr, []common.Address{logicA, logicB}, exp, explorer.BlockTagLatest)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	slot1 := common.BigToHash(big.NewInt(1))
	slot2 := common.BigToHash(big.NewInt(2))

	if !containsHash(report.ProxyRead, slot1) {
		t.Fatalf("ProxyRead = %v, want slot 1", report.ProxyRead)
	}
	if !containsHash(report.ProxyWrite, slot2) {
		t.Fatalf("ProxyWrite = %v, want slot 2", report.ProxyWrite)
	}
	if len(report.PerLogic) != 2 {
		t.Fatalf("PerLogic has %d entries, want 2", len(report.PerLogic))
	}
	if !containsHash(report.CollisionsWR, slot2) {
		t.Fatalf("CollisionsWR = %v, want slot 2 (proxy writes it, logic A reads it)", report.CollisionsWR)
	}
	if !containsHash(report.CollisionsRR, slot1) {
		t.Fatalf("CollisionsRR = %v, want slot 1 (both proxy and logic B read it)", report.CollisionsRR)
	}
	if !containsHash(report.CollisionsRW, slot1) {
		t.Fatalf("CollisionsRW = %v, want slot 1 (proxy reads it, logic B writes it)", report.CollisionsRW)
	}
	if !containsHash(report.CollisionsWW, slot2) {
		t.Fatalf("CollisionsWW = %v, want slot 2 (both proxy and logic B write it)", report.CollisionsWW)
	}
	if len(report.SelectorCollisions) != 1 {
		t.Fatalf("SelectorCollisions = %v, want exactly one shared-selector group", report.SelectorCollisions)
	}
	if !containsString(report.SelectorCollisions[0], "0xaabbccdd") {
		t.Fatalf("SelectorCollisions[0] = %v, want it to contain 0xaabbccdd", report.SelectorCollisions[0])
	}
}

func TestAnalyzeEmptyCodeYieldsEmptyProfile(t *testing.T) {
	proxyAddr := common.HexToAddress("0x20")
	logicAddr := common.HexToAddress("0x21")

	exp := explorer.NewFakeExplorer()

	report, err := Analyze(proxyAddr, []common.Address{logicAddr}, exp, explorer.BlockTagLatest)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(report.ProxyRead) != 0 || len(report.ProxyWrite) != 0 {
		t.Fatalf("expected no reads/writes for an address with no bytecode, got %+v", report)
	}
	if len(report.CollisionsRR)+len(report.CollisionsRW)+len(report.CollisionsWR)+len(report.CollisionsWW) != 0 {
		t.Fatalf("expected no collisions when neither contract has bytecode, got %+v", report)
	}
}

func containsHash(hs []common.Hash, want common.Hash) bool {
	for _, h := range hs {
		if h == want {
			return true
		}
	}
	return false
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
