// Package analysis implements the structural collision analyzer:
// given a proxy and its known logic contracts, it compares each pair's
// storage read/write sets and function selectors for collisions that a
// transparent-proxy pattern (and EIP-1967's storage-slot convention) is
// meant to prevent.
package analysis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/onchainlabs/proxion/cfg"
	"github.com/onchainlabs/proxion/explorer"
	"github.com/onchainlabs/proxion/vm"
)

// LogicAccess is one contract's observed storage read/write sets and
// function selectors, carried the way an EIP-2930 access list carries a
// contract's touched storage keys (types.AccessTuple), repurposed here: a
// read-set tuple and a write-set tuple per address instead of a single
// combined one.
type LogicAccess struct {
	Reads     types.AccessTuple `json:"reads"`
	Writes    types.AccessTuple `json:"writes"`
	Selectors []string          `json:"selectors"`
}

// StructuralReport is the output of Analyze.
type StructuralReport struct {
	ProxyRead  []common.Hash `json:"proxy_read"`
	ProxyWrite []common.Hash `json:"proxy_write"`

	PerLogic []LogicAccess `json:"per_logic"`

	CollisionsRR []common.Hash `json:"collisions_read_read"`
	CollisionsRW []common.Hash `json:"collisions_read_write"`
	CollisionsWR []common.Hash `json:"collisions_write_read"`
	CollisionsWW []common.Hash `json:"collisions_write_write"`

	SelectorCollisions [][]string `json:"selector_collisions"`
}

// contractProfile is an intermediate per-contract summary before the
// cross-contract intersections are computed.
type contractProfile struct {
	address   common.Address
	reads     map[common.Hash]struct{}
	writes    map[common.Hash]struct{}
	selectors map[string]struct{}
}

// Analyze runs the CFG builder and backward slot tracer (C10+C11) over
// proxyAddr and each of logicAddrs, then reports the four-way
// read/write slot-intersections and selector collisions between the
// proxy and each logic contract.
func Analyze(proxyAddr common.Address, logicAddrs []common.Address, exp explorer.Explorer, block string) (*StructuralReport, error) {
	proxyProfile, err := buildProfile(proxyAddr, exp, block)
	if err != nil {
		return nil, fmt.Errorf("structural analysis: profiling proxy %s: %w", proxyAddr, err)
	}

	report := &StructuralReport{
		ProxyRead:  hashSetToSlice(proxyProfile.reads),
		ProxyWrite: hashSetToSlice(proxyProfile.writes),
	}

	for _, addr := range logicAddrs {
		logicProfile, err := buildProfile(addr, exp, block)
		if err != nil {
			return nil, fmt.Errorf("structural analysis: profiling logic %s: %w", addr, err)
		}

		report.PerLogic = append(report.PerLogic, LogicAccess{
			Reads:     types.AccessTuple{Address: addr, StorageKeys: hashSetToSlice(logicProfile.reads)},
			Writes:    types.AccessTuple{Address: addr, StorageKeys: hashSetToSlice(logicProfile.writes)},
			Selectors: stringSetToSlice(logicProfile.selectors),
		})

		report.CollisionsRR = append(report.CollisionsRR, hashSetToSlice(intersectHashes(proxyProfile.reads, logicProfile.reads))...)
		report.CollisionsRW = append(report.CollisionsRW, hashSetToSlice(intersectHashes(proxyProfile.reads, logicProfile.writes))...)
		report.CollisionsWR = append(report.CollisionsWR, hashSetToSlice(intersectHashes(proxyProfile.writes, logicProfile.reads))...)
		report.CollisionsWW = append(report.CollisionsWW, hashSetToSlice(intersectHashes(proxyProfile.writes, logicProfile.writes))...)

		if shared := intersectStrings(proxyProfile.selectors, logicProfile.selectors); len(shared) > 0 {
			report.SelectorCollisions = append(report.SelectorCollisions, stringSetToSlice(shared))
		}
	}

	return report, nil
}

// buildProfile disassembles addr's runtime bytecode, builds its CFG, and
// walks every SLOAD/SSTORE tracing stack-index 1 back to its origin:
// Concrete origins become read/write slots, Hashed and unknown
// origins are discarded since slot equality across a keccak cannot be
// determined without recomputing the hash input.
func buildProfile(addr common.Address, exp explorer.Explorer, block string) (*contractProfile, error) {
	code, err := exp.GetCode(addr, block)
	if err != nil {
		return nil, err
	}

	profile := &contractProfile{
		address:   addr,
		reads:     make(map[common.Hash]struct{}),
		writes:    make(map[common.Hash]struct{}),
		selectors: make(map[string]struct{}),
	}
	if len(code) == 0 {
		return profile, nil
	}

	instrs := vm.Disassemble(code)
	graph, err := cfg.Build(instrs)
	if err != nil {
		return nil, err
	}

	const push4 = vm.PUSH1 + 3
	for i, instr := range instrs {
		if instr.Op == push4 {
			v := instr.OperandValue().Uint64()
			if uint32(v) != 0xffffffff {
				profile.selectors[fmt.Sprintf("0x%08x", uint32(v))] = struct{}{}
			}
			continue
		}
		if instr.Op != vm.SLOAD && instr.Op != vm.SSTORE {
			continue
		}
		if i == 0 {
			continue // nothing precedes it on the stack
		}

		// Trace from the instruction immediately before SLOAD/SSTORE: the
		// slot operand is already on the stack by then, so stack-index 1
		// refers to it directly. Tracing from SLOAD/SSTORE's own offset
		// would make the walk apply that instruction's own pop/push delta
		// a second time before looking further back.
		word := cfg.Trace(graph, 1, instrs[i-1].Offset, make(map[uint64]bool))
		concrete, ok := word.(cfg.Concrete)
		if !ok {
			continue
		}
		slot := common.BytesToHash(concrete.Bytes)
		if instr.Op == vm.SLOAD {
			profile.reads[slot] = struct{}{}
		} else {
			profile.writes[slot] = struct{}{}
		}
	}

	return profile, nil
}

func hashSetToSlice(m map[common.Hash]struct{}) []common.Hash {
	out := make([]common.Hash, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	return out
}

func stringSetToSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	return out
}

func intersectHashes(a, b map[common.Hash]struct{}) map[common.Hash]struct{} {
	out := make(map[common.Hash]struct{})
	for h := range a {
		if _, ok := b[h]; ok {
			out[h] = struct{}{}
		}
	}
	return out
}

func intersectStrings(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for s := range a {
		if _, ok := b[s]; ok {
			out[s] = struct{}{}
		}
	}
	return out
}
