package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	proxion "github.com/onchainlabs/proxion"
	"github.com/onchainlabs/proxion/explorer"
	"github.com/onchainlabs/proxion/vm"
	"github.com/onchainlabs/proxion/vmerrors"
)

// syntheticCaller is the fixed sender of the synthetic probe call: 0xcc repeated across all 20 bytes.
var syntheticCaller = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

// Classify drives the emulator with a synthetic probe call and inspects
// the resulting delegatecall trail and storage cache to determine
// whether addr is an upgradeable proxy.
func Classify(ctx context.Context, addr common.Address, exp explorer.Explorer, cfg proxion.Config) ProxyClassification {
	proxion.SetDefaults(&cfg)

	result := ProxyClassification{
		Address:                     addressHex(addr),
		Success:                     true,
		StandardImplementationSlots: make(map[string]string),
	}

	select {
	case <-ctx.Done():
		result.Success = false
		result.Error = strPtr(ctx.Err().Error())
		return result
	default:
	}

	code, err := exp.GetCode(addr, cfg.Block)
	if err != nil {
		result.Success = false
		result.Error = strPtr(err.Error())
		return result
	}
	if len(code) == 0 {
		result.Success = false
		result.Error = strPtr(vmerrors.ErrNoBytecode.Error())
		return result
	}

	testSig := chooseSyntheticSelector(extractSelectors(code))
	calldata := syntheticCalldata(testSig)

	handler := vm.NewHandler(exp, cfg.Block)
	storage := vm.NewStorage(exp, addr, cfg.Block)

	callinfo := vm.CallInfo{
		Address:        addr,
		Caller:         syntheticCaller,
		Origin:         syntheticCaller,
		StorageAddress: addr,
		Calldata:       calldata,
		CallValue:      new(uint256.Int),
		Gas:            cfg.Gas,
		CodeSize:       uint64(len(code)),
	}

	probeWellKnownSlots(exp, addr, cfg.Block, &result)

	state := vm.NewVMState(storage, cfg.Gas)
	em := vm.NewEmulator(handler, state, callinfo, cfg.Debug)
	emResult, err := em.Run(code)
	if err != nil {
		var badJump *vmerrors.BadJumpError
		if errors.As(err, &badJump) {
			// Only the frame that hit it halts; classification proceeds on
			// whatever delegate records/storage reads the frame already
			// produced before the bad jump.
			log.Warn("classifier: bad jump destination, continuing with partial result", "address", addr, "err", err)
		} else {
			result.Success = false
			result.Error = strPtr(err.Error())
			return result
		}
	}

	if len(emResult.InconcreteOpcodes) > 0 {
		result.Success = false
		result.Error = strPtr(fmt.Sprintf("contains inconcrete opcode(s): %v", emResult.InconcreteOpcodeNames()))
	}

	if len(emResult.DelegateRecords) == 0 {
		result.IsProxy = boolPtr(false)
		result.Reason = strPtr("no delegatecall in fallback function")
		return result
	}

	if len(emResult.DelegateRecords) > 1 {
		result.MultiDelegatecall = true
	}
	last := emResult.DelegateRecords[len(emResult.DelegateRecords)-1]
	logicAddr := last.CallInfo.Address

	if !bytes.Equal(last.CallInfo.Calldata, calldata) {
		result.IsProxy = boolPtr(false)
		result.Reason = strPtr("calldata different")
		return result
	}

	result.IsProxy = boolPtr(true)
	result.CurrentImplementation = strPtr(addressHex(logicAddr))

	logicWord := new(uint256.Int).SetBytes(logicAddr.Bytes())
	var implSlot *uint256.Int
	for slot, val := range storage.Entries() {
		slot, val := slot, val
		if val.Eq(logicWord) {
			implSlot = &slot
			break
		}
	}

	if implSlot == nil {
		if strings.Contains(strings.ToLower(fmt.Sprintf("%x", code)), strings.ToLower(strings.TrimPrefix(logicAddr.Hex(), "0x"))) {
			result.ERC1167 = true
		}
		return result
	}

	slotHex := fmt.Sprintf("0x%064x", implSlot.ToBig())
	result.ImplementationSlot = &slotHex

	oldImpls, err := findHistoricalImplementationsForClassify(addr, implSlot, exp, cfg)
	if err != nil {
		log.Debug("classifier: historian lookup failed", "address", addr, "err", err)
	} else {
		result.OldImplementations = formatAddresses(oldImpls)
		if n := len(result.OldImplementations); n > 0 && result.OldImplementations[n-1] == addressHex(logicAddr) {
			result.OldImplementations = result.OldImplementations[:n-1]
		}
	}

	return result
}

func findHistoricalImplementationsForClassify(addr common.Address, slot *uint256.Int, exp explorer.Explorer, cfg proxion.Config) ([]common.Address, error) {
	right, err := exp.BlockNumber()
	if err != nil {
		return nil, err
	}
	if cfg.Block != "" && cfg.Block != explorer.BlockTagLatest {
		if n, ok := parseBlockNumber(cfg.Block); ok {
			right = n
		}
	}
	return FindHistoricalImplementations(addr, slot, exp, right)
}

func formatAddresses(addrs []common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, addressHex(a))
	}
	return out
}

// extractSelectors enumerates PUSH4 operands from the bytecode, excluding the reserved "no selector matched" sentinel 0xffffffff.
func extractSelectors(code []byte) map[uint32]struct{} {
	const push4 = vm.PUSH1 + 3
	sel := make(map[uint32]struct{})
	for _, instr := range vm.Disassemble(code) {
		if instr.Op != push4 {
			continue
		}
		v := uint32(instr.OperandValue().Uint64())
		if v == 0xffffffff {
			continue
		}
		sel[v] = struct{}{}
	}
	return sel
}

// chooseSyntheticSelector picks the first selector at or after 0xAABBCCDD
// not already used by the contract.
func chooseSyntheticSelector(used map[uint32]struct{}) uint32 {
	sel := uint32(0xAABBCCDD)
	for {
		if _, taken := used[sel]; !taken {
			return sel
		}
		sel++
	}
}

func syntheticCalldata(selector uint32) []byte {
	buf := make([]byte, 4+32)
	buf[0] = byte(selector >> 24)
	buf[1] = byte(selector >> 16)
	buf[2] = byte(selector >> 8)
	buf[3] = byte(selector)
	for i := 4; i < len(buf); i++ {
		buf[i] = 0xee
	}
	return buf
}

// probeWellKnownSlots reads the standard proxy storage slots directly
// through the explorer, independent of emulation, recording
// each non-zero hit and its standard-proxy flag.
func probeWellKnownSlots(exp explorer.Explorer, addr common.Address, block string, result *ProxyClassification) {
	for _, ws := range wellKnownSlots() {
		val, err := exp.GetStorageAt(addr, ws.Slot, block)
		if err != nil || val == nil || val.IsZero() {
			continue
		}
		hexVal := fmt.Sprintf("0x%064x", val.ToBig())
		result.StandardImplementationSlots[ws.Name] = hexVal
		result.CurrentImplementation = strPtr(fmt.Sprintf("0x%040x", val.Bytes20()))

		switch {
		case strings.HasPrefix(ws.Name, "EIP1822_"):
			result.ERC1822 = true
		case strings.HasPrefix(ws.Name, "ERC1967_"):
			result.ERC1967 = true
		case strings.HasPrefix(ws.Name, "EIP2535_"):
			result.ERC2535 = true
		}
	}
}

func parseBlockNumber(s string) (uint64, bool) {
	var n uint64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
