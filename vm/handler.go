package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/onchainlabs/proxion/explorer"
	"github.com/onchainlabs/proxion/vmerrors"
)

// createAddressSeed is the fixed sentinel the synthetic CREATE/CREATE2
// address generator counts up from: 0xdd repeated across all 20 bytes.
// CREATE2's salt is popped off the stack but never folded into the
// address — the generated address is always the next counter value,
// regardless of init code or salt (see DESIGN.md).
var createAddressSeed = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")

// Handler is the out-of-contract side of emulation: it spawns nested
// frames for CALL/CALLCODE/DELEGATECALL/STATICCALL/CREATE/CREATE2 and
// resolves external code, code hash, balance and block data.
type Handler struct {
	explorer     explorer.Explorer
	block        string
	codeRegistry map[common.Address][]byte
	nextCreate   *big.Int
}

// NewHandler returns a Handler reading through exp at block.
func NewHandler(exp explorer.Explorer, block string) *Handler {
	return &Handler{
		explorer:     exp,
		block:        block,
		codeRegistry: make(map[common.Address][]byte),
		nextCreate:   new(big.Int).SetBytes(createAddressSeed.Bytes()),
	}
}

func (h *Handler) code(addr common.Address) ([]byte, error) {
	if c, ok := h.codeRegistry[addr]; ok {
		return c, nil
	}
	if h.explorer == nil {
		return nil, nil
	}
	code, err := h.explorer.GetCode(addr, h.block)
	if err != nil {
		return nil, err
	}
	h.codeRegistry[addr] = code
	return code, nil
}

// Call resolves callinfo's target code and runs it to halt in a fresh
// VMState. The nested frame shares storage's cache only when its
// storage_address matches storage's own bound address (DELEGATECALL and
// CALLCODE retain the outer frame's storage_address); otherwise — a
// plain CALL or STATICCALL into a different account — it gets a fresh
// Storage of its own, so writes made there never leak back into the
// caller's cache.
func (h *Handler) Call(callinfo CallInfo, storage *Storage, gas uint64, debug bool) (*EmulationResult, error) {
	code, err := h.code(callinfo.Address)
	if err != nil {
		return nil, err
	}
	callinfo.CodeSize = uint64(len(code))

	frameStorage := storage
	if callinfo.StorageAddress != storage.Address() {
		frameStorage = NewStorage(h.explorer, callinfo.StorageAddress, h.block)
	}

	state := NewVMState(frameStorage, gas)
	em := NewEmulator(h, state, callinfo, debug)
	return em.Run(code)
}

// Create emulates init_code as a constructor run and, on RETURN, installs
// the returned bytes as runtime code at a freshly minted synthetic
// address, returning (success, address).
func (h *Handler) Create(callinfo CallInfo, initCode []byte, storage *Storage, gas uint64, debug bool) (bool, common.Address) {
	frameInfo := callinfo
	frameInfo.CodeSize = uint64(len(initCode))

	state := NewVMState(storage, gas)
	em := NewEmulator(h, state, frameInfo, debug)
	result, err := em.Run(initCode)
	if err != nil || result == nil || result.LastOpcode != RETURN {
		return false, common.Address{}
	}

	addr := common.BytesToAddress(h.nextCreate.Bytes())
	h.nextCreate.Add(h.nextCreate, big.NewInt(1))
	h.codeRegistry[addr] = result.ReturnData
	return true, addr
}

// GetExtCodeSize returns len(code) at addr, 0 if no code/unresolvable.
func (h *Handler) GetExtCodeSize(addr common.Address) uint64 {
	code, err := h.code(addr)
	if err != nil {
		log.Debug("handler: extcodesize lookup failed", "address", addr, "err", err)
		return 0
	}
	return uint64(len(code))
}

// GetExtCodeHash returns keccak256(code) at addr, zero hash if no code.
func (h *Handler) GetExtCodeHash(addr common.Address) common.Hash {
	code, err := h.code(addr)
	if err != nil || len(code) == 0 {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(code)
}

// GetBalance passes through to the explorer, returning zero on any error
// (balance is treated as a best-effort, non-critical quantity).
func (h *Handler) GetBalance(addr common.Address) *uint256.Int {
	if h.explorer == nil {
		return new(uint256.Int)
	}
	v, err := h.explorer.GetBalance(addr, h.block)
	if err != nil {
		log.Debug("handler: balance lookup failed", "address", addr, "err", err)
		return new(uint256.Int)
	}
	return v
}

// GetBlockNumber returns the configured block's height.
func (h *Handler) GetBlockNumber() uint64 {
	n, err := h.resolveBlockInfo()
	if err != nil {
		return 0
	}
	return n.Number
}

// GetBlockByNumber returns block info for n.
func (h *Handler) GetBlockByNumber(n uint64) (*explorer.BlockInfo, error) {
	if h.explorer == nil {
		return nil, vmerrors.ErrExplorerUnavailable
	}
	return h.explorer.BlockByNumber(n)
}

// GetDifficulty returns the configured block's difficulty, zero on error.
func (h *Handler) GetDifficulty() *uint256.Int {
	info, err := h.resolveBlockInfo()
	if err != nil {
		return new(uint256.Int)
	}
	return info.Difficulty
}

// GetGasLimit returns the configured block's gas limit, zero on error.
func (h *Handler) GetGasLimit() uint64 {
	info, err := h.resolveBlockInfo()
	if err != nil {
		return 0
	}
	return info.GasLimit
}

// GetGasPrice passes through to the explorer, zero on error.
func (h *Handler) GetGasPrice() *uint256.Int {
	if h.explorer == nil {
		return new(uint256.Int)
	}
	v, err := h.explorer.GasPrice()
	if err != nil {
		return new(uint256.Int)
	}
	return v
}

func (h *Handler) resolveBlockInfo() (*explorer.BlockInfo, error) {
	if h.explorer == nil {
		return nil, vmerrors.ErrExplorerUnavailable
	}
	n, err := h.explorer.BlockNumber()
	if err != nil {
		return nil, err
	}
	if h.block != "" && h.block != explorer.BlockTagLatest {
		if parsed, ok := new(big.Int).SetString(h.block, 0); ok {
			n = parsed.Uint64()
		}
	}
	return h.explorer.BlockByNumber(n)
}
