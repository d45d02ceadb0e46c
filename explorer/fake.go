package explorer

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// storageKey identifies a (address, slot) pair inside a FakeExplorer.
type storageKey struct {
	addr common.Address
	slot uint256.Int
}

// FakeExplorer is an in-memory Explorer used by tests so they run
// deterministically, without hitting a live RPC endpoint.
type FakeExplorer struct {
	Code    map[common.Address][]byte
	Storage map[storageKey]uint256.Int
	// StorageHistory, if set for an address+slot, overrides Storage for
	// GetStorageAt at every block ("latest" resolves to Latest): it maps
	// block number to the value effective at-or-after that block.
	StorageHistory map[storageKey]map[uint64]uint256.Int
	Balances       map[common.Address]uint256.Int
	Latest         uint64
	Blocks         map[uint64]*BlockInfo
	GasPriceWei    uint256.Int
}

// NewFakeExplorer returns an empty FakeExplorer ready for test fixtures to populate.
func NewFakeExplorer() *FakeExplorer {
	return &FakeExplorer{
		Code:           make(map[common.Address][]byte),
		Storage:        make(map[storageKey]uint256.Int),
		StorageHistory: make(map[storageKey]map[uint64]uint256.Int),
		Balances:       make(map[common.Address]uint256.Int),
		Blocks:         make(map[uint64]*BlockInfo),
		Latest:         1,
	}
}

func (f *FakeExplorer) SetCode(addr common.Address, code []byte) {
	f.Code[addr] = code
}

func (f *FakeExplorer) SetStorage(addr common.Address, slot, val *uint256.Int) {
	f.Storage[storageKey{addr, *slot}] = *val
}

// SetStorageHistory sets the value of (addr, slot) as observed at or after
// each given block number, used by historian tests to exercise the
// binary-search bisection over a sequence of distinct values.
func (f *FakeExplorer) SetStorageHistory(addr common.Address, slot *uint256.Int, atBlock map[uint64]uint256.Int) {
	f.StorageHistory[storageKey{addr, *slot}] = atBlock
}

func (f *FakeExplorer) GetCode(addr common.Address, _ string) ([]byte, error) {
	return f.Code[addr], nil
}

func (f *FakeExplorer) GetStorageAt(addr common.Address, slot *uint256.Int, block string) (*uint256.Int, error) {
	key := storageKey{addr, *slot}
	if hist, ok := f.StorageHistory[key]; ok {
		blockNum, err := f.resolveBlock(block)
		if err != nil {
			return nil, err
		}
		var (
			best    uint256.Int
			bestBlk uint64
			found   bool
		)
		for blk, v := range hist {
			if blk <= blockNum && (!found || blk > bestBlk) {
				best, bestBlk, found = v, blk, true
			}
		}
		if found {
			return new(uint256.Int).Set(&best), nil
		}
		return uint256.NewInt(0), nil
	}
	if v, ok := f.Storage[key]; ok {
		return new(uint256.Int).Set(&v), nil
	}
	return uint256.NewInt(0), nil
}

func (f *FakeExplorer) resolveBlock(block string) (uint64, error) {
	if block == "" || block == BlockTagLatest {
		return f.Latest, nil
	}
	var n uint64
	if _, err := fmt.Sscanf(block, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid block tag %q: %w", block, err)
	}
	return n, nil
}

func (f *FakeExplorer) GetBalance(addr common.Address, _ string) (*uint256.Int, error) {
	if v, ok := f.Balances[addr]; ok {
		return new(uint256.Int).Set(&v), nil
	}
	return uint256.NewInt(0), nil
}

func (f *FakeExplorer) BlockNumber() (uint64, error) {
	return f.Latest, nil
}

func (f *FakeExplorer) BlockByNumber(n uint64) (*BlockInfo, error) {
	if b, ok := f.Blocks[n]; ok {
		return b, nil
	}
	return &BlockInfo{Number: n}, nil
}

func (f *FakeExplorer) GasPrice() (*uint256.Int, error) {
	return new(uint256.Int).Set(&f.GasPriceWei), nil
}

// SortedBlocks returns the sorted set of block numbers with explicit
// BlockInfo fixtures.
func (f *FakeExplorer) SortedBlocks() []uint64 {
	out := make([]uint64, 0, len(f.Blocks))
	for k := range f.Blocks {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
