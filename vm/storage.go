package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/onchainlabs/proxion/explorer"
)

// Storage is a per-address persistent-storage cache composed around an
// explorer.Explorer, mirroring the dict-subclass Storage in the Python
// original (octopus/core/storage.py) without subclassing a map: Go favors
// composition, so the cache is a plain field and Load/Store are the only
// way in or out.
type Storage struct {
	addr     common.Address
	block    string
	explorer explorer.Explorer
	cache    map[uint256.Int]uint256.Int
}

// NewStorage returns a Storage for addr at block, backed by exp. The cache
// starts empty; misses are fetched lazily from exp and memoized.
func NewStorage(exp explorer.Explorer, addr common.Address, block string) *Storage {
	return &Storage{
		addr:     addr,
		block:    block,
		explorer: exp,
		cache:    make(map[uint256.Int]uint256.Int),
	}
}

// Address returns the account this cache's slots are fetched from. The
// Handler compares this against a nested frame's storage_address to
// decide whether that frame reuses this cache (DELEGATECALL/CALLCODE) or
// gets a fresh one of its own (CALL/STATICCALL) — see Handler.Call.
func (s *Storage) Address() common.Address {
	return s.addr
}

// Load returns the value at slot, fetching it from the explorer and
// memoizing it on first access.
func (s *Storage) Load(slot *uint256.Int) (*uint256.Int, error) {
	key := *slot
	if v, ok := s.cache[key]; ok {
		return new(uint256.Int).Set(&v), nil
	}
	if s.explorer == nil {
		v := new(uint256.Int)
		s.cache[key] = *v
		return v, nil
	}
	v, err := s.explorer.GetStorageAt(s.addr, slot, s.block)
	if err != nil {
		return nil, err
	}
	s.cache[key] = *v
	return new(uint256.Int).Set(v), nil
}

// Store writes val at slot in the cache only — storage writes never reach
// the explorer.
func (s *Storage) Store(slot, val *uint256.Int) {
	s.cache[*slot] = *val
}

// Entries returns a snapshot of every slot this Storage has observed,
// keyed by slot. Used by the proxy classifier to find the implementation slot.
func (s *Storage) Entries() map[uint256.Int]uint256.Int {
	out := make(map[uint256.Int]uint256.Int, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}
