// Package explorer defines the narrow read-only chain-access interface
// the interpreter core depends on plus a deterministic in-memory fake used by tests.
package explorer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BlockTagLatest is the sentinel block identifier meaning "most recent block".
const BlockTagLatest = "latest"

// BlockInfo carries the subset of a block header the emulator's block-info
// opcodes need.
type BlockInfo struct {
	Hash       common.Hash
	Difficulty *uint256.Int
	GasLimit   uint64
	Number     uint64
}

// Explorer is a read-only view onto chain state. It is safe to share
// across concurrently running classifications: all methods are
// expected to be side-effect free from the caller's point of view.
type Explorer interface {
	// GetCode returns the runtime bytecode at addr at the given block tag
	// ("latest" or a decimal/hex block number). Returns an empty slice,
	// not an error, when the account has no code.
	GetCode(addr common.Address, block string) ([]byte, error)

	// GetStorageAt returns the 256-bit value at (addr, slot) at the given
	// block. Returns zero, not an error, for an unset slot.
	GetStorageAt(addr common.Address, slot *uint256.Int, block string) (*uint256.Int, error)

	// GetBalance returns the wei balance of addr at the given block.
	GetBalance(addr common.Address, block string) (*uint256.Int, error)

	// BlockNumber returns the highest block number known to the node.
	BlockNumber() (uint64, error)

	// BlockByNumber returns selected header fields for block n.
	BlockByNumber(n uint64) (*BlockInfo, error)

	// GasPrice returns the node's current suggested gas price.
	GasPrice() (*uint256.Int, error)
}
