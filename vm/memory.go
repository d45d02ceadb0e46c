package vm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/onchainlabs/proxion/vmerrors"
)

// memoryBound is the soft cap used by mem_extend in the octopus source
// this module is grounded on: any extension request whose start+length
// reaches or exceeds it raises a memory-bound error instead of allocating.
const memoryBound = 4096

// Memory is a byte-addressable, word-aligned scratch space with bounded
// auto-extension, implemented as a growable byte slice rather than
// the sparse dict-of-byte the Python original uses — Go slices already
// give us O(1) indexed access without per-byte dict overhead.
type Memory struct {
	store []byte
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Len returns the current memory length in bytes.
func (m *Memory) Len() int { return len(m.store) }

func (m *Memory) extend(end int) error {
	if end <= len(m.store) {
		return nil
	}
	if end >= memoryBound {
		return fmt.Errorf("%w: requested size %d", vmerrors.ErrMemoryBound, end)
	}
	// grow in whole 32-byte words, as MSIZE reports
	end = (end + 31) / 32 * 32
	grown := make([]byte, end)
	copy(grown, m.store)
	m.store = grown
	return nil
}

// Load32 returns the 32-byte word starting at pos, big-endian; reads
// beyond the current length are treated as zero.
func (m *Memory) Load32(pos uint64) *uint256.Int {
	end := pos + 32
	if end > uint64(len(m.store)) {
		if pos >= uint64(len(m.store)) {
			return new(uint256.Int)
		}
		buf := make([]byte, 32)
		copy(buf, m.store[pos:])
		return new(uint256.Int).SetBytes(buf)
	}
	return new(uint256.Int).SetBytes(m.store[pos:end])
}

// Store32 writes val as a 32-byte big-endian word at pos, extending memory as needed.
func (m *Memory) Store32(pos uint64, val *uint256.Int) error {
	if err := m.extend(int(pos + 32)); err != nil {
		return err
	}
	b := val.Bytes32()
	copy(m.store[pos:pos+32], b[:])
	return nil
}

// Store8 writes the low byte of val at pos, extending memory as needed.
func (m *Memory) Store8(pos uint64, val *uint256.Int) error {
	if err := m.extend(int(pos + 1)); err != nil {
		return err
	}
	m.store[pos] = byte(val.Uint64())
	return nil
}

// StoreBytes copies data into memory starting at pos, extending as needed.
func (m *Memory) StoreBytes(pos uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := m.extend(int(pos) + len(data)); err != nil {
		return err
	}
	copy(m.store[pos:], data)
	return nil
}

// Slice returns data[a:b], zero-padded when the range exceeds the current
// length.
func (m *Memory) Slice(a, b uint64) []byte {
	if b <= a {
		return nil
	}
	out := make([]byte, b-a)
	if a >= uint64(len(m.store)) {
		return out
	}
	end := b
	if end > uint64(len(m.store)) {
		end = uint64(len(m.store))
	}
	copy(out, m.store[a:end])
	return out
}

// Data returns the underlying memory slice. Callers must not modify it.
func (m *Memory) Data() []byte { return m.store }
