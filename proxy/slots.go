// Package proxy implements the proxy-contract classifier and the
// historical-implementation finder: given a deployed address it
// emulates the fallback function against a synthetic call, inspects the
// delegatecall trail it produces, and correlates it against storage.
package proxy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// slotFromString derives a well-known proxy storage slot the way EIP-1967
// itself defines its slots: keccak256(label) - 1, so the constant is
// provably not an allocatable Solidity storage slot. Deriving it here
// rather than hardcoding the literal keeps the derivation checkable.
func slotFromString(label string) *uint256.Int {
	h := crypto.Keccak256([]byte(label))
	slot := new(big.Int).SetBytes(h)
	slot.Sub(slot, big.NewInt(1))
	u, overflow := uint256.FromBig(slot)
	if overflow {
		panic("proxy: slot derivation overflowed 256 bits")
	}
	return u
}

// slotFromKeccak derives a slot that is itself keccak256(label), unreduced
// (EIP-1822's PROXIABLE slot convention, not EIP-1967's "- 1" convention).
func slotFromKeccak(label string) *uint256.Int {
	h := crypto.Keccak256([]byte(label))
	return new(uint256.Int).SetBytes(h)
}

// WellKnownSlot names one of the storage slots a known proxy standard
// reserves for its logic/admin/beacon pointer.
type WellKnownSlot struct {
	Name string
	Slot *uint256.Int
}

// Standard-slot constants. Values are derived at package
// initialization rather than hardcoded so each one is checkable against
// its defining string.
var (
	eip1822ImplementationSlot = slotFromKeccak("PROXIABLE")
	erc1967ImplementationSlot = slotFromString("eip1967.proxy.implementation")
	erc1967BeaconSlot         = slotFromString("eip1967.proxy.beacon")
	erc1967AdminSlot          = slotFromString("eip1967.proxy.admin")
	eip2535DiamondSlot        = slotFromString("diamond.standard.diamond.storage")
)

func addOffset(base *uint256.Int, n uint64) *uint256.Int {
	return new(uint256.Int).AddUint64(base, n)
}

// wellKnownSlots returns the full probe list, including the
// two diamond-storage-relative owner slots derived by adding a small
// offset to the diamond base slot.
func wellKnownSlots() []WellKnownSlot {
	return []WellKnownSlot{
		{Name: "EIP1822_IMPLEMENTATION_SLOT", Slot: eip1822ImplementationSlot},
		{Name: "ERC1967_IMPLEMENT_SLOT", Slot: erc1967ImplementationSlot},
		{Name: "ERC1967_BEACON_SLOT", Slot: erc1967BeaconSlot},
		{Name: "ERC1967_ADMIN_SLOT", Slot: erc1967AdminSlot},
		{Name: "EIP2535_DIAMOND_SLOT", Slot: eip2535DiamondSlot},
		{Name: "EIP2535_DIAMOND1_OWNER_SLOT", Slot: addOffset(eip2535DiamondSlot, 3)},
		{Name: "EIP2535_DIAMOND23_OWNER_SLOT", Slot: addOffset(eip2535DiamondSlot, 4)},
	}
}
