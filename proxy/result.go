package proxy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ProxyClassification is the single result record this package produces.
// JSON field names use snake_case so existing downstream consumers of
// that shape keep working.
type ProxyClassification struct {
	Address string `json:"address"`

	Success bool    `json:"success"`
	Error   *string `json:"error,omitempty"`

	IsProxy           *bool   `json:"is_proxy"`
	ERC1167           bool    `json:"erc1167"`
	ERC1822           bool    `json:"erc1822"`
	ERC1967           bool    `json:"erc1967"`
	ERC2535           bool    `json:"erc2535"`
	MultiDelegatecall bool    `json:"multi_delegatecall"`
	Reason            *string `json:"reason,omitempty"`

	ImplementationSlot          *string           `json:"implementation_slot"`
	StandardImplementationSlots map[string]string `json:"standard_slots"`
	CurrentImplementation       *string           `json:"current_implementation"`
	OldImplementations          []string          `json:"old_implementations"`
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// addressHex formats a as a plain lowercase 0x-prefixed hex string, never
// go-ethereum's EIP-55 checksummed mixed case.
func addressHex(a common.Address) string {
	return fmt.Sprintf("0x%040x", a.Bytes())
}
