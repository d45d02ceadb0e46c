package proxion

import "github.com/onchainlabs/proxion/explorer"

// Config bundles the options a classification run needs: which block to
// read state at, how much nominal gas to hand the emulator, and whether
// to emit per-instruction debug logging.
type Config struct {
	// Block is either "latest" or a decimal block number.
	Block string

	// Gas is the nominal gas budget handed to the outermost emulator
	// frame. Each dispatched instruction's fee is deducted from it (clamped
	// at zero) and GAS reads the remainder; running out never halts
	// emulation.
	Gas uint64

	Debug bool

	RPCURL string
}

// SetDefaults fills the zero-valued fields of cfg: callers only need to
// set what they care about.
func SetDefaults(cfg *Config) {
	if cfg.Block == "" {
		cfg.Block = explorer.BlockTagLatest
	}
	if cfg.Gas == 0 {
		cfg.Gas = 1_000_000
	}
}
