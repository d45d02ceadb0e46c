package proxy

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/onchainlabs/proxion/explorer"
)

// FindHistoricalImplementations bisects the block range [1, rightBlock]
// looking for every block at which slot's stored value changed,
// memoizing fetched values by block number. It returns the slot's value
// after each observed change, in increasing block order, with no adjacent
// duplicates — the "Historian monotonicity" property. Only the leading
// zero is dropped; a later return to zero, or to an earlier value, is
// emitted again as a transition.
func FindHistoricalImplementations(addr common.Address, slot *uint256.Int, exp explorer.Explorer, rightBlock uint64) ([]common.Address, error) {
	table := make(map[uint64]*uint256.Int)

	getVal := func(block uint64) (*uint256.Int, error) {
		if v, ok := table[block]; ok {
			return v, nil
		}
		v, err := exp.GetStorageAt(addr, slot, fmt.Sprintf("%d", block))
		if err != nil {
			return nil, err
		}
		if v == nil {
			v = new(uint256.Int)
		}
		table[block] = v
		return v, nil
	}

	var searchErr error
	var searchDiff func(l, r uint64)
	searchDiff = func(l, r uint64) {
		if searchErr != nil {
			return
		}
		lv, err := getVal(l)
		if err != nil {
			searchErr = err
			return
		}
		rv, err := getVal(r)
		if err != nil {
			searchErr = err
			return
		}
		if lv.Eq(rv) || r-l <= 1 {
			return
		}
		mid := (l + r) / 2
		mv, err := getVal(mid)
		if err != nil {
			searchErr = err
			return
		}
		if !mv.Eq(lv) {
			searchDiff(l, mid)
		}
		if !mv.Eq(rv) {
			searchDiff(mid, r)
		}
	}

	left := uint64(1)
	if rightBlock < left {
		return nil, nil
	}
	searchDiff(left, rightBlock)
	if searchErr != nil {
		return nil, searchErr
	}

	blocks := make([]uint64, 0, len(table))
	for b := range table {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })

	// The running value starts at an implicit zero sentinel representing
	// "no value observed yet"; that sentinel is never itself emitted, but
	// an interior return to zero (e.g. a contract later selfdestructed) is,
	// since it is a genuine transition.
	var addrs []common.Address
	last := new(uint256.Int)
	for _, b := range blocks {
		v := table[b]
		if !v.Eq(last) {
			addrs = append(addrs, common.Address(v.Bytes20()))
			last = v
		}
	}
	return addrs, nil
}
