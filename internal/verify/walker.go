package verify

import (
	"fmt"

	"github.com/roach88/custody/internal/ledger"
)

// walker checks entries in ascending order against the chain rules:
//   - indices are contiguous
//   - each prev hash is the predecessor's stored hash
//   - each stored hash equals the recomputed hash
//
// It stops at the first violation.
type walker struct {
	expected int64  // next index the chain must contain
	prev     string // stored hash of entry expected-1, or GenesisHash
	checked  int64
}

func newWalker(from int64, prev string) *walker {
	return &walker{expected: from, prev: prev}
}

// check verifies e and returns the offending index and reason on failure.
func (w *walker) check(e ledger.Entry) (int64, string, bool) {
	if e.Index != w.expected {
		return w.expected, fmt.Sprintf("entry %d is missing", w.expected), false
	}

	recomputed, err := ledger.HashEntry(e)
	if err != nil {
		return e.Index, "stored fields have no canonical serialization", false
	}
	if recomputed != e.Hash {
		return e.Index, "stored hash does not match recomputed hash", false
	}

	if e.PrevHash != w.prev {
		if e.Index == 0 {
			return e.Index, "genesis entry does not reference the genesis hash", false
		}
		return e.Index, "prev_hash does not match predecessor hash", false
	}

	w.expected++
	w.prev = e.Hash
	w.checked++
	return 0, "", true
}

// VerifyEntries applies the chain rules to an in-memory slice, such as an
// exported archive.
//
// prevHash is the hash the first entry must link to. Pass "" to trust the
// first entry's own prev hash; it is still required to be GenesisHash when
// the first entry is index 0.
func VerifyEntries(entries []ledger.Entry, prevHash string) ChainResult {
	res := ChainResult{Valid: true, To: -1}
	if len(entries) == 0 {
		return res
	}

	first := entries[0]
	res.From = first.Index
	res.To = entries[len(entries)-1].Index

	switch {
	case first.Index == 0:
		prevHash = ledger.GenesisHash
	case prevHash == "":
		prevHash = first.PrevHash
	}

	w := newWalker(first.Index, prevHash)
	for _, e := range entries {
		if at, reason, ok := w.check(e); !ok {
			res.Checked = w.checked
			return broken(res, at, reason)
		}
	}
	res.Checked = w.checked
	return res
}
