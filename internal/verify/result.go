package verify

import (
	"github.com/roach88/custody/internal/ledger"
)

// Integrity is the verdict on a single stored entry.
type Integrity string

const (
	Intact    Integrity = "INTACT"
	Corrupted Integrity = "CORRUPTED"
)

// Reason explains an invalid EntryResult.
type Reason string

const (
	ReasonCorrupted Reason = "CORRUPTED"
	ReasonNotFound  Reason = "NOT_FOUND"
)

// EntryResult is the outcome of VerifyEntry.
type EntryResult struct {
	Valid     bool      `json:"valid"`
	Integrity Integrity `json:"integrity,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	Hash      string    `json:"hash"`
	Index     *int64    `json:"index,omitempty"`
	// Timestamp is the stored timestamp in ledger.TimestampLayout.
	Timestamp string `json:"timestamp,omitempty"`
}

// Found reports whether the hash matched a stored entry.
func (r EntryResult) Found() bool {
	return r.Reason != ReasonNotFound
}

// ChainResult is the outcome of VerifyChain and VerifyEntries.
type ChainResult struct {
	Valid bool `json:"valid"`
	// BrokenAt is the first offending index; nil when Valid.
	BrokenAt *int64 `json:"brokenAt"`
	Reason   string `json:"reason,omitempty"`
	// Checked counts entries that passed before the walk stopped.
	Checked int64 `json:"checked"`
	// From and To bound the verified range. To is -1 for an empty range.
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Err returns a CorruptionDetected error if the chain is broken, else nil.
func (r ChainResult) Err() error {
	if r.Valid || r.BrokenAt == nil {
		return nil
	}
	return ledger.NewCorruptionError(*r.BrokenAt, r.Reason)
}

func broken(res ChainResult, index int64, reason string) ChainResult {
	res.Valid = false
	res.BrokenAt = &index
	res.Reason = reason
	return res
}
