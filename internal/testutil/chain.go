package testutil

import (
	"testing"

	"github.com/roach88/custody/internal/ledger"
)

// EntrySpec describes one entry for BuildChain.
type EntrySpec struct {
	EventType string
	Actor     string
	TenantID  string
	Payload   ledger.Object
}

// BuildChain links specs into a valid chain starting at index 0, stamping
// each entry from clock. Hashes are computed exactly as the append path
// computes them.
func BuildChain(t testing.TB, clock ledger.Clock, specs ...EntrySpec) []ledger.Entry {
	t.Helper()

	entries := make([]ledger.Entry, 0, len(specs))
	prev := ledger.GenesisHash
	for i, s := range specs {
		payload := s.Payload
		if payload == nil {
			payload = ledger.Object{}
		}
		e := ledger.Entry{
			Index:     int64(i),
			Timestamp: ledger.NormalizeTimestamp(clock.Now()),
			EventType: s.EventType,
			Actor:     s.Actor,
			TenantID:  s.TenantID,
			Payload:   payload,
			PrevHash:  prev,
		}
		h, err := ledger.HashEntry(e)
		if err != nil {
			t.Fatalf("BuildChain: entry %d: %v", i, err)
		}
		e.Hash = h
		entries = append(entries, e)
		prev = h
	}
	return entries
}

// Specs returns n entry specs cycling through the given tenants.
// Each payload carries its position as "n".
func Specs(n int, tenants ...string) []EntrySpec {
	if len(tenants) == 0 {
		tenants = []string{"t1"}
	}
	specs := make([]EntrySpec, n)
	for i := range specs {
		specs[i] = EntrySpec{
			EventType: "DOC_SERVED",
			Actor:     "u1",
			TenantID:  tenants[i%len(tenants)],
			Payload:   ledger.Object{"n": ledger.Int(i)},
		}
	}
	return specs
}
