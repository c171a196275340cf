package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/testutil"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedChain builds a valid chain and inserts it.
func seedChain(t *testing.T, s *Store, specs ...testutil.EntrySpec) []ledger.Entry {
	t.Helper()
	entries := testutil.BuildChain(t, testutil.NewDeterministicClock(), specs...)
	for _, e := range entries {
		require.NoError(t, s.Insert(context.Background(), e))
	}
	return entries
}

// tamper runs a raw statement with the immutability triggers lifted.
func tamper(t *testing.T, s *Store, query string, args ...any) {
	t.Helper()
	_, err := s.db.Exec(`DROP TRIGGER IF EXISTS entries_no_update; DROP TRIGGER IF EXISTS entries_no_delete`)
	require.NoError(t, err)
	_, err = s.db.Exec(query, args...)
	require.NoError(t, err)
}
