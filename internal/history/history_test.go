package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
	"github.com/roach88/custody/internal/store/levelstore"
	"github.com/roach88/custody/internal/testutil"
)

func backends(t *testing.T) map[string]ledger.ChainStore {
	t.Helper()
	dir := t.TempDir()

	sq, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	lv, err := levelstore.Open(filepath.Join(dir, "level"))
	require.NoError(t, err)
	t.Cleanup(func() { lv.Close() })

	return map[string]ledger.ChainStore{"sqlite": sq, "leveldb": lv}
}

func seed(t *testing.T, s ledger.ChainStore, specs ...testutil.EntrySpec) []ledger.Entry {
	t.Helper()
	entries := testutil.BuildChain(t, testutil.NewDeterministicClock(), specs...)
	for _, e := range entries {
		require.NoError(t, s.Insert(context.Background(), e))
	}
	return entries
}

func indices(entries []ledger.Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Index
	}
	return out
}

func ptr(i int64) *int64 { return &i }

func TestListByTenant_ScenarioOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s,
				testutil.EntrySpec{EventType: "DOC_SERVED", Actor: "u1", TenantID: "t1", Payload: ledger.Object{"doc": ledger.String("A")}},
				testutil.EntrySpec{EventType: "LOGIN", Actor: "u2", TenantID: "t1"},
				testutil.EntrySpec{EventType: "LOGIN", Actor: "u3", TenantID: "t2"},
			)

			page, err := NewReader(s).ListByTenant(context.Background(), Query{TenantID: "t1", Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 0}, indices(page.Entries))
			assert.Nil(t, page.NextBefore)
			for _, e := range page.Entries {
				assert.Equal(t, "t1", e.TenantID)
			}
		})
	}
}

func TestListByTenant_Pagination(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s, testutil.Specs(10, "t1", "t2")...)
			r := NewReader(s)
			ctx := context.Background()

			page, err := r.ListByTenant(ctx, Query{TenantID: "t1", Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []int64{8, 6}, indices(page.Entries))
			require.NotNil(t, page.NextBefore)
			assert.Equal(t, int64(6), *page.NextBefore)

			page, err = r.ListByTenant(ctx, Query{TenantID: "t1", Limit: 2, Before: page.NextBefore})
			require.NoError(t, err)
			assert.Equal(t, []int64{4, 2}, indices(page.Entries))

			page, err = r.ListByTenant(ctx, Query{TenantID: "t1", Limit: 2, Before: page.NextBefore})
			require.NoError(t, err)
			assert.Equal(t, []int64{0}, indices(page.Entries))
			assert.Nil(t, page.NextBefore)
		})
	}
}

func TestListByTenant_DefaultAndMaxLimit(t *testing.T) {
	s := backends(t)["sqlite"]
	seed(t, s, testutil.Specs(DefaultLimit+5)...)
	r := NewReader(s)

	page, err := r.ListByTenant(context.Background(), Query{TenantID: "t1"})
	require.NoError(t, err)
	assert.Len(t, page.Entries, DefaultLimit)
	assert.Equal(t, int64(DefaultLimit+4), page.Entries[0].Index)

	page, err = r.ListByTenant(context.Background(), Query{TenantID: "t1", Limit: MaxLimit * 10})
	require.NoError(t, err)
	assert.Len(t, page.Entries, DefaultLimit+5)
}

func TestListByTenant_StrictlyDescending(t *testing.T) {
	s := backends(t)["sqlite"]
	seed(t, s, testutil.Specs(30, "a", "b", "c")...)

	page, err := NewReader(s).ListByTenant(context.Background(), Query{TenantID: "b", Before: ptr(20)})
	require.NoError(t, err)
	require.NotEmpty(t, page.Entries)
	for i := 1; i < len(page.Entries); i++ {
		assert.Greater(t, page.Entries[i-1].Index, page.Entries[i].Index)
	}
	assert.Less(t, page.Entries[0].Index, int64(20))
}

func TestListByTenant_UnknownTenantIsEmpty(t *testing.T) {
	s := backends(t)["sqlite"]
	seed(t, s, testutil.Specs(3)...)

	page, err := NewReader(s).ListByTenant(context.Background(), Query{TenantID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.NotNil(t, page.Entries)
}

func TestListByTenant_InvalidQuery(t *testing.T) {
	r := NewReader(backends(t)["sqlite"])
	ctx := context.Background()

	for _, q := range []Query{
		{},
		{TenantID: "t1", Limit: -1},
		{TenantID: "t1", Before: ptr(-3)},
	} {
		_, err := r.ListByTenant(ctx, q)
		assert.Equal(t, ledger.CodeValidation, ledger.CodeOf(err), "%+v", q)
	}
}

type failingStore struct{ ledger.ChainStore }

func (failingStore) ListByTenant(context.Context, ledger.TenantQuery) ([]ledger.Entry, error) {
	return nil, errors.New("database is locked")
}

func TestListByTenant_StorageError(t *testing.T) {
	_, err := NewReader(failingStore{}).ListByTenant(context.Background(), Query{TenantID: "t1"})
	assert.Equal(t, ledger.CodeStorage, ledger.CodeOf(err))
}
