// Package history serves per-tenant views of the ledger. It is read-only:
// nothing here can append, update or delete.
package history

import (
	"context"

	"github.com/roach88/custody/internal/ledger"
)

const (
	// DefaultLimit is the page size when Query.Limit is zero.
	DefaultLimit = 100
	// MaxLimit caps Query.Limit.
	MaxLimit = 1000
)

// Query selects one page of a tenant's history.
type Query struct {
	TenantID string
	// Limit defaults to DefaultLimit and is clamped to MaxLimit.
	Limit int
	// Before, when set, returns only entries with index < *Before.
	Before *int64
}

// Page is one page of history, newest first.
type Page struct {
	Entries []ledger.Entry `json:"entries"`
	// NextBefore is the cursor for the following page; nil when this page
	// was not full.
	NextBefore *int64 `json:"nextBefore"`
}

// Reader lists tenant history from a chain store.
type Reader struct {
	store ledger.ChainStore
}

// NewReader creates a Reader over s.
func NewReader(s ledger.ChainStore) *Reader {
	return &Reader{store: s}
}

// ListByTenant returns the tenant's entries in strictly descending index
// order. Entries tagged with any other tenant never appear.
func (r *Reader) ListByTenant(ctx context.Context, q Query) (Page, error) {
	q, err := normalize(q)
	if err != nil {
		return Page{}, err
	}

	entries, err := r.store.ListByTenant(ctx, ledger.TenantQuery{
		TenantID: q.TenantID,
		Limit:    q.Limit,
		Before:   q.Before,
	})
	if err != nil {
		return Page{}, ledger.NewStorageError("list tenant history", err)
	}

	page := Page{Entries: entries}
	if len(entries) == q.Limit {
		next := entries[len(entries)-1].Index
		page.NextBefore = &next
	}
	return page, nil
}

func normalize(q Query) (Query, error) {
	if q.TenantID == "" {
		return Query{}, ledger.NewValidationError("tenantId is required")
	}
	switch {
	case q.Limit < 0:
		return Query{}, ledger.NewValidationError("limit must be >= 0, got %d", q.Limit)
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	if q.Before != nil && *q.Before < 0 {
		return Query{}, ledger.NewValidationError("before must be >= 0, got %d", *q.Before)
	}
	return q, nil
}
