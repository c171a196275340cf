package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/custody/internal/ledger"
)

const entryColumns = `idx, hash, prev_hash, timestamp, event_type, actor, tenant_id, payload, nonce`

// Last returns the entry with the greatest index.
// ok is false when the chain is empty.
func (s *Store) Last(ctx context.Context) (ledger.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		ORDER BY idx DESC
		LIMIT 1
	`)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, fmt.Errorf("read tip: %w", err)
	}
	return e, true, nil
}

// GetByHash retrieves a single entry by digest.
// Returns ledger.ErrNotFound if no entry has that hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE hash = ?
	`, hash)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, fmt.Errorf("get entry %s: %w", hash, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("get entry %s: %w", hash, err)
	}
	return e, nil
}

// GetByIndex retrieves a single entry by index.
// Returns ledger.ErrNotFound if the index does not exist.
func (s *Store) GetByIndex(ctx context.Context, index int64) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE idx = ?
	`, index)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, fmt.Errorf("get entry %d: %w", index, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("get entry %d: %w", index, err)
	}
	return e, nil
}

// ListRange returns up to limit entries with from <= idx <= to, ascending.
// A limit <= 0 means no limit.
func (s *Store) ListRange(ctx context.Context, from, to int64, limit int) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE idx >= ? AND idx <= ?
		ORDER BY idx ASC
		LIMIT ?
	`, from, to, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListByTenant returns one page of a tenant's entries, descending by index
// unless q.Ascending is set.
func (s *Store) ListByTenant(ctx context.Context, q ledger.TenantQuery) ([]ledger.Entry, error) {
	order := "DESC"
	if q.Ascending {
		order = "ASC"
	}

	query := `SELECT ` + entryColumns + ` FROM entries WHERE tenant_id = ?`
	args := []any{q.TenantID}
	if q.Before != nil {
		query += ` AND idx < ?`
		args = append(args, *q.Before)
	}
	query += ` ORDER BY idx ` + order + ` LIMIT ?`
	args = append(args, sqlLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tenant %s: %w", q.TenantID, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// sqlLimit maps "no limit" onto SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// collectEntries drains rows. Returns an empty slice (not nil) when there
// are no rows.
func collectEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	entries := []ledger.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// scanEntry scans one row into an Entry.
// Stored text that does not parse back into its canonical form can only
// come from outside the write path, so it is reported as corruption of
// that index.
func scanEntry(row rowScanner) (ledger.Entry, error) {
	var e ledger.Entry
	var ts, payloadJSON string

	if err := row.Scan(
		&e.Index, &e.Hash, &e.PrevHash, &ts, &e.EventType,
		&e.Actor, &e.TenantID, &payloadJSON, &e.Nonce,
	); err != nil {
		return ledger.Entry{}, err
	}

	parsed, err := ledger.ParseTimestamp(ts)
	if err != nil {
		return ledger.Entry{}, ledger.NewCorruptionError(e.Index, fmt.Sprintf("stored timestamp %q is not canonical", ts))
	}
	e.Timestamp = parsed

	e.Payload, err = unmarshalPayload(payloadJSON)
	if err != nil {
		return ledger.Entry{}, ledger.NewCorruptionError(e.Index, "stored payload does not parse")
	}

	return e, nil
}
