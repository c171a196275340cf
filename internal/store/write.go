package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/custody/internal/ledger"
)

// Insert appends an entry if and only if it extends the current tip.
//
// Runs in an IMMEDIATE transaction (see dsn), so the tip read and the insert
// are one unit even when other processes write to the same file. Returns
// ledger.ErrConflict when:
//   - the index or hash already exists (UNIQUE / PRIMARY KEY)
//   - the entry's index is not tip+1 or its prev_hash is not the tip hash
//
// All columns are written by a single INSERT; a failed transaction leaves
// nothing behind.
func (s *Store) Insert(ctx context.Context, e ledger.Entry) error {
	payloadJSON, err := marshalPayload(e.Payload)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := checkExtendsTip(ctx, tx, e); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries
		(idx, hash, prev_hash, timestamp, event_type, actor, tenant_id, payload, nonce)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Index,
		e.Hash,
		e.PrevHash,
		ledger.FormatTimestamp(e.Timestamp),
		e.EventType,
		e.Actor,
		e.TenantID,
		payloadJSON,
		e.Nonce,
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("insert entry %d: %w", e.Index, ledger.ErrConflict)
		}
		return fmt.Errorf("insert entry %d: %w", e.Index, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert entry %d: commit: %w", e.Index, err)
	}

	return nil
}

// checkExtendsTip rejects an entry that does not continue the chain tip.
func checkExtendsTip(ctx context.Context, tx *sql.Tx, e ledger.Entry) error {
	var tipIdx int64
	var tipHash string
	err := tx.QueryRowContext(ctx, `
		SELECT idx, hash FROM entries ORDER BY idx DESC LIMIT 1
	`).Scan(&tipIdx, &tipHash)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if e.Index != 0 || e.PrevHash != ledger.GenesisHash {
			return fmt.Errorf("insert entry %d: chain is empty, expected genesis: %w", e.Index, ledger.ErrConflict)
		}
		return nil
	case err != nil:
		return fmt.Errorf("insert entry %d: read tip: %w", e.Index, err)
	}

	if e.Index != tipIdx+1 || e.PrevHash != tipHash {
		return fmt.Errorf("insert entry %d: tip is %d: %w", e.Index, tipIdx, ledger.ErrConflict)
	}
	return nil
}

// isConstraintError reports UNIQUE / PRIMARY KEY violations.
func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint
}
