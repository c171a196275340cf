// Package store provides the SQLite-backed chain store for the custody ledger.
//
// The store is an append-only table of ledger entries with:
//   - idx INTEGER PRIMARY KEY: one row per index, never reused
//   - hash TEXT UNIQUE: no two entries share a digest
//   - immutability triggers: UPDATE and DELETE abort
//
// # Critical Patterns
//
// Compare-and-append: Insert runs in an IMMEDIATE transaction that reads the
// tip and only inserts when the new entry extends it. A writer in another
// process that lost the race gets ledger.ErrConflict and re-reads the tip.
//
// Deterministic reads: every multi-row query orders by idx.
//
// Canonical storage: payloads are stored as canonical JSON text and
// timestamps in ledger.TimestampLayout, exactly the bytes that were hashed.
// A row whose stored text does not parse back is reported as corruption.
//
// # Database Configuration
//
//   - WAL mode: readers never block the writer
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - _txlock=immediate: write transactions take the lock up front
package store
