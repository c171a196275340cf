// Package engine implements the custody append coordinator.
//
// The coordinator is the only write path into the ledger. It turns an
// AppendRequest into a hashed, linked entry and persists it through a
// ledger.ChainStore.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// Append validates the request on the caller's goroutine, then enqueues it.
// Coordinator.Run dequeues requests one at a time, so within a process
// exactly one goroutine reads the tip and inserts. This ensures:
//   - No two appends in this process compute the same index
//   - Indices are assigned in arrival order
//   - Reads never take the writer's lock
//
// Append Flow:
//  1. Validate eventType, actor, tenantID and payload (fail fast, no I/O)
//  2. Enqueue onto the FIFO request queue
//  3. Run reads the tip and stamps the timestamp
//  4. Compute the hash and Insert (compare-and-append)
//  5. On ledger.ErrConflict, another process sharing the store won the
//     race: re-read the tip and try again, up to MaxAttempts
//
// CRITICAL PATTERNS:
//
// Compare-and-append:
// The store rejects an entry whose index is taken or whose prev hash is not
// the tip. The coordinator never overwrites; it only retries on a fresh tip.
//
// All-or-nothing attempts:
// An attempt that has started runs to completion even if the caller goes
// away. A request whose caller has already gone when it is dequeued is
// dropped without touching the store.
package engine
