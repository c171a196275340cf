// Package ledger defines the entry model, the hash engine and the storage
// contract for the custody hash chain.
//
// This package has no internal imports. Storage backends, the append
// coordinator, the verifier and the history reader all build on it.
//
// Key constraints:
//   - Payload values are Null, String, Int, Bool, Array or Object. NO floats.
//   - Hashes are SHA-256 over canonical JSON with domain separation.
//   - Timestamps are UTC, truncated to microseconds, hashed in TimestampLayout.
//   - Entry 0 links to GenesisHash, a constant that ComputeHash never produces.
package ledger
