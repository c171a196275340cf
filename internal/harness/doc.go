// Package harness runs YAML ledger scenarios end to end.
//
// A scenario is a list of steps executed against a fresh SQLite chain store
// through the real append coordinator, verifier and history reader:
//
//	name: doc_served_login_tamper
//	description: tampering with a stored payload is detected
//	clock:
//	  start: "2026-01-02T03:04:05.123456Z"
//	  step: 876544us
//	steps:
//	  - append: {event_type: DOC_SERVED, actor: u1, tenant_id: t1, payload: {doc: A}}
//	    expect: {index: 0}
//	  - tamper: {index: 0, field: payload, value: '{"doc":"B"}'}
//	  - verify_chain: {}
//	    expect: {valid: false, broken_at: 0}
//
// Every step is recorded in a trace. The clock is deterministic, so the
// trace (including entry hashes) is identical on every run and can be
// compared against a golden file with RunWithGolden.
//
// The tamper step is the only way to change a stored row. It lifts the
// store's immutability triggers and rewrites the row directly, standing in
// for an attacker with raw database access.
package harness
