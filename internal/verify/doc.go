// Package verify recomputes entry hashes and walks chain links to detect
// tampering.
//
// Verification is read-only. A failure is reported in the result, never
// repaired; ChainResult.Err converts it into a CorruptionDetected error for
// callers that want one.
package verify
