package ledger

import (
	"errors"
	"fmt"
)

// Code categorizes ledger errors so callers can tell "retry me" from "fix
// your input" from "the record has been tampered with".
type Code string

const (
	// CodeValidation marks malformed or missing input. Caller-correctable.
	CodeValidation Code = "ValidationError"

	// CodeContention marks an index race that outlived the retry budget.
	CodeContention Code = "AppendContention"

	// CodeStorage marks an infrastructure failure. Retry the whole operation.
	CodeStorage Code = "StorageUnavailable"

	// CodeCorruption marks a hash mismatch or a broken link. Raised only by
	// verification.
	CodeCorruption Code = "CorruptionDetected"

	// CodeSerialization marks a payload with no canonical form.
	CodeSerialization Code = "SerializationError"
)

// Sentinel errors returned by ChainStore implementations.
var (
	ErrNotFound = errors.New("ledger: entry not found")
	ErrConflict = errors.New("ledger: index or hash already exists")
)

// Error is a ledger failure with a stable code.
type Error struct {
	Code    Code
	Message string
	Err     error
	// Index is the first bad index; set only for CodeCorruption.
	Index int64
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports bad input.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewContentionError reports an exhausted retry budget.
func NewContentionError(attempts int, err error) *Error {
	return &Error{
		Code:    CodeContention,
		Message: fmt.Sprintf("index still contended after %d attempts", attempts),
		Err:     err,
	}
}

// NewStorageError wraps an infrastructure failure.
func NewStorageError(op string, err error) *Error {
	return &Error{Code: CodeStorage, Message: op, Err: err}
}

// NewCorruptionError reports a verification failure at an index.
func NewCorruptionError(index int64, reason string) *Error {
	return &Error{
		Code:    CodeCorruption,
		Message: fmt.Sprintf("chain broken at index %d: %s", index, reason),
		Index:   index,
	}
}

// NewSerializationError wraps a canonicalization failure.
func NewSerializationError(err error) *Error {
	return &Error{Code: CodeSerialization, Message: "payload has no canonical serialization", Err: err}
}

// CodeOf extracts the code from err, or "" if err carries none.
// Uses errors.As so wrapped errors are matched.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsValidation reports whether err is caller-correctable input.
// Serialization failures count: the caller must change the payload.
func IsValidation(err error) bool {
	c := CodeOf(err)
	return c == CodeValidation || c == CodeSerialization
}

// IsRetryable reports whether retrying the same request may succeed.
func IsRetryable(err error) bool {
	c := CodeOf(err)
	return c == CodeContention || c == CodeStorage
}

// IsCorruption reports whether err signals tampering.
func IsCorruption(err error) bool {
	return CodeOf(err) == CodeCorruption
}

// CorruptIndex returns the index carried by a corruption error.
func CorruptIndex(err error) (int64, bool) {
	var le *Error
	if errors.As(err, &le) && le.Code == CodeCorruption {
		return le.Index, true
	}
	return 0, false
}
