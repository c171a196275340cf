package harness

import (
	"fmt"
	"slices"
	"strings"
)

// ExpectationError describes one mismatched expect field.
type ExpectationError struct {
	Step     int
	Op       string
	Field    string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	return fmt.Sprintf("step %d (%s): %s: expected %s, got %s", e.Step, e.Op, e.Field, e.Expected, e.Actual)
}

// checkExpect compares an observation against an expect clause and returns
// one message per mismatch.
//
// A step that fails with a ledger error passes only if the clause names
// that error code. A nil clause accepts any successful observation.
func checkExpect(step int, op string, exp *Expect, obs *Observation) []string {
	var errs []string
	fail := func(field string, expected, actual any) {
		errs = append(errs, (&ExpectationError{
			Step:     step,
			Op:       op,
			Field:    field,
			Expected: render(expected),
			Actual:   render(actual),
		}).Error())
	}

	if exp == nil {
		if obs.Error != "" {
			fail("error", "none", obs.Error+" ("+obs.Reason+")")
		}
		return errs
	}

	if exp.Error != "" || obs.Error != "" {
		if exp.Error != obs.Error {
			fail("error", orNone(exp.Error), orNone(obs.Error))
		}
		return errs
	}

	if exp.Index != nil && !int64PtrEqual(exp.Index, obs.Index) {
		fail("index", exp.Index, obs.Index)
	}
	if exp.Hash != "" && exp.Hash != obs.Hash {
		fail("hash", exp.Hash, obs.Hash)
	}
	if exp.Valid != nil && (obs.Valid == nil || *exp.Valid != *obs.Valid) {
		fail("valid", exp.Valid, obs.Valid)
	}
	if exp.Integrity != "" && exp.Integrity != obs.Integrity {
		fail("integrity", exp.Integrity, obs.Integrity)
	}
	if exp.Reason != "" && !strings.Contains(obs.Reason, exp.Reason) {
		fail("reason", exp.Reason, obs.Reason)
	}
	if exp.BrokenAt != nil && !int64PtrEqual(exp.BrokenAt, obs.BrokenAt) {
		fail("broken_at", exp.BrokenAt, obs.BrokenAt)
	}
	if exp.Checked != nil && !int64PtrEqual(exp.Checked, obs.Checked) {
		fail("checked", exp.Checked, obs.Checked)
	}
	if exp.Indices != nil && !slices.Equal(exp.Indices, obs.Indices) {
		fail("indices", exp.Indices, obs.Indices)
	}
	if exp.NextBefore != nil && !int64PtrEqual(exp.NextBefore, obs.NextBefore) {
		fail("next_before", exp.NextBefore, obs.NextBefore)
	}

	return errs
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// render formats a value for an expectation message, dereferencing
// pointers.
func render(v any) string {
	switch val := v.(type) {
	case *int64:
		if val == nil {
			return "null"
		}
		return fmt.Sprint(*val)
	case *bool:
		if val == nil {
			return "null"
		}
		return fmt.Sprint(*val)
	case string:
		if val == "" {
			return `""`
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}
