package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/custody/internal/ledger"
)

// DefaultPageSize is the number of entries VerifyChain reads per query.
const DefaultPageSize = 500

// Metrics receives verification outcomes. Implemented by metrics.Registry.
type Metrics interface {
	ObserveVerification(kind string, valid bool, checked int64, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveVerification(string, bool, int64, time.Duration) {}

// Verifier checks stored entries. It never writes.
type Verifier struct {
	store    ledger.ChainStore
	pageSize int
	metrics  Metrics
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithPageSize sets how many entries VerifyChain reads per query.
// Values below 1 are ignored.
func WithPageSize(n int) Option {
	return func(v *Verifier) {
		if n >= 1 {
			v.pageSize = n
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// New creates a Verifier over s.
func New(s ledger.ChainStore, opts ...Option) *Verifier {
	v := &Verifier{
		store:    s,
		pageSize: DefaultPageSize,
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyEntry recomputes the hash of the entry stored under hash.
//
// A missing entry is a result (Reason NOT_FOUND), not an error. Errors are
// reserved for malformed input (ValidationError) and store failures
// (StorageUnavailable).
func (v *Verifier) VerifyEntry(ctx context.Context, hash string) (EntryResult, error) {
	start := time.Now()
	res, err := v.verifyEntry(ctx, hash)
	if err == nil {
		v.metrics.ObserveVerification("entry", res.Valid, boolToInt(res.Found()), time.Since(start))
	}
	return res, err
}

func (v *Verifier) verifyEntry(ctx context.Context, hash string) (EntryResult, error) {
	if !ledger.IsHash(hash) {
		return EntryResult{}, ledger.NewValidationError("hash must be %d lowercase hex characters", ledger.HashLength)
	}

	res := EntryResult{Hash: hash}

	e, err := v.store.GetByHash(ctx, hash)
	if errors.Is(err, ledger.ErrNotFound) {
		res.Reason = ReasonNotFound
		return res, nil
	}
	if idx, ok := ledger.CorruptIndex(err); ok {
		slog.Warn("stored entry is unreadable", "hash", hash, "index", idx, "error", err)
		res.Integrity = Corrupted
		res.Reason = ReasonCorrupted
		res.Index = &idx
		return res, nil
	}
	if err != nil {
		return EntryResult{}, ledger.NewStorageError("verify entry", err)
	}

	res.Index = &e.Index
	res.Timestamp = ledger.FormatTimestamp(e.Timestamp)

	recomputed, err := ledger.HashEntry(e)
	if err != nil || recomputed != e.Hash {
		slog.Warn("entry hash mismatch", "hash", hash, "index", e.Index, "recomputed", recomputed)
		res.Integrity = Corrupted
		res.Reason = ReasonCorrupted
		return res, nil
	}

	res.Valid = true
	res.Integrity = Intact
	return res, nil
}

// ChainRange bounds VerifyChain. A nil From starts at 0; a nil To stops at
// the tip as of the start of the scan.
type ChainRange struct {
	From *int64
	To   *int64
}

// VerifyChain walks [From, To] in ascending order and reports the first
// violation.
//
// The upper bound is fixed when the scan starts, so entries appended while
// it runs are not examined. An explicit To beyond the tip is clamped to it.
// When From > 0, the first entry is linked against the stored hash of
// From-1; if that predecessor is missing the chain is reported broken at
// From.
func (v *Verifier) VerifyChain(ctx context.Context, rng ChainRange) (ChainResult, error) {
	start := time.Now()
	res, err := v.verifyChain(ctx, rng)
	if err == nil {
		v.metrics.ObserveVerification("chain", res.Valid, res.Checked, time.Since(start))
		if !res.Valid {
			slog.Warn("chain verification failed",
				"broken_at", *res.BrokenAt,
				"reason", res.Reason,
				"checked", res.Checked,
			)
		}
	}
	return res, err
}

func (v *Verifier) verifyChain(ctx context.Context, rng ChainRange) (ChainResult, error) {
	var from int64
	if rng.From != nil {
		from = *rng.From
	}
	if from < 0 {
		return ChainResult{}, ledger.NewValidationError("from must be >= 0, got %d", from)
	}
	if rng.To != nil && *rng.To < from {
		return ChainResult{}, ledger.NewValidationError("to (%d) must be >= from (%d)", *rng.To, from)
	}

	tip, ok, err := v.store.Last(ctx)
	if idx, corrupt := ledger.CorruptIndex(err); corrupt {
		// The tip row itself is unreadable. Walk up to it so that an
		// earlier violation still wins.
		tip, ok, err = ledger.Entry{Index: idx}, true, nil
	}
	if err != nil {
		return ChainResult{}, ledger.NewStorageError("verify chain: read tip", err)
	}

	res := ChainResult{Valid: true, From: from, To: -1}
	if !ok || from > tip.Index {
		return res, nil
	}

	to := tip.Index
	if rng.To != nil && *rng.To < to {
		to = *rng.To
	}
	res.To = to

	prev := ledger.GenesisHash
	if from > 0 {
		pred, err := v.store.GetByIndex(ctx, from-1)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return broken(res, from, fmt.Sprintf("predecessor %d is missing", from-1)), nil
		case ledger.IsCorruption(err):
			return broken(res, from, fmt.Sprintf("predecessor %d is unreadable", from-1)), nil
		case err != nil:
			return ChainResult{}, ledger.NewStorageError("verify chain: read predecessor", err)
		}
		prev = pred.Hash
	}

	w := newWalker(from, prev)
	for w.expected <= to {
		page, corruptAt, err := v.readPage(ctx, w.expected, to)
		if err != nil {
			return ChainResult{}, ledger.NewStorageError("verify chain: read range", err)
		}

		for _, e := range page {
			if at, reason, ok := w.check(e); !ok {
				res.Checked = w.checked
				return broken(res, at, reason), nil
			}
		}

		if corruptAt != nil && w.expected == *corruptAt {
			res.Checked = w.checked
			return broken(res, *corruptAt, "stored entry is unreadable"), nil
		}
		if len(page) == 0 {
			res.Checked = w.checked
			return broken(res, w.expected, fmt.Sprintf("entry %d is missing", w.expected)), nil
		}
	}

	res.Checked = w.checked
	return res, nil
}

// readPage reads up to pageSize entries starting at from.
//
// When the store reports an unreadable row at index k, the page is re-read
// up to k-1 and k is returned so the caller can report it once everything
// before it has been checked.
func (v *Verifier) readPage(ctx context.Context, from, to int64) ([]ledger.Entry, *int64, error) {
	page, err := v.store.ListRange(ctx, from, to, v.pageSize)
	idx, corrupt := ledger.CorruptIndex(err)
	if !corrupt {
		return page, nil, err
	}
	if idx < from {
		return nil, nil, err
	}
	if idx == from {
		return nil, &idx, nil
	}
	page, err = v.store.ListRange(ctx, from, idx-1, v.pageSize)
	return page, &idx, err
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
