package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/custody/internal/engine"
	"github.com/roach88/custody/internal/history"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
	"github.com/roach88/custody/internal/testutil"
	"github.com/roach88/custody/internal/verify"
)

// Harness is the scenario execution engine.
type Harness struct {
	store    *store.Store
	coord    *engine.Coordinator
	verifier *verify.Verifier
	history  *history.Reader
	logger   *slog.Logger

	// hashes maps appended indices to their hashes for verify_entry steps.
	hashes map[int64]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh SQLite database in a temporary
// directory, with a deterministic clock, so repeated runs produce the same
// trace.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	cs, err := scenario.clock()
	if err != nil {
		return nil, err
	}
	clock := testutil.NewDeterministicClock()
	if !cs.start.IsZero() || cs.step != 0 {
		start, step := testutil.DefaultEpoch, cs.step
		if !cs.start.IsZero() {
			start = cs.start
		}
		if step == 0 {
			step = testutil.DefaultStep
		}
		clock = testutil.NewSteppingClock(start, step)
	}

	dir, err := os.MkdirTemp("", "custody-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	coord := engine.New(st, engine.WithClock(clock))
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	h := &Harness{
		store:    st,
		coord:    coord,
		verifier: verify.New(st),
		history:  history.NewReader(st),
		logger:   slog.Default().With("scenario", scenario.Name),
		hashes:   make(map[int64]string),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	return result, nil
}

// execute runs one step, records it in the trace and checks its
// expectation. Returned errors are harness failures, not ledger outcomes.
func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) error {
	op, err := step.op()
	if err != nil {
		return err
	}

	var (
		input map[string]any
		obs   *Observation
	)
	switch op {
	case OpAppend:
		input, obs = h.append(ctx, step.Append)
	case OpTamper:
		input, err = h.tamper(step.Tamper)
	case OpVerifyEntry:
		input, obs, err = h.verifyEntry(ctx, step.VerifyEntry)
	case OpVerifyChain:
		input, obs = h.verifyChain(ctx, step.VerifyChain)
	case OpHistory:
		input, obs = h.listHistory(ctx, step.History)
	}
	if err != nil {
		return err
	}

	result.AddTrace(op, input, obs)
	h.logger.Debug("scenario step executed", "step", i+1, "op", op)

	if obs != nil {
		for _, msg := range checkExpect(i+1, op, step.Expect, obs) {
			result.AddError(msg)
		}
	}
	return nil
}

func (h *Harness) append(ctx context.Context, s *AppendStep) (map[string]any, *Observation) {
	input := map[string]any{
		"event_type": s.EventType,
		"actor":      s.Actor,
		"tenant_id":  s.TenantID,
	}

	payload, err := ledger.ObjectFromGo(s.Payload)
	if err != nil {
		return input, errorObservation(ledger.NewValidationError("payload: %v", err))
	}
	input["payload"] = payload

	res, err := h.coord.Append(ctx, ledger.AppendRequest{
		EventType: s.EventType,
		Actor:     s.Actor,
		TenantID:  s.TenantID,
		Payload:   payload,
	})
	if err != nil {
		return input, errorObservation(err)
	}

	h.hashes[res.Index] = res.Hash
	return input, &Observation{Index: &res.Index, Hash: res.Hash}
}

// tamper rewrites a stored row with the immutability triggers lifted.
func (h *Harness) tamper(s *TamperStep) (map[string]any, error) {
	db := h.store.DB()
	if _, err := db.Exec(`DROP TRIGGER IF EXISTS entries_no_update; DROP TRIGGER IF EXISTS entries_no_delete`); err != nil {
		return nil, fmt.Errorf("tamper: lift triggers: %w", err)
	}

	input := map[string]any{"index": s.Index}
	if s.Delete {
		input["delete"] = true
		if _, err := db.Exec(`DELETE FROM entries WHERE idx = ?`, s.Index); err != nil {
			return nil, fmt.Errorf("tamper: delete %d: %w", s.Index, err)
		}
		return input, nil
	}

	input["field"] = s.Field
	input["value"] = s.Value
	// Column names come from tamperColumns, never from the scenario text.
	column := tamperColumns[s.Field]
	res, err := db.Exec(`UPDATE entries SET `+column+` = ? WHERE idx = ?`, s.Value, s.Index)
	if err != nil {
		return nil, fmt.Errorf("tamper: update %d: %w", s.Index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("tamper: no entry at index %d", s.Index)
	}
	return input, nil
}

func (h *Harness) verifyEntry(ctx context.Context, s *VerifyEntryStep) (map[string]any, *Observation, error) {
	hash := s.Hash
	if s.Entry != nil {
		var ok bool
		if hash, ok = h.hashes[*s.Entry]; !ok {
			return nil, nil, fmt.Errorf("verify_entry: no append produced index %d", *s.Entry)
		}
	}
	input := map[string]any{"hash": hash}

	res, err := h.verifier.VerifyEntry(ctx, hash)
	if err != nil {
		return input, errorObservation(err), nil
	}
	return input, &Observation{
		Valid:     &res.Valid,
		Integrity: string(res.Integrity),
		Reason:    string(res.Reason),
		Index:     res.Index,
	}, nil
}

func (h *Harness) verifyChain(ctx context.Context, s *VerifyChainStep) (map[string]any, *Observation) {
	input := map[string]any{}
	if s.From != nil {
		input["from"] = *s.From
	}
	if s.To != nil {
		input["to"] = *s.To
	}

	res, err := h.verifier.VerifyChain(ctx, verify.ChainRange{From: s.From, To: s.To})
	if err != nil {
		return input, errorObservation(err)
	}
	return input, &Observation{
		Valid:    &res.Valid,
		BrokenAt: res.BrokenAt,
		Checked:  &res.Checked,
		Reason:   res.Reason,
	}
}

func (h *Harness) listHistory(ctx context.Context, s *HistoryStep) (map[string]any, *Observation) {
	input := map[string]any{"tenant_id": s.TenantID}
	if s.Limit != 0 {
		input["limit"] = s.Limit
	}
	if s.Before != nil {
		input["before"] = *s.Before
	}

	page, err := h.history.ListByTenant(ctx, history.Query{
		TenantID: s.TenantID,
		Limit:    s.Limit,
		Before:   s.Before,
	})
	if err != nil {
		return input, errorObservation(err)
	}

	indices := make([]int64, len(page.Entries))
	for i, e := range page.Entries {
		indices[i] = e.Index
	}
	return input, &Observation{Indices: indices, NextBefore: page.NextBefore}
}

func errorObservation(err error) *Observation {
	code := string(ledger.CodeOf(err))
	if code == "" {
		code = "InternalError"
	}
	return &Observation{Error: code, Reason: err.Error()}
}
