package harness

// Step operation names, as they appear in traces.
const (
	OpAppend      = "append"
	OpTamper      = "tamper"
	OpVerifyEntry = "verify_entry"
	OpVerifyChain = "verify_chain"
	OpHistory     = "history"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Op     string         `json:"op"`
	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output,omitempty"`
}

// Observation is what a step produced. Only the fields relevant to the
// step's operation are set.
type Observation struct {
	// Error is the ledger error code, empty on success.
	Error      string
	Index      *int64
	Hash       string
	Valid      *bool
	Integrity  string
	Reason     string
	BrokenAt   *int64
	Checked    *int64
	Indices    []int64
	NextBefore *int64
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause matched.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(op string, input map[string]any, obs *Observation) {
	ev := TraceEvent{
		Seq:   int64(len(r.Trace) + 1),
		Op:    op,
		Input: input,
	}
	if obs != nil {
		ev.Output = obs.toMap(op)
	}
	r.Trace = append(r.Trace, ev)
}

// toMap renders the fields of o that op produces.
func (o *Observation) toMap(op string) map[string]any {
	if o.Error != "" {
		return map[string]any{"error": o.Error}
	}

	out := map[string]any{}
	switch op {
	case OpAppend:
		out["index"] = derefInt(o.Index)
		out["hash"] = o.Hash
	case OpVerifyEntry:
		out["valid"] = derefBool(o.Valid)
		if o.Integrity != "" {
			out["integrity"] = o.Integrity
		}
		if o.Reason != "" {
			out["reason"] = o.Reason
		}
		if o.Index != nil {
			out["index"] = *o.Index
		}
	case OpVerifyChain:
		out["valid"] = derefBool(o.Valid)
		out["broken_at"] = derefInt(o.BrokenAt)
		out["checked"] = derefInt(o.Checked)
	case OpHistory:
		indices := make([]any, len(o.Indices))
		for i, idx := range o.Indices {
			indices[i] = idx
		}
		out["indices"] = indices
		out["next_before"] = derefInt(o.NextBefore)
	}
	return out
}

// derefInt returns *p, or nil so that canonical JSON renders null.
func derefInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
