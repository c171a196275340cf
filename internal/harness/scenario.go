package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/custody/internal/ledger"
)

// Scenario is a ledger conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock fixes the timestamps stamped on appended entries. When nil the
	// clock starts at testutil.DefaultEpoch and advances one second per
	// append.
	Clock *ClockConfig `yaml:"clock,omitempty"`

	// Steps run in order against a fresh store.
	Steps []Step `yaml:"steps"`
}

// ClockConfig configures the deterministic clock.
type ClockConfig struct {
	// Start is an RFC 3339 timestamp.
	Start string `yaml:"start"`
	// Step is a Go duration ("1s", "876544us").
	Step string `yaml:"step"`
}

// Step is one operation plus an optional expectation. Exactly one operation
// field must be set.
type Step struct {
	Append      *AppendStep      `yaml:"append,omitempty"`
	Tamper      *TamperStep      `yaml:"tamper,omitempty"`
	VerifyEntry *VerifyEntryStep `yaml:"verify_entry,omitempty"`
	VerifyChain *VerifyChainStep `yaml:"verify_chain,omitempty"`
	History     *HistoryStep     `yaml:"history,omitempty"`

	// Expect is checked against the step's observation. If nil, only an
	// unexpected error fails the step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// AppendStep submits an append request.
type AppendStep struct {
	EventType string         `yaml:"event_type"`
	Actor     string         `yaml:"actor"`
	TenantID  string         `yaml:"tenant_id"`
	Payload   map[string]any `yaml:"payload"`
}

// TamperStep rewrites or deletes a stored row.
type TamperStep struct {
	Index int64 `yaml:"index"`
	// Field is the column to overwrite; ignored when Delete is set.
	Field  string `yaml:"field,omitempty"`
	Value  string `yaml:"value,omitempty"`
	Delete bool   `yaml:"delete,omitempty"`
}

// VerifyEntryStep verifies one entry by hash. Entry refers to the hash
// returned by an earlier append step for that index.
type VerifyEntryStep struct {
	Entry *int64 `yaml:"entry,omitempty"`
	Hash  string `yaml:"hash,omitempty"`
}

// VerifyChainStep verifies [From, To].
type VerifyChainStep struct {
	From *int64 `yaml:"from,omitempty"`
	To   *int64 `yaml:"to,omitempty"`
}

// HistoryStep reads one page of tenant history.
type HistoryStep struct {
	TenantID string `yaml:"tenant_id"`
	Limit    int    `yaml:"limit,omitempty"`
	Before   *int64 `yaml:"before,omitempty"`
}

// Expect lists expected observation values. Unset fields are not checked.
type Expect struct {
	// Error is the expected ledger error code, e.g. "ValidationError".
	Error      string  `yaml:"error,omitempty"`
	Index      *int64  `yaml:"index,omitempty"`
	Hash       string  `yaml:"hash,omitempty"`
	Valid      *bool   `yaml:"valid,omitempty"`
	Integrity  string  `yaml:"integrity,omitempty"`
	Reason     string  `yaml:"reason,omitempty"`
	BrokenAt   *int64  `yaml:"broken_at,omitempty"`
	Checked    *int64  `yaml:"checked,omitempty"`
	Indices    []int64 `yaml:"indices,omitempty"`
	NextBefore *int64  `yaml:"next_before,omitempty"`
}

// tamperColumns maps tamper fields onto entries columns.
var tamperColumns = map[string]string{
	"hash":       "hash",
	"prev_hash":  "prev_hash",
	"timestamp":  "timestamp",
	"event_type": "event_type",
	"actor":      "actor",
	"tenant_id":  "tenant_id",
	"payload":    "payload",
	"nonce":      "nonce",
}

var errorCodes = map[string]bool{
	string(ledger.CodeValidation):    true,
	string(ledger.CodeContention):    true,
	string(ledger.CodeStorage):       true,
	string(ledger.CodeCorruption):    true,
	string(ledger.CodeSerialization): true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "verify_chian:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if _, err := s.clock(); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	op, err := step.op()
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}

	switch op {
	case OpTamper:
		t := step.Tamper
		if t.Index < 0 {
			return fmt.Errorf("steps[%d].tamper: index must be non-negative", index)
		}
		if !t.Delete {
			if _, ok := tamperColumns[t.Field]; !ok {
				return fmt.Errorf("steps[%d].tamper: unknown field %q", index, t.Field)
			}
		}
		if step.Expect != nil {
			return fmt.Errorf("steps[%d]: tamper takes no expect clause", index)
		}
	case OpVerifyEntry:
		v := step.VerifyEntry
		if (v.Entry == nil) == (v.Hash == "") {
			return fmt.Errorf("steps[%d].verify_entry: exactly one of entry or hash is required", index)
		}
	case OpHistory:
		if step.History.TenantID == "" {
			return fmt.Errorf("steps[%d].history: tenant_id is required", index)
		}
	}

	if step.Expect != nil && step.Expect.Error != "" && !errorCodes[step.Expect.Error] {
		return fmt.Errorf("steps[%d].expect: unknown error code %q", index, step.Expect.Error)
	}

	return nil
}

// op returns the name of the single operation set on the step.
func (s *Step) op() (string, error) {
	var ops []string
	if s.Append != nil {
		ops = append(ops, OpAppend)
	}
	if s.Tamper != nil {
		ops = append(ops, OpTamper)
	}
	if s.VerifyEntry != nil {
		ops = append(ops, OpVerifyEntry)
	}
	if s.VerifyChain != nil {
		ops = append(ops, OpVerifyChain)
	}
	if s.History != nil {
		ops = append(ops, OpHistory)
	}

	switch len(ops) {
	case 1:
		return ops[0], nil
	case 0:
		return "", fmt.Errorf("no operation set")
	default:
		return "", fmt.Errorf("more than one operation set: %v", ops)
	}
}

// clock parses the clock configuration. Zero values mean defaults.
func (s *Scenario) clock() (clockSettings, error) {
	var cs clockSettings
	if s.Clock == nil {
		return cs, nil
	}
	if s.Clock.Start != "" {
		t, err := time.Parse(time.RFC3339Nano, s.Clock.Start)
		if err != nil {
			return cs, fmt.Errorf("clock.start: %w", err)
		}
		cs.start = t
	}
	if s.Clock.Step != "" {
		d, err := time.ParseDuration(s.Clock.Step)
		if err != nil {
			return cs, fmt.Errorf("clock.step: %w", err)
		}
		if d <= 0 {
			return cs, fmt.Errorf("clock.step must be positive")
		}
		cs.step = d
	}
	return cs, nil
}

type clockSettings struct {
	start time.Time
	step  time.Duration
}
