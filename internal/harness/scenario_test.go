package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: parsed
description: parsing
clock:
  start: "2026-01-02T03:04:05.5Z"
  step: 250ms
steps:
  - append:
      event_type: DOC_SERVED
      actor: u1
      tenant_id: t1
      payload: {doc: A, pages: [1, 2], signed: true, note: null}
    expect: {index: 0}
  - verify_entry: {hash: dd11a0e6e360d45ae372deab67ff9344106a18138f06fd58a0620592a62c81d7}
    expect: {reason: NOT_FOUND}
  - verify_chain: {from: 0, to: 3}
  - history: {tenant_id: t1, limit: 10, before: 4}
    expect: {indices: [0], next_before: 0}
`))
	require.NoError(t, err)

	assert.Equal(t, "parsed", s.Name)
	require.Len(t, s.Steps, 4)

	a := s.Steps[0].Append
	require.NotNil(t, a)
	assert.Equal(t, "DOC_SERVED", a.EventType)
	assert.Equal(t, map[string]any{"doc": "A", "pages": []any{1, 2}, "signed": true, "note": nil}, a.Payload)
	assert.Equal(t, int64(0), *s.Steps[0].Expect.Index)

	require.NotNil(t, s.Steps[2].VerifyChain)
	assert.Equal(t, int64(3), *s.Steps[2].VerifyChain.To)
	assert.Equal(t, []int64{0}, s.Steps[3].Expect.Indices)

	cs, err := s.clock()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 500000000, time.UTC), cs.start)
	assert.Equal(t, 250*time.Millisecond, cs.step)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "steps:\n  - verify_chain: {}\n", "name is required"},
		{"no steps", "name: x\n", "steps list is required"},
		{"unknown field", "name: x\nsetps: []\n", "field setps not found"},
		{"unknown step field", "name: x\nsteps:\n  - verify_chian: {}\n", "field verify_chian not found"},
		{"empty step", "name: x\nsteps:\n  - expect: {valid: true}\n", "steps[0]: no operation set"},
		{"two operations", "name: x\nsteps:\n  - verify_chain: {}\n    history: {tenant_id: t}\n", "more than one operation"},
		{"bad tamper field", "name: x\nsteps:\n  - tamper: {index: 0, field: idx, value: '9'}\n", `unknown field "idx"`},
		{"tamper with expect", "name: x\nsteps:\n  - tamper: {index: 0, delete: true}\n    expect: {valid: true}\n", "tamper takes no expect"},
		{"verify entry ambiguous", "name: x\nsteps:\n  - verify_entry: {}\n", "exactly one of entry or hash"},
		{"history without tenant", "name: x\nsteps:\n  - history: {limit: 3}\n", "tenant_id is required"},
		{"unknown error code", "name: x\nsteps:\n  - verify_chain: {}\n    expect: {error: Oops}\n", `unknown error code "Oops"`},
		{"bad clock start", "name: x\nclock: {start: yesterday}\nsteps:\n  - verify_chain: {}\n", "clock.start"},
		{"bad clock step", "name: x\nclock: {step: -1s}\nsteps:\n  - verify_chain: {}\n", "clock.step must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: from-file\nsteps:\n  - verify_chain: {}\n"), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", s.Name)
}
