package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/custody/internal/ledger"
)

func validRequest() ledger.AppendRequest {
	return ledger.AppendRequest{
		EventType: "DOC_SERVED",
		Actor:     "u1",
		TenantID:  "t1",
		Payload:   ledger.Object{"doc": ledger.String("A")},
	}
}

func TestValidateRequest_Valid(t *testing.T) {
	got, err := ValidateRequest(validRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, validRequest(), got)
}

func TestValidateRequest_TrimsAndDefaultsPayload(t *testing.T) {
	req := ledger.AppendRequest{EventType: " LOGIN ", Actor: "\tu2", TenantID: "t1 "}

	got, err := ValidateRequest(req, nil)
	require.NoError(t, err)
	assert.Equal(t, "LOGIN", got.EventType)
	assert.Equal(t, "u2", got.Actor)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, ledger.Object{}, got.Payload)
}

func TestValidateRequest_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ledger.AppendRequest)
		want   string
	}{
		{"empty event type", func(r *ledger.AppendRequest) { r.EventType = "" }, "eventType is required"},
		{"blank actor", func(r *ledger.AppendRequest) { r.Actor = "   " }, "actor is required"},
		{"empty tenant", func(r *ledger.AppendRequest) { r.TenantID = "" }, "tenantId is required"},
		{"event type starts with digit", func(r *ledger.AppendRequest) { r.EventType = "1LOGIN" }, "must start with a letter"},
		{"event type with space", func(r *ledger.AppendRequest) { r.EventType = "DOC SERVED" }, "must start with a letter"},
		{"actor too long", func(r *ledger.AppendRequest) { r.Actor = strings.Repeat("a", MaxFieldBytes+1) }, "exceeds 256 bytes"},
		{"tenant control char", func(r *ledger.AppendRequest) { r.TenantID = "t\x001" }, "control characters"},
		{"actor invalid utf8", func(r *ledger.AppendRequest) { r.Actor = "u\xff" }, "not valid UTF-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := ValidateRequest(req, nil)
			require.Error(t, err)
			assert.Equal(t, ledger.CodeValidation, ledger.CodeOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateRequest_FieldAtLimit(t *testing.T) {
	req := validRequest()
	req.Actor = strings.Repeat("a", MaxFieldBytes)

	_, err := ValidateRequest(req, nil)
	assert.NoError(t, err)
}

func TestValidateRequest_UnserializablePayload(t *testing.T) {
	req := validRequest()
	req.Payload = ledger.Object{"bad": ledger.String("\xff")}

	_, err := ValidateRequest(req, nil)
	assert.Equal(t, ledger.CodeSerialization, ledger.CodeOf(err))
	assert.True(t, ledger.IsValidation(err))
}

type stubCatalog struct{ err error }

func (s stubCatalog) Validate(string, ledger.Object) error { return s.err }

func TestValidateRequest_Catalog(t *testing.T) {
	_, err := ValidateRequest(validRequest(), stubCatalog{})
	assert.NoError(t, err)

	_, err = ValidateRequest(validRequest(), stubCatalog{err: errors.New("doc: conflicting values")})
	require.Error(t, err)
	assert.Equal(t, ledger.CodeValidation, ledger.CodeOf(err))
	assert.Contains(t, err.Error(), "DOC_SERVED payload")

	typed := ledger.NewValidationError("unknown event type %q", "DOC_SERVED")
	_, err = ValidateRequest(validRequest(), stubCatalog{err: typed})
	assert.Same(t, typed, err)
}
