package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/custody/internal/engine"
	"github.com/roach88/custody/internal/history"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/metrics"
	"github.com/roach88/custody/internal/store"
	"github.com/roach88/custody/internal/testutil"
	"github.com/roach88/custody/internal/verify"
)

type fixture struct {
	store  *store.Store
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := metrics.New()
	c := engine.New(s, engine.WithClock(testutil.NewDeterministicClock()), engine.WithMetrics(reg))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := NewServer(c, verify.New(s, verify.WithMetrics(reg)), history.NewReader(s),
		WithMetricsHandler(reg.Handler()))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &fixture{store: s, server: ts}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (f *fixture) tamper(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := f.store.DB().Exec(`DROP TRIGGER IF EXISTS entries_no_update; DROP TRIGGER IF EXISTS entries_no_delete`)
	require.NoError(t, err)
	_, err = f.store.DB().Exec(query, args...)
	require.NoError(t, err)
}

func TestAppendVerifyTamper(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/v1/entries",
		`{"eventType":"DOC_SERVED","actor":"u1","tenantId":"t1","payload":{"doc":"A"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(0), body["index"])
	h0 := body["hash"].(string)
	assert.True(t, ledger.IsHash(h0))

	resp, body = f.do(t, http.MethodPost, "/v1/entries",
		`{"eventType":"LOGIN","actor":"u2","tenantId":"t1","payload":{}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), body["index"])

	resp, body = f.do(t, http.MethodGet, "/v1/chain/verify", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
	assert.Nil(t, body["brokenAt"])

	resp, body = f.do(t, http.MethodGet, "/v1/entries/"+h0+"/verify", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "INTACT", body["integrity"])

	f.tamper(t, `UPDATE entries SET payload = ? WHERE idx = 0`, `{"doc":"B"}`)

	resp, body = f.do(t, http.MethodGet, "/v1/entries/"+h0+"/verify", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "CORRUPTED", body["integrity"])

	resp, body = f.do(t, http.MethodGet, "/v1/chain/verify", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, float64(0), body["brokenAt"])
}

func TestAppend_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"empty body", ``, http.StatusBadRequest, "ValidationError"},
		{"not json", `{`, http.StatusBadRequest, "ValidationError"},
		{"unknown field", `{"eventType":"X","actor":"u","tenantId":"t","index":4}`, http.StatusBadRequest, "ValidationError"},
		{"missing actor", `{"eventType":"LOGIN","tenantId":"t1"}`, http.StatusBadRequest, "ValidationError"},
		{"float payload", `{"eventType":"LOGIN","actor":"u","tenantId":"t","payload":{"x":1.5}}`, http.StatusBadRequest, "ValidationError"},
		{"trailing data", `{"eventType":"LOGIN","actor":"u","tenantId":"t"} {}`, http.StatusBadRequest, "ValidationError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/v1/entries", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["message"])
			assert.Equal(t, resp.Header.Get(RequestIDHeader), body["requestId"])
		})
	}

	resp, body := f.do(t, http.MethodGet, "/v1/chain/verify", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["checked"], "rejected appends must not write")
}

func TestVerifyEntry_NotFound(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/v1/entries/"+strings.Repeat("ab", 32)+"/verify", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "NOT_FOUND", body["reason"])

	resp, body = f.do(t, http.MethodGet, "/v1/entries/nothex/verify", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ValidationError", body["code"])
}

func TestVerifyChain_QueryParams(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		resp, _ := f.do(t, http.MethodPost, "/v1/entries",
			`{"eventType":"LOGIN","actor":"u1","tenantId":"t1","payload":{}}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := f.do(t, http.MethodGet, "/v1/chain/verify?from=1&to=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, float64(2), body["checked"])

	resp, body = f.do(t, http.MethodGet, "/v1/chain/verify?fromIndex=2&toIndex=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, float64(1), body["checked"])
	assert.Contains(t, body, "brokenAt")

	resp, body = f.do(t, http.MethodGet, "/v1/chain/verify?from=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ValidationError", body["code"])

	resp, _ = f.do(t, http.MethodGet, "/v1/chain/verify?from=2&to=1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	for _, tenant := range []string{"t1", "t2", "t1", "t1"} {
		resp, _ := f.do(t, http.MethodPost, "/v1/entries",
			`{"eventType":"DOC_SERVED","actor":"u1","tenantId":"`+tenant+`","payload":{"doc":"A"}}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := f.do(t, http.MethodGet, "/v1/tenants/t1/entries?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, float64(3), entries[0].(map[string]any)["index"])
	assert.Equal(t, float64(2), entries[1].(map[string]any)["index"])
	assert.Equal(t, "DOC_SERVED", entries[0].(map[string]any)["eventType"])
	assert.Equal(t, entries[1].(map[string]any)["hash"], entries[0].(map[string]any)["prevHash"])
	assert.Equal(t, float64(2), body["nextBefore"])

	resp, body = f.do(t, http.MethodGet, "/v1/tenants/t1/entries?before=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries = body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, float64(0), entries[0].(map[string]any)["index"])
	assert.Nil(t, body["nextBefore"])

	resp, body = f.do(t, http.MethodGet, "/v1/tenants/nobody/entries", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["entries"])

	resp, _ = f.do(t, http.MethodGet, "/v1/tenants/t1/entries?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNoMutationRoutes(t *testing.T) {
	f := newFixture(t)
	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
		resp, _ := f.do(t, method, "/v1/entries", "")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, resp.Header.Get(RequestIDHeader), 36)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "caller-supplied")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "caller-supplied", resp.Header.Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/entries", `{"eventType":"LOGIN","actor":"u1","tenantId":"t1","payload":{}}`)

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "custody_appends_total")
}

type stubAppender struct{ err error }

func (s stubAppender) Append(context.Context, ledger.AppendRequest) (ledger.AppendResult, error) {
	return ledger.AppendResult{}, s.err
}

func TestAppend_ErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ledger.NewContentionError(5, errors.New("conflict")), http.StatusConflict},
		{ledger.NewStorageError("insert", errors.New("disk full")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{context.Canceled, http.StatusRequestTimeout},
		{fmt.Errorf("append: %w", context.DeadlineExceeded), http.StatusRequestTimeout},
	}
	for _, tt := range tests {
		srv := NewServer(stubAppender{err: tt.err}, nil, nil)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/entries",
			strings.NewReader(`{"eventType":"LOGIN","actor":"u","tenantId":"t"}`))
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}

func TestAppend_CancelledRequestIsNotAServerError(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv := NewServer(stubAppender{err: context.Canceled}, nil, nil, WithLogger(logger))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/entries",
		strings.NewReader(`{"eventType":"LOGIN","actor":"u","tenantId":"t"}`))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeCancelled, body["code"])
	assert.NotContains(t, logs.String(), `"level":"ERROR"`)
	assert.Contains(t, logs.String(), "request cancelled")
}

func TestAppend_CamelCaseBody(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/v1/entries",
		`{"eventType":"DOC_SERVED","actor":"u1","tenantId":"t1","payload":{"doc":"A"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(0), body["index"])

	resp, body = f.do(t, http.MethodPost, "/v1/entries",
		`{"event_type":"DOC_SERVED","actor":"u1","tenant_id":"t1","payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ValidationError", body["code"])
}
