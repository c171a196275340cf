package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/custody/internal/history"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/verify"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req ledger.AppendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, ledger.NewValidationError("request body: %v", err))
		return
	}

	res, err := s.appender.Append(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	loggerFrom(r.Context()).Info("entry appended", "index", res.Index, "hash", res.Hash, "tenant_id", req.TenantID)
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleVerifyEntry(w http.ResponseWriter, r *http.Request) {
	res, err := s.verifier.VerifyEntry(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !res.Found() {
		writeJSON(w, http.StatusNotFound, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	var rng verify.ChainRange
	var err error
	if rng.From, err = queryInt64(r, "fromIndex", "from"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if rng.To, err = queryInt64(r, "toIndex", "to"); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.verifier.VerifyChain(r.Context(), rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := history.Query{TenantID: chi.URLParam(r, "tenantID")}

	limit, err := queryInt64(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit != nil {
		q.Limit = int(*limit)
	}
	if q.Before, err = queryInt64(r, "before"); err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.history.ListByTenant(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CodeCancelled is reported when the request context ended before the
// operation finished.
const CodeCancelled = "RequestCancelled"

// writeError maps ledger error codes onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		loggerFrom(r.Context()).Debug("request cancelled", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusRequestTimeout, errorBody{
			Code:      CodeCancelled,
			Message:   err.Error(),
			RequestID: RequestID(r.Context()),
		})
		return
	}

	code := ledger.CodeOf(err)
	status := statusFor(code)
	if code == "" {
		code = "InternalError"
	}

	logger := loggerFrom(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}

	writeJSON(w, status, errorBody{
		Code:      string(code),
		Message:   err.Error(),
		RequestID: RequestID(r.Context()),
	})
}

func statusFor(code ledger.Code) int {
	switch code {
	case ledger.CodeValidation, ledger.CodeSerialization:
		return http.StatusBadRequest
	case ledger.CodeContention:
		return http.StatusConflict
	case ledger.CodeStorage:
		return http.StatusServiceUnavailable
	case ledger.CodeCorruption:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

// queryInt64 parses an optional integer query parameter. The first of names
// present in the query wins.
func queryInt64(r *http.Request, names ...string) (*int64, error) {
	var name, raw string
	for _, name = range names {
		if raw = r.URL.Query().Get(name); raw != "" {
			break
		}
	}
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, ledger.NewValidationError("%s: %v", name, fmt.Errorf("not an integer: %q", raw))
	}
	return &n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
