// Package httpapi exposes the ledger over HTTP.
//
//	POST /v1/entries                        append
//	GET  /v1/entries/{hash}/verify          verify one entry
//	GET  /v1/chain/verify?fromIndex=&toIndex=  verify a range (from/to also accepted)
//	GET  /v1/tenants/{tenantID}/entries     tenant history (?limit=&before=)
//	GET  /metrics                           Prometheus exposition
//	GET  /healthz                           liveness
//
// There is no route that updates or deletes an entry.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/custody/internal/history"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/verify"
)

// MaxBodyBytes bounds append request bodies.
const MaxBodyBytes = 1 << 20

// Appender is the write path. Implemented by engine.Coordinator.
type Appender interface {
	Append(ctx context.Context, req ledger.AppendRequest) (ledger.AppendResult, error)
}

// Server wires the ledger components into HTTP handlers.
type Server struct {
	appender Appender
	verifier *verify.Verifier
	history  *history.Reader
	metrics  http.Handler
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the base logger; request loggers derive from it.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a Server.
func NewServer(a Appender, v *verify.Verifier, h *history.Reader, opts ...Option) *Server {
	s := &Server{
		appender: a,
		verifier: v,
		history:  h,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(api chi.Router) {
		api.Post("/entries", s.handleAppend)
		api.Get("/entries/{hash}/verify", s.handleVerifyEntry)
		api.Get("/chain/verify", s.handleVerifyChain)
		api.Get("/tenants/{tenantID}/entries", s.handleHistory)
	})

	return r
}
