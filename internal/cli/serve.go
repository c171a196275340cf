package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/engine"
	"github.com/roach88/custody/internal/httpapi"
	"github.com/roach88/custody/internal/metrics"
	"github.com/roach88/custody/internal/verify"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over HTTP",
		Long: `Start the HTTP API with a single in-process append coordinator.

Routes:
  POST /v1/entries
  GET  /v1/entries/{hash}/verify
  GET  /v1/chain/verify?from=&to=
  GET  /v1/tenants/{tenantID}/entries?limit=&before=
  GET  /metrics
  GET  /healthz

Example:
  custody serve --db ./custody.db --addr 127.0.0.1:8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default CUSTODY_HTTP_ADDR)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := metrics.New()
	s, err := opts.openSession(cmd, sessionOptions{
		engineOpts: []engine.Option{engine.WithMetrics(reg)},
		verifyOpts: []verify.Option{verify.WithMetrics(reg)},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := reg.Register(metrics.NewChainCollector(s.store)); err != nil {
		return WrapExitError(ExitCommandError, "failed to register chain collector", err)
	}

	addr := opts.Addr
	if addr == "" {
		addr = s.cfg.HTTPAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", addr), err)
	}

	api := httpapi.NewServer(s.coord, s.verifier, s.history,
		httpapi.WithMetricsHandler(reg.Handler()),
		httpapi.WithLogger(slog.Default()),
	)
	srv := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	slog.Info("http server listening", "addr", ln.Addr().String(), "store", s.cfg.Store, "db", s.cfg.DBPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", ln.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "http server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	slog.Info("http server stopped gracefully")
	return nil
}
