package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/catalog"
	"github.com/roach88/custody/internal/config"
	"github.com/roach88/custody/internal/engine"
	"github.com/roach88/custody/internal/history"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
	"github.com/roach88/custody/internal/store/levelstore"
	"github.com/roach88/custody/internal/verify"
)

// session is an open ledger with its components wired up.
type session struct {
	cfg      config.Config
	store    ledger.ChainStore
	coord    *engine.Coordinator
	verifier *verify.Verifier
	history  *history.Reader

	cancel context.CancelFunc
	done   chan struct{}
}

// sessionOptions add optional instrumentation to a session.
type sessionOptions struct {
	engineOpts []engine.Option
	verifyOpts []verify.Option
}

// openStore opens the backend selected by cfg.Store.
func openStore(cfg config.Config) (ledger.ChainStore, error) {
	switch cfg.Store {
	case config.StoreLevelDB:
		return levelstore.Open(cfg.DBPath)
	case config.StoreSQLite:
		return store.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// openSession loads configuration, opens the store and starts the append
// coordinator for the lifetime of cmd's context. The caller must Close the
// session.
func (o *RootOptions) openSession(cmd *cobra.Command, so sessionOptions) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	o.setupLogging(cfg, cmd.ErrOrStderr())

	engineOpts := append([]engine.Option{engine.WithMaxAttempts(cfg.MaxAppendAttempts)}, so.engineOpts...)
	if cfg.CatalogPath != "" {
		cat, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load event catalog", err)
		}
		slog.Debug("event catalog loaded", "path", cfg.CatalogPath, "events", len(cat.Events()))
		engineOpts = append(engineOpts, engine.WithCatalog(cat))
	}

	slog.Debug("opening ledger", "store", cfg.Store, "path", cfg.DBPath)
	st, err := openStore(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}

	verifyOpts := append([]verify.Option{verify.WithPageSize(cfg.VerifyPageSize)}, so.verifyOpts...)
	s := &session{
		cfg:      cfg,
		store:    st,
		coord:    engine.New(st, engineOpts...),
		verifier: verify.New(st, verifyOpts...),
		history:  history.NewReader(st),
		done:     make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(cmd.Context())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		if err := s.coord.Run(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("append coordinator stopped", "error", err)
		}
	}()

	return s, nil
}

// Close stops the coordinator and closes the store.
func (s *session) Close() {
	s.cancel()
	<-s.done
	if err := s.store.Close(); err != nil {
		slog.Error("error closing ledger", "error", err)
	}
}
