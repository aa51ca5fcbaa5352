package jobs

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/maltedev/adlibrary-sync/internal/browser"
	"github.com/maltedev/adlibrary-sync/internal/gate"
	"github.com/maltedev/adlibrary-sync/internal/ingest"
	"github.com/maltedev/adlibrary-sync/internal/models"
)

// Executor performs one sync run, blocking on g before pagination starts.
type Executor interface {
	Execute(ctx context.Context, cfg ingest.RunConfig, g gate.Gate) (models.RunStats, error)
}

// SessionExecutor opens a fresh browser page per run and drives it with an
// ingest.Runner.
type SessionExecutor struct {
	browser *browser.Browser
	options browser.SessionOptions
	store   ingest.Store
	sink    ingest.Sink
	logger  *slog.Logger
}

func NewSessionExecutor(b *browser.Browser, opts browser.SessionOptions, store ingest.Store, sink ingest.Sink, logger *slog.Logger) *SessionExecutor {
	return &SessionExecutor{
		browser: b,
		options: opts,
		store:   store,
		sink:    sink,
		logger:  logger,
	}
}

func (e *SessionExecutor) Execute(ctx context.Context, cfg ingest.RunConfig, g gate.Gate) (stats models.RunStats, err error) {
	opts := e.options
	if cfg.EndpointPath != "" {
		opts.EndpointPath = cfg.EndpointPath
	}

	session, err := browser.NewSession(e.browser, opts, e.logger)
	if err != nil {
		return stats, errors.Mark(errors.Wrap(err, "failed to open browser session"), ingest.ErrAutomation)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.Warn("failed to close session", "error", cerr)
		}
	}()

	runner := ingest.NewRunner(session, e.store, e.sink, g, e.logger)
	return runner.Run(ctx, cfg)
}
