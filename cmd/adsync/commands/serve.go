package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/maltedev/adlibrary-sync/internal/api"
	"github.com/maltedev/adlibrary-sync/internal/jobs"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Runs are started with POST /api/v1/runs and wait for
POST /api/v1/runs/{runID}/authenticated before the listing is opened.
Only one run is active at a time.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	s.startRelay(ctx)

	exec, b, err := newExecutor(s)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close browser", "error", err)
		}
	}()

	manager := jobs.NewManager(ctx, exec, s.recorder(), jobs.Settings{
		BaseURL:          cfg.Sync.BaseURL,
		EndpointPath:     cfg.Sync.GraphQLPath,
		MaxStaleAttempts: cfg.Sync.MaxStaleAttempts,
	}, log)
	defer manager.Shutdown()

	handlers := api.NewHandlers(s.store, manager, s.outboxCounter(), log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
		case <-ctx.Done():
		}

		log.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("starting server", "addr", server.Addr, "store", cfg.Storage.Type)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	return nil
}
