package commands

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maltedev/adlibrary-sync/internal/api"
	"github.com/maltedev/adlibrary-sync/internal/browser"
	"github.com/maltedev/adlibrary-sync/internal/config"
	"github.com/maltedev/adlibrary-sync/internal/database"
	"github.com/maltedev/adlibrary-sync/internal/events"
	"github.com/maltedev/adlibrary-sync/internal/ingest"
	"github.com/maltedev/adlibrary-sync/internal/jobs"
	"github.com/maltedev/adlibrary-sync/internal/logger"
	"github.com/maltedev/adlibrary-sync/internal/storage"
)

var (
	cfg *config.Config
	log *slog.Logger
)

// Setup loads configuration and installs the logger. Logs go to stderr so
// stdout stays reserved for command output.
func Setup(cmd *cobra.Command) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	cfg = loaded
	log = logger.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	return nil
}

// stack holds the storage side shared by every command.
type stack struct {
	store  storage.Store
	sink   ingest.Sink
	db     *database.DB
	outbox *database.OutboxRepository
	runs   *database.RunRepository
	redis  *redis.Client
}

func openStack(ctx context.Context) (*stack, error) {
	s := &stack{}

	switch cfg.Storage.Type {
	case config.StorePostgres:
		db, err := database.New(ctx, database.Config{
			URL:      cfg.Database.URL,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, errors.Mark(err, ingest.ErrStore)
		}
		s.db = db

		if err := db.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, errors.Mark(err, ingest.ErrStore)
		}

		records := database.NewRecordStore(db)
		s.outbox = database.NewOutboxRepository(db)
		s.runs = database.NewRunRepository(db)
		s.store = records
		s.sink = events.NewRecordSink(db, records, events.NewPublisher(s.outbox, log), log)
	default:
		fs, err := storage.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, errors.Mark(err, ingest.ErrStore)
		}
		s.store = fs
		s.sink = ingest.NewStoreSink(fs)
	}

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
	}

	return s, nil
}

// startRelay publishes outbox events until ctx is done. It is a no-op
// unless both Postgres and Redis are configured.
func (s *stack) startRelay(ctx context.Context) {
	if s.db == nil || s.redis == nil {
		return
	}

	relay := database.NewRelay(s.outbox, s.redis, log, database.RelayConfig{
		PollInterval: cfg.Redis.PollInterval,
		BatchSize:    cfg.Redis.BatchSize,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("relay stopped with error", "error", err)
		}
	}()
}

func (s *stack) outboxCounter() api.OutboxCounter {
	if s.outbox == nil {
		return nil
	}
	return s.outbox
}

func (s *stack) recorder() jobs.RunRecorder {
	if s.runs == nil {
		return nil
	}
	return s.runs
}

func (s *stack) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Warn("failed to close redis client", "error", err)
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}

func browserOptions(c config.BrowserConfig) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Headless
	opts.Timeout = c.Timeout
	opts.ViewportWidth = c.ViewportWidth
	opts.ViewportHeight = c.ViewportHeight
	opts.Locale = c.Locale
	opts.TimezoneID = c.TimezoneID
	opts.ProxyServer = c.ProxyServer
	opts.UserDataDir = c.UserDataDir
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	return opts
}

func sessionOptions(c config.SyncConfig) browser.SessionOptions {
	opts := browser.DefaultSessionOptions()
	opts.EndpointPath = c.GraphQLPath
	opts.HomeURL = c.HomeURL
	opts.UISelector = c.UISelector
	opts.EndSelector = c.EndSelector
	opts.SettleMin = c.SettleMin
	opts.SettleMax = c.SettleMax
	opts.BlockedResources = c.BlockedResources
	return opts
}

// newExecutor launches the browser. The caller closes it.
func newExecutor(s *stack) (*jobs.SessionExecutor, *browser.Browser, error) {
	b, err := browser.New(browserOptions(cfg.Browser), log)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrap(err, "failed to launch browser"), ingest.ErrAutomation)
	}
	return jobs.NewSessionExecutor(b, sessionOptions(cfg.Sync), s.store, s.sink, log), b, nil
}
