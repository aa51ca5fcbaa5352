package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/maltedev/adlibrary-sync/internal/gate"
	"github.com/maltedev/adlibrary-sync/internal/models"
)

// Automation drives the rendered listing. Payloads delivers intercepted
// responses in arrival order; Advance triggers one pagination attempt, waits
// for it to settle and reports false once nothing further can be rendered.
type Automation interface {
	Authenticate(ctx context.Context, g gate.Gate) error
	Open(ctx context.Context, url string) error
	Payloads() <-chan models.Payload
	Advance(ctx context.Context) (bool, error)
}

// Store is the durable side of a run.
type Store interface {
	LoadKnownIDs(ctx context.Context, collectionID string) (map[string]struct{}, error)
	WriteMeta(ctx context.Context, meta models.CollectionMeta) error
}

type RunConfig struct {
	Mode             models.SyncMode
	CollectionID     string
	URL              string
	MaxNew           int
	MaxStaleAttempts int
	EndpointPath     string
}

// FullRun configures an initial sync of the listing at rawURL.
func FullRun(rawURL string, maxNew int) (RunConfig, error) {
	collectionID, err := CollectionIDFromURL(rawURL)
	if err != nil {
		return RunConfig{}, err
	}
	return RunConfig{
		Mode:         models.ModeFull,
		CollectionID: collectionID,
		URL:          rawURL,
		MaxNew:       maxNew,
	}, nil
}

// IncrementalRun configures a re-sync of a collection already in the store.
func IncrementalRun(baseURL, collectionID string) RunConfig {
	return RunConfig{
		Mode:         models.ModeIncremental,
		CollectionID: collectionID,
		URL:          BuildListingURL(baseURL, collectionID),
		MaxNew:       Unbounded,
	}
}

func (c RunConfig) Validate() error {
	if !c.Mode.Valid() {
		return errors.Newf("unknown sync mode %q", c.Mode)
	}
	if c.CollectionID == "" {
		return errors.New("collection id is required")
	}
	if c.URL == "" {
		return errors.New("listing url is required")
	}
	if c.MaxNew < 0 {
		return errors.New("max new must not be negative")
	}
	return nil
}

// Runner owns one sync run at a time: it bootstraps KnownIDs, feeds
// payloads to the Engine and drives pagination until a stop condition.
type Runner struct {
	automation Automation
	store      Store
	sink       Sink
	gate       gate.Gate
	logger     *slog.Logger
	now        func() time.Time
}

func NewRunner(a Automation, store Store, sink Sink, g gate.Gate, logger *slog.Logger) *Runner {
	if g == nil {
		g = gate.Open{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		automation: a,
		store:      store,
		sink:       sink,
		gate:       g,
		logger:     logger.With("component", "sync_runner"),
		now:        time.Now,
	}
}

// Run executes one sync run. Reaching the cutoff, stalling or running out of
// content are normal outcomes reported in RunStats. Errors are marked with
// ErrAutomation, ErrSink or ErrStore. Records written before a failure stay
// written; collection metadata is only written for completed runs.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (models.RunStats, error) {
	started := r.now()
	stats := models.RunStats{CollectionID: cfg.CollectionID, Mode: cfg.Mode}

	if err := cfg.Validate(); err != nil {
		return stats, err
	}

	known := NewKnownIDs()
	if cfg.Mode == models.ModeIncremental {
		set, err := r.store.LoadKnownIDs(ctx, cfg.CollectionID)
		if err != nil {
			return stats, errors.Mark(errors.Wrap(err, "failed to load known ids"), ErrStore)
		}
		known = KnownIDsFromSet(set)
	}

	r.logger.Info("starting sync run",
		"collection_id", cfg.CollectionID,
		"mode", cfg.Mode,
		"known_ids", known.Len(),
		"max_new", cfg.MaxNew)

	engine := NewEngine(known, cfg.MaxNew, r.sink, r.logger)

	if err := r.automation.Authenticate(ctx, r.gate); err != nil {
		return stats, errors.Mark(errors.Wrap(err, "authentication failed"), ErrAutomation)
	}

	stop := make(chan struct{})
	consumed := make(chan error, 1)
	go func() {
		consumed <- r.consume(ctx, engine, cfg.EndpointPath, stop)
	}()

	reason, runErr := r.paginate(ctx, cfg, engine, &stats)

	engine.Stop()
	close(stop)
	if err := <-consumed; err != nil && runErr == nil {
		runErr = err
	}

	counters := engine.Counters()
	stats.TotalNew = counters.TotalNew
	stats.TotalSeen = counters.TotalSeen
	stats.KnownIDs = engine.KnownCount()
	stats.StopReason = reason
	stats.Duration = r.now().Sub(started)

	if runErr != nil {
		r.logger.Error("sync run aborted", "collection_id", cfg.CollectionID, "error", runErr)
		return stats, runErr
	}

	meta := models.CollectionMeta{
		CollectionID: cfg.CollectionID,
		LastSynced:   r.now().UTC(),
		RecordCount:  stats.KnownIDs,
	}
	if err := r.store.WriteMeta(ctx, meta); err != nil {
		return stats, errors.Mark(errors.Wrap(err, "failed to write collection meta"), ErrStore)
	}

	r.logger.Info("sync run completed",
		"collection_id", cfg.CollectionID,
		"new", stats.TotalNew,
		"seen", stats.TotalSeen,
		"attempts", stats.Attempts,
		"stop_reason", stats.StopReason)

	return stats, nil
}

// consume feeds payloads to the engine until stop is closed or the payload
// stream ends. After a failure it keeps draining so the automation side never
// blocks on delivery; the engine is already closed and ignores the rest.
func (r *Runner) consume(ctx context.Context, engine *Engine, endpointPath string, stop <-chan struct{}) error {
	var firstErr error
	payloads := r.automation.Payloads()
	for {
		select {
		case <-stop:
			return firstErr
		case p, ok := <-payloads:
			if !ok {
				return firstErr
			}
			if firstErr != nil || !Accept(p, endpointPath) {
				continue
			}
			if err := engine.ObservePayload(ctx, p.Body); err != nil {
				firstErr = err
			}
		}
	}
}

func (r *Runner) paginate(ctx context.Context, cfg RunConfig, engine *Engine, stats *models.RunStats) (models.StopReason, error) {
	if err := r.automation.Open(ctx, cfg.URL); err != nil {
		return models.StopNone, errors.Mark(errors.Wrap(err, "failed to open listing"), ErrAutomation)
	}

	stall := NewStallDetector(cfg.MaxStaleAttempts)
	for {
		select {
		case <-ctx.Done():
			return models.StopCanceled, ctx.Err()
		case <-engine.Done():
			// Either the cutoff or a sink failure, which consume reports.
			if engine.CutoffReached() {
				return models.StopCutoff, nil
			}
			return models.StopNone, nil
		default:
		}

		stall.Begin(engine.Counters().TotalNew)
		more, err := r.automation.Advance(ctx)
		stats.Attempts++
		if err != nil {
			if ctx.Err() != nil {
				return models.StopCanceled, ctx.Err()
			}
			return models.StopNone, errors.Mark(errors.Wrap(err, "pagination attempt failed"), ErrAutomation)
		}

		counters := engine.Counters()
		reason := stall.Evaluate(counters.TotalNew, engine.CutoffReached(), more)

		r.logger.Info("pagination attempt",
			"attempt", stats.Attempts,
			"seen", counters.TotalSeen,
			"new", counters.TotalNew,
			"stale", stall.Stale())

		if reason != models.StopNone {
			return reason, nil
		}
	}
}
