package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/maltedev/adlibrary-sync/internal/gate"
	"github.com/maltedev/adlibrary-sync/internal/ingest"
	"github.com/maltedev/adlibrary-sync/internal/models"
)

var (
	ErrRunActive   = errors.New("a sync run is already active")
	ErrRunNotFound = errors.New("run not found")
	ErrInvalidRun  = errors.New("invalid run request")
)

// RunRecorder persists run history. Optional.
type RunRecorder interface {
	Save(ctx context.Context, run models.Run) error
}

type Settings struct {
	BaseURL          string
	EndpointPath     string
	MaxStaleAttempts int
}

type StartRequest struct {
	Mode         models.SyncMode `json:"mode"`
	CollectionID string          `json:"collection_id"`
	URL          string          `json:"url"`
	MaxNew       int             `json:"max_new"`
}

type runState struct {
	run    models.Run
	gate   *gate.Manual
	cancel context.CancelFunc
}

// Manager runs at most one sync at a time in the background. Each run waits
// on its own manual gate until Authenticate is called for it.
type Manager struct {
	mu       sync.Mutex
	runs     map[string]*runState
	order    []string
	active   string
	exec     Executor
	recorder RunRecorder
	settings Settings
	baseCtx  context.Context
	wg       sync.WaitGroup
	now      func() time.Time
	logger   *slog.Logger
}

func NewManager(ctx context.Context, exec Executor, recorder RunRecorder, settings Settings, logger *slog.Logger) *Manager {
	if settings.BaseURL == "" {
		settings.BaseURL = ingest.DefaultBaseURL
	}
	return &Manager{
		runs:     make(map[string]*runState),
		exec:     exec,
		recorder: recorder,
		settings: settings,
		baseCtx:  ctx,
		now:      time.Now,
		logger:   logger.With("component", "job_manager"),
	}
}

func (m *Manager) runConfig(req StartRequest) (ingest.RunConfig, error) {
	var cfg ingest.RunConfig
	switch req.Mode {
	case models.ModeFull:
		if req.URL == "" {
			return cfg, errors.Mark(errors.New("url is required for a full run"), ErrInvalidRun)
		}
		var err error
		cfg, err = ingest.FullRun(req.URL, req.MaxNew)
		if err != nil {
			return cfg, errors.Mark(err, ErrInvalidRun)
		}
		if req.CollectionID != "" && req.CollectionID != cfg.CollectionID {
			return cfg, errors.Mark(errors.Newf("collection_id %q does not match url", req.CollectionID), ErrInvalidRun)
		}
	case models.ModeIncremental:
		if req.CollectionID == "" {
			return cfg, errors.Mark(errors.New("collection_id is required for an incremental run"), ErrInvalidRun)
		}
		if req.MaxNew != 0 {
			return cfg, errors.Mark(errors.New("max_new applies to full runs only"), ErrInvalidRun)
		}
		cfg = ingest.IncrementalRun(m.settings.BaseURL, req.CollectionID)
	default:
		return cfg, errors.Mark(errors.Newf("unknown mode %q", req.Mode), ErrInvalidRun)
	}

	cfg.EndpointPath = m.settings.EndpointPath
	cfg.MaxStaleAttempts = m.settings.MaxStaleAttempts
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Mark(err, ErrInvalidRun)
	}
	return cfg, nil
}

// Start validates req and launches the run in the background.
func (m *Manager) Start(req StartRequest) (models.Run, error) {
	cfg, err := m.runConfig(req)
	if err != nil {
		return models.Run{}, err
	}

	m.mu.Lock()
	if m.active != "" {
		m.mu.Unlock()
		return models.Run{}, errors.Wrapf(ErrRunActive, "run %s", m.active)
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	state := &runState{
		run: models.Run{
			ID:           uuid.New().String(),
			CollectionID: cfg.CollectionID,
			Mode:         cfg.Mode,
			MaxNew:       cfg.MaxNew,
			Status:       models.RunAwaitingLogin,
			StartedAt:    m.now().UTC(),
		},
		gate:   gate.NewManual(),
		cancel: cancel,
	}
	m.runs[state.run.ID] = state
	m.order = append(m.order, state.run.ID)
	m.active = state.run.ID
	run := state.run
	m.mu.Unlock()

	m.record(run)
	m.logger.Info("run started", "run_id", run.ID, "collection_id", run.CollectionID, "mode", run.Mode)

	m.wg.Add(1)
	go m.execute(ctx, state, cfg)

	return run, nil
}

func (m *Manager) execute(ctx context.Context, state *runState, cfg ingest.RunConfig) {
	defer m.wg.Done()
	defer state.cancel()

	g := &trackedGate{inner: state.gate, onPass: func() {
		m.setStatus(state, models.RunRunning)
	}}

	stats, err := m.exec.Execute(ctx, cfg, g)

	m.mu.Lock()
	finished := m.now().UTC()
	state.run.FinishedAt = &finished
	state.run.Stats = &stats
	if err != nil {
		state.run.Status = models.RunFailed
		state.run.Error = err.Error()
	} else {
		state.run.Status = models.RunCompleted
	}
	if m.active == state.run.ID {
		m.active = ""
	}
	run := state.run
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("run failed", "run_id", run.ID, "error", err)
	} else {
		m.logger.Info("run completed", "run_id", run.ID,
			"new", stats.TotalNew, "seen", stats.TotalSeen, "stop_reason", stats.StopReason)
	}
	m.record(run)
}

func (m *Manager) setStatus(state *runState, status models.RunStatus) {
	m.mu.Lock()
	state.run.Status = status
	run := state.run
	m.mu.Unlock()

	m.record(run)
}

func (m *Manager) record(run models.Run) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.recorder.Save(ctx, run); err != nil {
		m.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
}

// Authenticate releases the login gate of a run.
func (m *Manager) Authenticate(runID string) (models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.runs[runID]
	if !ok {
		return models.Run{}, errors.Wrapf(ErrRunNotFound, "%s", runID)
	}
	state.gate.Release()
	return state.run, nil
}

func (m *Manager) Get(runID string) (models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.runs[runID]
	if !ok {
		return models.Run{}, errors.Wrapf(ErrRunNotFound, "%s", runID)
	}
	return state.run, nil
}

// List returns runs newest first.
func (m *Manager) List() []models.Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]models.Run, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		runs = append(runs, m.runs[m.order[i]].run)
	}
	return runs
}

// Shutdown cancels the active run and waits for it to finish.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, state := range m.runs {
		state.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
}

type trackedGate struct {
	inner  gate.Gate
	onPass func()
}

func (g *trackedGate) Wait(ctx context.Context) error {
	if err := g.inner.Wait(ctx); err != nil {
		return err
	}
	g.onPass()
	return nil
}
