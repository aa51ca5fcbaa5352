package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/maltedev/adlibrary-sync/internal/extract"
	"github.com/maltedev/adlibrary-sync/internal/models"
)

var (
	// ErrRunComplete is returned by Observe once the run stopped accepting records.
	ErrRunComplete = errors.New("sync run complete")

	// Collaborator markers. Use errors.Is to find out which side failed.
	ErrAutomation = errors.New("automation failure")
	ErrSink       = errors.New("sink failure")
	ErrStore      = errors.New("store failure")
)

// Unbounded disables the new-record cutoff.
const Unbounded = 0

// Sink receives every resolved record, new or already known, so it can
// refresh mutable fields. Errors are fatal to the run.
type Sink interface {
	OnRecord(ctx context.Context, rec models.Record, isNew bool) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, rec models.Record, isNew bool) error

func (f SinkFunc) OnRecord(ctx context.Context, rec models.Record, isNew bool) error {
	return f(ctx, rec, isNew)
}

// Counters are the run totals: records seen and records not known before.
type Counters struct {
	TotalNew  int `json:"total_new"`
	TotalSeen int `json:"total_seen"`
}

// Engine classifies records against the run's KnownIDs and forwards them to
// the sink. It is safe for concurrent use; all state sits behind one mutex.
type Engine struct {
	mu       sync.Mutex
	known    *KnownIDs
	counters Counters
	maxNew   int
	sink     Sink
	closed   bool
	cutoff   bool
	done     chan struct{}
	logger   *slog.Logger
}

// NewEngine creates an engine for one run. maxNew <= 0 means Unbounded.
func NewEngine(known *KnownIDs, maxNew int, sink Sink, logger *slog.Logger) *Engine {
	if known == nil {
		known = NewKnownIDs()
	}
	if maxNew < 0 {
		maxNew = Unbounded
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		known:  known,
		maxNew: maxNew,
		sink:   sink,
		done:   make(chan struct{}),
		logger: logger.With("component", "sync_engine"),
	}
}

// Observe resolves and classifies one candidate. Unresolvable candidates are
// dropped without touching counters. The sink is called with the engine lock
// held, which keeps records in observation order.
func (e *Engine) Observe(ctx context.Context, c extract.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrRunComplete
	}

	rec, ok := extract.Resolve(c)
	if !ok {
		return nil
	}

	e.counters.TotalSeen++
	isNew := e.known.Add(rec.ID)
	if isNew {
		e.counters.TotalNew++
	}

	if err := e.sink.OnRecord(ctx, rec, isNew); err != nil {
		e.closeLocked()
		return errors.Mark(errors.Wrapf(err, "failed to write record %s", rec.ID), ErrSink)
	}

	if e.maxNew != Unbounded && e.counters.TotalNew >= e.maxNew {
		e.logger.Info("new record cutoff reached", "max_new", e.maxNew)
		e.cutoff = true
		e.closeLocked()
	}
	return nil
}

// ObservePayload observes every candidate of one payload in order. When the
// run completes part way through, the remaining candidates are abandoned and
// nil is returned.
func (e *Engine) ObservePayload(ctx context.Context, payload []byte) error {
	for _, c := range extract.Normalize(payload) {
		err := e.Observe(ctx, c)
		if errors.Is(err, ErrRunComplete) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop makes the engine reject further records. It is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
}

func (e *Engine) closeLocked() {
	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
}

// Done is closed once the engine stops accepting records.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// CutoffReached reports whether the run ended because maxNew was reached.
func (e *Engine) CutoffReached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cutoff
}

// Counters returns a snapshot of the run totals.
func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

// KnownCount is the size of the known-id set, bootstrapped ids included.
func (e *Engine) KnownCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.known.Len()
}
