package ingest

import "github.com/maltedev/adlibrary-sync/internal/models"

// DefaultMaxStaleAttempts is how many consecutive pagination attempts without
// a new record end a run.
const DefaultMaxStaleAttempts = 18

// StallDetector decides after each pagination attempt whether to go on.
type StallDetector struct {
	maxStale int
	stale    int
	before   int
}

func NewStallDetector(maxStale int) *StallDetector {
	if maxStale < 1 {
		maxStale = DefaultMaxStaleAttempts
	}
	return &StallDetector{maxStale: maxStale}
}

// Begin records the new-record count before an attempt.
func (s *StallDetector) Begin(totalNew int) {
	s.before = totalNew
}

// Evaluate consumes the outcome of one attempt. cutoff is the engine's
// completion signal and more is false when the paginator reported that
// nothing further can be rendered.
func (s *StallDetector) Evaluate(totalNew int, cutoff, more bool) models.StopReason {
	if totalNew == s.before {
		s.stale++
	} else {
		s.stale = 0
	}

	switch {
	case cutoff:
		return models.StopCutoff
	case !more:
		return models.StopExhausted
	case s.stale >= s.maxStale:
		return models.StopStalled
	}
	return models.StopNone
}

// Stale returns the current number of consecutive stale attempts.
func (s *StallDetector) Stale() int {
	return s.stale
}
