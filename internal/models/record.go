package models

import (
	"time"
)

// Record is one normalized entity from the listing. Attributes holds the raw
// upstream fields verbatim, including ones this module does not understand.
type Record struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collection_id"`
	Attributes   map[string]any `json:"attributes"`
}

// Payload is a network response delivered by the automation collaborator.
type Payload struct {
	URL        string    `json:"url"`
	Status     int       `json:"status"`
	Body       []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
	// Embedded payloads were rendered into the page HTML, not fetched.
	Embedded bool `json:"embedded"`
}

type CollectionMeta struct {
	CollectionID string    `json:"collection_id"`
	LastSynced   time.Time `json:"last_synced"`
	RecordCount  int       `json:"record_count"`
}

type SyncMode string

const (
	ModeFull        SyncMode = "full"
	ModeIncremental SyncMode = "incremental"
)

func (m SyncMode) Valid() bool {
	return m == ModeFull || m == ModeIncremental
}

type StopReason string

const (
	StopNone      StopReason = ""
	StopCutoff    StopReason = "cutoff"
	StopStalled   StopReason = "stalled"
	StopExhausted StopReason = "exhausted"
	StopCanceled  StopReason = "canceled"
)

// RunStats is what a finished run reports to its caller.
type RunStats struct {
	CollectionID string        `json:"collection_id"`
	Mode         SyncMode      `json:"mode"`
	TotalNew     int           `json:"total_new"`
	TotalSeen    int           `json:"total_seen"`
	KnownIDs     int           `json:"known_ids"`
	Attempts     int           `json:"attempts"`
	StopReason   StopReason    `json:"stop_reason"`
	Duration     time.Duration `json:"duration"`
}
