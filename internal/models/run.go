package models

import "time"

type RunStatus string

const (
	RunPending       RunStatus = "pending"
	RunAwaitingLogin RunStatus = "awaiting_login"
	RunRunning       RunStatus = "running"
	RunCompleted     RunStatus = "completed"
	RunFailed        RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run is the externally visible state of one sync run.
type Run struct {
	ID           string     `json:"id"`
	CollectionID string     `json:"collection_id"`
	Mode         SyncMode   `json:"mode"`
	MaxNew       int        `json:"max_new"`
	Status       RunStatus  `json:"status"`
	Stats        *RunStats  `json:"stats,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
