package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Import stages, in execution order.
const (
	StageInitializing      = "initializing"
	StageImportingCatalog  = "importing_catalog"
	StageImportingShows    = "importing_shows"
	StageImportingSetlists = "importing_setlists"
	StageFinalizing        = "finalizing"
	StageCompleted         = "completed"
	StageFailed            = "failed"
)

// Import record statuses. Transitions are monotonic within one attempt:
// initializing -> in_progress -> completed|failed.
const (
	StatusInitializing = "initializing"
	StatusInProgress   = "in_progress"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
)

// SyncStatus is the import record for one artist's sync lifecycle. It is
// mutated exclusively by the orchestrator and never deleted, only superseded
// by newer attempts.
type SyncStatus struct {
	ArtistID    int64      `json:"artist_id"`
	Stage       string     `json:"stage"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsImporting reports whether an attempt is currently running.
func (s *SyncStatus) IsImporting() bool {
	return s.Status == StatusInitializing || s.Status == StatusInProgress
}

// String returns the JSON representation of the sync status.
func (s *SyncStatus) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal sync status: %v"}`, err)
	}
	return string(data)
}

// ProgressEvent is one stage transition published on the progress bus.
// Progress is 0-100 and non-decreasing within one import run.
type ProgressEvent struct {
	ArtistID  int64     `json:"artist_id"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ActiveImport describes one in-flight import for monitoring endpoints.
type ActiveImport struct {
	ArtistID  int64     `json:"artist_id"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	StartedAt time.Time `json:"started_at"`
	Elapsed   string    `json:"elapsed"`
}
