package models

import "time"

// ImportResult is the outcome of one RunFullImport call.
type ImportResult struct {
	ArtistID int64         `json:"artist_id"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`
}

// BatchResult is the per-artist detail inside a batch summary.
type BatchResult struct {
	ArtistID   int64  `json:"artist_id"`
	ArtistName string `json:"artist_name"`
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// BatchSummary aggregates one resync driver run.
type BatchSummary struct {
	Mode        string        `json:"mode"`
	TotalFound  int           `json:"total_found"`
	Processed   int           `json:"processed"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Results     []BatchResult `json:"results"`
	StartedAt   time.Time     `json:"started_at"`
	TotalTimeMS int64         `json:"total_time_ms"`
}
