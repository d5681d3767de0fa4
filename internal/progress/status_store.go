package progress

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/encorehq/encore-sync/internal/models"
)

// StatusStore keeps the latest import record snapshot per artist for
// status-polling endpoints. Entries live for the process lifetime bounded by
// the retention window; the durable record is the database row the
// orchestrator writes alongside.
type StatusStore struct {
	mu        sync.RWMutex
	entries   map[int64]*models.SyncStatus
	retention time.Duration
	logger    *logrus.Logger
}

// NewStatusStore creates an empty status store
func NewStatusStore(retention time.Duration, logger *logrus.Logger) *StatusStore {
	return &StatusStore{
		entries:   make(map[int64]*models.SyncStatus),
		retention: retention,
		logger:    logger,
	}
}

// StartSync registers a fresh attempt for an artist. Called only by the
// orchestrator, after it holds the single-flight guard.
func (s *StatusStore) StartSync(artistID int64) *models.SyncStatus {
	now := time.Now()
	status := &models.SyncStatus{
		ArtistID:  artistID,
		Stage:     models.StageInitializing,
		Status:    models.StatusInitializing,
		Progress:  0,
		StartedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.entries[artistID] = status
	s.mu.Unlock()

	copy := *status
	return &copy
}

// UpdateProgress advances the stage, progress and message of a running
// attempt. No-op if no attempt is registered.
func (s *StatusStore) UpdateProgress(artistID int64, stage string, progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.entries[artistID]
	if !ok {
		return
	}
	status.Stage = stage
	status.Status = models.StatusInProgress
	status.Progress = progress
	status.Message = message
	status.UpdatedAt = time.Now()
}

// CompleteSync finishes the attempt, as completed or as failed when errMsg is
// non-empty.
func (s *StatusStore) CompleteSync(artistID int64, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.entries[artistID]
	if !ok {
		return
	}
	now := time.Now()
	status.UpdatedAt = now
	status.CompletedAt = &now
	if errMsg != "" {
		status.Stage = models.StageFailed
		status.Status = models.StatusFailed
		status.LastError = errMsg
	} else {
		status.Stage = models.StageCompleted
		status.Status = models.StatusCompleted
		status.Progress = 100
	}
}

// GetProgress returns a copy of the latest snapshot for an artist.
func (s *StatusStore) GetProgress(artistID int64) (*models.SyncStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.entries[artistID]
	if !ok {
		return nil, false
	}
	copy := *status
	return &copy, true
}

// StartJanitor purges entries idle past the retention window until ctx ends.
func (s *StatusStore) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.retention / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purgeStale()
			}
		}
	}()
}

func (s *StatusStore) purgeStale() {
	cutoff := time.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for artistID, status := range s.entries {
		if status.UpdatedAt.Before(cutoff) {
			delete(s.entries, artistID)
			s.logger.WithFields(logrus.Fields{
				"artist_id": artistID,
				"stage":     status.Stage,
			}).Debug("Purged stale sync status entry")
		}
	}
}
