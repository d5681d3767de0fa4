package config

import "time"

// SyncConfig holds import and resync tuning.
type SyncConfig struct {
	// StaleMaxAge is how old a full sync may be before the stale resync
	// mode picks the artist up again.
	StaleMaxAge time.Duration
	// StuckThreshold is how long an attempt may sit in
	// initializing/in_progress before auto mode treats it as stuck.
	StuckThreshold time.Duration
	// InterArtistDelay is the pause between sequential imports in a batch,
	// keeping the batch under provider rate ceilings.
	InterArtistDelay time.Duration
	// BatchLimit bounds one resync driver run.
	BatchLimit int
	// StatusRetention is how long terminal status-store entries survive
	// past their last update.
	StatusRetention time.Duration
}

// DefaultSyncConfig returns the default sync configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		StaleMaxAge:      24 * time.Hour,
		StuckThreshold:   30 * time.Minute,
		InterArtistDelay: 2 * time.Second,
		BatchLimit:       25,
		StatusRetention:  time.Hour,
	}
}
