package models

import "time"

// Artist is a performer tracked by the platform. External provider IDs are
// filled in lazily: SpotifyID during initialize, the others as the matching
// provider entities are resolved.
type Artist struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	Popularity       int        `json:"popularity"`
	ImageURL         string     `json:"image_url,omitempty"`
	Genres           string     `json:"genres,omitempty"`
	SpotifyID        string     `json:"spotify_id,omitempty"`
	TicketmasterID   string     `json:"ticketmaster_id,omitempty"`
	SetlistFMID      string     `json:"setlistfm_id,omitempty"`
	LastFullSyncAt   *time.Time `json:"last_full_sync_at,omitempty"`
	SongsSyncedAt    *time.Time `json:"songs_synced_at,omitempty"`
	ShowsSyncedAt    *time.Time `json:"shows_synced_at,omitempty"`
	SetlistsSyncedAt *time.Time `json:"setlists_synced_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
