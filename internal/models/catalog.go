package models

import "time"

// Song is one track from an artist's catalog. SpotifyID is the natural key
// for upsert.
type Song struct {
	ID         int64     `json:"id"`
	ArtistID   int64     `json:"artist_id"`
	SpotifyID  string    `json:"spotify_id"`
	Title      string    `json:"title"`
	AlbumName  string    `json:"album_name,omitempty"`
	DurationMS int       `json:"duration_ms"`
	Popularity int       `json:"popularity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Venue is a concert location, keyed by its Ticketmaster venue ID.
type Venue struct {
	ID             int64     `json:"id"`
	TicketmasterID string    `json:"ticketmaster_id"`
	Name           string    `json:"name"`
	City           string    `json:"city,omitempty"`
	State          string    `json:"state,omitempty"`
	Country        string    `json:"country,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Show is a scheduled or past event for an artist at a venue, keyed by its
// Ticketmaster event ID.
type Show struct {
	ID             int64     `json:"id"`
	ArtistID       int64     `json:"artist_id"`
	VenueID        int64     `json:"venue_id"`
	TicketmasterID string    `json:"ticketmaster_id"`
	Name           string    `json:"name"`
	Date           time.Time `json:"date"`
	Status         string    `json:"status,omitempty"`
	TicketURL      string    `json:"ticket_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Setlist is a historical played set, keyed by its setlist.fm ID.
type Setlist struct {
	ID          int64     `json:"id"`
	ArtistID    int64     `json:"artist_id"`
	SetlistFMID string    `json:"setlistfm_id"`
	EventDate   time.Time `json:"event_date"`
	VenueName   string    `json:"venue_name,omitempty"`
	TourName    string    `json:"tour_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SetlistSong is one position in a played setlist. The (setlist, position)
// pair is the natural key.
type SetlistSong struct {
	ID        int64  `json:"id"`
	SetlistID int64  `json:"setlist_id"`
	Position  int    `json:"position"`
	Title     string `json:"title"`
	Info      string `json:"info,omitempty"`
}
