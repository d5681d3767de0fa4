package models

import "time"

// ExternalArtist is an artist candidate from a provider search or fetch.
// Only the matching provider's ID field is populated.
type ExternalArtist struct {
	SpotifyID      string   `json:"spotify_id,omitempty"`
	TicketmasterID string   `json:"ticketmaster_id,omitempty"`
	SetlistFMID    string   `json:"setlistfm_id,omitempty"`
	Name           string   `json:"name"`
	Popularity     int      `json:"popularity"`
	Genres         []string `json:"genres,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
}

// ExternalAlbum is one album page entry from the catalog provider.
type ExternalAlbum struct {
	SpotifyID   string `json:"spotify_id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date,omitempty"`
	TotalTracks int    `json:"total_tracks"`
}

// ExternalTrack is one track from an album listing.
type ExternalTrack struct {
	SpotifyID  string `json:"spotify_id"`
	Title      string `json:"title"`
	DurationMS int    `json:"duration_ms"`
	AlbumName  string `json:"album_name,omitempty"`
}

// ExternalVenue is a venue embedded in an event from the ticketing provider.
type ExternalVenue struct {
	TicketmasterID string `json:"ticketmaster_id"`
	Name           string `json:"name"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	Country        string `json:"country,omitempty"`
}

// ExternalEvent is one event from the ticketing provider.
type ExternalEvent struct {
	TicketmasterID string        `json:"ticketmaster_id"`
	Name           string        `json:"name"`
	Date           time.Time     `json:"date"`
	Status         string        `json:"status,omitempty"`
	TicketURL      string        `json:"ticket_url,omitempty"`
	Venue          ExternalVenue `json:"venue"`
}

// ExternalSetlist is one historical setlist from the setlist-history provider.
type ExternalSetlist struct {
	SetlistFMID string                `json:"setlistfm_id"`
	EventDate   time.Time             `json:"event_date"`
	VenueName   string                `json:"venue_name,omitempty"`
	TourName    string                `json:"tour_name,omitempty"`
	Songs       []ExternalSetlistSong `json:"songs"`
}

// ExternalSetlistSong is one song entry within an external setlist.
type ExternalSetlistSong struct {
	Title string `json:"title"`
	Info  string `json:"info,omitempty"`
}
