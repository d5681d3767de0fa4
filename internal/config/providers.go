package config

import "time"

// ProviderConfig holds retry and rate-ceiling tuning shared by the provider
// adapters. Each adapter takes its own instance so ceilings stay per provider.
type ProviderConfig struct {
	BaseURL        string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RequestsPerSecond is the client-side ceiling; Burst allows short
	// spikes within the provider's documented window.
	RequestsPerSecond float64
	Burst             int
}

// DefaultSpotifyProviderConfig returns defaults for the catalog provider.
func DefaultSpotifyProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		BaseURL:           "https://api.spotify.com/v1",
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		RequestsPerSecond: 10,
		Burst:             10,
	}
}

// DefaultTicketmasterProviderConfig returns defaults for the event provider,
// whose documented ceiling is 5 requests per second.
func DefaultTicketmasterProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		BaseURL:           "https://app.ticketmaster.com/discovery/v2",
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// DefaultSetlistFMProviderConfig returns defaults for the setlist-history
// provider, whose documented ceiling is 2 requests per second.
func DefaultSetlistFMProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		BaseURL:           "https://api.setlist.fm/rest/1.0",
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		RequestsPerSecond: 2,
		Burst:             2,
	}
}
