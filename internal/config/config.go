package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	DBConnectionString string
	CronSecret         string
	ResyncSchedule     string

	Spotify      SpotifyConfig
	Ticketmaster TicketmasterConfig
	SetlistFM    SetlistFMConfig

	Sync *SyncConfig
}

// SpotifyConfig holds music-catalog provider credentials.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
}

// TicketmasterConfig holds event provider credentials.
type TicketmasterConfig struct {
	APIKey string
}

// SetlistFMConfig holds setlist-history provider credentials.
type SetlistFMConfig struct {
	APIKey string
}

func Load() (*Config, error) {
	syncCfg := DefaultSyncConfig()

	if v, err := strconv.Atoi(getEnv("SYNC_STALE_MAX_AGE_HOURS", "24")); err == nil {
		syncCfg.StaleMaxAge = time.Duration(v) * time.Hour
	}
	if v, err := strconv.Atoi(getEnv("SYNC_STUCK_THRESHOLD_MINUTES", "30")); err == nil {
		syncCfg.StuckThreshold = time.Duration(v) * time.Minute
	}
	if v, err := strconv.Atoi(getEnv("SYNC_BATCH_LIMIT", "25")); err == nil {
		syncCfg.BatchLimit = v
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DBConnectionString: getEnv("DB_CONNECTION_STRING", ""),
		CronSecret:         getEnv("CRON_SECRET", ""),
		ResyncSchedule:     getEnv("RESYNC_SCHEDULE", "0 */6 * * *"),
		Spotify: SpotifyConfig{
			ClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
			ClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		},
		Ticketmaster: TicketmasterConfig{
			APIKey: getEnv("TICKETMASTER_API_KEY", ""),
		},
		SetlistFM: SetlistFMConfig{
			APIKey: getEnv("SETLISTFM_API_KEY", ""),
		},
		Sync: syncCfg,
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
