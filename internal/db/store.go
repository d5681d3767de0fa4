package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/encorehq/encore-sync/internal/models"
)

// ResyncMode selects which artists a driver batch picks up.
type ResyncMode string

const (
	// ResyncAll selects every artist with a catalog ID, popularity first.
	ResyncAll ResyncMode = "all"
	// ResyncStale selects artists whose last full sync is older than the
	// max age, or whose sub-syncs never completed.
	ResyncStale ResyncMode = "stale"
	// ResyncAuto selects failed artists and attempts stuck in progress
	// beyond the threshold, popularity first.
	ResyncAuto ResyncMode = "auto"
)

// ResyncSelection is the predicate for one batch selection.
type ResyncSelection struct {
	Mode       ResyncMode
	MaxAge     time.Duration
	StuckAfter time.Duration
	Limit      int
}

// Store defines the interface for database operations
type Store interface {
	// Artist operations
	CreateArtist(ctx context.Context, artist *models.Artist) error
	GetArtist(ctx context.Context, id int64) (*models.Artist, error)
	GetArtistBySpotifyID(ctx context.Context, spotifyID string) (*models.Artist, error)
	SaveArtist(ctx context.Context, artist *models.Artist) error
	UpdateArtistExternalIDs(ctx context.Context, artist *models.Artist) error
	UpdateArtistSyncTimestamps(ctx context.Context, artist *models.Artist) error
	SelectArtistsForResync(ctx context.Context, sel ResyncSelection) ([]*models.Artist, error)

	// Catalog upserts, keyed by each entity's external identifier
	UpsertSong(ctx context.Context, song *models.Song) (int64, error)
	UpsertVenue(ctx context.Context, venue *models.Venue) (int64, error)
	UpsertShow(ctx context.Context, show *models.Show) (int64, error)
	UpsertSetlist(ctx context.Context, setlist *models.Setlist) (int64, error)
	ReplaceSetlistSongs(ctx context.Context, setlistID int64, songs []*models.SetlistSong) error
	CountSongs(ctx context.Context, artistID int64) (int, error)

	// Import record operations
	GetSyncStatus(ctx context.Context, artistID int64) (*models.SyncStatus, error)
	UpsertSyncStatus(ctx context.Context, status *models.SyncStatus) error
	ListSyncStatuses(ctx context.Context) ([]*models.SyncStatus, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "internal/db/migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
