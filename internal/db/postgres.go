package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/encorehq/encore-sync/internal/errors"
	"github.com/encorehq/encore-sync/internal/models"
)

const artistColumns = `
	id, name, slug, popularity, COALESCE(image_url, ''), COALESCE(genres, ''),
	COALESCE(spotify_id, ''), COALESCE(ticketmaster_id, ''), COALESCE(setlistfm_id, ''),
	last_full_sync_at, songs_synced_at, shows_synced_at, setlists_synced_at,
	created_at, updated_at`

func scanArtist(row interface{ Scan(...interface{}) error }) (*models.Artist, error) {
	var a models.Artist
	var lastFull, songsAt, showsAt, setlistsAt sql.NullTime
	if err := row.Scan(
		&a.ID, &a.Name, &a.Slug, &a.Popularity, &a.ImageURL, &a.Genres,
		&a.SpotifyID, &a.TicketmasterID, &a.SetlistFMID,
		&lastFull, &songsAt, &showsAt, &setlistsAt,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastFull.Valid {
		a.LastFullSyncAt = &lastFull.Time
	}
	if songsAt.Valid {
		a.SongsSyncedAt = &songsAt.Time
	}
	if showsAt.Valid {
		a.ShowsSyncedAt = &showsAt.Time
	}
	if setlistsAt.Valid {
		a.SetlistsSyncedAt = &setlistsAt.Time
	}
	return &a, nil
}

// CreateArtist inserts an artist, or refreshes it when the slug already
// exists. The generated ID is written back to the model.
func (s *PostgresStore) CreateArtist(ctx context.Context, artist *models.Artist) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO artists (name, slug, popularity, image_url, genres, spotify_id, ticketmaster_id, setlistfm_id, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NOW(), NOW())
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			popularity = EXCLUDED.popularity,
			updated_at = NOW()
		RETURNING id`,
		artist.Name, artist.Slug, artist.Popularity, artist.ImageURL, artist.Genres,
		artist.SpotifyID, artist.TicketmasterID, artist.SetlistFMID,
	).Scan(&artist.ID)
	if err != nil {
		return fmt.Errorf("failed to create artist %s: %w", artist.Slug, err)
	}
	return nil
}

// GetArtist retrieves an artist by internal ID
func (s *PostgresStore) GetArtist(ctx context.Context, id int64) (*models.Artist, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE id = $1`, id)
	artist, err := scanArtist(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("artist", fmt.Sprintf("%d", id))
	} else if err != nil {
		return nil, fmt.Errorf("failed to get artist: %w", err)
	}
	return artist, nil
}

// GetArtistBySpotifyID retrieves an artist by its catalog provider ID
func (s *PostgresStore) GetArtistBySpotifyID(ctx context.Context, spotifyID string) (*models.Artist, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE spotify_id = $1`, spotifyID)
	artist, err := scanArtist(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("artist", spotifyID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get artist by spotify id: %w", err)
	}
	return artist, nil
}

// SaveArtist updates an artist's mutable catalog fields
func (s *PostgresStore) SaveArtist(ctx context.Context, artist *models.Artist) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE artists SET
			name = $2,
			popularity = $3,
			image_url = NULLIF($4, ''),
			genres = NULLIF($5, ''),
			updated_at = NOW()
		WHERE id = $1`,
		artist.ID, artist.Name, artist.Popularity, artist.ImageURL, artist.Genres)
	if err != nil {
		return fmt.Errorf("failed to save artist: %w", err)
	}
	return nil
}

// UpdateArtistExternalIDs persists provider IDs resolved during initialize
func (s *PostgresStore) UpdateArtistExternalIDs(ctx context.Context, artist *models.Artist) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE artists SET
			spotify_id = NULLIF($2, ''),
			ticketmaster_id = NULLIF($3, ''),
			setlistfm_id = NULLIF($4, ''),
			updated_at = NOW()
		WHERE id = $1`,
		artist.ID, artist.SpotifyID, artist.TicketmasterID, artist.SetlistFMID)
	if err != nil {
		return fmt.Errorf("failed to update artist external ids: %w", err)
	}
	return nil
}

// UpdateArtistSyncTimestamps persists the per-subsystem and full sync stamps
func (s *PostgresStore) UpdateArtistSyncTimestamps(ctx context.Context, artist *models.Artist) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE artists SET
			last_full_sync_at = $2,
			songs_synced_at = $3,
			shows_synced_at = $4,
			setlists_synced_at = $5,
			updated_at = NOW()
		WHERE id = $1`,
		artist.ID, artist.LastFullSyncAt, artist.SongsSyncedAt, artist.ShowsSyncedAt, artist.SetlistsSyncedAt)
	if err != nil {
		return fmt.Errorf("failed to update artist sync timestamps: %w", err)
	}
	return nil
}

// SelectArtistsForResync returns the batch selection for one driver run.
func (s *PostgresStore) SelectArtistsForResync(ctx context.Context, sel ResyncSelection) ([]*models.Artist, error) {
	var query string
	var args []interface{}

	switch sel.Mode {
	case ResyncAll:
		query = `
			SELECT ` + artistColumns + ` FROM artists
			WHERE spotify_id IS NOT NULL
			ORDER BY popularity DESC
			LIMIT $1`
		args = []interface{}{sel.Limit}
	case ResyncStale:
		query = `
			SELECT ` + artistColumns + ` FROM artists
			WHERE spotify_id IS NOT NULL
			  AND (last_full_sync_at IS NULL
			       OR last_full_sync_at < NOW() - $1::interval
			       OR songs_synced_at IS NULL
			       OR shows_synced_at IS NULL
			       OR setlists_synced_at IS NULL)
			ORDER BY last_full_sync_at ASC NULLS FIRST
			LIMIT $2`
		args = []interface{}{fmt.Sprintf("%f seconds", sel.MaxAge.Seconds()), sel.Limit}
	case ResyncAuto:
		query = `
			SELECT ` + artistColumns + ` FROM artists a
			WHERE a.spotify_id IS NOT NULL AND EXISTS (
				SELECT 1 FROM artist_sync_status st
				WHERE st.artist_id = a.id
				  AND (st.status = 'failed'
				       OR (st.status IN ('initializing', 'in_progress')
				           AND st.updated_at < NOW() - $1::interval))
			)
			ORDER BY a.popularity DESC
			LIMIT $2`
		args = []interface{}{fmt.Sprintf("%f seconds", sel.StuckAfter.Seconds()), sel.Limit}
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown resync mode: %s", sel.Mode), nil)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select artists for resync: %w", err)
	}
	defer rows.Close()

	var artists []*models.Artist
	for rows.Next() {
		artist, err := scanArtist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		artists = append(artists, artist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artists: %w", err)
	}

	return artists, nil
}

// UpsertSong inserts or updates a song by its catalog provider ID
func (s *PostgresStore) UpsertSong(ctx context.Context, song *models.Song) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO songs (artist_id, spotify_id, title, album_name, duration_ms, popularity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (spotify_id) DO UPDATE SET
			title = EXCLUDED.title,
			album_name = EXCLUDED.album_name,
			duration_ms = EXCLUDED.duration_ms,
			popularity = EXCLUDED.popularity,
			updated_at = NOW()
		RETURNING id`,
		song.ArtistID, song.SpotifyID, song.Title, song.AlbumName, song.DurationMS, song.Popularity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert song %s: %w", song.SpotifyID, err)
	}
	return id, nil
}

// UpsertVenue inserts or updates a venue by its ticketing provider ID
func (s *PostgresStore) UpsertVenue(ctx context.Context, venue *models.Venue) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO venues (ticketmaster_id, name, city, state, country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (ticketmaster_id) DO UPDATE SET
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			country = EXCLUDED.country,
			updated_at = NOW()
		RETURNING id`,
		venue.TicketmasterID, venue.Name, venue.City, venue.State, venue.Country,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert venue %s: %w", venue.TicketmasterID, err)
	}
	return id, nil
}

// UpsertShow inserts or updates a show by its ticketing provider event ID
func (s *PostgresStore) UpsertShow(ctx context.Context, show *models.Show) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO shows (artist_id, venue_id, ticketmaster_id, name, date, status, ticket_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (ticketmaster_id) DO UPDATE SET
			venue_id = EXCLUDED.venue_id,
			name = EXCLUDED.name,
			date = EXCLUDED.date,
			status = EXCLUDED.status,
			ticket_url = EXCLUDED.ticket_url,
			updated_at = NOW()
		RETURNING id`,
		show.ArtistID, show.VenueID, show.TicketmasterID, show.Name, show.Date, show.Status, show.TicketURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert show %s: %w", show.TicketmasterID, err)
	}
	return id, nil
}

// UpsertSetlist inserts or updates a setlist by its setlist.fm ID
func (s *PostgresStore) UpsertSetlist(ctx context.Context, setlist *models.Setlist) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO setlists (artist_id, setlistfm_id, event_date, venue_name, tour_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (setlistfm_id) DO UPDATE SET
			event_date = EXCLUDED.event_date,
			venue_name = EXCLUDED.venue_name,
			tour_name = EXCLUDED.tour_name,
			updated_at = NOW()
		RETURNING id`,
		setlist.ArtistID, setlist.SetlistFMID, setlist.EventDate, setlist.VenueName, setlist.TourName,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert setlist %s: %w", setlist.SetlistFMID, err)
	}
	return id, nil
}

// ReplaceSetlistSongs swaps a setlist's song rows in one transaction. The
// source of truth is the provider's ordering, so replace beats merge here.
func (s *PostgresStore) ReplaceSetlistSongs(ctx context.Context, setlistID int64, songs []*models.SetlistSong) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM setlist_songs WHERE setlist_id = $1`, setlistID); err != nil {
		return fmt.Errorf("failed to clear setlist songs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO setlist_songs (setlist_id, position, title, info)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, song := range songs {
		if _, err := stmt.ExecContext(ctx, setlistID, song.Position, song.Title, song.Info); err != nil {
			return fmt.Errorf("failed to insert setlist song at position %d: %w", song.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountSongs returns the catalog size for an artist
func (s *PostgresStore) CountSongs(ctx context.Context, artistID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM songs WHERE artist_id = $1`, artistID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count songs: %w", err)
	}
	return count, nil
}

// GetSyncStatus retrieves the import record for an artist
func (s *PostgresStore) GetSyncStatus(ctx context.Context, artistID int64) (*models.SyncStatus, error) {
	var statusJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT status_json FROM artist_sync_status WHERE artist_id = $1
	`, artistID).Scan(&statusJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}

	var status models.SyncStatus
	if err := json.Unmarshal(statusJSON, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync status: %w", err)
	}
	return &status, nil
}

// UpsertSyncStatus writes the import record for an artist. The status/stage
// columns are denormalized for the resync selection queries.
func (s *PostgresStore) UpsertSyncStatus(ctx context.Context, status *models.SyncStatus) error {
	if status == nil {
		return errors.NewValidationError("status cannot be nil", nil)
	}

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal sync status: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artist_sync_status (artist_id, status, stage, status_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (artist_id) DO UPDATE SET
			status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			status_json = EXCLUDED.status_json,
			updated_at = NOW()
	`, status.ArtistID, status.Status, status.Stage, statusJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert sync status: %w", err)
	}
	return nil
}

// ListSyncStatuses retrieves all import records
func (s *PostgresStore) ListSyncStatuses(ctx context.Context) ([]*models.SyncStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status_json FROM artist_sync_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*models.SyncStatus
	for rows.Next() {
		var statusJSON []byte
		if err := rows.Scan(&statusJSON); err != nil {
			return nil, fmt.Errorf("failed to scan sync status row: %w", err)
		}
		var status models.SyncStatus
		if err := json.Unmarshal(statusJSON, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sync status: %w", err)
		}
		statuses = append(statuses, &status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync status rows: %w", err)
	}

	return statuses, nil
}
