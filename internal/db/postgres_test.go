package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorehq/encore-sync/internal/models"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL and runs
// migrations. Tests skip when no test database is configured.
func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	store, err := NewPostgresStore(connStr)
	require.NoError(t, err)

	require.NoError(t, store.Migrate())

	cleanup := func() {
		_, err := store.db.Exec(`
			TRUNCATE setlist_songs, setlists, shows, venues, songs, artist_sync_status, artists RESTART IDENTITY CASCADE;
		`)
		require.NoError(t, err)
		store.Close()
	}

	return store, cleanup
}

func TestPostgresStore_ArtistOperations(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("create and get artist", func(t *testing.T) {
		artist := &models.Artist{
			Name:       "Test Artist",
			Slug:       "test-artist",
			Popularity: 75,
			SpotifyID:  "spotify-1",
			Genres:     "rock,indie",
		}
		require.NoError(t, store.CreateArtist(ctx, artist))
		require.NotZero(t, artist.ID)

		saved, err := store.GetArtistBySpotifyID(ctx, "spotify-1")
		require.NoError(t, err)
		assert.Equal(t, artist.Name, saved.Name)
		assert.Equal(t, artist.Popularity, saved.Popularity)

		byID, err := store.GetArtist(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved.ID, byID.ID)
	})

	t.Run("save updates metadata", func(t *testing.T) {
		artist, err := store.GetArtistBySpotifyID(ctx, "spotify-1")
		require.NoError(t, err)

		artist.Popularity = 90
		artist.ImageURL = "http://img/artist.jpg"
		require.NoError(t, store.SaveArtist(ctx, artist))

		updated, err := store.GetArtist(ctx, artist.ID)
		require.NoError(t, err)
		assert.Equal(t, 90, updated.Popularity)
		assert.Equal(t, "http://img/artist.jpg", updated.ImageURL)
	})

	t.Run("update external ids", func(t *testing.T) {
		artist, err := store.GetArtistBySpotifyID(ctx, "spotify-1")
		require.NoError(t, err)

		artist.TicketmasterID = "tm-1"
		artist.SetlistFMID = "mbid-1"
		require.NoError(t, store.UpdateArtistExternalIDs(ctx, artist))

		updated, err := store.GetArtist(ctx, artist.ID)
		require.NoError(t, err)
		assert.Equal(t, "tm-1", updated.TicketmasterID)
		assert.Equal(t, "mbid-1", updated.SetlistFMID)
	})

	t.Run("sync timestamps", func(t *testing.T) {
		artist, err := store.GetArtistBySpotifyID(ctx, "spotify-1")
		require.NoError(t, err)

		now := time.Now()
		artist.LastFullSyncAt = &now
		artist.SongsSyncedAt = &now
		require.NoError(t, store.UpdateArtistSyncTimestamps(ctx, artist))

		updated, err := store.GetArtist(ctx, artist.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LastFullSyncAt)
		require.NotNil(t, updated.SongsSyncedAt)
	})
}

func TestPostgresStore_UpsertIdempotency(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	artist := &models.Artist{Name: "Upsert Artist", Slug: "upsert-artist", SpotifyID: "spotify-upsert"}
	require.NoError(t, store.CreateArtist(ctx, artist))
	saved, err := store.GetArtistBySpotifyID(ctx, "spotify-upsert")
	require.NoError(t, err)

	t.Run("song upsert returns same id", func(t *testing.T) {
		song := &models.Song{ArtistID: saved.ID, SpotifyID: "track-1", Title: "Song"}
		first, err := store.UpsertSong(ctx, song)
		require.NoError(t, err)

		song.Title = "Song (Remastered)"
		second, err := store.UpsertSong(ctx, song)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		count, err := store.CountSongs(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("venue and show upserts", func(t *testing.T) {
		venue := &models.Venue{TicketmasterID: "venue-1", Name: "The Spot", City: "Austin"}
		venueID, err := store.UpsertVenue(ctx, venue)
		require.NoError(t, err)

		again, err := store.UpsertVenue(ctx, venue)
		require.NoError(t, err)
		assert.Equal(t, venueID, again)

		show := &models.Show{
			ArtistID:       saved.ID,
			VenueID:        venueID,
			TicketmasterID: "event-1",
			Name:           "Live Show",
			Date:           time.Now().Add(24 * time.Hour),
		}
		showID, err := store.UpsertShow(ctx, show)
		require.NoError(t, err)

		showAgain, err := store.UpsertShow(ctx, show)
		require.NoError(t, err)
		assert.Equal(t, showID, showAgain)
	})

	t.Run("setlist with replaced songs", func(t *testing.T) {
		setlist := &models.Setlist{
			ArtistID:    saved.ID,
			SetlistFMID: "sl-1",
			EventDate:   time.Now().Add(-24 * time.Hour),
			VenueName:   "The Spot",
		}
		setlistID, err := store.UpsertSetlist(ctx, setlist)
		require.NoError(t, err)

		songs := []*models.SetlistSong{
			{SetlistID: setlistID, Position: 1, Title: "Opener"},
			{SetlistID: setlistID, Position: 2, Title: "Closer"},
		}
		require.NoError(t, store.ReplaceSetlistSongs(ctx, setlistID, songs))

		// A second replace with fewer songs leaves no orphans behind.
		require.NoError(t, store.ReplaceSetlistSongs(ctx, setlistID, songs[:1]))
	})
}

func TestPostgresStore_SyncStatus(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	artist := &models.Artist{Name: "Status Artist", Slug: "status-artist", SpotifyID: "spotify-status"}
	require.NoError(t, store.CreateArtist(ctx, artist))
	saved, err := store.GetArtistBySpotifyID(ctx, "spotify-status")
	require.NoError(t, err)

	missing, err := store.GetSyncStatus(ctx, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	status := &models.SyncStatus{
		ArtistID:  saved.ID,
		Stage:     models.StageImportingCatalog,
		Status:    models.StatusInProgress,
		Progress:  25,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.UpsertSyncStatus(ctx, status))

	loaded, err := store.GetSyncStatus(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, models.StatusInProgress, loaded.Status)
	assert.Equal(t, 25, loaded.Progress)

	status.Status = models.StatusCompleted
	status.Stage = models.StageCompleted
	status.Progress = 100
	require.NoError(t, store.UpsertSyncStatus(ctx, status))

	loaded, err = store.GetSyncStatus(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, loaded.Status)

	all, err := store.ListSyncStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPostgresStore_SelectArtistsForResync(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	fresh := &models.Artist{Name: "Fresh", Slug: "fresh", SpotifyID: "spotify-fresh", Popularity: 50}
	stale := &models.Artist{Name: "Stale", Slug: "stale", SpotifyID: "spotify-stale", Popularity: 90}
	partial := &models.Artist{Name: "Partial", Slug: "partial", SpotifyID: "spotify-partial", Popularity: 10}
	require.NoError(t, store.CreateArtist(ctx, fresh))
	require.NoError(t, store.CreateArtist(ctx, stale))
	require.NoError(t, store.CreateArtist(ctx, partial))

	freshSaved, err := store.GetArtistBySpotifyID(ctx, "spotify-fresh")
	require.NoError(t, err)
	staleSaved, err := store.GetArtistBySpotifyID(ctx, "spotify-stale")
	require.NoError(t, err)
	partialSaved, err := store.GetArtistBySpotifyID(ctx, "spotify-partial")
	require.NoError(t, err)

	now := time.Now()
	freshSaved.LastFullSyncAt = &now
	freshSaved.SongsSyncedAt = &now
	freshSaved.ShowsSyncedAt = &now
	freshSaved.SetlistsSyncedAt = &now
	require.NoError(t, store.UpdateArtistSyncTimestamps(ctx, freshSaved))

	staleSaved.LastFullSyncAt = &old
	staleSaved.SongsSyncedAt = &old
	staleSaved.ShowsSyncedAt = &old
	staleSaved.SetlistsSyncedAt = &old
	require.NoError(t, store.UpdateArtistSyncTimestamps(ctx, staleSaved))

	// Recently synced, but the setlists sub-sync never completed.
	partialSaved.LastFullSyncAt = &now
	partialSaved.SongsSyncedAt = &now
	partialSaved.ShowsSyncedAt = &now
	require.NoError(t, store.UpdateArtistSyncTimestamps(ctx, partialSaved))

	t.Run("stale picks outdated and incomplete artists", func(t *testing.T) {
		selected, err := store.SelectArtistsForResync(ctx, ResyncSelection{
			Mode:   ResyncStale,
			MaxAge: 24 * time.Hour,
			Limit:  10,
		})
		require.NoError(t, err)
		require.Len(t, selected, 2)
		assert.Equal(t, staleSaved.ID, selected[0].ID, "oldest sync first")
		assert.Equal(t, partialSaved.ID, selected[1].ID, "missing sub-sync counts as stale")
	})

	t.Run("all picks everyone by popularity", func(t *testing.T) {
		selected, err := store.SelectArtistsForResync(ctx, ResyncSelection{
			Mode:  ResyncAll,
			Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, selected, 3)
		assert.Equal(t, staleSaved.ID, selected[0].ID, "most popular first")
	})

	t.Run("auto picks failed imports", func(t *testing.T) {
		require.NoError(t, store.UpsertSyncStatus(ctx, &models.SyncStatus{
			ArtistID:  freshSaved.ID,
			Stage:     models.StageFailed,
			Status:    models.StatusFailed,
			LastError: "boom",
			StartedAt: time.Now(),
			UpdatedAt: time.Now(),
		}))

		selected, err := store.SelectArtistsForResync(ctx, ResyncSelection{
			Mode:       ResyncAuto,
			StuckAfter: 30 * time.Minute,
			Limit:      10,
		})
		require.NoError(t, err)
		require.Len(t, selected, 1)
		assert.Equal(t, freshSaved.ID, selected[0].ID)
	})

	t.Run("auto picks stuck imports past the threshold", func(t *testing.T) {
		require.NoError(t, store.UpsertSyncStatus(ctx, &models.SyncStatus{
			ArtistID:  staleSaved.ID,
			Stage:     models.StageInitializing,
			Status:    models.StatusInitializing,
			StartedAt: time.Now(),
			UpdatedAt: time.Now(),
		}))
		// UpsertSyncStatus stamps updated_at itself, so age the row directly.
		_, err := store.db.ExecContext(ctx, `
			UPDATE artist_sync_status SET updated_at = NOW() - INTERVAL '45 minutes'
			WHERE artist_id = $1`, staleSaved.ID)
		require.NoError(t, err)

		selected, err := store.SelectArtistsForResync(ctx, ResyncSelection{
			Mode:       ResyncAuto,
			StuckAfter: 30 * time.Minute,
			Limit:      10,
		})
		require.NoError(t, err)
		require.Len(t, selected, 2, "failed and stuck artists are both due")
		assert.Equal(t, staleSaved.ID, selected[0].ID, "most popular first")

		// A fresher attempt is not considered stuck.
		_, err = store.db.ExecContext(ctx, `
			UPDATE artist_sync_status SET updated_at = NOW() - INTERVAL '10 minutes'
			WHERE artist_id = $1`, staleSaved.ID)
		require.NoError(t, err)

		selected, err = store.SelectArtistsForResync(ctx, ResyncSelection{
			Mode:       ResyncAuto,
			StuckAfter: 30 * time.Minute,
			Limit:      10,
		})
		require.NoError(t, err)
		require.Len(t, selected, 1)
		assert.Equal(t, freshSaved.ID, selected[0].ID)
	})
}
