package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/encorehq/encore-sync/internal/db"
	"github.com/encorehq/encore-sync/internal/errors"
	"github.com/encorehq/encore-sync/internal/models"
	"github.com/encorehq/encore-sync/internal/progress"
	"github.com/encorehq/encore-sync/internal/ticketmaster"
)

// Stage weights: initialize 5, catalog 35, shows 35, setlists 20, finalize 5.
// Each stage ends exactly at its ceiling so progress is monotonic and lands
// on 100.
const (
	weightInitialized      = 5
	weightCatalogImported  = 40
	weightShowsImported    = 75
	weightSetlistsImported = 95
	weightCompleted        = 100
)

// importTimeout bounds one full import attempt.
const importTimeout = 30 * time.Minute

// CatalogClient is the music-catalog provider surface the orchestrator needs.
type CatalogClient interface {
	SearchArtists(ctx context.Context, query string) ([]*models.ExternalArtist, error)
	GetArtist(ctx context.Context, spotifyID string) (*models.ExternalArtist, error)
	GetArtistAlbums(ctx context.Context, spotifyID string, fn func(albums []*models.ExternalAlbum, total int) error) error
	GetAlbumTracks(ctx context.Context, albumID string) ([]*models.ExternalTrack, error)
}

// EventsClient is the ticketing provider surface the orchestrator needs.
type EventsClient interface {
	SearchAttractions(ctx context.Context, query string) ([]models.ExternalArtist, error)
	GetEventsByAttraction(ctx context.Context, attractionID string, opts ticketmaster.EventOptions, fn func(events []*models.ExternalEvent, total int) error) error
}

// SetlistClient is the setlist-history provider surface the orchestrator needs.
type SetlistClient interface {
	SearchArtists(ctx context.Context, query string) ([]models.ExternalArtist, error)
	GetArtistSetlists(ctx context.Context, mbid string, fn func(setlists []*models.ExternalSetlist, total int) error) error
}

// Orchestrator runs one artist's full import as an ordered stage sequence:
// initialize -> catalog -> shows -> setlists -> finalize. It is the only
// writer of import records and guarantees at most one in-flight import per
// artist.
type Orchestrator struct {
	store    db.Store
	catalog  CatalogClient
	events   EventsClient
	setlists SetlistClient
	bus      *progress.Bus
	status   *progress.StatusStore
	logger   *logrus.Logger

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// NewOrchestrator creates an import orchestrator
func NewOrchestrator(
	store db.Store,
	catalog CatalogClient,
	events EventsClient,
	setlists SetlistClient,
	bus *progress.Bus,
	status *progress.StatusStore,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		catalog:  catalog,
		events:   events,
		setlists: setlists,
		bus:      bus,
		status:   status,
		logger:   logger,
		inFlight: make(map[int64]struct{}),
	}
}

func (o *Orchestrator) acquire(artistID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.inFlight[artistID]; running {
		return false
	}
	o.inFlight[artistID] = struct{}{}
	return true
}

func (o *Orchestrator) release(artistID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, artistID)
}

// IsImporting reports whether an import is currently in flight for the artist.
func (o *Orchestrator) IsImporting(artistID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, running := o.inFlight[artistID]
	return running
}

// RunFullImport runs the whole stage sequence for one artist and blocks until
// it completes or fails. A second call for the same artist while one is in
// flight returns SyncInProgressError without starting a run.
func (o *Orchestrator) RunFullImport(ctx context.Context, artistID int64) (*models.ImportResult, error) {
	if !o.acquire(artistID) {
		return nil, errors.NewSyncInProgressError(artistID)
	}
	defer o.release(artistID)

	start := time.Now()
	logger := o.logger.WithFields(logrus.Fields{
		"artist_id": artistID,
		"action":    "full_import",
	})
	logger.Info("Starting full import")

	st := o.status.StartSync(artistID)
	if err := o.store.UpsertSyncStatus(ctx, st); err != nil {
		logger.WithError(err).Warn("Failed to persist initial import record")
	}
	o.bus.Report(artistID, models.StageInitializing, 0, "Starting import", nil)

	artist, err := o.stageInitialize(ctx, artistID, logger)
	if err != nil {
		return o.fail(ctx, artistID, start, logger, fmt.Errorf("initialize: %w", err))
	}
	o.transition(ctx, artistID, models.StageInitializing, weightInitialized, "Artist resolved")

	if err := o.stageCatalog(ctx, artist, logger); err != nil {
		return o.fail(ctx, artistID, start, logger, fmt.Errorf("import catalog: %w", err))
	}
	o.transition(ctx, artistID, models.StageImportingCatalog, weightCatalogImported, "Catalog imported")

	if err := o.stageShows(ctx, artist, logger); err != nil {
		return o.fail(ctx, artistID, start, logger, fmt.Errorf("import shows: %w", err))
	}
	o.transition(ctx, artistID, models.StageImportingShows, weightShowsImported, "Shows imported")

	if err := o.stageSetlists(ctx, artist, logger); err != nil {
		return o.fail(ctx, artistID, start, logger, fmt.Errorf("import setlists: %w", err))
	}
	o.transition(ctx, artistID, models.StageImportingSetlists, weightSetlistsImported, "Setlists imported")

	if err := o.stageFinalize(ctx, artist, logger); err != nil {
		return o.fail(ctx, artistID, start, logger, fmt.Errorf("finalize: %w", err))
	}

	message := "Import complete"
	if count, err := o.store.CountSongs(ctx, artistID); err == nil {
		message = fmt.Sprintf("Import complete, %d songs in catalog", count)
	}

	o.status.CompleteSync(artistID, "")
	if st, ok := o.status.GetProgress(artistID); ok {
		if err := o.store.UpsertSyncStatus(ctx, st); err != nil {
			logger.WithError(err).Warn("Failed to persist final import record")
		}
	}
	o.bus.Report(artistID, models.StageCompleted, weightCompleted, message, nil)

	duration := time.Since(start)
	logger.WithField("duration", duration).Info("Full import completed")

	return &models.ImportResult{
		ArtistID: artistID,
		Success:  true,
		Duration: duration,
	}, nil
}

// Trigger starts a supervised background import and returns immediately.
// Conflicts surface synchronously so HTTP callers can report coalescing.
func (o *Orchestrator) Trigger(artistID int64) error {
	if o.IsImporting(artistID) {
		return errors.NewSyncInProgressError(artistID)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				msg := fmt.Sprintf("import panicked: %v", r)
				o.logger.WithField("artist_id", artistID).Error(msg)
				o.status.CompleteSync(artistID, msg)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()

		result, err := o.RunFullImport(ctx, artistID)
		switch {
		case err != nil && errors.IsSyncInProgress(err):
			o.logger.WithField("artist_id", artistID).Debug("Import trigger coalesced into running import")
		case err != nil:
			o.logger.WithField("artist_id", artistID).WithError(err).Error("Background import failed")
		default:
			o.logger.WithFields(logrus.Fields{
				"artist_id": artistID,
				"duration":  result.Duration,
			}).Info("Background import finished")
		}
	}()

	return nil
}

// GetSyncStatus returns the latest import record, preferring the in-memory
// snapshot and falling back to the persisted row.
func (o *Orchestrator) GetSyncStatus(ctx context.Context, artistID int64) (*models.SyncStatus, error) {
	if st, ok := o.status.GetProgress(artistID); ok {
		return st, nil
	}
	st, err := o.store.GetSyncStatus(ctx, artistID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.NewNotFoundError("sync status", fmt.Sprintf("%d", artistID))
	}
	return st, nil
}

// transition records one stage boundary: status store, persisted import
// record, and a bus event, in that order.
func (o *Orchestrator) transition(ctx context.Context, artistID int64, stage string, pct int, message string) {
	o.status.UpdateProgress(artistID, stage, pct, message)
	if st, ok := o.status.GetProgress(artistID); ok {
		if err := o.store.UpsertSyncStatus(ctx, st); err != nil {
			o.logger.WithFields(logrus.Fields{
				"artist_id": artistID,
				"stage":     stage,
			}).WithError(err).Warn("Failed to persist import record")
		}
	}
	o.bus.Report(artistID, stage, pct, message, nil)
}

func (o *Orchestrator) fail(ctx context.Context, artistID int64, start time.Time, logger *logrus.Entry, cause error) (*models.ImportResult, error) {
	logger.WithError(cause).Error("Import failed")

	o.status.CompleteSync(artistID, cause.Error())
	if st, ok := o.status.GetProgress(artistID); ok {
		if err := o.store.UpsertSyncStatus(ctx, st); err != nil {
			logger.WithError(err).Warn("Failed to persist failed import record")
		}
	}
	o.bus.Report(artistID, models.StageFailed, o.lastProgress(artistID), cause.Error(), cause)

	return &models.ImportResult{
		ArtistID: artistID,
		Success:  false,
		Error:    cause.Error(),
		Duration: time.Since(start),
	}, nil
}

func (o *Orchestrator) lastProgress(artistID int64) int {
	if event := o.bus.Status(artistID); event != nil {
		return event.Progress
	}
	return 0
}

// stageInitialize loads the artist and resolves missing provider IDs. A
// missing catalog match is fatal: nothing downstream can run without it.
func (o *Orchestrator) stageInitialize(ctx context.Context, artistID int64, logger *logrus.Entry) (*models.Artist, error) {
	artist, err := o.store.GetArtist(ctx, artistID)
	if err != nil {
		return nil, err
	}

	resolved := false
	if artist.SpotifyID == "" {
		candidates, err := o.catalog.SearchArtists(ctx, artist.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve catalog id: %w", err)
		}
		artist.SpotifyID = candidates[0].SpotifyID
		resolved = true
		logger.WithField("spotify_id", artist.SpotifyID).Info("Resolved catalog ID by name")
	}

	// Ticketing and setlist-history IDs are best effort; their stages
	// degrade to a skip when unresolved.
	if artist.TicketmasterID == "" {
		if attractions, err := o.events.SearchAttractions(ctx, artist.Name); err == nil && len(attractions) > 0 {
			artist.TicketmasterID = attractions[0].TicketmasterID
			resolved = true
		} else if err != nil && !errors.IsNotFound(err) {
			logger.WithError(err).Warn("Attraction lookup failed, shows stage will be skipped")
		}
	}
	if artist.SetlistFMID == "" {
		if candidates, err := o.setlists.SearchArtists(ctx, artist.Name); err == nil && len(candidates) > 0 {
			artist.SetlistFMID = candidates[0].SetlistFMID
			resolved = true
		} else if err != nil && !errors.IsNotFound(err) {
			logger.WithError(err).Warn("Setlist artist lookup failed, setlists stage will be skipped")
		}
	}

	if resolved {
		if err := o.store.UpdateArtistExternalIDs(ctx, artist); err != nil {
			return nil, fmt.Errorf("persist external ids: %w", err)
		}
	}

	// Refresh mutable catalog metadata while we are here.
	if external, err := o.catalog.GetArtist(ctx, artist.SpotifyID); err == nil {
		artist.Name = external.Name
		artist.Popularity = external.Popularity
		artist.ImageURL = external.ImageURL
		artist.Genres = strings.Join(external.Genres, ",")
		if err := o.store.SaveArtist(ctx, artist); err != nil {
			logger.WithError(err).Warn("Failed to refresh artist metadata")
		}
	} else {
		return nil, fmt.Errorf("fetch catalog artist: %w", err)
	}

	return artist, nil
}

// stageCatalog imports the artist's songs album by album. A failed album or
// track is logged and skipped; only a failure of the album listing itself
// aborts the import.
func (o *Orchestrator) stageCatalog(ctx context.Context, artist *models.Artist, logger *logrus.Entry) error {
	o.transition(ctx, artist.ID, models.StageImportingCatalog, weightInitialized, "Importing catalog")

	processed := 0
	imported := 0
	skipped := 0

	err := o.catalog.GetArtistAlbums(ctx, artist.SpotifyID, func(albums []*models.ExternalAlbum, total int) error {
		for _, album := range albums {
			tracks, err := o.catalog.GetAlbumTracks(ctx, album.SpotifyID)
			if err != nil {
				skipped++
				logger.WithFields(logrus.Fields{
					"album_id": album.SpotifyID,
					"album":    album.Name,
				}).WithError(err).Warn("Skipping album, track fetch failed")
				processed++
				continue
			}

			for _, track := range tracks {
				song := &models.Song{
					ArtistID:   artist.ID,
					SpotifyID:  track.SpotifyID,
					Title:      track.Title,
					AlbumName:  track.AlbumName,
					DurationMS: track.DurationMS,
				}
				if _, err := o.store.UpsertSong(ctx, song); err != nil {
					skipped++
					logger.WithField("song_id", track.SpotifyID).WithError(err).Warn("Skipping song upsert")
					continue
				}
				imported++
			}

			processed++
			o.transition(ctx, artist.ID, models.StageImportingCatalog,
				interpolate(weightInitialized, weightCatalogImported, processed, total),
				fmt.Sprintf("Imported %d/%d albums", processed, total))
		}
		return nil
	})
	if err != nil {
		return err
	}

	now := time.Now()
	artist.SongsSyncedAt = &now
	logger.WithFields(logrus.Fields{
		"albums":  processed,
		"songs":   imported,
		"skipped": skipped,
	}).Info("Catalog stage finished")
	return nil
}

// stageShows imports upcoming shows and their venues. Without a ticketing ID
// the stage is skipped, not failed.
func (o *Orchestrator) stageShows(ctx context.Context, artist *models.Artist, logger *logrus.Entry) error {
	o.transition(ctx, artist.ID, models.StageImportingShows, weightCatalogImported, "Importing shows")

	if artist.TicketmasterID == "" {
		// Still stamp the sub-sync: the subsystem is as synced as it can
		// get, and stale selection must not reselect the artist forever.
		now := time.Now()
		artist.ShowsSyncedAt = &now
		logger.Info("No ticketing ID resolved, skipping shows stage")
		return nil
	}

	processed := 0
	imported := 0
	skipped := 0

	err := o.events.GetEventsByAttraction(ctx, artist.TicketmasterID, ticketmaster.EventOptions{}, func(events []*models.ExternalEvent, total int) error {
		for _, event := range events {
			processed++

			venueID, err := o.store.UpsertVenue(ctx, &models.Venue{
				TicketmasterID: event.Venue.TicketmasterID,
				Name:           event.Venue.Name,
				City:           event.Venue.City,
				State:          event.Venue.State,
				Country:        event.Venue.Country,
			})
			if err != nil {
				skipped++
				logger.WithField("event_id", event.TicketmasterID).WithError(err).Warn("Skipping show, venue upsert failed")
				continue
			}

			if _, err := o.store.UpsertShow(ctx, &models.Show{
				ArtistID:       artist.ID,
				VenueID:        venueID,
				TicketmasterID: event.TicketmasterID,
				Name:           event.Name,
				Date:           event.Date,
				Status:         event.Status,
				TicketURL:      event.TicketURL,
			}); err != nil {
				skipped++
				logger.WithField("event_id", event.TicketmasterID).WithError(err).Warn("Skipping show upsert")
				continue
			}
			imported++
		}

		o.transition(ctx, artist.ID, models.StageImportingShows,
			interpolate(weightCatalogImported, weightShowsImported, processed, total),
			fmt.Sprintf("Imported %d/%d shows", imported, total))
		return nil
	})
	if err != nil {
		return err
	}

	now := time.Now()
	artist.ShowsSyncedAt = &now
	logger.WithFields(logrus.Fields{
		"shows":   imported,
		"skipped": skipped,
	}).Info("Shows stage finished")
	return nil
}

// stageSetlists imports historical setlists with their song positions.
// Without a setlist-history ID the stage is skipped, not failed.
func (o *Orchestrator) stageSetlists(ctx context.Context, artist *models.Artist, logger *logrus.Entry) error {
	o.transition(ctx, artist.ID, models.StageImportingSetlists, weightShowsImported, "Importing setlists")

	if artist.SetlistFMID == "" {
		now := time.Now()
		artist.SetlistsSyncedAt = &now
		logger.Info("No setlist-history ID resolved, skipping setlists stage")
		return nil
	}

	processed := 0
	imported := 0
	skipped := 0

	err := o.setlists.GetArtistSetlists(ctx, artist.SetlistFMID, func(setlists []*models.ExternalSetlist, total int) error {
		for _, external := range setlists {
			processed++

			setlistID, err := o.store.UpsertSetlist(ctx, &models.Setlist{
				ArtistID:    artist.ID,
				SetlistFMID: external.SetlistFMID,
				EventDate:   external.EventDate,
				VenueName:   external.VenueName,
				TourName:    external.TourName,
			})
			if err != nil {
				skipped++
				logger.WithField("setlist_id", external.SetlistFMID).WithError(err).Warn("Skipping setlist upsert")
				continue
			}

			songs := make([]*models.SetlistSong, 0, len(external.Songs))
			for i, song := range external.Songs {
				songs = append(songs, &models.SetlistSong{
					SetlistID: setlistID,
					Position:  i + 1,
					Title:     song.Title,
					Info:      song.Info,
				})
			}
			if err := o.store.ReplaceSetlistSongs(ctx, setlistID, songs); err != nil {
				skipped++
				logger.WithField("setlist_id", external.SetlistFMID).WithError(err).Warn("Skipping setlist songs")
				continue
			}
			imported++
		}

		o.transition(ctx, artist.ID, models.StageImportingSetlists,
			interpolate(weightShowsImported, weightSetlistsImported, processed, total),
			fmt.Sprintf("Imported %d/%d setlists", imported, total))
		return nil
	})
	if err != nil {
		return err
	}

	now := time.Now()
	artist.SetlistsSyncedAt = &now
	logger.WithFields(logrus.Fields{
		"setlists": imported,
		"skipped":  skipped,
	}).Info("Setlists stage finished")
	return nil
}

// stageFinalize stamps the sync timestamps, completing the attempt.
func (o *Orchestrator) stageFinalize(ctx context.Context, artist *models.Artist, logger *logrus.Entry) error {
	o.transition(ctx, artist.ID, models.StageFinalizing, weightSetlistsImported, "Finalizing import")

	now := time.Now()
	artist.LastFullSyncAt = &now
	if err := o.store.UpdateArtistSyncTimestamps(ctx, artist); err != nil {
		return fmt.Errorf("stamp sync timestamps: %w", err)
	}
	return nil
}

// interpolate maps processed/total onto the [from, to] weight range, clamped
// so emitted progress never regresses or overshoots the stage ceiling.
func interpolate(from, to, processed, total int) int {
	if total <= 0 || processed >= total {
		return to
	}
	if processed < 0 {
		return from
	}
	return from + (to-from)*processed/total
}
