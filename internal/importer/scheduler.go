package importer

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/encorehq/encore-sync/internal/config"
	"github.com/encorehq/encore-sync/internal/db"
	"github.com/encorehq/encore-sync/internal/errors"
	"github.com/encorehq/encore-sync/internal/models"
)

// ImportRunner runs one artist's full import to completion.
type ImportRunner interface {
	RunFullImport(ctx context.Context, artistID int64) (*models.ImportResult, error)
}

// ArtistSelector picks artists due for a resync.
type ArtistSelector interface {
	SelectArtistsForResync(ctx context.Context, sel db.ResyncSelection) ([]*models.Artist, error)
}

// BatchOptions controls one resync batch.
type BatchOptions struct {
	// Mode selects which artists are due. Defaults to ResyncStale.
	Mode db.ResyncMode
	// Limit caps batch size. Zero falls back to the configured limit.
	Limit int
	// MaxAge overrides the staleness window for ResyncStale. Zero falls
	// back to the configured window.
	MaxAge time.Duration
	// ForceResync ignores staleness and resyncs every artist, most
	// popular first.
	ForceResync bool
}

// Driver runs resync batches sequentially: one artist at a time, a fixed
// pause in between, and a per-artist failure never aborts the batch.
type Driver struct {
	selector ArtistSelector
	runner   ImportRunner
	cfg      *config.SyncConfig
	logger   *logrus.Logger

	cron    *cron.Cron
	entryID cron.EntryID
}

// NewDriver creates a resync driver
func NewDriver(selector ArtistSelector, runner ImportRunner, cfg *config.SyncConfig, logger *logrus.Logger) *Driver {
	if cfg == nil {
		cfg = config.DefaultSyncConfig()
	}
	return &Driver{
		selector: selector,
		runner:   runner,
		cfg:      cfg,
		logger:   logger,
	}
}

// RunBatch selects artists per the options and imports them one by one.
// It returns a summary of every artist touched; it only errors when the
// selection itself fails.
func (d *Driver) RunBatch(ctx context.Context, opts BatchOptions) (*models.BatchSummary, error) {
	start := time.Now()

	mode := opts.Mode
	if mode == "" {
		mode = db.ResyncStale
	}
	if opts.ForceResync {
		mode = db.ResyncAll
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = d.cfg.BatchLimit
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = d.cfg.StaleMaxAge
	}

	logger := d.logger.WithFields(logrus.Fields{
		"action": "resync_batch",
		"mode":   mode,
		"limit":  limit,
	})
	logger.Info("Starting resync batch")

	artists, err := d.selector.SelectArtistsForResync(ctx, db.ResyncSelection{
		Mode:       mode,
		MaxAge:     maxAge,
		StuckAfter: d.cfg.StuckThreshold,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	summary := &models.BatchSummary{
		Mode:       string(mode),
		TotalFound: len(artists),
		StartedAt:  start,
		Results:    make([]models.BatchResult, 0, len(artists)),
	}

	for i, artist := range artists {
		if ctx.Err() != nil {
			logger.Warn("Resync batch cancelled, stopping early")
			break
		}

		result := d.importOne(ctx, artist)
		summary.Results = append(summary.Results, result)
		summary.Processed++
		switch {
		case result.Skipped:
			summary.Skipped++
		case result.Success:
			summary.Completed++
		default:
			summary.Failed++
		}

		// Pace the providers between artists, but not after the last one.
		if i < len(artists)-1 {
			if !sleepCtx(ctx, d.cfg.InterArtistDelay) {
				logger.Warn("Resync batch cancelled during pacing delay")
				break
			}
		}
	}

	summary.TotalTimeMS = time.Since(start).Milliseconds()
	logger.WithFields(logrus.Fields{
		"found":     summary.TotalFound,
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"duration":  time.Since(start),
	}).Info("Resync batch finished")

	return summary, nil
}

func (d *Driver) importOne(ctx context.Context, artist *models.Artist) models.BatchResult {
	start := time.Now()
	result := models.BatchResult{
		ArtistID:   artist.ID,
		ArtistName: artist.Name,
	}

	imported, err := d.runner.RunFullImport(ctx, artist.ID)
	result.DurationMS = time.Since(start).Milliseconds()

	switch {
	case err != nil && errors.IsSyncInProgress(err):
		result.Skipped = true
		d.logger.WithField("artist_id", artist.ID).Info("Skipping artist, import already in flight")
	case err != nil:
		result.Error = err.Error()
		d.logger.WithField("artist_id", artist.ID).WithError(err).Error("Resync failed for artist")
	case !imported.Success:
		result.Error = imported.Error
		d.logger.WithFields(logrus.Fields{
			"artist_id": artist.ID,
			"error":     imported.Error,
		}).Error("Resync failed for artist")
	default:
		result.Success = true
	}

	return result
}

// batchTimeout bounds one scheduled batch: every selected artist gets the
// full per-import window plus the pacing delay.
func (d *Driver) batchTimeout() time.Duration {
	limit := d.cfg.BatchLimit
	if limit < 1 {
		limit = 1
	}
	return time.Duration(limit) * (importTimeout + d.cfg.InterArtistDelay)
}

// StartCron schedules periodic auto-mode batches. Auto mode retries failed
// and stuck imports, so a crashed attempt heals without operator action.
func (d *Driver) StartCron(schedule string) error {
	d.cron = cron.New()
	entryID, err := d.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.batchTimeout())
		defer cancel()
		if _, err := d.RunBatch(ctx, BatchOptions{Mode: db.ResyncAuto}); err != nil {
			d.logger.WithError(err).Error("Scheduled resync batch failed")
		}
	})
	if err != nil {
		return err
	}
	d.entryID = entryID
	d.cron.Start()
	d.logger.WithField("schedule", schedule).Info("Resync cron started")
	return nil
}

// StopCron stops the scheduler and waits for a running batch trigger to
// return.
func (d *Driver) StopCron() {
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
}

func sleepCtx(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
