package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/encorehq/encore-sync/internal/db"
	"github.com/encorehq/encore-sync/internal/errors"
	"github.com/encorehq/encore-sync/internal/importer"
	"github.com/encorehq/encore-sync/internal/models"
	"github.com/encorehq/encore-sync/internal/progress"
)

// ImportService is the orchestrator surface the handlers need.
type ImportService interface {
	Trigger(artistID int64) error
	GetSyncStatus(ctx context.Context, artistID int64) (*models.SyncStatus, error)
	IsImporting(artistID int64) bool
}

// ResyncService runs resync batches on demand.
type ResyncService interface {
	RunBatch(ctx context.Context, opts importer.BatchOptions) (*models.BatchSummary, error)
}

// ArtistStore is the registration surface of the database layer.
type ArtistStore interface {
	CreateArtist(ctx context.Context, artist *models.Artist) error
}

// Handler holds the HTTP handlers for the import API.
type Handler struct {
	imports ImportService
	resync  ResyncService
	artists ArtistStore
	bus     *progress.Bus
	secret  string
	logger  *logrus.Logger
}

// NewHandler creates an API handler
func NewHandler(imports ImportService, resync ResyncService, artists ArtistStore, bus *progress.Bus, cronSecret string, logger *logrus.Logger) *Handler {
	return &Handler{
		imports: imports,
		resync:  resync,
		artists: artists,
		bus:     bus,
		secret:  cronSecret,
		logger:  logger,
	}
}

// ErrorResponse is the error payload for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TriggerImportResponse acknowledges an import trigger.
type TriggerImportResponse struct {
	ArtistID         int64  `json:"artistId"`
	Status           string `json:"status"`
	AlreadyImporting bool   `json:"alreadyImporting,omitempty"`
}

// ImportStatusResponse is the poll payload for one artist's import.
type ImportStatusResponse struct {
	ArtistID    int64      `json:"artistId"`
	Status      string     `json:"status"`
	Stage       string     `json:"stage"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	IsImporting bool       `json:"isImporting"`
	StartedAt   time.Time  `json:"startedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ResyncRequest selects what a triggered resync batch covers.
type ResyncRequest struct {
	Mode        string `json:"mode,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	MaxAgeHours int    `json:"maxAgeHours,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

// CreateArtistRequest registers an artist for importing.
type CreateArtistRequest struct {
	Name      string `json:"name" binding:"required"`
	Slug      string `json:"slug" binding:"required"`
	SpotifyID string `json:"spotifyId,omitempty"`
	Import    bool   `json:"import,omitempty"`
}

func artistIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid artist id"})
		return 0, false
	}
	return id, true
}

// CreateArtist godoc
// @Summary Register an artist
// @Description Registers an artist so it can be imported. Optionally kicks off the import immediately.
// @Tags artists
// @Accept json
// @Produce json
// @Param request body CreateArtistRequest true "Artist to register"
// @Success 201 {object} models.Artist
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/artists [post]
func (h *Handler) CreateArtist(c *gin.Context) {
	var req CreateArtistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name and slug are required"})
		return
	}

	artist := &models.Artist{
		Name:      req.Name,
		Slug:      req.Slug,
		SpotifyID: req.SpotifyID,
	}
	if err := h.artists.CreateArtist(c.Request.Context(), artist); err != nil {
		h.logger.WithField("slug", req.Slug).WithError(err).Error("Failed to register artist")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to register artist"})
		return
	}

	if req.Import {
		if err := h.imports.Trigger(artist.ID); err != nil && !errors.IsSyncInProgress(err) {
			h.logger.WithField("artist_id", artist.ID).WithError(err).Error("Failed to trigger import after registration")
		}
	}

	c.JSON(http.StatusCreated, artist)
}

// TriggerImport godoc
// @Summary Trigger a full import for an artist
// @Description Starts a background import of the artist's catalog, shows and setlists. A second trigger while one is running coalesces into the running import.
// @Tags imports
// @Produce json
// @Param id path int true "Artist ID"
// @Success 202 {object} TriggerImportResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/artists/{id}/import [post]
func (h *Handler) TriggerImport(c *gin.Context) {
	artistID, ok := artistIDParam(c)
	if !ok {
		return
	}

	resp := TriggerImportResponse{ArtistID: artistID, Status: "started"}
	if err := h.imports.Trigger(artistID); err != nil {
		if !errors.IsSyncInProgress(err) {
			h.logger.WithField("artist_id", artistID).WithError(err).Error("Failed to trigger import")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to trigger import"})
			return
		}
		resp.Status = "already_importing"
		resp.AlreadyImporting = true
	}

	c.JSON(http.StatusAccepted, resp)
}

// GetImportStatus godoc
// @Summary Get the current import status for an artist
// @Tags imports
// @Produce json
// @Param id path int true "Artist ID"
// @Success 200 {object} ImportStatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/artists/{id}/import/status [get]
func (h *Handler) GetImportStatus(c *gin.Context) {
	artistID, ok := artistIDParam(c)
	if !ok {
		return
	}

	status, err := h.imports.GetSyncStatus(c.Request.Context(), artistID)
	if err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no import found for artist"})
			return
		}
		h.logger.WithField("artist_id", artistID).WithError(err).Error("Failed to load import status")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load import status"})
		return
	}

	c.JSON(http.StatusOK, ImportStatusResponse{
		ArtistID:    status.ArtistID,
		Status:      status.Status,
		Stage:       status.Stage,
		Progress:    status.Progress,
		Message:     status.Message,
		Error:       status.LastError,
		IsImporting: status.IsImporting(),
		StartedAt:   status.StartedAt,
		UpdatedAt:   status.UpdatedAt,
		CompletedAt: status.CompletedAt,
	})
}

// ListActiveImports godoc
// @Summary List imports currently in flight
// @Tags imports
// @Produce json
// @Success 200 {array} models.ActiveImport
// @Router /api/v1/imports/active [get]
func (h *Handler) ListActiveImports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": h.bus.ActiveImports()})
}

// TriggerResync godoc
// @Summary Run a resync batch
// @Description Intended for scheduled callers. Requires the configured bearer secret.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body ResyncRequest false "Batch selection"
// @Success 200 {object} models.BatchSummary
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/admin/resync [post]
func (h *Handler) TriggerResync(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req ResyncRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	opts := importer.BatchOptions{
		Mode:        parseResyncMode(req.Mode),
		Limit:       req.Limit,
		MaxAge:      time.Duration(req.MaxAgeHours) * time.Hour,
		ForceResync: req.Force,
	}

	summary, err := h.resync.RunBatch(c.Request.Context(), opts)
	if err != nil {
		h.logger.WithError(err).Error("Resync batch failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "resync batch failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func parseResyncMode(mode string) db.ResyncMode {
	switch mode {
	case "all":
		return db.ResyncAll
	case "auto":
		return db.ResyncAuto
	case "stale", "":
		return db.ResyncStale
	default:
		return db.ResyncStale
	}
}

func (h *Handler) authorized(c *gin.Context) bool {
	if h.secret == "" {
		h.logger.Warn("Resync endpoint called but no cron secret is configured")
		return false
	}
	auth := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}

// HealthCheck godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
