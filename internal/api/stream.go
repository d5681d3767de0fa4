package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/encorehq/encore-sync/internal/models"
)

// eventBuffer sizes the per-subscriber channel. A stalled client drops
// events rather than blocking the import goroutine; the next event carries
// absolute progress so nothing is lost semantically.
const eventBuffer = 256

// keepAliveInterval paces comment pings so idle proxies keep the stream open.
const keepAliveInterval = 30 * time.Second

// StreamImportProgress godoc
// @Summary Stream import progress over server-sent events
// @Description Emits the current snapshot immediately, then live progress events. Sends a keep-alive ping every 30 seconds. Disconnecting stops the stream, not the import.
// @Tags imports
// @Produce text/event-stream
// @Param id path int true "Artist ID"
// @Success 200 {string} string "event stream"
// @Router /api/v1/artists/{id}/import/stream [get]
func (h *Handler) StreamImportProgress(c *gin.Context) {
	artistID, ok := artistIDParam(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := make(chan *models.ProgressEvent, eventBuffer)
	token := h.bus.Subscribe(artistID, func(event *models.ProgressEvent) {
		select {
		case events <- event:
		default:
		}
	})
	defer h.bus.Unsubscribe(artistID, token)

	// Late joiners get the current state before any live event.
	if snapshot := h.bus.Status(artistID); snapshot != nil {
		c.SSEvent("progress", snapshot)
		c.Writer.Flush()
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event := <-events:
			c.SSEvent("progress", event)
			if event.Stage == models.StageCompleted || event.Stage == models.StageFailed {
				return false
			}
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC().Format(http.TimeFormat)})
			return true
		}
	})
}
