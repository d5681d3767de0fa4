package progress

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/encorehq/encore-sync/internal/models"
)

// Listener receives progress events for one artist.
type Listener func(*models.ProgressEvent)

// Bus fans progress events out to live subscribers per artist and keeps the
// latest event for late joiners. Process-wide: constructed once in main and
// injected. A multi-instance deployment would back this with an external
// pub/sub behind the same surface.
type Bus struct {
	mu        sync.RWMutex
	listeners map[int64]map[int]Listener
	latest    map[int64]*models.ProgressEvent
	started   map[int64]time.Time
	nextID    int
}

// NewBus creates an empty progress bus
func NewBus() *Bus {
	return &Bus{
		listeners: make(map[int64]map[int]Listener),
		latest:    make(map[int64]*models.ProgressEvent),
		started:   make(map[int64]time.Time),
	}
}

// Report publishes an event to all current subscribers for the artist and
// updates the latest-status snapshot. Events for one artist are published
// sequentially by the import goroutine, so delivery order follows publish
// order.
func (b *Bus) Report(artistID int64, stage string, progress int, message string, reportErr error) {
	event := &models.ProgressEvent{
		ArtistID:  artistID,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now(),
	}
	if reportErr != nil {
		event.Error = reportErr.Error()
	}

	b.mu.Lock()
	b.latest[artistID] = event
	if _, ok := b.started[artistID]; !ok {
		b.started[artistID] = event.Timestamp
	}
	if stage == models.StageCompleted || stage == models.StageFailed {
		delete(b.started, artistID)
	}
	targets := make([]Listener, 0, len(b.listeners[artistID]))
	ids := make([]int, 0, len(b.listeners[artistID]))
	for id := range b.listeners[artistID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		targets = append(targets, b.listeners[artistID][id])
	}
	b.mu.Unlock()

	for _, l := range targets {
		l(event)
	}
}

// Subscribe registers a listener for an artist's events and returns a token
// for Unsubscribe. Multiple listeners per artist are supported.
func (b *Bus) Subscribe(artistID int64, l Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listeners[artistID] == nil {
		b.listeners[artistID] = make(map[int]Listener)
	}
	b.nextID++
	b.listeners[artistID][b.nextID] = l
	return b.nextID
}

// Unsubscribe removes a listener. A Report racing with the removal may still
// invoke the listener one last time; after that no further events arrive, so
// listeners must tolerate one delivery after Unsubscribe returns.
func (b *Bus) Unsubscribe(artistID int64, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ls, ok := b.listeners[artistID]; ok {
		delete(ls, id)
		if len(ls) == 0 {
			delete(b.listeners, artistID)
		}
	}
}

// Status returns the last known event for an artist, or nil.
func (b *Bus) Status(artistID int64) *models.ProgressEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest[artistID]
}

// ActiveImports lists in-flight imports with stage, progress and elapsed time.
func (b *Bus) ActiveImports() []*models.ActiveImport {
	b.mu.RLock()
	defer b.mu.RUnlock()

	active := make([]*models.ActiveImport, 0, len(b.started))
	for artistID, startedAt := range b.started {
		event := b.latest[artistID]
		if event == nil {
			continue
		}
		active = append(active, &models.ActiveImport{
			ArtistID:  artistID,
			Stage:     event.Stage,
			Progress:  event.Progress,
			StartedAt: startedAt,
			Elapsed:   fmt.Sprintf("%ds", int(time.Since(startedAt).Seconds())),
		})
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartedAt.Before(active[j].StartedAt)
	})
	return active
}
