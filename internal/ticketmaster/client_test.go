package ticketmaster

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorehq/encore-sync/internal/config"
	apperrors "github.com/encorehq/encore-sync/internal/errors"
	"github.com/encorehq/encore-sync/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestClient(serverURL string) *Client {
	return NewClient(
		config.TicketmasterConfig{APIKey: "tm-key"},
		nil,
		testLogger(),
		WithBaseURL(serverURL),
		WithRetryConfig(2, time.Millisecond, 5*time.Millisecond),
	)
}

func TestSearchAttractions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attractions.json", r.URL.Path)
		assert.Equal(t, "tm-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "Radiohead", r.URL.Query().Get("keyword"))
		fmt.Fprint(w, `{"_embedded":{"attractions":[{"id":"K8vZ91713eV","name":"Radiohead"}]}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	attractions, err := client.SearchAttractions(context.Background(), "Radiohead")
	require.NoError(t, err)
	require.Len(t, attractions, 1)
	assert.Equal(t, "K8vZ91713eV", attractions[0].TicketmasterID)
}

func TestSearchAttractionsNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"_embedded":{"attractions":[]}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchAttractions(context.Background(), "nobody")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetEventsByAttraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events.json", r.URL.Path)
		assert.Equal(t, "date,asc", r.URL.Query().Get("sort"))
		// Future events only by default.
		assert.NotEmpty(t, r.URL.Query().Get("startDateTime"))
		fmt.Fprint(w, `{
			"_embedded":{"events":[{
				"id":"ev-1",
				"name":"Radiohead Live",
				"url":"http://tickets/ev-1",
				"dates":{"start":{"dateTime":"2026-09-01T19:30:00Z"},"status":{"code":"onsale"}},
				"_embedded":{"venues":[{
					"id":"v-1","name":"The Forum",
					"city":{"name":"Inglewood"},
					"state":{"stateCode":"CA"},
					"country":{"countryCode":"US"}
				}]}
			}]},
			"page":{"totalElements":1,"totalPages":1}
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var events []*models.ExternalEvent
	err := client.GetEventsByAttraction(context.Background(), "K8vZ91713eV", EventOptions{}, func(page []*models.ExternalEvent, total int) error {
		assert.Equal(t, 1, total)
		events = append(events, page...)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "ev-1", event.TicketmasterID)
	assert.Equal(t, "onsale", event.Status)
	assert.Equal(t, time.Date(2026, 9, 1, 19, 30, 0, 0, time.UTC), event.Date)
	assert.Equal(t, "v-1", event.Venue.TicketmasterID)
	assert.Equal(t, "Inglewood", event.Venue.City)
	assert.Equal(t, "CA", event.Venue.State)
}

func TestGetEventsByAttractionIncludePast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("startDateTime"))
		fmt.Fprint(w, `{"_embedded":{"events":[]},"page":{"totalElements":0,"totalPages":0}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.GetEventsByAttraction(context.Background(), "K8vZ91713eV", EventOptions{IncludePast: true}, func(page []*models.ExternalEvent, total int) error {
		t.Fatal("callback should not run for an empty page")
		return nil
	})
	require.NoError(t, err)
}

func TestGetEventsByAttractionPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		fmt.Fprintf(w, `{
			"_embedded":{"events":[{"id":"ev-%s","name":"Show","dates":{"start":{"localDate":"2026-09-01"},"status":{"code":"onsale"}}}]},
			"page":{"totalElements":2,"totalPages":2}
		}`, page)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var ids []string
	err := client.GetEventsByAttraction(context.Background(), "K8vZ91713eV", EventOptions{}, func(page []*models.ExternalEvent, total int) error {
		for _, e := range page {
			ids = append(ids, e.TicketmasterID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-0", "ev-1"}, ids)
}

func TestGetEventsByAttractionLocalDateFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"_embedded":{"events":[{"id":"ev-1","name":"Show","dates":{"start":{"localDate":"2026-09-01"},"status":{"code":"onsale"}}}]},
			"page":{"totalElements":1,"totalPages":1}
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.GetEventsByAttraction(context.Background(), "K8vZ91713eV", EventOptions{}, func(page []*models.ExternalEvent, total int) error {
		require.Len(t, page, 1)
		assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), page[0].Date)
		return nil
	})
	require.NoError(t, err)
}

func TestGetEventsByAttractionEmptyID(t *testing.T) {
	client := newTestClient("http://unused")
	err := client.GetEventsByAttraction(context.Background(), "", EventOptions{}, func(page []*models.ExternalEvent, total int) error {
		return nil
	})
	assert.True(t, apperrors.IsValidationError(err))
}
