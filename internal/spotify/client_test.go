package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
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

// newTestClient bypasses the token source so tests hit the local server
// directly.
func newTestClient(serverURL string) *Client {
	return NewClient(
		config.SpotifyConfig{ClientID: "id", ClientSecret: "secret"},
		nil,
		testLogger(),
		WithBaseURL(serverURL),
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		WithRetryConfig(3, time.Millisecond, 5*time.Millisecond),
	)
}

func TestSearchArtists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "artist", r.URL.Query().Get("type"))
		assert.Equal(t, "Radiohead", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"artists":{"items":[
			{"id":"abc123","name":"Radiohead","popularity":85,"genres":["rock"],"images":[{"url":"http://img/1.jpg"}]},
			{"id":"def456","name":"Radiohead Tribute","popularity":10}
		]}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	artists, err := client.SearchArtists(context.Background(), "Radiohead")
	require.NoError(t, err)
	require.Len(t, artists, 2)
	assert.Equal(t, "abc123", artists[0].SpotifyID)
	assert.Equal(t, 85, artists[0].Popularity)
	assert.Equal(t, []string{"rock"}, artists[0].Genres)
	assert.Equal(t, "http://img/1.jpg", artists[0].ImageURL)
}

func TestSearchArtistsNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"artists":{"items":[]}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchArtists(context.Background(), "nobody")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSearchArtistsEmptyQuery(t *testing.T) {
	client := newTestClient("http://unused")
	_, err := client.SearchArtists(context.Background(), "")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestGetArtistNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetArtist(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetArtistAlbumsPagination(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		offset := r.URL.Query().Get("offset")
		switch offset {
		case "0":
			fmt.Fprint(w, `{"items":[{"id":"a1","name":"First","total_tracks":10},{"id":"a2","name":"Second","total_tracks":8}],"total":3}`)
		default:
			fmt.Fprint(w, `{"items":[{"id":"a3","name":"Third","total_tracks":12}],"total":3}`)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var albums []*models.ExternalAlbum
	err := client.GetArtistAlbums(context.Background(), "abc123", func(page []*models.ExternalAlbum, total int) error {
		assert.Equal(t, 3, total)
		albums = append(albums, page...)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, albums, 3)
	assert.Equal(t, "a3", albums[2].SpotifyID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestGetArtistAlbumsCallbackErrorStopsPaging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"id":"a1","name":"First"}],"total":100}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	calls := 0
	err := client.GetArtistAlbums(context.Background(), "abc123", func(page []*models.ExternalAlbum, total int) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestGetAlbumTracksCarriesAlbumName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/albums/a1", r.URL.Path)
		fmt.Fprint(w, `{"name":"OK Computer","tracks":{"items":[
			{"id":"t1","name":"Airbag","duration_ms":284000},
			{"id":"t2","name":"Paranoid Android","duration_ms":383000}
		],"total":2}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	tracks, err := client.GetAlbumTracks(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "OK Computer", tracks[0].AlbumName)
	assert.Equal(t, "Airbag", tracks[0].Title)
	assert.Equal(t, 284000, tracks[0].DurationMS)
}

func TestDoRequestRetriesOn5xx(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"id":"abc123","name":"Radiohead"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	artist, err := client.GetArtist(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Radiohead", artist.Name)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestDoRequestHonorsRetryAfter(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":"abc123","name":"Radiohead"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	artist, err := client.GetArtist(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Radiohead", artist.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestDoRequestGivesUpAfterMaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetArtist(context.Background(), "abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestDoRequestClientErrorIsNotRetried(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetArtist(context.Background(), "abc123")
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}
