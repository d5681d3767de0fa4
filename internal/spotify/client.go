package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/encorehq/encore-sync/internal/config"
	"github.com/encorehq/encore-sync/internal/errors"
	"github.com/encorehq/encore-sync/internal/models"
)

const providerName = "spotify"

const tokenURL = "https://accounts.spotify.com/api/token"

const pageSize = 50

// Client talks to the music-catalog provider. Access tokens come from a
// client-credentials token source, which caches them and refreshes on expiry.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
	logger  *logrus.Logger

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// ClientOption allows configuring the catalog client
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL, used by tests
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the token-source-backed HTTP client, used by tests
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRetryConfig configures retry behavior
func WithRetryConfig(maxRetries int, initialBackoff, maxBackoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initialBackoff
		c.maxBackoff = maxBackoff
	}
}

// NewClient creates a new catalog client with the given credentials and options
func NewClient(creds config.SpotifyConfig, cfg *config.ProviderConfig, logger *logrus.Logger, opts ...ClientOption) *Client {
	if cfg == nil {
		cfg = config.DefaultSpotifyProviderConfig()
	}

	cc := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
	}
	httpClient := cc.Client(context.Background())
	httpClient.Timeout = 30 * time.Second

	client := &Client{
		http:           httpClient,
		baseURL:        cfg.BaseURL,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:         logger,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// doRequest performs a rate-limited GET with retry on 5xx and 429-aware waits.
func (c *Client) doRequest(ctx context.Context, reqURL string, result interface{}) error {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.logger.Warnf("Spotify request attempt %d failed: %v", attempt+1, err)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.maxBackoff)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if result != nil {
				if err := json.Unmarshal(body, result); err != nil {
					return fmt.Errorf("failed to decode spotify response: %w", err)
				}
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp)
			lastErr = errors.NewRateLimitedError(providerName, retryAfter)
			c.logger.Warnf("Spotify rate limit hit, waiting %v before retry", retryAfter)
			if !sleepCtx(ctx, retryAfter) {
				return ctx.Err()
			}
			continue
		case resp.StatusCode == http.StatusNotFound:
			return errors.NewNotFoundError("spotify resource", reqURL)
		case resp.StatusCode >= 500:
			lastErr = errors.NewUpstreamError(providerName, resp.StatusCode, string(body))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.maxBackoff)
			continue
		default:
			return errors.NewUpstreamError(providerName, resp.StatusCode, string(body))
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// SearchArtists searches the catalog by name. A successful call with zero
// results is a NotFoundError.
func (c *Client) SearchArtists(ctx context.Context, query string) ([]*models.ExternalArtist, error) {
	if query == "" {
		return nil, errors.NewValidationError("search query cannot be empty", nil)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "artist")
	q.Set("limit", "10")

	var result struct {
		Artists struct {
			Items []artistJSON `json:"items"`
		} `json:"artists"`
	}
	if err := c.doRequest(ctx, c.baseURL+"/search?"+q.Encode(), &result); err != nil {
		return nil, err
	}

	if len(result.Artists.Items) == 0 {
		return nil, errors.NewNotFoundError("artist", query)
	}

	artists := make([]*models.ExternalArtist, 0, len(result.Artists.Items))
	for _, item := range result.Artists.Items {
		artists = append(artists, item.toModel())
	}
	return artists, nil
}

// GetArtist fetches one artist by catalog ID
func (c *Client) GetArtist(ctx context.Context, spotifyID string) (*models.ExternalArtist, error) {
	if spotifyID == "" {
		return nil, errors.NewValidationError("spotify id cannot be empty", nil)
	}

	var item artistJSON
	if err := c.doRequest(ctx, c.baseURL+"/artists/"+spotifyID, &item); err != nil {
		return nil, err
	}
	return item.toModel(), nil
}

// GetArtistAlbums walks the artist's album pages, invoking fn per page with
// the running total. Restartable: every call begins at offset zero.
func (c *Client) GetArtistAlbums(ctx context.Context, spotifyID string, fn func(albums []*models.ExternalAlbum, total int) error) error {
	if spotifyID == "" {
		return errors.NewValidationError("spotify id cannot be empty", nil)
	}

	offset := 0
	for {
		q := url.Values{}
		q.Set("include_groups", "album,single")
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(offset))

		var page struct {
			Items []albumJSON `json:"items"`
			Total int         `json:"total"`
		}
		if err := c.doRequest(ctx, c.baseURL+"/artists/"+spotifyID+"/albums?"+q.Encode(), &page); err != nil {
			return err
		}

		if len(page.Items) == 0 {
			return nil
		}

		albums := make([]*models.ExternalAlbum, 0, len(page.Items))
		for _, item := range page.Items {
			albums = append(albums, item.toModel())
		}
		if err := fn(albums, page.Total); err != nil {
			return err
		}

		offset += len(page.Items)
		if offset >= page.Total {
			return nil
		}
	}
}

// GetAlbumTracks fetches all tracks on one album
func (c *Client) GetAlbumTracks(ctx context.Context, albumID string) ([]*models.ExternalTrack, error) {
	if albumID == "" {
		return nil, errors.NewValidationError("album id cannot be empty", nil)
	}

	var album struct {
		Name   string `json:"name"`
		Tracks struct {
			Items []trackJSON `json:"items"`
			Total int         `json:"total"`
		} `json:"tracks"`
	}
	if err := c.doRequest(ctx, c.baseURL+"/albums/"+albumID, &album); err != nil {
		return nil, err
	}

	tracks := make([]*models.ExternalTrack, 0, len(album.Tracks.Items))
	for _, item := range album.Tracks.Items {
		track := item.toModel()
		track.AlbumName = album.Name
		tracks = append(tracks, track)
	}
	return tracks, nil
}

type artistJSON struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	Genres     []string `json:"genres"`
	Images     []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func (a artistJSON) toModel() *models.ExternalArtist {
	artist := &models.ExternalArtist{
		SpotifyID:  a.ID,
		Name:       a.Name,
		Popularity: a.Popularity,
		Genres:     a.Genres,
	}
	if len(a.Images) > 0 {
		artist.ImageURL = a.Images[0].URL
	}
	return artist
}

type albumJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
	TotalTracks int    `json:"total_tracks"`
}

func (a albumJSON) toModel() *models.ExternalAlbum {
	return &models.ExternalAlbum{
		SpotifyID:   a.ID,
		Name:        a.Name,
		ReleaseDate: a.ReleaseDate,
		TotalTracks: a.TotalTracks,
	}
}

type trackJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
}

func (t trackJSON) toModel() *models.ExternalTrack {
	return &models.ExternalTrack{
		SpotifyID:  t.ID,
		Title:      t.Name,
		DurationMS: t.DurationMS,
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}

func nextBackoff(current, max time.Duration) time.Duration {
	return time.Duration(math.Min(float64(current*2), float64(max)))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
