package setlistfm

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
	"golang.org/x/time/rate"

	"github.com/encorehq/encore-sync/internal/config"
	"github.com/encorehq/encore-sync/internal/errors"
	"github.com/encorehq/encore-sync/internal/models"
)

const providerName = "setlistfm"

// History imports cap how far back they walk; one page is 20 setlists.
const maxPages = 10

// Client talks to the setlist-history provider.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	logger  *logrus.Logger

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// ClientOption allows configuring the setlist client
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL, used by tests
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
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

// NewClient creates a new setlist client with the given key and options
func NewClient(creds config.SetlistFMConfig, cfg *config.ProviderConfig, logger *logrus.Logger, opts ...ClientOption) *Client {
	if cfg == nil {
		cfg = config.DefaultSetlistFMProviderConfig()
	}

	client := &Client{
		http:           &http.Client{Timeout: 30 * time.Second},
		baseURL:        cfg.BaseURL,
		apiKey:         creds.APIKey,
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
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.logger.Warnf("Setlist.fm request attempt %d failed: %v", attempt+1, err)
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
					return fmt.Errorf("failed to decode setlist.fm response: %w", err)
				}
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := retryAfterHeader(resp)
			lastErr = errors.NewRateLimitedError(providerName, retryAfter)
			c.logger.Warnf("Setlist.fm rate limit hit, waiting %v before retry", retryAfter)
			if !sleepCtx(ctx, retryAfter) {
				return ctx.Err()
			}
			continue
		case resp.StatusCode == http.StatusNotFound:
			return errors.NewNotFoundError("setlistfm resource", reqURL)
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

// SearchArtists resolves an artist name to musicbrainz-keyed candidates.
func (c *Client) SearchArtists(ctx context.Context, query string) ([]models.ExternalArtist, error) {
	if query == "" {
		return nil, errors.NewValidationError("search query cannot be empty", nil)
	}

	q := url.Values{}
	q.Set("artistName", query)
	q.Set("sort", "relevance")

	var result struct {
		Artists []struct {
			MBID string `json:"mbid"`
			Name string `json:"name"`
		} `json:"artist"`
	}
	if err := c.doRequest(ctx, c.baseURL+"/search/artists?"+q.Encode(), &result); err != nil {
		return nil, err
	}

	if len(result.Artists) == 0 {
		return nil, errors.NewNotFoundError("artist", query)
	}

	artists := make([]models.ExternalArtist, 0, len(result.Artists))
	for _, a := range result.Artists {
		artists = append(artists, models.ExternalArtist{Name: a.Name, SetlistFMID: a.MBID})
	}
	return artists, nil
}

// GetArtistSetlists walks the artist's setlist history pages, most recent
// first, invoking fn per page with the provider's total.
func (c *Client) GetArtistSetlists(ctx context.Context, mbid string, fn func(setlists []*models.ExternalSetlist, total int) error) error {
	if mbid == "" {
		return errors.NewValidationError("artist mbid cannot be empty", nil)
	}

	for page := 1; page <= maxPages; page++ {
		var result setlistsPageJSON
		reqURL := fmt.Sprintf("%s/artist/%s/setlists?p=%d", c.baseURL, mbid, page)
		if err := c.doRequest(ctx, reqURL, &result); err != nil {
			// The provider 404s past the last page instead of returning
			// an empty list.
			if page > 1 && errors.IsNotFound(err) {
				return nil
			}
			return err
		}

		if len(result.Setlists) == 0 {
			return nil
		}

		setlists := make([]*models.ExternalSetlist, 0, len(result.Setlists))
		for _, s := range result.Setlists {
			setlists = append(setlists, s.toModel())
		}
		if err := fn(setlists, result.Total); err != nil {
			return err
		}

		if page*result.ItemsPerPage >= result.Total {
			return nil
		}
	}

	return nil
}

type setlistsPageJSON struct {
	Setlists     []setlistJSON `json:"setlist"`
	Total        int           `json:"total"`
	Page         int           `json:"page"`
	ItemsPerPage int           `json:"itemsPerPage"`
}

type setlistJSON struct {
	ID        string `json:"id"`
	EventDate string `json:"eventDate"`
	Venue     struct {
		Name string `json:"name"`
	} `json:"venue"`
	Tour struct {
		Name string `json:"name"`
	} `json:"tour"`
	Sets struct {
		Set []struct {
			Songs []struct {
				Name string `json:"name"`
				Info string `json:"info"`
			} `json:"song"`
		} `json:"set"`
	} `json:"sets"`
}

func (s setlistJSON) toModel() *models.ExternalSetlist {
	setlist := &models.ExternalSetlist{
		SetlistFMID: s.ID,
		VenueName:   s.Venue.Name,
		TourName:    s.Tour.Name,
	}

	// Event dates arrive as dd-MM-yyyy.
	if t, err := time.Parse("02-01-2006", s.EventDate); err == nil {
		setlist.EventDate = t
	}

	for _, set := range s.Sets.Set {
		for _, song := range set.Songs {
			setlist.Songs = append(setlist.Songs, models.ExternalSetlistSong{
				Title: song.Name,
				Info:  song.Info,
			})
		}
	}

	return setlist
}

func retryAfterHeader(resp *http.Response) time.Duration {
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
