package ticketmaster

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

const providerName = "ticketmaster"

const pageSize = 100

// The discovery API refuses deep paging past 1000 items.
const maxPages = 10

// EventOptions controls event queries. The default filters to future events.
type EventOptions struct {
	IncludePast bool
}

// Client talks to the event/ticketing provider.
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

// ClientOption allows configuring the event client
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

// NewClient creates a new event client with the given key and options
func NewClient(creds config.TicketmasterConfig, cfg *config.ProviderConfig, logger *logrus.Logger, opts ...ClientOption) *Client {
	if cfg == nil {
		cfg = config.DefaultTicketmasterProviderConfig()
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

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.logger.Warnf("Ticketmaster request attempt %d failed: %v", attempt+1, err)
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
					return fmt.Errorf("failed to decode ticketmaster response: %w", err)
				}
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := retryAfterHeader(resp)
			lastErr = errors.NewRateLimitedError(providerName, retryAfter)
			c.logger.Warnf("Ticketmaster rate limit hit, waiting %v before retry", retryAfter)
			if !sleepCtx(ctx, retryAfter) {
				return ctx.Err()
			}
			continue
		case resp.StatusCode == http.StatusNotFound:
			return errors.NewNotFoundError("ticketmaster resource", reqURL)
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

// SearchAttractions resolves an artist name to attraction candidates. Zero
// results on a successful call is a NotFoundError.
func (c *Client) SearchAttractions(ctx context.Context, query string) ([]models.ExternalArtist, error) {
	if query == "" {
		return nil, errors.NewValidationError("search query cannot be empty", nil)
	}

	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("keyword", query)
	q.Set("size", "10")

	var result struct {
		Embedded struct {
			Attractions []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"attractions"`
		} `json:"_embedded"`
	}
	if err := c.doRequest(ctx, c.baseURL+"/attractions.json?"+q.Encode(), &result); err != nil {
		return nil, err
	}

	if len(result.Embedded.Attractions) == 0 {
		return nil, errors.NewNotFoundError("attraction", query)
	}

	attractions := make([]models.ExternalArtist, 0, len(result.Embedded.Attractions))
	for _, a := range result.Embedded.Attractions {
		attractions = append(attractions, models.ExternalArtist{
			TicketmasterID: a.ID,
			Name:           a.Name,
		})
	}
	return attractions, nil
}

// GetEventsByAttraction walks the event pages for one attraction, invoking fn
// per page with the provider's total. Future events only unless IncludePast.
func (c *Client) GetEventsByAttraction(ctx context.Context, attractionID string, opts EventOptions, fn func(events []*models.ExternalEvent, total int) error) error {
	if attractionID == "" {
		return errors.NewValidationError("attraction id cannot be empty", nil)
	}

	page := 0
	for {
		q := url.Values{}
		q.Set("apikey", c.apiKey)
		q.Set("attractionId", attractionID)
		q.Set("size", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))
		q.Set("sort", "date,asc")
		if !opts.IncludePast {
			q.Set("startDateTime", time.Now().UTC().Format("2006-01-02T15:04:05Z"))
		}

		var result eventsPageJSON
		if err := c.doRequest(ctx, c.baseURL+"/events.json?"+q.Encode(), &result); err != nil {
			return err
		}

		if len(result.Embedded.Events) == 0 {
			return nil
		}

		events := make([]*models.ExternalEvent, 0, len(result.Embedded.Events))
		for _, e := range result.Embedded.Events {
			events = append(events, e.toModel())
		}
		if err := fn(events, result.Page.TotalElements); err != nil {
			return err
		}

		page++
		if page >= result.Page.TotalPages || page >= maxPages {
			return nil
		}
	}
}

type eventsPageJSON struct {
	Embedded struct {
		Events []eventJSON `json:"events"`
	} `json:"_embedded"`
	Page struct {
		TotalElements int `json:"totalElements"`
		TotalPages    int `json:"totalPages"`
	} `json:"page"`
}

type eventJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Dates struct {
		Start struct {
			DateTime  string `json:"dateTime"`
			LocalDate string `json:"localDate"`
		} `json:"start"`
		Status struct {
			Code string `json:"code"`
		} `json:"status"`
	} `json:"dates"`
	Embedded struct {
		Venues []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			City struct {
				Name string `json:"name"`
			} `json:"city"`
			State struct {
				StateCode string `json:"stateCode"`
			} `json:"state"`
			Country struct {
				CountryCode string `json:"countryCode"`
			} `json:"country"`
		} `json:"venues"`
	} `json:"_embedded"`
}

func (e eventJSON) toModel() *models.ExternalEvent {
	event := &models.ExternalEvent{
		TicketmasterID: e.ID,
		Name:           e.Name,
		Status:         e.Dates.Status.Code,
		TicketURL:      e.URL,
	}

	if e.Dates.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, e.Dates.Start.DateTime); err == nil {
			event.Date = t
		}
	} else if e.Dates.Start.LocalDate != "" {
		if t, err := time.Parse("2006-01-02", e.Dates.Start.LocalDate); err == nil {
			event.Date = t
		}
	}

	if len(e.Embedded.Venues) > 0 {
		v := e.Embedded.Venues[0]
		event.Venue = models.ExternalVenue{
			TicketmasterID: v.ID,
			Name:           v.Name,
			City:           v.City.Name,
			State:          v.State.StateCode,
			Country:        v.Country.CountryCode,
		}
	}

	return event
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
