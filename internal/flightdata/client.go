// Package flightdata talks to the flight status provider: an AeroAPI-shaped
// REST service returning flight instances per ident and date range. The
// client caches answers, collapses concurrent lookups and retries transient
// failures with jittered backoff.
package flightdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tripwatch/internal/metrics"
	"tripwatch/internal/trip"
	"tripwatch/internal/validate"
)

const dateLayout = "2006-01-02"

// Config configures the provider client. Zero values get production
// defaults.
type Config struct {
	BaseURL string
	APIKey  string

	Timeout     time.Duration // per-attempt HTTP timeout
	MaxAttempts int           // attempts for transient failures
	RetryBase   time.Duration // backoff base, doubled per attempt, full jitter

	CacheTTL  time.Duration
	CacheSize int

	HTTPClient *http.Client
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
}

// Client fetches flight snapshots.
type Client struct {
	cfg   Config
	http  *http.Client
	cache *snapshotCache
	group singleflight.Group
	clock clockwork.Clock
	log   zerolog.Logger

	requests atomic.Int64
	retries  atomic.Int64
}

// New builds a client, filling config defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 50
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		cfg:   cfg,
		http:  httpClient,
		cache: newSnapshotCache(cfg.CacheSize, cfg.CacheTTL),
		clock: clock,
		log:   cfg.Log.With().Str("component", "flightdata").Logger(),
	}
}

// GetFlightStatus returns the normalized snapshot for a flight on a date.
// Errors are *NotFoundError, *TransientError or *PermanentError; anything
// else means the flight number itself was malformed.
func (c *Client) GetFlightStatus(ctx context.Context, flightNumber string, date time.Time) (*trip.FlightSnapshot, error) {
	ident, err := validate.NormalizeIdent(flightNumber)
	if err != nil {
		return nil, err
	}
	dateKey := date.UTC().Format(dateLayout)
	key := ident + "|" + dateKey

	if e, ok := c.cache.get(key); ok {
		if e.notFound {
			c.cfg.Metrics.CacheEvent("negative")
			return nil, &NotFoundError{Ident: ident, Date: dateKey}
		}
		c.cfg.Metrics.CacheEvent("hit")
		return e.snap, nil
	}
	c.cfg.Metrics.CacheEvent("miss")

	v, err, _ := c.group.Do(key, func() (any, error) {
		snap, err := c.fetch(ctx, ident, date)
		if err != nil {
			if IsNotFound(err) {
				c.cache.putNegative(key)
			}
			return nil, err
		}
		c.cache.put(key, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*trip.FlightSnapshot), nil
}

// fetch runs the retry loop around doRequest.
func (c *Client) fetch(ctx context.Context, ident string, date time.Time) (*trip.FlightSnapshot, error) {
	start := date.UTC().Format(dateLayout)
	end := date.UTC().AddDate(0, 0, 1).Format(dateLayout)

	q := url.Values{}
	q.Set("start", start)
	q.Set("end", end)
	q.Set("max_pages", "1")
	endpoint := fmt.Sprintf("%s/flights/%s?%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(ident), q.Encode())

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.retries.Add(1)
			select {
			case <-ctx.Done():
				return nil, &TransientError{Err: ctx.Err()}
			case <-c.clock.After(c.backoff(attempt)):
			}
		}

		snap, err := c.doRequest(ctx, endpoint, ident, start)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
		c.log.Debug().Str("ident", ident).Int("attempt", attempt).Err(err).Msg("provider fetch failed, will retry")
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, endpoint, ident, date string) (*trip.FlightSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("x-apikey", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		c.cfg.Metrics.ProviderRequest(0)
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()
	c.cfg.Metrics.ProviderRequest(resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusOK:
		var fr flightsResponse
		if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
			return nil, &TransientError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		if len(fr.Flights) == 0 {
			return nil, &NotFoundError{Ident: ident, Date: date}
		}
		// The first entry is the operated flight; later entries are
		// codeshares of the same instance.
		return Normalize(&fr.Flights[0], c.clock.Now()), nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Ident: ident, Date: date}

	case resp.StatusCode >= 500:
		return nil, &TransientError{Status: resp.StatusCode, Err: errors.New(readBodyPrefix(resp.Body))}

	default:
		return nil, &PermanentError{Status: resp.StatusCode, Body: readBodyPrefix(resp.Body)}
	}
}

// backoff returns a full-jitter delay for the given attempt (2nd attempt
// draws from [0, base), 3rd from [0, 2*base), ...).
func (c *Client) backoff(attempt int) time.Duration {
	ceil := c.cfg.RetryBase << (attempt - 2)
	if ceil <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceil)))
}

func readBodyPrefix(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

// Stats is a point-in-time view of client activity for the ops endpoint.
type Stats struct {
	Requests int64      `json:"requests"`
	Retries  int64      `json:"retries"`
	Cache    CacheStats `json:"cache"`
}

func (c *Client) Stats() Stats {
	return Stats{
		Requests: c.requests.Load(),
		Retries:  c.retries.Load(),
		Cache:    c.cache.stats(),
	}
}
