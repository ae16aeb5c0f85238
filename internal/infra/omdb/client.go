// Package omdb fetches movie metadata from the OMDb API.
// Lookups are retried with exponential backoff, paced by a rate limiter,
// deduplicated across concurrent callers, and cached for the process lifetime.
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/matiasleandrokruk/moviegpt/internal/infra/metrics"
)

var (
	ErrNotConfigured = errors.New("omdb: api key not configured")
	ErrInvalidID     = errors.New("omdb: invalid imdb id")
	// ErrUpstream wraps OMDb's own `"Response":"False"` answers.
	ErrUpstream = errors.New("omdb: upstream error")
)

var imdbIDPattern = regexp.MustCompile(`^tt\d{7,10}$`)

// Record is the OMDb JSON object, passed through unchanged.
type Record map[string]any

// Options configures a Client. Zero values take the defaults noted per field.
type Options struct {
	BaseURL    string        // https://www.omdbapi.com/
	APIKey     string        // required
	Attempts   int           // 3
	BaseDelay  time.Duration // 1s, doubled after each failed attempt
	Timeout    time.Duration // per attempt, 10s
	RatePerSec float64       // 5
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	log     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]Record
}

func New(opts Options, log zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.omdbapi.com/"
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		opts:    opts,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		log:     log,
		cache:   make(map[string]Record),
	}
}

// Get returns the record for imdbID from cache or OMDb.
// Concurrent misses for the same ID share one upstream fetch. A caller whose
// ctx ends stops waiting, but the shared fetch completes and fills the cache.
func (c *Client) Get(ctx context.Context, imdbID string) (Record, error) {
	if c.opts.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if !imdbIDPattern.MatchString(imdbID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, imdbID)
	}

	if rec, ok := c.cached(imdbID); ok {
		metrics.RecordMetadataLookup("hit")
		return rec, nil
	}

	ch := c.group.DoChan(imdbID, func() (any, error) {
		if rec, ok := c.cached(imdbID); ok {
			return rec, nil
		}
		rec, err := c.fetch(context.WithoutCancel(ctx), imdbID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[imdbID] = rec
		c.mu.Unlock()
		return rec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			metrics.RecordMetadataLookup("error")
			return nil, res.Err
		}
		metrics.RecordMetadataLookup("miss")
		return res.Val.(Record), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) cached(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.cache[id]
	return rec, ok
}

func (c *Client) fetch(ctx context.Context, imdbID string) (Record, error) {
	backoff := retry.WithMaxRetries(uint64(c.opts.Attempts-1), retry.NewExponential(c.opts.BaseDelay))

	var rec Record
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		r, err := c.fetchOnce(ctx, imdbID)
		if err != nil {
			c.log.Debug().Err(err).Str("imdb_id", imdbID).Int("attempt", attempt).Msg("omdb lookup failed")
			return retry.RetryableError(err)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) fetchOnce(ctx context.Context, imdbID string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("i", imdbID)
	q.Set("apikey", c.opts.APIKey)
	q.Set("plot", "full")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("omdb: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("omdb: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("omdb: status %d", resp.StatusCode)
	}
	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("omdb: decode: %w", err)
	}
	if r, _ := rec["Response"].(string); r == "False" {
		msg, _ := rec["Error"].(string)
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}
	return rec, nil
}
