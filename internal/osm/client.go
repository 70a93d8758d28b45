// Package osm is the client for the OpenStreetMap API 0.6, reduced to the
// three calls the statistics service needs: listing a user's changesets,
// listing changesets by id, and downloading the element ids a changeset
// modified.
package osm

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public OSM API endpoint.
const DefaultBaseURL = "https://api.openstreetmap.org/api/0.6"

// PageSize is the fixed cap of the changesets query endpoint. The API returns
// at most this many changesets per call and offers no pagination token.
const PageSize = 100

// ErrNotFound is returned when the API answers 404: the user or changeset is
// unknown upstream.
var ErrNotFound = eris.New("osm: not found")

// Options configures the OSM API client.
type Options struct {
	BaseURL        string
	AuthToken      string // optional OAuth bearer token
	UserAgent      string
	Timeout        time.Duration
	RequestsPerSec float64
}

// Client talks to the OSM API. All calls are blocking and retryless; a
// failed round-trip surfaces immediately to the caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates an OSM API client with the given options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "sc-statistics-service/1.0"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		authToken:  opts.AuthToken,
		userAgent:  opts.UserAgent,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
	}
}

// get performs one rate-limited GET and returns the response body.
// 404 maps to ErrNotFound; any other non-200 status is a transport error.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "osm: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "osm: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "osm: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		zap.L().Warn("osm: unexpected status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return nil, eris.Errorf("osm: API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "osm: read body")
	}
	return body, nil
}
