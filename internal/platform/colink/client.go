// Package colink talks to the COLINK simulation backend: REST snapshots,
// the health endpoint and the live websocket feed. Every response is
// normalized into domain types here.
package colink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
	"github.com/alanyoungcy/colinkwatch/internal/metrics"
)

// Paths are the backend routes, relative to the base URL.
type Paths struct {
	Pools  string
	Swaps  string
	Meta   string
	Health string
}

// DefaultPaths returns the routes served by the dashboard API.
func DefaultPaths() Paths {
	return Paths{
		Pools:  "/api/pools/state",
		Swaps:  "/api/swaps/recent",
		Meta:   "/api/sim/meta",
		Health: "/health",
	}
}

// Client is the REST client for the backend snapshot and health endpoints.
type Client struct {
	baseURL    string
	paths      Paths
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

// Compile-time interface checks.
var (
	_ domain.SnapshotSource = (*Client)(nil)
	_ domain.HealthProber   = (*Client)(nil)
)

// NewClient creates a Client. A zero timeout falls back to 10s; callers are
// expected to bound individual calls with their own context as well.
func NewClient(baseURL string, paths Paths, timeout time.Duration, logger *slog.Logger, rec *metrics.Recorder) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		paths:      paths,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "colink")),
		metrics:    rec,
	}
}

// FetchPools returns the current pool states.
func (c *Client) FetchPools(ctx context.Context) ([]domain.PoolState, error) {
	body, err := c.doGet(ctx, c.paths.Pools)
	if err != nil {
		return nil, fmt.Errorf("colink: get pools: %w", err)
	}
	pools, dropped, err := parsePools(body)
	c.reportDropped("pool", dropped)
	if err != nil {
		return nil, fmt.Errorf("colink: decode pools: %w", err)
	}
	return pools, nil
}

// FetchSwaps returns the recent swaps.
func (c *Client) FetchSwaps(ctx context.Context) ([]domain.SwapEvent, error) {
	body, err := c.doGet(ctx, c.paths.Swaps)
	if err != nil {
		return nil, fmt.Errorf("colink: get swaps: %w", err)
	}
	swaps, dropped, err := parseSwaps(body)
	c.reportDropped("swap", dropped)
	if err != nil {
		return nil, fmt.Errorf("colink: decode swaps: %w", err)
	}
	return swaps, nil
}

// FetchMeta returns the run metadata.
func (c *Client) FetchMeta(ctx context.Context) (domain.RunMeta, error) {
	body, err := c.doGet(ctx, c.paths.Meta)
	if err != nil {
		return domain.RunMeta{}, fmt.Errorf("colink: get meta: %w", err)
	}
	meta, err := parseMeta(body)
	if err != nil {
		return domain.RunMeta{}, fmt.Errorf("colink: decode meta: %w", err)
	}
	return meta, nil
}

// Probe checks the health endpoint. Any non-2xx status, transport error or
// timeout is a failure.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.doGet(ctx, c.paths.Health); err != nil {
		return fmt.Errorf("colink: probe: %w", err)
	}
	return nil
}

func (c *Client) reportDropped(kind string, n int) {
	if n == 0 {
		return
	}
	c.logger.Warn("dropped malformed records", slog.String("kind", kind), slog.Int("count", n))
	c.metrics.Dropped(kind, n)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
