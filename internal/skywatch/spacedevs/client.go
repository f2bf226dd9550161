// Package spacedevs proxies the read-only space-data feeds: upcoming
// launches and events from Launch Library 2, and articles from the
// Spaceflight News API. Responses are passed through as raw JSON.
package spacedevs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skywatch/skywatch/common/retry"
)

// errUpstreamRejected marks 4xx upstream responses, which retrying cannot fix.
var errUpstreamRejected = errors.New("spacedevs: upstream rejected request")

const (
	defaultLaunchBase = "https://ll.thespacedevs.com/2.2.0"
	defaultNewsBase   = "https://api.spaceflightnewsapi.net/v4"
	defaultTimeout    = 15 * time.Second
	defaultLimit      = 10
)

// maxBodyBytes caps upstream response bodies.
const maxBodyBytes = 4 * 1024 * 1024 // 4 MiB

// Config configures the spacedevs client.
type Config struct {
	// LaunchBaseURL overrides the Launch Library endpoint.
	LaunchBaseURL string
	// NewsBaseURL overrides the Spaceflight News endpoint.
	NewsBaseURL string
	// Timeout is the per-request HTTP timeout. Defaults to 15 s.
	Timeout time.Duration
}

// Client is a stateless request/response proxy. Safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
	retry  retry.Config
}

// New returns a Client with defaults applied.
func New(cfg Config) *Client {
	if cfg.LaunchBaseURL == "" {
		cfg.LaunchBaseURL = defaultLaunchBase
	}
	if cfg.NewsBaseURL == "" {
		cfg.NewsBaseURL = defaultNewsBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	retryCfg := retry.DefaultConfig
	retryCfg.ShouldRetry = func(err error) bool { return !errors.Is(err, errUpstreamRejected) }
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  retryCfg,
	}
}

// Launches returns the upcoming launches feed.
func (c *Client) Launches(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("%s/launch/upcoming/?limit=%d",
		strings.TrimRight(c.cfg.LaunchBaseURL, "/"), defaultLimit))
}

// Events returns the upcoming events feed.
func (c *Client) Events(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("%s/event/upcoming/?limit=%d",
		strings.TrimRight(c.cfg.LaunchBaseURL, "/"), defaultLimit))
}

// News returns the latest spaceflight articles.
func (c *Client) News(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("%s/articles/?limit=%d",
		strings.TrimRight(c.cfg.NewsBaseURL, "/"), defaultLimit))
}

// get fetches url with retries on transient failures and returns the body
// verbatim after checking it is valid JSON.
func (c *Client) get(ctx context.Context, url string) (json.RawMessage, error) {
	var body []byte

	err := retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("spacedevs: create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("spacedevs: get %s: %w", url, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("spacedevs: read body: %w", err)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("%w: HTTP %d", errUpstreamRejected, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("spacedevs: upstream returned HTTP %d", resp.StatusCode)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("spacedevs: upstream returned invalid JSON")
	}
	return json.RawMessage(body), nil
}
