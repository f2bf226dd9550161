// Package nasa proxies the NASA data endpoints: the Astronomy Picture of the
// Day and the embeddable fireball map page.
package nasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skywatch/skywatch/common/redact"
	"github.com/skywatch/skywatch/common/retry"
)

// errUpstreamRejected marks 4xx upstream responses, which retrying cannot fix.
var errUpstreamRejected = errors.New("nasa: upstream rejected request")

const (
	defaultBaseURL     = "https://api.nasa.gov"
	defaultFireballURL = "https://eyes.nasa.gov/apps/asteroids/#/fireballs"
	defaultTimeout     = 15 * time.Second
)

const maxBodyBytes = 4 * 1024 * 1024 // 4 MiB

// Config configures the NASA client.
type Config struct {
	// APIKey is the api.nasa.gov key. DEMO_KEY works for light use.
	APIKey string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// FireballMapURL is the page fetched by FireballMap.
	FireballMapURL string
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
	if cfg.APIKey == "" {
		cfg.APIKey = "DEMO_KEY"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.FireballMapURL == "" {
		cfg.FireballMapURL = defaultFireballURL
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

// PictureOfTheDay returns the APOD feed entry for today.
func (c *Client) PictureOfTheDay(ctx context.Context) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/planetary/apod?api_key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.QueryEscape(c.cfg.APIKey))

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("nasa: apod returned invalid JSON")
	}
	return json.RawMessage(body), nil
}

// FireballMap fetches the configured fireball map page and returns its HTML.
func (c *Client) FireballMap(ctx context.Context) (string, error) {
	body, err := c.get(ctx, c.cfg.FireballMapURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// get fetches u with retries on transient failures.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	var body []byte

	err := retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("nasa: create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// A url.Error carries the full request URL, api_key included.
			return fmt.Errorf("nasa: get: %w", redact.Error(err, c.cfg.APIKey))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("nasa: read body: %w", err)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("%w: HTTP %d", errUpstreamRejected, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("nasa: upstream returned HTTP %d", resp.StatusCode)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
