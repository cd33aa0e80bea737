package mullvad

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/mlvd/internal/utils"
	"github.com/MrSnakeDoc/mlvd/internal/version"
)

// maxBodySize bounds the relay list download.
const maxBodySize = 32 << 20

// FetchResult is the outcome of a conditional GET.
type FetchResult struct {
	// NotModified is true on 304; Body and ETag are then empty.
	NotModified bool
	Body        []byte
	// ETag is the validator sent with Body, empty if the server sent none.
	ETag string
}

// StatusError reports a response that is neither 200 nor 304.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response from %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Client fetches the relay list over HTTP.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
}

type Option func(*Client)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a Client for url. timeout bounds each whole exchange,
// body included.
func NewClient(url string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		url:        url,
		userAgent:  version.UserAgent(),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch issues a GET with If-None-Match set to etag (possibly empty).
// It is not retried.
func (c *Client) Fetch(ctx context.Context, etag string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("failed to build request for %s: %w", c.url, err)
	}
	req.Header.Set("If-None-Match", etag)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("failed to request %s: %w", c.url, err)
	}
	defer utils.Close(resp.Body)

	switch resp.StatusCode {
	case http.StatusNotModified:
		return FetchResult{NotModified: true}, nil
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return FetchResult{}, fmt.Errorf("failed to read response from %s: %w", c.url, err)
		}
		return FetchResult{Body: body, ETag: resp.Header.Get("ETag")}, nil
	default:
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return FetchResult{}, &StatusError{URL: c.url, StatusCode: resp.StatusCode}
	}
}
