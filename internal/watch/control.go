package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/pulse/internal/domain/types"
)

// Control calls the server's producer API.
type Control struct {
	client  *http.Client
	baseURL string
}

// NewControl returns a Control for the server at baseURL. A ws:// or
// wss:// stream URL is accepted and mapped to its HTTP origin.
func NewControl(baseURL string, timeout time.Duration) (*Control, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %w", ErrControl, baseURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws")
	return &Control{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(u.String(), "/"),
	}, nil
}

// Start starts the producer.
func (c *Control) Start(ctx context.Context) (types.StreamStats, error) {
	return c.streamCall(ctx, http.MethodPost, "/api/producer/start", nil)
}

// Stop stops the producer.
func (c *Control) Stop(ctx context.Context) (types.StreamStats, error) {
	return c.streamCall(ctx, http.MethodPost, "/api/producer/stop", nil)
}

// SetRate changes the producer rate.
func (c *Control) SetRate(ctx context.Context, rate int) (types.StreamStats, error) {
	return c.streamCall(ctx, http.MethodPut, "/api/producer/rate", map[string]int{"rate": rate})
}

// Limiter reports the server's admission limiter.
func (c *Control) Limiter(ctx context.Context) (types.LimiterStats, error) {
	var out types.LimiterStats
	err := c.do(ctx, http.MethodGet, "/api/limiter", nil, &out)
	return out, err
}

func (c *Control) streamCall(ctx context.Context, method, path string, body any) (types.StreamStats, error) {
	var out types.StreamStats
	err := c.do(ctx, method, path, body, &out)
	return out, err
}

func (c *Control) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request body: %w", ErrControl, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrControl, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrControl, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrControl, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %ss", ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode >= http.StatusBadRequest:
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return fmt.Errorf("%w: %s %s: %d %s: %s", ErrControl, method, path, resp.StatusCode, apiErr.Code, apiErr.Message)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrControl, err)
	}
	return nil
}
