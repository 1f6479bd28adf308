// Package fetch routes all outbound HTTP through a circuit breaker so a
// misbehaving upstream cannot tie up every ingest or forecast cycle.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// maxErrorBody bounds how much of an error response is included in messages.
const maxErrorBody = 512

// Client wraps an *http.Client with a named circuit breaker. One Client per
// upstream: the breaker state is shared across calls to the same service.
type Client struct {
	hc      *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	headers map[string]string
}

// New creates a Client for one upstream. The breaker opens after six
// consecutive failures and probes again after thirty seconds.
func New(name string, timeout time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		hc:      &http.Client{Timeout: timeout},
		breaker: cb,
		headers: map[string]string{},
	}
}

// SetHeader adds a header sent on every request, e.g. an Authorization token.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Get fetches a URL and returns the response body. Non-2xx statuses are
// errors and count against the breaker.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

// PostJSON marshals body as JSON, posts it, and returns the response body.
func (c *Client) PostJSON(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL, resp.StatusCode, body)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
