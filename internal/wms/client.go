package wms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig configures the WMS HTTP client behavior.
type ClientConfig struct {
	// BaseURL is the base URL for all requests.
	BaseURL string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3).
	MaxRetries int

	// BackoffBase is the first retry delay before doubling (default: 500ms).
	BackoffBase time.Duration

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// UserAgent string (default: "WMS_PIPELINE/1.0").
	UserAgent string

	// Headers to add to all requests.
	Headers map[string]string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper

	// Sleep waits between retries. Defaults to a context-aware time.After
	// wait; tests inject a no-op.
	Sleep func(ctx context.Context, d time.Duration) error

	// Jitter returns a value in [0,1) used to spread retry delays.
	// Defaults to math/rand; tests inject a constant.
	Jitter func() float64
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		BackoffBase: 500 * time.Millisecond,
		RateLimit:   10.0,
		RateBurst:   5,
		UserAgent:   "WMS_PIPELINE/1.0",
		Headers:     make(map[string]string),
	}
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

// Client is a rate-limited HTTP client that retries transient failures
// with exponential backoff and jitter. Retries are purely time-delayed
// re-issues of the identical request.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
	jitter      func() float64
}

// NewClient creates a new WMS client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = 500 * time.Millisecond
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10.0
	}
	if config.RateBurst == 0 {
		config.RateBurst = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "WMS_PIPELINE/1.0"
	}

	sleep := config.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}
	jitter := config.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		sleep:       sleep,
		jitter:      jitter,
	}
}

// =============================================================================
// RESPONSE TYPE
// =============================================================================

// Response wraps an HTTP response with convenience methods.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into the given target.
func (r *Response) JSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// Empty reports whether the body carries no JSON document.
func (r *Response) Empty() bool {
	body := strings.TrimSpace(string(r.Body))
	return body == "" || body == "null"
}

// =============================================================================
// CLIENT METHODS
// =============================================================================

// Get issues a GET request with rate limiting and retry. Statuses 429,
// 500, 502, 503 and 504 as well as timeouts and connection failures are
// retried until the budget is exhausted; any other 4xx fails immediately.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, err := c.doOnce(ctx, path, query)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
		if attempt == c.config.MaxRetries {
			break
		}

		// base * 2^attempt, jittered into [0.5, 1.0] of the full delay
		backoff := time.Duration(float64(c.config.BackoffBase) *
			float64(int64(1)<<uint(attempt)) * (0.5 + 0.5*c.jitter()))
		log.Printf("retryable failure for %s (attempt %d/%d): %v, sleeping %s",
			path, attempt+1, c.config.MaxRetries+1, err, backoff)
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetJSON issues a GET request and decodes the body into target. A 2xx
// response with an unparseable body is a terminal protocol violation and
// is never retried. An empty body decodes to nothing and returns
// (false, nil) so callers can distinguish "no document" from "document".
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, target any) (bool, error) {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return false, err
	}
	if resp.Empty() {
		return false, nil
	}
	if err := resp.JSON(target); err != nil {
		return false, fmt.Errorf("response is not JSON: path=%s status=%d: %w",
			path, resp.StatusCode, err)
	}
	return true, nil
}

// doOnce executes a single request attempt.
func (c *Client) doOnce(ctx context.Context, path string, query url.Values) (*Response, error) {
	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	if resp.StatusCode >= 400 {
		return response, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    truncate(string(body), 300),
		}
	}

	return response, nil
}

// =============================================================================
// ERRORS
// =============================================================================

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is in the transient set.
func (e *HTTPError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// transportError wraps timeouts and connection failures, which share the
// retry budget with retryable HTTP statuses.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// isRetryable determines if an error should be retried.
func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var tErr *transportError
	if errors.As(err, &tErr) {
		// Caller cancellation is not a transient fault; request timeouts
		// and connection failures are.
		if errors.Is(tErr.err, context.Canceled) {
			return false
		}
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
