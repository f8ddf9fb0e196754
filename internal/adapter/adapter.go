// Package adapter holds the raw clients for every upstream data source.
// Clients return upstream shapes; fetchers convert them to TokenRecords.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wallet-aggregator/internal/circuitbreaker"
	"github.com/wallet-aggregator/internal/retry"
)

var (
	// ErrInvalidAddress indicates the address format is invalid for the source
	ErrInvalidAddress = errors.New("invalid address format")

	// ErrProviderUnavailable indicates the data provider is unavailable
	ErrProviderUnavailable = errors.New("data provider unavailable")

	// ErrProviderRateLimit indicates the provider rate limit was exceeded
	ErrProviderRateLimit = errors.New("provider rate limit exceeded")

	// ErrNotConfigured indicates a required credential is missing
	ErrNotConfigured = errors.New("source not configured")
)

// AdapterError wraps errors with the source and operation that failed
type AdapterError struct {
	Source  string
	Op      string
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s %s: %v (details: %+v)", e.Source, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(source, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{Source: source, Op: op, Err: err, Details: details}
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps HTTP statuses onto the package sentinels
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrProviderRateLimit
	case e.StatusCode >= 500:
		return ErrProviderUnavailable
	default:
		return nil
	}
}

// HTTPOptions configures an HTTPClient
type HTTPOptions struct {
	Timeout time.Duration
	Headers map[string]string
	Retry   *retry.RetryConfig
	Breaker *circuitbreaker.CircuitBreaker
	Client  *http.Client
}

// HTTPClient performs JSON requests against one upstream base URL
type HTTPClient struct {
	name    string
	baseURL string
	client  *http.Client
	headers map[string]string
	retry   *retry.RetryConfig
	breaker *circuitbreaker.CircuitBreaker
}

// NewHTTPClient creates a JSON client for baseURL
func NewHTTPClient(name, baseURL string, opts HTTPOptions) *HTTPClient {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	rc := opts.Retry
	if rc == nil {
		rc = retry.DefaultRetryConfig()
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(name))
	}
	return &HTTPClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		headers: opts.Headers,
		retry:   rc,
		breaker: breaker,
	}
}

// Name returns the upstream name used in errors and logs
func (c *HTTPClient) Name() string {
	return c.name
}

// GetJSON issues a GET and decodes the response body into out
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out
func (c *HTTPClient) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, nil, out)
}

// Do performs one request with retry and circuit breaking.
// 4xx responses other than 429 are not retried.
func (c *HTTPClient) Do(ctx context.Context, method, path string, query url.Values, body interface{}, headers map[string]string, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.doTarget(ctx, method, target, payload, headers, out)
}

// GetRawQuery issues a GET with a pre-encoded query string, for signed requests
// where parameter order matters.
func (c *HTTPClient) GetRawQuery(ctx context.Context, path, rawQuery string, headers map[string]string, out interface{}) error {
	return c.doTarget(ctx, http.MethodGet, c.baseURL+path+"?"+rawQuery, nil, headers, out)
}

func (c *HTTPClient) doTarget(ctx context.Context, method, target string, payload []byte, headers map[string]string, out interface{}) error {
	// a rejected request says nothing about upstream health
	var rejected error
	err := c.breaker.Execute(ctx, func() error {
		err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
			return c.once(ctx, method, target, payload, headers, out)
		})
		if retry.IsPermanent(err) {
			rejected = err
			return nil
		}
		return err
	})
	if rejected != nil {
		return rejected
	}
	return err
}

func (c *HTTPClient) once(ctx context.Context, method, target string, payload []byte, headers map[string]string, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(statusErr)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
