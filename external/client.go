// Copyright (c) 2024 The Bioarchive Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/StalkR/hsts"
	"github.com/sony/gobreaker"
)

// A uniform client skeleton shared by all external registration services:
// base URL, optional basic auth, default headers, a per-attempt timeout,
// exponential-back-off retries and a circuit breaker. Connection errors and
// HTTP 5xx are retried; 4xx are not.

// retry defaults
const (
	defaultDelay       = 500 * time.Millisecond
	defaultFactor      = 2
	defaultMaxAttempts = 4
	defaultTimeout     = 10 * time.Second
)

type basicAuth struct {
	user, password string
}

// A Client issues requests against one external service.
type Client struct {
	name        string
	baseURL     string
	auth        *basicAuth
	headers     map[string]string
	timeout     time.Duration
	delay       time.Duration
	factor      int
	maxAttempts int
	healthPath  string
	breaker     *gobreaker.CircuitBreaker
	httpClient  http.Client
}

// an option mutating a client under construction
type Option func(*Client)

func WithBasicAuth(user, password string) Option {
	return func(c *Client) { c.auth = &basicAuth{user: user, password: password} }
}

func WithHeader(name, value string) Option {
	return func(c *Client) { c.headers[name] = value }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

func WithRetry(delay time.Duration, factor, maxAttempts int) Option {
	return func(c *Client) {
		c.delay = delay
		c.factor = factor
		c.maxAttempts = maxAttempts
	}
}

func WithHealthPath(path string) Option {
	return func(c *Client) { c.healthPath = path }
}

// creates a client for the named service rooted at the given base URL
func NewClient(name, baseURL string, options ...Option) *Client {
	client := &Client{
		name:        name,
		baseURL:     baseURL,
		headers:     map[string]string{"Accept": "application/json"},
		timeout:     defaultTimeout,
		delay:       defaultDelay,
		factor:      defaultFactor,
		maxAttempts: defaultMaxAttempts,
		healthPath:  "/health",
		httpClient:  secureHttpClient(),
	}
	for _, option := range options {
		option(client)
	}
	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
	})
	return client
}

// an HTTP client with HTTP Strict Transport Security enabled
func secureHttpClient() http.Client {
	client := http.Client{}
	client.Transport = hsts.New(client.Transport)
	return client
}

// the name of the service this client talks to
func (c *Client) ServiceName() string {
	return c.name
}

// Issues a request with the client's retry envelope. A non-nil body is sent
// as JSON; a 2xx response body is decoded into out when out is non-nil.
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.requestWithRetry(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return UnavailableError{Service: c.name}
	}
	return err
}

func (c *Client) requestWithRetry(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	delay := c.delay
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		retryable, err := c.requestOnce(ctx, method, path, payload, out)
		if err == nil || !retryable {
			return err
		}
		lastErr = err
		if attempt < c.maxAttempts {
			slog.Debug(fmt.Sprintf("Retrying %s %s on %s in %s (attempt %d/%d)",
				method, path, c.name, delay, attempt, c.maxAttempts))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return TimeoutError{Service: c.name}
			}
			delay *= time.Duration(c.factor)
		}
	}
	return lastErr
}

// issues a single attempt, reporting whether a failure is retryable
func (c *Client) requestOnce(ctx context.Context, method, path string,
	payload []byte, out any) (bool, error) {

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return false, err
	}
	for name, value := range c.headers {
		request.Header.Set(name, value)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		request.SetBasicAuth(c.auth.user, c.auth.password)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		if attemptCtx.Err() != nil || ctx.Err() != nil {
			// a parent-context cancellation is final; a per-attempt timeout
			// gets another try
			if ctx.Err() != nil {
				return false, TimeoutError{Service: c.name}
			}
			return true, TimeoutError{Service: c.name}
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return true, ServerError{Service: c.name, Message: urlErr.Err.Error()}
		}
		return true, ServerError{Service: c.name, Message: err.Error()}
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return true, ServerError{Service: c.name, Message: err.Error()}
	}

	switch {
	case response.StatusCode >= 500:
		return true, ServerError{
			Service: c.name,
			Status:  response.StatusCode,
			Message: truncate(string(data)),
		}
	case response.StatusCode >= 400:
		return false, ClientError{
			Service: c.name,
			Status:  response.StatusCode,
			Message: truncate(string(data)),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return false, ServerError{
				Service: c.name,
				Message: fmt.Sprintf("malformed response: %s", err.Error()),
			}
		}
	}
	return false, nil
}

// keeps upstream error bodies log-sized
func truncate(message string) string {
	const limit = 512
	if len(message) > limit {
		return message[:limit] + "..."
	}
	return message
}

// verifies that the service answers its health endpoint
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Request(ctx, http.MethodGet, c.healthPath, nil, nil)
}
