package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"stockpile/internal/logging"
)

const (
	defaultHTTPTimeout    = 20 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	maxBackoff            = 10 * time.Second
	maxBodySize           = 8 << 20
)

// ErrNotFound is returned for 404 responses. Providers map it to no match.
var ErrNotFound = errors.New("not found")

// RetryableError wraps a transient failure: a network error, 429 or 5xx.
type RetryableError struct {
	StatusCode int
	Err        error
}

func (e *RetryableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient http %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// StatusError is a non-retryable HTTP failure.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// HTTPOptions configures the shared client.
type HTTPOptions struct {
	UserAgent      string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	Cache          *ResponseCache
	Transport      http.RoundTripper
	Logger         *slog.Logger
}

// HTTPClient is the one HTTP client shared by every network provider.
type HTTPClient struct {
	http           *http.Client
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	cache          *ResponseCache
	logger         *slog.Logger
}

// NewHTTPClient builds the shared client.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}
	return &HTTPClient{
		http:           &http.Client{Timeout: timeout, Transport: opts.Transport},
		userAgent:      strings.TrimSpace(opts.UserAgent),
		maxAttempts:    attempts,
		initialBackoff: backoff,
		cache:          opts.Cache,
		logger:         logging.NewComponentLogger(opts.Logger, "providers.http"),
	}
}

// Request describes one call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// Cacheable requests are served from and stored in the response cache.
	Cacheable bool
}

// Do executes req with retries and returns the response body. A 404 yields
// ErrNotFound; other 4xx responses a *StatusError.
func (c *HTTPClient) Do(ctx context.Context, req Request) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var key string
	if req.Cacheable && c.cache != nil {
		key = c.cache.Key(method, req.URL, req.Body)
		if body, ok := c.cache.Load(key); ok {
			return body, nil
		}
	}

	var lastErr error
	backoff := c.initialBackoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.once(ctx, method, req)
		if err == nil {
			if key != "" {
				if err := c.cache.Store(key, body); err != nil {
					c.logger.Debug("response cache store failed", logging.Error(err))
				}
			}
			return body, nil
		}
		var retryable *RetryableError
		if !errors.As(err, &retryable) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		c.logger.Debug("retrying request",
			logging.String("url", req.URL),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", backoff),
			logging.Error(err),
		)
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, err
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil, lastErr
}

func (c *HTTPClient) once(ctx context.Context, method string, req Request) ([]byte, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if c.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &RetryableError{Err: err}
		}
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &RetryableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &RetryableError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	case resp.StatusCode >= 400:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(data)}
	}
	return data, nil
}

// GetJSON fetches url and decodes the JSON body into out. It reports false
// without error on 404.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, header http.Header, out any) (bool, error) {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, URL: url, Header: header, Cacheable: true}, out)
}

// DoJSON runs req and decodes the JSON body into out.
func (c *HTTPClient) DoJSON(ctx context.Context, req Request, out any) (bool, error) {
	body, err := c.Do(ctx, req)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 256 {
		text = text[:256] + "..."
	}
	return text
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
