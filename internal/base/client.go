// Package base provides shared HTTP client infrastructure for the materials database APIs.
package base

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/olgasafonova/materials-db-mcp-server/internal/errors"
	"github.com/olgasafonova/materials-db-mcp-server/internal/infra"
	"github.com/olgasafonova/materials-db-mcp-server/metrics"
	"github.com/olgasafonova/materials-db-mcp-server/tracing"
)

const (
	// DefaultTimeout for API requests
	DefaultTimeout = 30 * time.Second

	// DownloadTimeout bounds a single CIF file download
	DownloadTimeout = 30 * time.Second

	// MaxConcurrentRequests limits parallel API calls per client
	MaxConcurrentRequests = 5

	// DefaultUserAgent is sent when a request does not set its own
	DefaultUserAgent = "materials-db-mcp-server/1.0"
)

// Client provides common HTTP client infrastructure with concurrency limiting,
// circuit breaking, and request deduplication.
//
// File downloads go through FileBreaker, named "<database>.files", so a
// failing file host never opens the breaker guarding the database API.
type Client struct {
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Database       string
	Dedup          *infra.RequestDeduplicator[[]byte]
	CircuitBreaker *infra.CircuitBreaker
	FileBreaker    *infra.CircuitBreaker
	Semaphore      chan struct{}

	maxConcurrent int
	breakerOpts   []infra.CircuitBreakerOption
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.HTTPClient = c
	}
}

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.Logger = l
	}
}

// WithTimeout replaces the HTTP client with one using the given timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.HTTPClient = newHTTPClient(d)
	}
}

// WithDatabase labels metrics, spans and the circuit breaker
func WithDatabase(name string) ClientOption {
	return func(client *Client) {
		client.Database = name
	}
}

// WithMaxConcurrency overrides MaxConcurrentRequests
func WithMaxConcurrency(n int) ClientOption {
	return func(client *Client) {
		if n > 0 {
			client.maxConcurrent = n
		}
	}
}

// WithCircuitBreakerOptions passes extra options to the circuit breaker
func WithCircuitBreakerOptions(opts ...infra.CircuitBreakerOption) ClientOption {
	return func(client *Client) {
		client.breakerOpts = append(client.breakerOpts, opts...)
	}
}

// NewClient creates a new base client with default settings
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		HTTPClient:    newHTTPClient(DefaultTimeout),
		Logger:        slog.Default(),
		Database:      "upstream",
		Dedup:         infra.NewRequestDeduplicator[[]byte](),
		maxConcurrent: MaxConcurrentRequests,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.CircuitBreaker = c.newBreaker(c.Database)
	c.FileBreaker = c.newBreaker(c.Database + ".files")
	c.Semaphore = make(chan struct{}, c.maxConcurrent)

	return c
}

func (c *Client) newBreaker(name string) *infra.CircuitBreaker {
	opts := append([]infra.CircuitBreakerOption{
		infra.WithName(name),
		infra.WithStateChange(c.onCircuitChange),
	}, c.breakerOpts...)
	return infra.NewCircuitBreaker(opts...)
}

// Close drops idle upstream connections
func (c *Client) Close() {
	if c.HTTPClient != nil {
		c.HTTPClient.CloseIdleConnections()
	}
}

func (c *Client) onCircuitChange(name string, from, to infra.CircuitState) {
	metrics.SetCircuitState(name, int(to))
	c.Logger.Warn("Circuit breaker state changed",
		"database", name,
		"from", from.String(),
		"to", to.String())
}

// CircuitBreakerStats returns the current circuit breaker state
func (c *Client) CircuitBreakerStats() infra.CircuitBreakerStats {
	return c.CircuitBreaker.Stats()
}

// DedupStats returns the number of in-flight deduplicated requests
func (c *Client) DedupStats() int {
	return c.Dedup.Stats()
}

// AcquireSlot blocks until a request slot is available or context is canceled
func (c *Client) AcquireSlot(ctx context.Context) error {
	select {
	case c.Semaphore <- struct{}{}:
		return nil
	default:
	}

	metrics.RateLimitWaits.Inc()
	select {
	case c.Semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context canceled while waiting for rate limiter: %w", ctx.Err())
	}
}

// ReleaseSlot releases a request slot
func (c *Client) ReleaseSlot() {
	<-c.Semaphore
}

// CheckCircuitBreaker returns nil if requests are allowed, or an error if the circuit is open
func (c *Client) CheckCircuitBreaker() error {
	return checkBreaker(c.CircuitBreaker)
}

func checkBreaker(cb *infra.CircuitBreaker) error {
	if !cb.Allow() {
		stats := cb.Stats()
		return &infra.ErrCircuitOpen{
			Name:     cb.Name(),
			State:    stats.State,
			RetryAt:  stats.LastFailure.Add(cb.ResetTimeout()),
			Failures: stats.ConsecutiveFails,
		}
	}
	return nil
}

// RequestConfig configures a single HTTP request
type RequestConfig struct {
	Method    string // defaults to GET
	URL       string
	Body      []byte
	Headers   map[string]string
	UserAgent string
	Action    string // metric and span label, e.g. "crystal_list"
	MaxRetry  int    // defaults to 3
}

// DoRequest performs an HTTP request with circuit breaker, rate limiting, and retries.
// Returns the response body and status on success. The caller handles response parsing
// and reports the outcome through RecordSuccess or RecordFailure.
func (c *Client) DoRequest(ctx context.Context, cfg RequestConfig) ([]byte, int, error) {
	return c.do(ctx, cfg, c.CircuitBreaker)
}

func (c *Client) do(ctx context.Context, cfg RequestConfig, cb *infra.CircuitBreaker) ([]byte, int, error) {
	ctx, span := tracing.StartSpan(ctx, "upstream."+c.Database)
	defer span.End()

	start := time.Now()
	body, status, err := c.doRequest(ctx, cfg, cb)
	duration := time.Since(start).Seconds()
	tracing.AddUpstreamAttributes(span, c.Database, cfg.Action, status)

	errorCode := ""
	switch {
	case err != nil:
		errorCode = "transport"
		tracing.RecordError(span, err)
	case status >= 400:
		errorCode = strconv.Itoa(status)
	}
	metrics.RecordAPICall(c.Database, cfg.Action, duration, errorCode == "", errorCode)

	return body, status, err
}

func (c *Client) doRequest(ctx context.Context, cfg RequestConfig, cb *infra.CircuitBreaker) ([]byte, int, error) {
	if err := checkBreaker(cb); err != nil {
		return nil, 0, err
	}

	if err := c.AcquireSlot(ctx); err != nil {
		return nil, 0, err
	}
	defer c.ReleaseSlot()

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetry; attempt++ {
		if attempt > 0 {
			metrics.DatabaseAPIRetries.WithLabelValues(c.Database, cfg.Action).Inc()
			backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, 0, fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			}
		}

		// A request body can only be read once, so rebuild per attempt
		var reqBody io.Reader
		if cfg.Body != nil {
			reqBody = bytes.NewReader(cfg.Body)
		}
		req, err := http.NewRequestWithContext(ctx, method, cfg.URL, reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, fmt.Errorf("request canceled: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			c.Logger.Warn("API request failed, retrying",
				"database", c.Database,
				"attempt", attempt+1,
				"url", cfg.URL,
				"error", err)
			continue
		}

		body, err := readAndClose(resp)
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, parseErr := strconv.Atoi(retryAfter); parseErr == nil {
					select {
					case <-time.After(time.Duration(seconds) * time.Second):
					case <-ctx.Done():
						return nil, 0, ctx.Err()
					}
					continue
				}
			}
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = apierrors.NewAPIError(c.Database, resp.StatusCode, truncate(string(body), 200))
			continue
		}

		return body, resp.StatusCode, nil
	}

	cb.RecordFailure()
	return nil, 0, lastErr
}

// DoJSON performs the request and decodes a 2xx JSON body into result.
// 4xx answers become an APIError and do not count against the circuit breaker.
func (c *Client) DoJSON(ctx context.Context, cfg RequestConfig, result any) error {
	body, status, err := c.DoRequest(ctx, cfg)
	if err != nil {
		return err
	}

	if status >= 400 {
		c.RecordSuccess()
		return apierrors.NewAPIError(c.Database, status, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, result); err != nil {
		c.RecordFailure()
		return fmt.Errorf("failed to parse %s response: %w", c.Database, err)
	}

	c.RecordSuccess()
	return nil
}

// Download fetches a file from a URL referenced by an upstream record.
// Concurrent downloads of the same URL share one request.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	data, _, err := c.Dedup.Do(ctx, "download:"+fileURL, func() ([]byte, error) {
		dctx, cancel := context.WithTimeout(ctx, DownloadTimeout)
		defer cancel()

		body, status, err := c.do(dctx, RequestConfig{
			URL:      fileURL,
			Action:   "download",
			MaxRetry: 1,
		}, c.FileBreaker)
		if err != nil {
			return nil, err
		}
		c.FileBreaker.RecordSuccess()
		if status >= 400 {
			return nil, apierrors.NewAPIError(c.Database, status, "download failed")
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.CIFDownloadBytes.Observe(float64(len(data)))
	return data, nil
}

// RecordSuccess records a successful request with the circuit breaker
func (c *Client) RecordSuccess() {
	c.CircuitBreaker.RecordSuccess()
}

// RecordFailure records a failed request with the circuit breaker
func (c *Client) RecordFailure() {
	c.CircuitBreaker.RecordFailure()
}

// readAndClose reads the response body and closes it
func readAndClose(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return body, err
}

// truncate shortens a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// newHTTPClient creates an HTTP client with optimized transport settings
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       120 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
