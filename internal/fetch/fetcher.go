// Package fetch provides the retrying HTTP client used by all source
// collectors. Transient failures (network errors, 5xx, 429) are retried with
// exponential backoff; a Retry-After header on 429 overrides the computed
// delay.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fundwatch/internal/config"
)

// ErrExhausted is returned once every retry attempt has failed. The wrapped
// error describes the last failure.
var ErrExhausted = errors.New("retries exhausted")

// Browser-like headers reduce the chance of listing pages blocking us.
var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
}

type Client struct {
	httpClient     *http.Client
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg config.FetchConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "fetch"),
	}
}

// Get fetches url, retrying transient failures. The returned error wraps
// ErrExhausted when all attempts failed.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, retryAfter, err := c.doRequest(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var pe *permanentError
		if errors.As(err, &pe) {
			return nil, pe.err
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}
		c.logger.Warn("request failed, retrying",
			"url", url,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, c.maxAttempts, lastErr)
}

// permanentError marks statuses that will not improve on retry (e.g. 404).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &permanentError{err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, 0, fmt.Errorf("read body: %w", err)
		}
		return body, 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("rate limited: status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, 0, fmt.Errorf("server error: status %d", resp.StatusCode)
	default:
		return nil, 0, &permanentError{err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
