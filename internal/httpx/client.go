// Package httpx is a rate-limited, retrying HTTP client used for all
// facts-server traffic.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const userAgent = "PantryScan-ScanService/1.0"

// Client wraps net/http with rate limiting, bounded concurrency and
// retry with exponential backoff. Prefetch bursts from the product
// collection go through the same limiter as user-initiated fetches, so
// warming a scroll window stays polite to the server.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	inflight   *semaphore.Weighted
	config     Config
}

// NewClient creates a client with the given configuration.
func NewClient(config Config) *Client {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = DefaultConfig().TimeoutSeconds
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.RequestsPerSecond),
		inflight: semaphore.NewWeighted(int64(config.MaxConcurrent)),
		config:   config,
	}
}

// NewClientDefault creates a client with default configuration.
func NewClientDefault() *Client {
	return NewClient(DefaultConfig())
}

// Config returns the active configuration.
func (c *Client) Config() Config { return c.config }

// Get performs a GET request with rate limiting and retries. The caller
// owns the response body on success.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire request slot: %w", err)
	}
	defer c.inflight.Release(1)

	var lastStatus int
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.config.MaxRetries {
				if sleepErr := sleepCtx(ctx, CalculateBackoff(attempt, c.config)); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}
			break
		}

		lastStatus = resp.StatusCode
		lastErr = nil

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		// 404 and other client errors are final answers, not transport
		// failures; hand them back for the caller to interpret.
		if !IsRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		var backoff time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			backoff = CalculateRateLimitBackoff(attempt, c.config, resp.Header.Get("Retry-After"))
		} else {
			backoff = CalculateBackoff(attempt, c.config)
		}
		resp.Body.Close()

		if attempt < c.config.MaxRetries {
			if sleepErr := sleepCtx(ctx, backoff); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}

	return nil, &FetchRetryError{
		URL:        url,
		Attempts:   c.config.MaxRetries + 1,
		LastStatus: lastStatus,
		LastError:  lastErr,
	}
}

// GetBytes performs a GET request and returns status code and body.
func (c *Client) GetBytes(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	resp, err := c.Get(ctx, url, headers)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

// sleepCtx sleeps for the duration unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
