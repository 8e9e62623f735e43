// Package crawler fetches the raw unusual-articles listing.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"wikiweird/internal/config"
	"wikiweird/pkg/utils"
)

// Scraper errors.
var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrEmptyURL             = errors.New("empty URL")
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Scraper performs HTTP GETs with config-driven retry logic.
type Scraper struct {
	client       *http.Client
	retryPolicy  *config.RetryPolicy
	headers      *utils.HTTPHelper
	sleep        SleepFunc
	bufferSizeKb int
}

// NewScraper creates a new scraper instance with default config.
func NewScraper() *Scraper {
	rp := config.Default().Retry

	return NewScraperWithConfig(&rp, "", 4096)
}

// NewScraperWithConfig creates a new scraper with custom retry policy.
func NewScraperWithConfig(retryPolicy *config.RetryPolicy, userAgent string, bufferSizeKb int) *Scraper {
	return &Scraper{
		client: &http.Client{
			Timeout: retryPolicy.GetTimeout(),
		},
		retryPolicy:  retryPolicy,
		headers:      utils.NewHTTPHelper(userAgent),
		sleep:        SleepWithContext,
		bufferSizeKb: bufferSizeKb,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (s *Scraper) WithHTTPClient(client *http.Client) *Scraper {
	s.client = client

	return s
}

// WithSleep replaces the backoff sleeper, mainly for tests.
func (s *Scraper) WithSleep(sleep SleepFunc) *Scraper {
	s.sleep = sleep

	return s
}

// FetchWithStatus returns (content, statusCode, error). Transport errors and
// retryable status codes are retried up to the policy's attempt ceiling.
func (s *Scraper) FetchWithStatus(ctx context.Context, url string) (string, int, error) {
	if url == "" {
		return "", 0, ErrEmptyURL
	}

	var lastErr error

	var lastStatusCode int

	for attempt := 1; attempt <= s.retryPolicy.MaxAttempts; attempt++ {
		if err := s.sleep(ctx, s.retryPolicy.GetRetryDelay(attempt)); err != nil {
			return "", lastStatusCode, err
		}

		body, status, err := s.fetchOnce(ctx, url)
		lastStatusCode = status

		if err == nil {
			return body, status, nil
		}

		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, s.retryPolicy.MaxAttempts, err)

		if ctx.Err() != nil {
			return "", status, ctx.Err()
		}

		if status != 0 && !isRetryableStatus(status) {
			break
		}
	}

	return "", lastStatusCode, lastErr
}

// Scrape fetches and returns content from the given URL.
func (s *Scraper) Scrape(ctx context.Context, url string) (string, error) {
	content, _, err := s.FetchWithStatus(ctx, url)

	return content, err
}

func (s *Scraper) fetchOnce(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}

	s.headers.Apply(req, nil)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	// bufferSizeKb is in KB, convert to bytes
	limit := int64(s.bufferSizeKb) * 1024

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return string(body), resp.StatusCode, nil
}

// ReadLocalFile reads content from a local file path.
func (s *Scraper) ReadLocalFile(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read local file %s: %w", filePath, err)
	}

	return string(content), nil
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, // 408
		http.StatusTooManyRequests,     // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}

	return false
}
