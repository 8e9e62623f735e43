package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"wikiweird/internal/config"
)

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func testScraper(maxAttempts int) *Scraper {
	rp := &config.RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialDelayMs:    10,
		MaxDelayMs:        100,
		BackoffMultiplier: 2.0,
		TimeoutSec:        5,
	}

	return NewScraperWithConfig(rp, "wikiweird-test/1.0", 64).WithSleep(noSleep)
}

func TestScraper_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "wikiweird-test/1.0" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_, _ = w.Write([]byte("listing"))
	}))
	defer server.Close()

	body, status, err := testScraper(3).FetchWithStatus(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchWithStatus failed: %v", err)
	}

	if body != "listing" || status != http.StatusOK {
		t.Errorf("got (%q, %d), want (\"listing\", 200)", body, status)
	}

	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestScraper_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, status, err := testScraper(4).FetchWithStatus(context.Background(), server.URL)
	if !errors.Is(err, ErrUnexpectedStatusCode) {
		t.Fatalf("expected ErrUnexpectedStatusCode, got %v", err)
	}

	if status != http.StatusForbidden || calls.Load() != 1 {
		t.Errorf("status=%d calls=%d, want 403 and 1 call", status, calls.Load())
	}
}

func TestScraper_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := testScraper(2).Scrape(context.Background(), server.URL); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}

	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestScraper_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testScraper(3).Scrape(ctx, "http://127.0.0.1:1/never")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScraper_EmptyURL(t *testing.T) {
	if _, err := testScraper(1).Scrape(context.Background(), ""); !errors.Is(err, ErrEmptyURL) {
		t.Fatalf("expected ErrEmptyURL, got %v", err)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		code     int
		expected bool
	}{
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		if got := isRetryableStatus(tt.code); got != tt.expected {
			t.Errorf("isRetryableStatus(%d) = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestSleepWithContext(t *testing.T) {
	if err := SleepWithContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := SleepWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
