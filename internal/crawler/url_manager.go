package crawler

import (
	"errors"
	"fmt"
	"time"

	"wikiweird/internal/config"
	"wikiweird/internal/logger"
)

// URL manager errors.
var (
	ErrNoSourcesAvailable  = errors.New("no sources available")
	ErrAllSourcesExhausted = errors.New("all sources exhausted")
)

// URLManager walks the primary and backup URLs of a listing source in order.
type URLManager struct {
	attemptLog map[string][]AttemptResult
	urls       []string
	name       string
	current    int
}

// AttemptResult records the result of a URL fetch attempt.
type AttemptResult struct {
	Timestamp  time.Time
	URL        string
	Error      string
	Duration   time.Duration
	StatusCode int
	Success    bool
}

// NewURLManager creates a new URL manager for src.
func NewURLManager(src config.SourceConfig) *URLManager {
	return &URLManager{
		urls:       src.GetAllURLs(),
		name:       src.Name,
		attemptLog: make(map[string][]AttemptResult),
	}
}

// NextURL returns the next URL to try.
func (um *URLManager) NextURL() (string, error) {
	if len(um.urls) == 0 {
		return "", ErrNoSourcesAvailable
	}

	if um.current >= len(um.urls) {
		return "", fmt.Errorf("%w: %d", ErrAllSourcesExhausted, len(um.urls))
	}

	url := um.urls[um.current]
	um.current++

	return url, nil
}

// HasMore returns true if there are more URLs to try.
func (um *URLManager) HasMore() bool {
	return um.current < len(um.urls)
}

// RecordAttempt records the result of a fetch attempt.
func (um *URLManager) RecordAttempt(url string, err error, statusCode int, duration time.Duration) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	um.attemptLog[url] = append(um.attemptLog[url], AttemptResult{
		URL:        url,
		Success:    err == nil,
		Error:      errMsg,
		Timestamp:  time.Now(),
		Duration:   duration,
		StatusCode: statusCode,
	})
}

// GetAttemptLog returns the attempt log for a URL.
func (um *URLManager) GetAttemptLog(url string) []AttemptResult {
	return um.attemptLog[url]
}

// GetAttemptStats returns statistics about fetch attempts.
func (um *URLManager) GetAttemptStats() AttemptStats {
	stats := AttemptStats{TotalURLs: len(um.urls)}

	for _, results := range um.attemptLog {
		stats.TotalAttempts += len(results)

		urlSuccess := false

		for _, result := range results {
			if result.Success {
				stats.SuccessfulAttempts++
				urlSuccess = true
			}
		}

		if urlSuccess {
			stats.SuccessfulURLs++
		} else {
			stats.FailedURLs++
		}
	}

	return stats
}

// AttemptStats contains statistics about fetch attempts.
type AttemptStats struct {
	TotalURLs          int
	SuccessfulURLs     int
	FailedURLs         int
	TotalAttempts      int
	SuccessfulAttempts int
}

// String returns a string representation of attempt stats.
func (s AttemptStats) String() string {
	return fmt.Sprintf(
		"URLs: %d total, %d success, %d failed | Attempts: %d total, %d success",
		s.TotalURLs,
		s.SuccessfulURLs,
		s.FailedURLs,
		s.TotalAttempts,
		s.SuccessfulAttempts,
	)
}

// LogAttemptSummary logs a summary of fetch attempts using the provided logger.
func (um *URLManager) LogAttemptSummary(l *logger.Logger) {
	for _, url := range um.urls {
		results := um.GetAttemptLog(url)
		if len(results) == 0 {
			l.Debug("listing source not attempted", "source", um.name, "url", url)

			continue
		}

		last := results[len(results)-1]
		l.Info("listing source attempted",
			"source", um.name,
			"url", url,
			"success", last.Success,
			"status", last.StatusCode,
			"duration", last.Duration,
			"error", last.Error,
		)
	}

	l.Info("listing fetch summary", "stats", um.GetAttemptStats().String())
}
