// Package enricher attaches wiki summary metadata to article titles.
package enricher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"wikiweird/internal/config"
	"wikiweird/internal/crawler"
	"wikiweird/internal/logger"
	"wikiweird/internal/models"
)

// Stats counts the work done by an Enricher.
type Stats struct {
	Titles       int
	CacheHits    int
	NetworkCalls int
	Retries      int
}

// Enricher looks up titles through a bounded, rate-limited worker pool.
type Enricher struct {
	lookup      Lookuper
	cache       Cache
	limiter     *rate.Limiter
	logger      *logger.Logger
	retry       config.RetryPolicy
	sleep       crawler.SleepFunc
	now         func() time.Time
	ttl         time.Duration
	concurrency int
	batchSize   int

	titles       atomic.Int64
	cacheHits    atomic.Int64
	networkCalls atomic.Int64
	retries      atomic.Int64
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithRetryPolicy sets the attempt ceiling and backoff.
func WithRetryPolicy(rp config.RetryPolicy) Option {
	return func(e *Enricher) { e.retry = rp }
}

// WithConcurrency bounds the number of in-flight lookups.
func WithConcurrency(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithBatchSize sets how many titles run between cancellation checks.
func WithBatchSize(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithRate paces lookups to rps requests per second; 0 disables pacing.
func WithRate(rps float64) Option {
	return func(e *Enricher) {
		if rps <= 0 {
			e.limiter = rate.NewLimiter(rate.Inf, 1)

			return
		}

		e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTTL sets the cache freshness window; 0 keeps entries forever.
func WithTTL(ttl time.Duration) Option {
	return func(e *Enricher) { e.ttl = ttl }
}

// WithSleep replaces the backoff sleeper.
func WithSleep(sleep crawler.SleepFunc) Option {
	return func(e *Enricher) { e.sleep = sleep }
}

// WithClock replaces time.Now for freshness checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l.Component("enricher")
		}
	}
}

// New creates an Enricher. A nil cache gets a fresh MemoryCache.
func New(lookup Lookuper, cache Cache, opts ...Option) *Enricher {
	if cache == nil {
		cache = NewMemoryCache()
	}

	e := &Enricher{
		lookup:      lookup,
		cache:       cache,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		logger:      logger.NewNop(),
		retry:       config.Default().Retry,
		sleep:       crawler.SleepWithContext,
		now:         time.Now,
		concurrency: 4,
		batchSize:   50,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NewFromConfig wires an Enricher from the enrichment and retry sections.
func NewFromConfig(cfg *config.Config, lookup Lookuper, cache Cache, log *logger.Logger) *Enricher {
	return New(lookup, cache,
		WithRetryPolicy(cfg.Retry),
		WithConcurrency(cfg.Enrichment.Concurrency),
		WithBatchSize(cfg.Enrichment.BatchSize),
		WithRate(cfg.Enrichment.RequestsPerSecond),
		WithTTL(cfg.Enrichment.CacheTTL()),
		WithLogger(log),
	)
}

// Stats returns the counters accumulated so far.
func (e *Enricher) Stats() Stats {
	return Stats{
		Titles:       int(e.titles.Load()),
		CacheHits:    int(e.cacheHits.Load()),
		NetworkCalls: int(e.networkCalls.Load()),
		Retries:      int(e.retries.Load()),
	}
}

// EnrichAll returns one result per distinct title. Cancellation is checked
// between batches; results gathered before it are returned with the error.
func (e *Enricher) EnrichAll(ctx context.Context, titles []string) (map[string]models.EnrichmentResult, error) {
	unique := make([]string, 0, len(titles))
	seen := make(map[string]bool, len(titles))

	for _, t := range titles {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}

	results := make(map[string]models.EnrichmentResult, len(unique))

	for start := 0; start < len(unique); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("enrichment cancelled", "done", len(results), "remaining", len(unique)-start)

			return results, err
		}

		end := min(start+e.batchSize, len(unique))
		e.runBatch(ctx, unique[start:end], results)

		e.logger.Debug("enrichment progress", "done", end, "total", len(unique))
	}

	return results, nil
}

func (e *Enricher) runBatch(ctx context.Context, batch []string, results map[string]models.EnrichmentResult) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, e.concurrency)
	)

	for _, title := range batch {
		wg.Add(1)

		go func(title string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			r := e.Enrich(ctx, title)

			mu.Lock()
			defer mu.Unlock()

			results[title] = r
		}(title)
	}

	wg.Wait()
}

// Enrich resolves one title. It never fails: problems become a result status.
func (e *Enricher) Enrich(ctx context.Context, title string) models.EnrichmentResult {
	e.titles.Add(1)

	if cached, ok := e.cached(ctx, title); ok {
		e.cacheHits.Add(1)

		return cached
	}

	var lastErr error

	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			e.retries.Add(1)

			delay := e.retry.GetRetryDelay(attempt)

			var te *TransientError
			if errors.As(lastErr, &te) && te.RetryAfter > delay {
				delay = te.RetryAfter
			}

			// A server-requested wait is capped like any other backoff.
			if ceiling := time.Duration(e.retry.MaxDelayMs) * time.Millisecond; ceiling > 0 && delay > ceiling {
				delay = ceiling
			}

			if err := e.sleep(ctx, delay); err != nil {
				return e.failed(title, err)
			}
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return e.failed(title, err)
		}

		e.networkCalls.Add(1)

		summary, err := e.lookup.Lookup(ctx, title)

		switch {
		case err == nil:
			return e.store(ctx, e.fromSummary(title, summary))
		case errors.Is(err, ErrNotFound):
			return e.store(ctx, models.EnrichmentResult{
				FetchedAt:      e.now().UTC(),
				Title:          title,
				CanonicalTitle: title,
				Status:         models.StatusNotFound,
			})
		case IsTransient(err) && ctx.Err() == nil:
			lastErr = err
			e.logger.Debug("transient lookup failure", "title", title, "attempt", attempt, "error", err)
		default:
			return e.failed(title, err)
		}
	}

	return e.failed(title, fmt.Errorf("gave up after %d attempts: %w", e.retry.MaxAttempts, lastErr))
}

func (e *Enricher) cached(ctx context.Context, title string) (models.EnrichmentResult, bool) {
	r, ok, err := e.cache.Get(ctx, title)
	if err != nil {
		e.logger.Warn("cache read failed", "title", title, "error", err)

		return models.EnrichmentResult{}, false
	}

	if !ok || r.Status == models.StatusError {
		return models.EnrichmentResult{}, false
	}

	if e.ttl > 0 && e.now().Sub(r.FetchedAt) >= e.ttl {
		return models.EnrichmentResult{}, false
	}

	return r, true
}

func (e *Enricher) store(ctx context.Context, r models.EnrichmentResult) models.EnrichmentResult {
	if err := e.cache.Put(ctx, r); err != nil {
		e.logger.Warn("cache write failed", "title", r.Title, "error", err)
	}

	return r
}

// failed builds an Error result. Errors are never cached so the next run retries.
func (e *Enricher) failed(title string, err error) models.EnrichmentResult {
	e.logger.Warn("enrichment failed", "title", title, "reason", err)

	return models.EnrichmentResult{
		FetchedAt:      e.now().UTC(),
		Title:          title,
		CanonicalTitle: title,
		Status:         models.StatusError,
		Reason:         err.Error(),
	}
}

func (e *Enricher) fromSummary(title string, s *Summary) models.EnrichmentResult {
	r := models.EnrichmentResult{
		FetchedAt:      e.now().UTC(),
		Title:          title,
		CanonicalTitle: s.CanonicalTitle(),
		URL:            s.ContentURLs.Desktop.Page,
		RedirectedFrom: s.RedirectedFrom,
		Status:         models.StatusOk,
	}

	if r.CanonicalTitle == "" {
		r.CanonicalTitle = title
	}

	if s.IsDisambiguation() {
		r.Status = models.StatusAmbiguous

		return r
	}

	r.Description = models.StringPtr(s.Text())
	r.Extract = s.Extract
	r.ThumbnailURL = models.StringPtr(s.ThumbnailURL())

	return r
}
