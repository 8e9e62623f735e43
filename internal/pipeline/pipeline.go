// Package pipeline runs fetch, extract, resolve, enrich, normalize and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wikiweird/internal/config"
	"wikiweird/internal/crawler"
	"wikiweird/internal/dataset"
	"wikiweird/internal/enricher"
	"wikiweird/internal/extractor"
	"wikiweird/internal/logger"
	"wikiweird/internal/models"
	"wikiweird/internal/normalizer"
	"wikiweird/internal/resolver"
	"wikiweird/pkg/metadata"
)

const scraperBufferKb = 4096

// ListingFetcher returns the raw listing for a source.
type ListingFetcher interface {
	FetchListing(ctx context.Context, src config.SourceConfig) (*crawler.Listing, error)
}

// CategoryFetcher lists the categories of an article.
type CategoryFetcher interface {
	FetchCategories(ctx context.Context, apiURL, title string) ([]string, error)
}

// Weights of the text used to place entries whose listed location did not
// resolve. Categories are the most specific signal.
const (
	weightTitle       = 15
	weightDescription = 10
	weightExtract     = 5
	weightCategory    = 20
)

// Pipeline wires every stage of one run.
type Pipeline struct {
	cfg        *config.Config
	fetcher    ListingFetcher
	categories CategoryFetcher
	resolver   *resolver.Resolver
	enricher   *enricher.Enricher
	processor  *normalizer.Processor
	writer     *dataset.Writer
	logger     *logger.Logger
	now        func() time.Time
	closers    []func() error
}

type options struct {
	fetcher     ListingFetcher
	categories  CategoryFetcher
	lookup      enricher.Lookuper
	cache       enricher.Cache
	logger      *logger.Logger
	now         func() time.Time
	enrichOpts  []enricher.Option
	resolverTab *resolver.Table
}

// Option configures a Pipeline.
type Option func(*options)

// WithFetcher replaces the HTTP listing fetcher.
func WithFetcher(f ListingFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithCategoryFetcher replaces the category lookup used for unplaced entries.
func WithCategoryFetcher(f CategoryFetcher) Option {
	return func(o *options) { o.categories = f }
}

// WithLookuper replaces the REST summary client.
func WithLookuper(l enricher.Lookuper) Option {
	return func(o *options) { o.lookup = l }
}

// WithCache supplies the enrichment cache instead of building one from config.
func WithCache(c enricher.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEnricherOptions passes extra options to the enricher.
func WithEnricherOptions(opts ...enricher.Option) Option {
	return func(o *options) { o.enrichOpts = append(o.enrichOpts, opts...) }
}

// WithResolverTable replaces the embedded country table.
func WithResolverTable(t *resolver.Table) Option {
	return func(o *options) { o.resolverTab = t }
}

// New builds a pipeline from cfg. Call Close when done.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logger.NewNop()
	}

	p := &Pipeline{
		cfg:        cfg,
		fetcher:    o.fetcher,
		categories: o.categories,
		processor:  normalizer.NewProcessor(cfg.Enrichment.WikiBaseURL, o.logger),
		writer:     dataset.NewWriter(cfg.Output, o.logger),
		logger:     o.logger.Component("pipeline"),
		now:        o.now,
	}

	var err error
	if o.resolverTab != nil {
		p.resolver, err = resolver.NewWithTable(o.resolverTab)
	} else {
		p.resolver, err = resolver.New()
	}

	if err != nil {
		return nil, fmt.Errorf("load country table: %w", err)
	}

	if p.fetcher == nil {
		scraper := crawler.NewScraperWithConfig(&cfg.Retry, cfg.Enrichment.UserAgent, scraperBufferKb)
		p.fetcher = crawler.NewClientWithDeps(scraper, o.logger)
	}

	if p.categories == nil {
		if cf, ok := p.fetcher.(CategoryFetcher); ok {
			p.categories = cf
		}
	}

	lookup := o.lookup
	if lookup == nil {
		lookup = enricher.NewClient(cfg.Enrichment.BaseURL, cfg.Enrichment.UserAgent, cfg.Retry.GetTimeout())
	}

	cache := o.cache
	if cache == nil {
		cache, err = p.openCache()
		if err != nil {
			return nil, err
		}
	}

	p.enricher = enricher.NewFromConfig(cfg, lookup, cache, o.logger)
	for _, opt := range o.enrichOpts {
		opt(p.enricher)
	}

	p.logger.Debug("pipeline ready", "config", cfg.String(), "country_table", p.resolver.Version())

	return p, nil
}

func (p *Pipeline) openCache() (enricher.Cache, error) {
	if p.cfg.Enrichment.CacheBackend != config.CacheSQLite {
		return enricher.NewMemoryCache(), nil
	}

	c, err := enricher.OpenSQLiteCache(p.cfg.Enrichment.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open enrichment cache: %w", err)
	}

	p.closers = append(p.closers, c.Close)

	return c, nil
}

// Close releases the resources New opened.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}

	p.closers = nil

	return errors.Join(errs...)
}

// Run executes one pipeline run. Per-entry problems are counted in the
// Summary; only a listing that cannot be fetched or extracted, a
// cancellation, or a failed publish returns an error, and in those cases the
// previous dataset stays current.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID)

	s := newSummary(runID, p.now())
	before := p.enricher.Stats()
	log.Info("run started", "source", p.cfg.Source.GetSource(), "country_table", p.resolver.Version())

	listing, err := p.fetcher.FetchListing(ctx, p.cfg.Source)
	if err != nil {
		return s, fmt.Errorf("fetch listing: %w", err)
	}

	s.SourceVersion = metadata.SourceVersion(listing.Raw)

	resolved, titles, err := p.extractAndResolve(listing, s, log)
	if err != nil {
		return s, err
	}

	results, err := p.enricher.EnrichAll(ctx, titles)
	p.recordEnrichment(s, results, before)

	if err != nil {
		log.Warn("run cancelled during enrichment; nothing published", "enriched", len(results))

		return s, err
	}

	p.placeFromContext(ctx, resolved, results, s, log)

	processed := p.processor.Process(resolved, results)
	s.Duplicates = processed.Duplicates
	s.Defects = processed.Defects

	for _, a := range processed.Articles {
		s.Regions[a.Region]++
		s.Statuses[a.Status]++
	}

	s.Articles = len(processed.Articles)

	if err := ctx.Err(); err != nil {
		return s, err
	}

	snap := &models.Snapshot{
		GeneratedAt:   p.now().UTC().Truncate(time.Second),
		SourceVersion: s.SourceVersion,
		Articles:      processed.Articles,
	}

	published, err := p.writer.Publish(ctx, snap)
	if err != nil {
		log.Error("publish failed; previous dataset kept", "error", err)

		return s, err
	}

	s.Published = published
	s.FinishedAt = p.now()

	log.Info("run finished",
		"entries", s.Entries,
		"articles", s.Articles,
		"identification_rate", fmt.Sprintf("%.1f%%", s.IdentificationRate()*100),
		"cache_hits", s.CacheHits,
		"network_calls", s.NetworkCalls,
		"duplicates", s.Duplicates,
		"defects", len(s.Defects),
	)

	return s, nil
}

func (p *Pipeline) extractAndResolve(listing *crawler.Listing, s *Summary, log *logger.Logger) ([]normalizer.ResolvedEntry, []string, error) {
	format := listing.Format
	if format == "" {
		format = p.cfg.Source.Format
	}

	ext := extractor.New(
		extractor.WithFormat(format),
		extractor.WithSplitter(p.resolver.Split),
		extractor.WithMaxEntriesPerSection(p.cfg.Source.MaxEntriesPerSection),
		extractor.WithOrigin(listing.Origin),
		extractor.WithLogger(log),
	)

	seq, err := ext.Extract(listing.Raw)
	if err != nil {
		return nil, nil, err
	}

	var (
		resolved []normalizer.ResolvedEntry
		titles   []string
	)

	for entry := range seq.All() {
		res, err := p.resolver.ResolveEntry(entry)
		if err != nil {
			s.ResolutionDefects++
			log.Warn("location unresolved", "title", entry.Title, "anchor", entry.SourceAnchor, "reason", err)
		}

		if len(res.Candidates) > 1 {
			s.Ambiguous++
			log.Info("ambiguous location", "title", entry.Title, "raw", entry.RawLocation,
				"chosen", models.Deref(res.Country), "candidates", res.Candidates)
		}

		s.Resolution[res.Confidence]++
		resolved = append(resolved, normalizer.ResolvedEntry{Entry: entry, Resolution: res})
		titles = append(titles, entry.Title)
	}

	stats := seq.Stats()
	s.Rows = stats.Rows
	s.Skipped = stats.Skipped
	s.Limited = stats.Limited
	s.Entries = len(resolved)

	if len(resolved) == 0 {
		return nil, nil, &extractor.ExtractionError{Err: extractor.ErrNoEntries, Origin: listing.Origin}
	}

	return resolved, titles, nil
}

// placeFromContext retries entries that stayed Unresolved using what the
// knowledge base says about the article: its title, description, extract and
// categories. Only countries in the region of the entry's listing section
// count, so "Georgia" under North America is not the country Georgia.
func (p *Pipeline) placeFromContext(ctx context.Context, resolved []normalizer.ResolvedEntry,
	results map[string]models.EnrichmentResult, s *Summary, log *logger.Logger,
) {
	fetched := make(map[string][]string)

	for i := range resolved {
		re := &resolved[i]
		if re.Resolution.Confidence != models.ConfidenceUnresolved {
			continue
		}

		enr, ok := results[re.Entry.Title]
		if !ok || enr.Status != models.StatusOk {
			continue
		}

		evidence := []resolver.Evidence{
			{Text: enr.CanonicalTitle, Weight: weightTitle},
			{Text: models.Deref(enr.Description), Weight: weightDescription},
			{Text: enr.Extract, Weight: weightExtract},
		}

		for _, c := range p.categoriesOf(ctx, enr.CanonicalTitle, fetched, log) {
			evidence = append(evidence, resolver.Evidence{Text: c, Weight: weightCategory})
		}

		region, _ := p.resolver.RegionOf(re.Entry.Section)

		res := p.resolver.ResolveContext(region, evidence...)
		if res.Country == nil {
			continue
		}

		re.Resolution = res
		s.Resolution[models.ConfidenceUnresolved]--
		s.Resolution[res.Confidence]++
		s.ResolutionDefects--
		s.ContextResolved++

		if len(res.Candidates) > 1 {
			s.Ambiguous++
		}

		log.Info("location placed from article context", "title", re.Entry.Title, "section", re.Entry.Section,
			"country", *res.Country, "candidates", res.Candidates)
	}
}

// categoriesOf fetches categories once per title. Lookup failures only cost
// the entry its strongest evidence.
func (p *Pipeline) categoriesOf(ctx context.Context, title string, fetched map[string][]string, log *logger.Logger) []string {
	if p.categories == nil || !p.cfg.Enrichment.CategoryLookup || p.cfg.Source.APIURL == "" || ctx.Err() != nil {
		return nil
	}

	if cats, ok := fetched[title]; ok {
		return cats
	}

	cats, err := p.categories.FetchCategories(ctx, p.cfg.Source.APIURL, title)
	if err != nil {
		log.Debug("category lookup failed", "title", title, "error", err)
	}

	fetched[title] = cats

	return cats
}

// recordEnrichment counts this run's share of the enricher's cumulative stats.
func (p *Pipeline) recordEnrichment(s *Summary, results map[string]models.EnrichmentResult, before enricher.Stats) {
	for _, r := range results {
		s.Enrichment[r.Status]++
	}

	after := p.enricher.Stats()
	s.CacheHits = after.CacheHits - before.CacheHits
	s.NetworkCalls = after.NetworkCalls - before.NetworkCalls
	s.Retries = after.Retries - before.Retries
}
