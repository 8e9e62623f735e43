// Package normalizer joins resolved entries with enrichment results into
// deduplicated, validated articles.
package normalizer

import (
	"sort"

	"wikiweird/internal/logger"
	"wikiweird/internal/models"
)

// Result is the outcome of one Process call.
type Result struct {
	Articles   []models.Article
	Defects    []*ValidationDefect
	Duplicates int
}

// Processor runs transform, dedup and validation.
type Processor struct {
	validator   *Validator
	transformer *Transformer
	logger      *logger.Logger
}

// NewProcessor creates a new processor instance.
func NewProcessor(wikiBaseURL string, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}

	return &Processor{
		validator:   NewValidator(),
		transformer: NewTransformer(wikiBaseURL),
		logger:      log.Component("normalizer"),
	}
}

// Process joins each entry with the enrichment result for its listing title
// and returns the articles in first-appearance order.
func (p *Processor) Process(entries []ResolvedEntry, enrichment map[string]models.EnrichmentResult) *Result {
	ordered := make([]ResolvedEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Entry.Order < ordered[j].Entry.Order
	})

	dedup := NewDeduplicator()

	for _, re := range ordered {
		enr, found := enrichment[re.Entry.Title]
		dedup.Add(p.transformer.Transform(re, enr, found))
	}

	result := &Result{Duplicates: dedup.Duplicates()}
	ids := make(map[string]bool)

	for _, c := range dedup.Candidates() {
		err := p.validator.Validate(c.Article)
		if err == nil && ids[c.Article.ID] {
			err = ErrDuplicateID
		}

		if err != nil {
			defect := &ValidationDefect{Err: err, ID: c.Article.ID, Title: c.Article.Title, Anchor: c.Anchor}
			result.Defects = append(result.Defects, defect)
			p.logger.Warn("dropping invalid article", "title", defect.Title, "anchor", defect.Anchor, "reason", err)

			continue
		}

		ids[c.Article.ID] = true
		result.Articles = append(result.Articles, c.Article)
	}

	if result.Duplicates > 0 {
		p.logger.Info("collapsed duplicate titles", "duplicates", result.Duplicates)
	}

	return result
}
