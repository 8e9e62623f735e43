package pipeline

import (
	"time"

	"wikiweird/internal/dataset"
	"wikiweird/internal/models"
	"wikiweird/internal/normalizer"
)

// Summary aggregates the per-entry outcomes of one run.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Published  *dataset.PublishResult

	Resolution map[models.Confidence]int
	// Enrichment counts distinct titles by lookup status.
	Enrichment map[models.Status]int
	// Statuses counts published articles by status.
	Statuses map[models.Status]int
	Regions  map[models.Region]int
	Defects  []*normalizer.ValidationDefect

	RunID         string
	SourceVersion string

	Rows              int
	Entries           int
	Skipped           int
	Limited           int
	Ambiguous         int
	ResolutionDefects int
	// ContextResolved counts entries placed from article text or categories.
	ContextResolved int
	CacheHits       int
	NetworkCalls    int
	Retries         int
	Duplicates      int
	Articles        int
}

func newSummary(runID string, started time.Time) *Summary {
	return &Summary{
		StartedAt:  started,
		RunID:      runID,
		Resolution: make(map[models.Confidence]int),
		Enrichment: make(map[models.Status]int),
		Statuses:   make(map[models.Status]int),
		Regions:    make(map[models.Region]int),
	}
}

// IdentificationRate is the share of entries resolved to a country.
func (s *Summary) IdentificationRate() float64 {
	if s.Entries == 0 {
		return 0
	}

	resolved := s.Resolution[models.ConfidenceExact] + s.Resolution[models.ConfidenceHeuristic]

	return float64(resolved) / float64(s.Entries)
}

// Duration returns how long the run took, or zero if it did not finish.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}

	return s.FinishedAt.Sub(s.StartedAt)
}
