package normalizer

import (
	"strings"

	"wikiweird/internal/models"
	"wikiweird/pkg/metadata"
	"wikiweird/pkg/utils"
)

// DefaultWikiBaseURL prefixes fallback article URLs.
const DefaultWikiBaseURL = "https://en.wikipedia.org/wiki/"

// ResolvedEntry is a listing row with its location verdict.
type ResolvedEntry struct {
	Entry      models.SourceEntry
	Resolution models.LocationResolution
}

// Candidate is an article before deduplication and validation.
type Candidate struct {
	Article    models.Article
	Anchor     string
	Order      int
	Confidence models.Confidence
}

// Transformer joins a resolution and an enrichment result into a Candidate.
type Transformer struct {
	text        *utils.StringHelper
	wikiBaseURL string
}

// NewTransformer creates a transformer. An empty base URL uses DefaultWikiBaseURL.
func NewTransformer(wikiBaseURL string) *Transformer {
	if wikiBaseURL == "" {
		wikiBaseURL = DefaultWikiBaseURL
	}

	if !strings.HasSuffix(wikiBaseURL, "/") {
		wikiBaseURL += "/"
	}

	return &Transformer{
		text:        utils.NewStringHelper(),
		wikiBaseURL: wikiBaseURL,
	}
}

// Transform builds the Candidate for one entry. A missing enrichment result
// yields status Error.
func (t *Transformer) Transform(re ResolvedEntry, enr models.EnrichmentResult, found bool) Candidate {
	if !found {
		enr = models.EnrichmentResult{
			Title:  re.Entry.Title,
			Status: models.StatusError,
			Reason: "no enrichment result",
		}
	}

	canonical := t.CanonicalTitle(re.Entry.Title, enr)

	// Resolution never degrades status.
	status := models.Worst(models.StatusOk, enr.Status)

	article := models.Article{
		ID:      metadata.ArticleID(canonical),
		Title:   canonical,
		URL:     enr.URL,
		Country: copyString(re.Resolution.Country),
		Region:  re.Resolution.Region,
		Status:  status,
	}

	if article.Region == "" {
		article.Region = models.RegionUnresolved
	}

	if article.URL == "" {
		article.URL = t.wikiBaseURL + t.text.WikiPath(canonical)
	}

	if status == models.StatusOk {
		article.Description = copyString(enr.Description)
		article.ThumbnailURL = copyString(enr.ThumbnailURL)
	}

	return Candidate{
		Article:    article,
		Anchor:     re.Entry.SourceAnchor,
		Order:      re.Entry.Order,
		Confidence: re.Resolution.Confidence,
	}
}

// CanonicalTitle is the deduplication key: the post-redirect title, or the
// listing title when enrichment did not produce one.
func (t *Transformer) CanonicalTitle(listed string, enr models.EnrichmentResult) string {
	if c := t.text.NormalizeWhitespace(enr.CanonicalTitle); c != "" {
		return c
	}

	return t.text.NormalizeWhitespace(listed)
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}

	v := *s

	return &v
}
