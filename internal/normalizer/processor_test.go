package normalizer

import (
	"errors"
	"testing"

	"wikiweird/internal/models"
)

func entry(title, anchor string, order int, res models.LocationResolution) ResolvedEntry {
	return ResolvedEntry{
		Entry:      models.SourceEntry{Title: title, SourceAnchor: anchor, Order: order},
		Resolution: res,
	}
}

func usResolution() models.LocationResolution {
	code := "US"

	return models.LocationResolution{Country: &code, Region: models.RegionNorthAmerica, Confidence: models.ConfidenceHeuristic}
}

func TestProcessor_DuplicateKeepsHigherConfidence(t *testing.T) {
	p := NewProcessor("", nil)

	gb := "GB"
	exactGB := models.LocationResolution{Country: &gb, Region: models.RegionEurope, Confidence: models.ConfidenceExact}

	result := p.Process([]ResolvedEntry{
		entry("Spite house", "north-america:19", 2, usResolution()),
		entry("Boring Postcards", "czech-republic:5", 0, czResolution(models.ConfidenceExact)),
		entry("Spite house", "united-kingdom:8", 1, exactGB),
	}, map[string]models.EnrichmentResult{
		"Spite house":      okEnrichment("Spite house"),
		"Boring Postcards": okEnrichment("Boring Postcards"),
	})

	if len(result.Articles) != 2 || result.Duplicates != 1 {
		t.Fatalf("Expected 2 articles and 1 duplicate, got %d and %d", len(result.Articles), result.Duplicates)
	}

	if result.Articles[0].Title != "Boring Postcards" || result.Articles[1].Title != "Spite house" {
		t.Errorf("unexpected order: %q, %q", result.Articles[0].Title, result.Articles[1].Title)
	}

	if models.Deref(result.Articles[1].Country) != "GB" {
		t.Errorf("Expected higher-confidence GB, got %q", models.Deref(result.Articles[1].Country))
	}
}

func TestProcessor_DuplicateTieKeepsFirst(t *testing.T) {
	p := NewProcessor("", nil)

	mx := "MX"
	heuristicMX := models.LocationResolution{Country: &mx, Region: models.RegionNorthAmerica, Confidence: models.ConfidenceHeuristic}

	result := p.Process([]ResolvedEntry{
		entry("Spite house", "a:1", 0, usResolution()),
		entry("Spite house", "a:2", 1, heuristicMX),
	}, map[string]models.EnrichmentResult{"Spite house": okEnrichment("Spite house")})

	if len(result.Articles) != 1 || models.Deref(result.Articles[0].Country) != "US" {
		t.Errorf("Expected the first entry to win a tie, got %+v", result.Articles)
	}
}

func TestProcessor_RedirectsCollapse(t *testing.T) {
	p := NewProcessor("", nil)

	redirected := okEnrichment("Sedlec Ossuary")
	redirected.Title = "Bone Church"

	result := p.Process([]ResolvedEntry{
		entry("Sedlec Ossuary", "cz:1", 0, czResolution(models.ConfidenceHeuristic)),
		entry("Bone Church", "cz:2", 1, czResolution(models.ConfidenceExact)),
	}, map[string]models.EnrichmentResult{
		"Sedlec Ossuary": okEnrichment("Sedlec Ossuary"),
		"Bone Church":    redirected,
	})

	if len(result.Articles) != 1 || result.Duplicates != 1 {
		t.Fatalf("Expected redirect to collapse, got %d articles", len(result.Articles))
	}
}

func TestProcessor_UnresolvedDoesNotAffectStatus(t *testing.T) {
	p := NewProcessor("", nil)

	result := p.Process([]ResolvedEntry{
		entry("Null Island", "misc:2", 0, models.Unresolved()),
	}, map[string]models.EnrichmentResult{"Null Island": okEnrichment("Null Island")})

	a := result.Articles[0]
	if a.Country != nil || a.Region != models.RegionUnresolved || a.Status != models.StatusOk {
		t.Errorf("unexpected article %+v", a)
	}
}

func TestProcessor_DropsInvalidArticles(t *testing.T) {
	p := NewProcessor("", nil)

	broken := okEnrichment("Broken")
	broken.URL = "not a url"

	result := p.Process([]ResolvedEntry{
		entry("Broken", "misc:1", 0, czResolution(models.ConfidenceExact)),
		entry("Fine", "misc:2", 1, czResolution(models.ConfidenceExact)),
	}, map[string]models.EnrichmentResult{
		"Broken": broken,
		"Fine":   okEnrichment("Fine"),
	})

	if len(result.Articles) != 1 || result.Articles[0].Title != "Fine" {
		t.Errorf("Expected only the valid article, got %+v", result.Articles)
	}

	if len(result.Defects) != 1 || !errors.Is(result.Defects[0], ErrInvalidURL) || result.Defects[0].Anchor != "misc:1" {
		t.Errorf("unexpected defects %+v", result.Defects)
	}
}

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator()

	d.Add(Candidate{Article: models.Article{Title: "A"}, Order: 0, Confidence: models.ConfidenceUnresolved})
	d.Add(Candidate{Article: models.Article{Title: "B"}, Order: 1})
	d.Add(Candidate{Article: models.Article{Title: "A", URL: "second"}, Order: 2, Confidence: models.ConfidenceExact})

	got := d.Candidates()
	if len(got) != 2 || got[0].Article.URL != "second" || got[0].Order != 0 || d.Duplicates() != 1 {
		t.Errorf("unexpected dedup state %+v (duplicates %d)", got, d.Duplicates())
	}
}
