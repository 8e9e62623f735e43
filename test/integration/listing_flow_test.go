package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wikiweird/internal/config"
	"wikiweird/internal/dataset"
	"wikiweird/internal/enricher"
	"wikiweird/internal/models"
	"wikiweird/internal/pipeline"
)

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// newWiki serves the rendered listing at /listing and REST summaries under
// /page/summary/. Titles in missing answer 404.
func newWiki(t *testing.T, listing string, missing ...string) *httptest.Server {
	t.Helper()

	gone := make(map[string]bool)
	for _, m := range missing {
		gone[m] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, listing)
	})
	mux.HandleFunc("/page/summary/", func(w http.ResponseWriter, r *http.Request) {
		title := strings.TrimPrefix(r.URL.Path, "/page/summary/")
		if gone[title] {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"type":"standard","title":%q,"description":"Unusual place",`+
			`"thumbnail":{"source":"https://upload.example.org/%s.jpg"}}`, title, title)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestListingFlow_RenderedHTML(t *testing.T) {
	// Path to fixture
	fixturePath := filepath.Join("..", "..", "internal", "extractor", "testdata", "listing.html")

	content, err := os.ReadFile(fixturePath)
	if err != nil {
		t.Fatalf("Failed to read fixture: %v", err)
	}

	server := newWiki(t, string(content), "Baarle-Nassau")
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Source = config.SourceConfig{URL: server.URL + "/listing", Format: config.FormatAuto}
	cfg.Enrichment.BaseURL = server.URL
	cfg.Enrichment.RequestsPerSecond = 0
	cfg.Enrichment.CacheBackend = config.CacheSQLite
	cfg.Enrichment.CachePath = filepath.Join(dir, "cache", "enrichment.db")
	cfg.Output = config.OutputConfig{
		Path:       filepath.Join(dir, "dataset.json"),
		HistoryDir: filepath.Join(dir, "snapshots"),
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid config: %v", err)
	}

	// 1. Full run: fetch over HTTP, extract, resolve, enrich, publish
	p, err := pipeline.New(cfg, pipeline.WithEnricherOptions(enricher.WithSleep(noSleep)))
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if summary.Skipped != 1 {
		t.Errorf("Expected the category link row to be skipped, got %d", summary.Skipped)
	}

	// 2. Verification of the published dataset
	snap, err := dataset.Load(cfg.Output.Path)
	if err != nil || snap == nil {
		t.Fatalf("Expected published dataset, got %v", err)
	}

	type want struct {
		country string
		region  models.Region
		status  models.Status
	}

	expected := map[string]want{
		"Boring Postcards": {"CZ", models.RegionEurope, models.StatusOk},
		"Baarle-Hertog":    {"BE", models.RegionEurope, models.StatusOk},
		"Baarle-Nassau":    {"BE", models.RegionEurope, models.StatusNotFound},
		"Spite house":      {"US", models.RegionNorthAmerica, models.StatusOk},
	}

	if len(snap.Articles) != len(expected) {
		t.Fatalf("Expected %d articles, got %d", len(expected), len(snap.Articles))
	}

	for _, a := range snap.Articles {
		w, ok := expected[a.Title]
		if !ok {
			t.Errorf("Unexpected article %q", a.Title)

			continue
		}

		if models.Deref(a.Country) != w.country || a.Region != w.region || a.Status != w.status {
			t.Errorf("%s: got (%s, %s, %s), Expected (%s, %s, %s)",
				a.Title, models.Deref(a.Country), a.Region, a.Status, w.country, w.region, w.status)
		}

		if a.Status == models.StatusOk && a.ThumbnailURL == nil {
			t.Errorf("%s: Expected thumbnail for Ok article", a.Title)
		}

		if a.Status != models.StatusOk && (a.Description != nil || a.ThumbnailURL != nil) {
			t.Errorf("%s: Expected no optional fields for status %s", a.Title, a.Status)
		}
	}

	// 3. A second process reuses the persistent cache
	p2, err := pipeline.New(cfg, pipeline.WithEnricherOptions(enricher.WithSleep(noSleep)))
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	defer p2.Close()

	again, err := p2.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if again.NetworkCalls != 0 || again.CacheHits != len(expected) {
		t.Errorf("Expected all lookups from cache, got %d calls and %d hits", again.NetworkCalls, again.CacheHits)
	}

	if !again.Published.Unchanged {
		t.Error("Expected unchanged dataset on second run")
	}
}
