package crawler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wikiweird/internal/config"
	"wikiweird/internal/logger"
)

func TestClient_FetchListing_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listing.wiki")
	if err := os.WriteFile(path, []byte("== Europe ==\n* [[Spite house]]"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := NewClientWithDeps(testScraper(1), logger.NewNop())

	listing, err := client.FetchListing(context.Background(), config.SourceConfig{File: path, Format: config.FormatWikitext})
	if err != nil {
		t.Fatalf("FetchListing failed: %v", err)
	}

	if listing.Origin != path || listing.Format != config.FormatWikitext {
		t.Errorf("unexpected listing metadata: %+v", listing)
	}
}

func TestClient_FetchListing_WikiPage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr error
	}{
		{
			name:    "formatversion 2",
			payload: `{"parse":{"title":"P","wikitext":"== Europe =="}}`,
			want:    "== Europe ==",
		},
		{
			name:    "formatversion 1",
			payload: `{"parse":{"title":"P","wikitext":{"*":"== Asia =="}}}`,
			want:    "== Asia ==",
		},
		{
			name:    "missing page",
			payload: `{"error":{"code":"missingtitle","info":"The page you specified doesn't exist."}}`,
			wantErr: ErrPageMissing,
		},
		{
			name:    "garbage",
			payload: `<html>`,
			wantErr: ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Get("action") != "parse" || q.Get("prop") != "wikitext" || q.Get("page") != "Wikipedia:Unusual articles/Places" {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}

				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			client := NewClientWithDeps(testScraper(1), logger.NewNop())
			src := config.SourceConfig{Page: "Wikipedia:Unusual articles/Places", APIURL: server.URL, Format: config.FormatAuto}

			listing, err := client.FetchListing(context.Background(), src)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("FetchListing failed: %v", err)
			}

			if listing.Raw != tt.want || listing.Format != config.FormatWikitext {
				t.Errorf("got %+v, want raw %q", listing, tt.want)
			}
		})
	}
}

func TestClient_FetchCategories(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
		wantErr error
	}{
		{
			name: "categories",
			payload: `{"query":{"pages":[{"title":"Okefenokee Swamp","categories":[` +
				`{"ns":14,"title":"Category:Swamps of Georgia (U.S. state)"},` +
				`{"ns":14,"title":"Category:Protected areas of the United States"}]}]}}`,
			want: []string{"Swamps of Georgia (U.S. state)", "Protected areas of the United States"},
		},
		{
			name:    "no categories",
			payload: `{"query":{"pages":[{"title":"Okefenokee Swamp"}]}}`,
		},
		{
			name:    "missing page",
			payload: `{"query":{"pages":[{"title":"Okefenokee Swamp","missing":true}]}}`,
			wantErr: ErrPageMissing,
		},
		{
			name:    "garbage",
			payload: `{"batchcomplete":true}`,
			wantErr: ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Get("action") != "query" || q.Get("prop") != "categories" || q.Get("titles") != "Okefenokee Swamp" {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}

				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			client := NewClientWithDeps(testScraper(1), logger.NewNop())

			got, err := client.FetchCategories(context.Background(), server.URL, "Okefenokee Swamp")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("FetchCategories failed: %v", err)
			}

			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_FetchListing_BackupURL(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer broken.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<h2>Europe</h2>"))
	}))
	defer backup.Close()

	client := NewClientWithDeps(testScraper(1), logger.NewNop())
	src := config.SourceConfig{URL: broken.URL, BackupURLs: []string{backup.URL}, Format: config.FormatAuto}

	listing, err := client.FetchListing(context.Background(), src)
	if err != nil {
		t.Fatalf("FetchListing failed: %v", err)
	}

	if listing.Origin != backup.URL || listing.Format != "" {
		t.Errorf("unexpected listing: %+v", listing)
	}
}

func TestClient_FetchListing_AllURLsFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer broken.Close()

	client := NewClientWithDeps(testScraper(1), logger.NewNop())

	_, err := client.FetchListing(context.Background(), config.SourceConfig{URL: broken.URL})
	if !errors.Is(err, ErrAllSourcesExhausted) {
		t.Fatalf("expected ErrAllSourcesExhausted, got %v", err)
	}
}

func TestURLManager_Order(t *testing.T) {
	um := NewURLManager(config.SourceConfig{URL: "http://a", BackupURLs: []string{"http://b"}})

	first, _ := um.NextURL()
	second, _ := um.NextURL()

	if first != "http://a" || second != "http://b" {
		t.Errorf("unexpected order %s, %s", first, second)
	}

	if _, err := um.NextURL(); !errors.Is(err, ErrAllSourcesExhausted) {
		t.Errorf("expected ErrAllSourcesExhausted, got %v", err)
	}

	um.RecordAttempt("http://a", errors.New("boom"), 500, 0)
	um.RecordAttempt("http://b", nil, 200, 0)

	stats := um.GetAttemptStats()
	if stats.SuccessfulURLs != 1 || stats.FailedURLs != 1 || stats.TotalAttempts != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if log := um.GetAttemptLog("http://a"); len(log) != 1 || log[0].Success || log[0].StatusCode != 500 {
		t.Errorf("unexpected attempt log for http://a: %+v", log)
	}
}

func TestURLManager_LogAttemptSummary(t *testing.T) {
	um := NewURLManager(config.SourceConfig{Name: "listing", URL: "http://a", BackupURLs: []string{"http://b", "http://c"}})
	um.RecordAttempt("http://a", errors.New("boom"), 503, 0)
	um.RecordAttempt("http://b", nil, 200, 0)

	var buf bytes.Buffer
	um.LogAttemptSummary(logger.New(&buf, "debug", "json"))

	out := buf.String()
	for _, want := range []string{`"url":"http://a"`, `"status":503`, `"error":"boom"`, "listing source not attempted", "Attempts: 2 total, 1 success"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in attempt summary:\n%s", want, out)
		}
	}
}

func TestURLManager_NoSources(t *testing.T) {
	if _, err := NewURLManager(config.SourceConfig{}).NextURL(); !errors.Is(err, ErrNoSourcesAvailable) {
		t.Errorf("expected ErrNoSourcesAvailable, got %v", err)
	}
}
