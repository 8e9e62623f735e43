package enricher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sedlecSummary = `{
  "type": "standard",
  "title": "Sedlec_Ossuary",
  "titles": {"canonical": "Sedlec_Ossuary", "normalized": "Sedlec Ossuary"},
  "description": "Roman Catholic chapel in the Czech Republic",
  "extract": "The Sedlec Ossuary is a small chapel...",
  "thumbnail": {"source": "https://upload.example.org/sedlec.jpg"},
  "content_urls": {"desktop": {"page": "https://en.wikipedia.org/wiki/Sedlec_Ossuary"}}
}`

func newSummaryServer(t *testing.T, routes map[string]func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("redirect") != "false" {
			t.Errorf("expected redirect=false, got %q", r.URL.RawQuery)
		}

		title := strings.TrimPrefix(r.URL.Path, "/page/summary/")
		if handler, ok := routes[title]; ok {
			handler(w)

			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	return server
}

func jsonBody(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func redirectTo(location string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Location", location)
		w.WriteHeader(http.StatusFound)
	}
}

func status(code int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(code)
	}
}

func TestClient_Lookup(t *testing.T) {
	server := newSummaryServer(t, map[string]func(http.ResponseWriter){
		"Sedlec_Ossuary": jsonBody(sedlecSummary),
	})

	summary, err := NewClient(server.URL, "wikiweird-test/1.0", time.Second).Lookup(context.Background(), "Sedlec Ossuary")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if summary.CanonicalTitle() != "Sedlec Ossuary" {
		t.Errorf("Expected canonical title 'Sedlec Ossuary', got %q", summary.CanonicalTitle())
	}

	if summary.Text() != "Roman Catholic chapel in the Czech Republic" {
		t.Errorf("unexpected description %q", summary.Text())
	}

	if summary.ThumbnailURL() != "https://upload.example.org/sedlec.jpg" {
		t.Errorf("unexpected thumbnail %q", summary.ThumbnailURL())
	}

	if summary.RedirectedFrom != "" {
		t.Errorf("Expected no redirect, got %q", summary.RedirectedFrom)
	}
}

func TestClient_FollowsOneRedirect(t *testing.T) {
	server := newSummaryServer(t, map[string]func(http.ResponseWriter){
		"Bone_Church":    redirectTo("Sedlec_Ossuary"),
		"Sedlec_Ossuary": jsonBody(sedlecSummary),
	})

	summary, err := NewClient(server.URL, "", time.Second).Lookup(context.Background(), "Bone Church")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if summary.CanonicalTitle() != "Sedlec Ossuary" || summary.RedirectedFrom != "Bone Church" {
		t.Errorf("got canonical %q from %q", summary.CanonicalTitle(), summary.RedirectedFrom)
	}
}

func TestClient_Errors(t *testing.T) {
	server := newSummaryServer(t, map[string]func(http.ResponseWriter){
		"Loop_A":    redirectTo("Loop_B"),
		"Loop_B":    redirectTo("Loop_C"),
		"Busy":      status(http.StatusTooManyRequests),
		"Broken":    status(http.StatusBadGateway),
		"Forbidden": status(http.StatusForbidden),
		"Garbage":   jsonBody("{not json"),
	})

	tests := []struct {
		title         string
		wantErr       error
		wantTransient bool
	}{
		{"Nowhere", ErrNotFound, false},
		{"Loop A", ErrTooManyRedirects, false},
		{"Busy", ErrUnexpectedStatus, true},
		{"Broken", ErrUnexpectedStatus, true},
		{"Forbidden", ErrUnexpectedStatus, false},
		{"Garbage", ErrMalformedSummary, false},
	}

	client := NewClient(server.URL, "", time.Second)

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			_, err := client.Lookup(context.Background(), tt.title)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}

			if IsTransient(err) != tt.wantTransient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, IsTransient(err), tt.wantTransient)
			}
		})
	}
}

func TestClient_RetryAfter(t *testing.T) {
	server := newSummaryServer(t, map[string]func(http.ResponseWriter){
		"Busy": status(http.StatusTooManyRequests),
	})

	_, err := NewClient(server.URL, "", time.Second).Lookup(context.Background(), "Busy")

	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("Expected *TransientError, got %v", err)
	}

	if te.StatusCode != http.StatusTooManyRequests || te.RetryAfter != 2*time.Second {
		t.Errorf("unexpected transient error %+v", te)
	}
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewClient(server.URL, "", 20*time.Millisecond).Lookup(context.Background(), "Slow")
	if !IsTransient(err) {
		t.Errorf("Expected a transient timeout, got %v", err)
	}
}

func TestClient_CancelledContextIsNotTransient(t *testing.T) {
	server := newSummaryServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(server.URL, "", time.Second).Lookup(ctx, "Anything")
	if !errors.Is(err, context.Canceled) || IsTransient(err) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestTitleFromLocation(t *testing.T) {
	tests := []struct {
		location string
		expected string
	}{
		{"Sedlec_Ossuary", "Sedlec Ossuary"},
		{"https://en.wikipedia.org/api/rest_v1/page/summary/Sedlec_Ossuary", "Sedlec Ossuary"},
		{"../summary/AC%2FDC", "AC/DC"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := titleFromLocation(tt.location); got != tt.expected {
			t.Errorf("titleFromLocation(%q) = %q, want %q", tt.location, got, tt.expected)
		}
	}
}
