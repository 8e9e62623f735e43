package report

import (
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"wikiweird/internal/dataset"
	"wikiweird/internal/models"
	"wikiweird/internal/pipeline"
)

func TestAlignTable(t *testing.T) {
	tests := []struct {
		name     string
		rows     [][]string
		expected []string
	}{
		{
			name: "Basic table",
			rows: [][]string{{"Header 1", "Header 2"}, nil, {"val 1", "val 2"}},
			expected: []string{
				"| Header 1 | Header 2 |",
				"| -------- | -------- |",
				"| val 1    | val 2    |",
			},
		},
		{
			name: "Minimum separator width",
			rows: [][]string{{"A", "B"}, nil, {"x", "y"}},
			expected: []string{
				"| A   | B   |",
				"| --- | --- |",
				"| x   | y   |",
			},
		},
		{
			name: "Wide characters",
			rows: [][]string{{"Title", "Country"}, nil, {"東京", "JP"}},
			expected: []string{
				"| Title | Country |",
				"| ----- | ------- |",
				"| 東京  | JP      |",
			},
		},
		{
			name: "Ragged rows",
			rows: [][]string{{"A", "B", "C"}, nil, {"1"}},
			expected: []string{
				"| A   | B   | C   |",
				"| --- | --- | --- |",
				"| 1   |     |     |",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := alignTable(tt.rows)
			if strings.Join(got, "\n") != strings.Join(tt.expected, "\n") {
				t.Errorf("alignTable() =\n%s\nExpected:\n%s", strings.Join(got, "\n"), strings.Join(tt.expected, "\n"))
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("Sedlec Ossuary", 20); got != "Sedlec Ossuary" {
		t.Errorf("Expected short title unchanged, got %q", got)
	}

	long := "Church of Bones in the Village of Sedlec near Kutná Hora"

	got := Truncate(long, 20)
	if runewidth.StringWidth(got) > 20 {
		t.Errorf("Expected width <= 20, got %d (%q)", runewidth.StringWidth(got), got)
	}

	if !strings.HasSuffix(got, ellipsis) {
		t.Errorf("Expected truncated title to end with %q, got %q", ellipsis, got)
	}
}

func testSummary() *pipeline.Summary {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	return &pipeline.Summary{
		StartedAt:     started,
		FinishedAt:    started.Add(1500 * time.Millisecond),
		RunID:         "4b1f0d1e-run",
		SourceVersion: "0123456789abcdef0123",
		Entries:       4,
		Articles:      3,
		Duplicates:    1,
		NetworkCalls:  3,
		Resolution: map[models.Confidence]int{
			models.ConfidenceExact:      2,
			models.ConfidenceHeuristic:  1,
			models.ConfidenceUnresolved: 1,
		},
		Enrichment: map[models.Status]int{models.StatusOk: 2, models.StatusError: 1},
		Statuses:   map[models.Status]int{models.StatusOk: 2, models.StatusError: 1},
		Regions:    map[models.Region]int{models.RegionEurope: 2, models.RegionUnresolved: 1},
		Published: &dataset.PublishResult{
			Diff: &dataset.Diff{Added: []dataset.DiffEntry{{ID: "a", Title: "A"}}},
			Path: "data/dataset.json",
		},
	}
}

func TestRenderer_Summary(t *testing.T) {
	out := New(0).Summary(testSummary())

	for _, want := range []string{
		"Run 4b1f0d1e-run",
		"0123456789ab",
		"Identification rate",
		"75.0%",
		"Lookups Error",
		"Duplicates collapsed",
		"data/dataset.json",
		"Europe",
		"Unresolved",
		"1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}

	if strings.Contains(out, "South America") {
		t.Errorf("Expected empty regions to be omitted, got:\n%s", out)
	}

	if New(0).Summary(nil) != "" {
		t.Error("Expected empty output for nil summary")
	}
}

func TestRenderer_Diff(t *testing.T) {
	r := New(10)

	if got := r.Diff(&dataset.Diff{}); got != "No changes.\n" {
		t.Errorf("Expected no-change message, got %q", got)
	}

	if got := r.Diff(nil); got != "No changes.\n" {
		t.Errorf("Expected no-change message for nil diff, got %q", got)
	}

	out := r.Diff(&dataset.Diff{
		Added:   []dataset.DiffEntry{{ID: "id-added", Title: "Baarle-Hertog"}},
		Removed: []dataset.DiffEntry{{ID: "id-removed", Title: "Mill Ends Park"}},
		Changed: []dataset.DiffEntry{{ID: "id-changed", Title: "Spite house", Fields: []string{"country", "region"}}},
	})

	for _, want := range []string{"1 added, 1 removed, 1 changed", "id-added", "id-removed", "country, region", ellipsis} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected diff to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderer_Resolutions(t *testing.T) {
	us := "US"

	out := New(0).Resolutions("2025.1", []Resolution{
		{Raw: "Paris, Texas", CountryName: "United States", Result: models.LocationResolution{
			Country: &us, Region: models.RegionNorthAmerica, Confidence: models.ConfidenceHeuristic,
		}},
		{Raw: "Atlantis", Result: models.Unresolved()},
	})

	for _, want := range []string{"Country table 2025.1", "Paris, Texas", "United States", "North America", "Heuristic", "Atlantis", "Unresolved"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected resolutions to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderer_Markdown(t *testing.T) {
	gb := "GB"
	snap := &models.Snapshot{
		GeneratedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceVersion: "0123456789abcdef0123",
		Articles: []models.Article{
			{ID: "1", Title: "Spite house", URL: "https://en.wikipedia.org/wiki/Spite_house", Country: &gb, Region: models.RegionEurope, Status: models.StatusOk, Description: models.StringPtr("A | B")},
			{ID: "2", Title: "Null Island", URL: "https://en.wikipedia.org/wiki/Null_Island", Region: models.RegionUnresolved, Status: models.StatusError},
		},
	}

	out := New(0).Markdown(snap)

	for _, want := range []string{
		"Generated 2025-03-01 12:00 UTC",
		"## Europe",
		"## Unresolved",
		"[Spite house](https://en.wikipedia.org/wiki/Spite_house)",
		`A \| B`,
		"| -   ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected markdown to contain %q, got:\n%s", want, out)
		}
	}

	if strings.Index(out, "## Europe") > strings.Index(out, "## Unresolved") {
		t.Error("Expected regions in display order")
	}

	if strings.Contains(out, "## Asia") {
		t.Error("Expected empty regions to be omitted")
	}
}
