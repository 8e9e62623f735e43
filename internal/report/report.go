// Package report renders run summaries and dataset diffs as terminal tables.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"

	"wikiweird/internal/dataset"
	"wikiweird/internal/models"
	"wikiweird/internal/pipeline"
)

// DefaultTitleWidth is the display width titles are truncated to.
const DefaultTitleWidth = 48

const ellipsis = "…"

// Renderer turns pipeline results into tables.
type Renderer struct {
	titleWidth int
	style      table.Style
}

// New creates a renderer. A non-positive width selects DefaultTitleWidth.
func New(titleWidth int) *Renderer {
	if titleWidth <= 0 {
		titleWidth = DefaultTitleWidth
	}

	return &Renderer{titleWidth: titleWidth, style: table.StyleRounded}
}

// Truncate shortens s to at most width display cells, marking the cut.
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}

	return runewidth.Truncate(s, width, ellipsis)
}

func (r *Renderer) newTable(title string, header table.Row, rightAligned ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(r.style)
	tw.SetTitle("%s", title)
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(header))
	for i := range header {
		align := text.AlignLeft
		for _, n := range rightAligned {
			if n == i+1 {
				align = text.AlignRight
			}
		}

		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}

	tw.SetColumnConfigs(configs)

	return tw
}

// Summary renders the counters of one run followed by per-region and
// per-status breakdowns of the published articles.
func (r *Renderer) Summary(s *pipeline.Summary) string {
	if s == nil {
		return ""
	}

	tw := r.newTable("Run "+s.RunID, table.Row{"Metric", "Value"}, 2)

	tw.AppendRows([]table.Row{
		{"Source version", shortVersion(s.SourceVersion)},
		{"Listing rows", s.Rows},
		{"Rows skipped", s.Skipped},
		{"Rows over section limit", s.Limited},
		{"Entries", s.Entries},
	})
	tw.AppendSeparator()

	for _, c := range []models.Confidence{models.ConfidenceExact, models.ConfidenceHeuristic, models.ConfidenceUnresolved} {
		tw.AppendRow(table.Row{"Resolved " + strings.ToLower(c.String()), s.Resolution[c]})
	}

	tw.AppendRows([]table.Row{
		{"Placed from article context", s.ContextResolved},
		{"Ambiguous locations", s.Ambiguous},
		{"Identification rate", fmt.Sprintf("%.1f%%", s.IdentificationRate()*100)},
	})
	tw.AppendSeparator()

	tw.AppendRows([]table.Row{
		{"Cache hits", s.CacheHits},
		{"Network calls", s.NetworkCalls},
		{"Retries", s.Retries},
	})

	for _, st := range models.Statuses {
		if n := s.Enrichment[st]; n > 0 {
			tw.AppendRow(table.Row{"Lookups " + string(st), n})
		}
	}

	tw.AppendSeparator()
	tw.AppendRows([]table.Row{
		{"Duplicates collapsed", s.Duplicates},
		{"Validation defects", len(s.Defects)},
		{"Articles", s.Articles},
	})

	if p := s.Published; p != nil && p.Diff != nil {
		tw.AppendSeparator()
		tw.AppendRows([]table.Row{
			{"Added", len(p.Diff.Added)},
			{"Removed", len(p.Diff.Removed)},
			{"Changed", len(p.Diff.Changed)},
			{"Dataset", p.Path},
		})

		if p.HistoryPath != "" {
			tw.AppendRow(table.Row{"History copy", p.HistoryPath})
		}
	}

	if d := s.Duration(); d > 0 {
		tw.AppendSeparator()
		tw.AppendRow(table.Row{"Duration", d.Round(time.Millisecond).String()})
	}

	var b strings.Builder

	b.WriteString(tw.Render())
	b.WriteString("\n")

	if s.Articles > 0 {
		b.WriteString(r.breakdown(s))
		b.WriteString("\n")
	}

	return b.String()
}

func (r *Renderer) breakdown(s *pipeline.Summary) string {
	tw := r.newTable("Articles", table.Row{"Region", "Count"}, 2)

	for _, region := range models.Regions {
		if n := s.Regions[region]; n > 0 {
			tw.AppendRow(table.Row{string(region), n})
		}
	}

	tw.AppendSeparator()

	for _, st := range models.Statuses {
		if n := s.Statuses[st]; n > 0 {
			tw.AppendRow(table.Row{"Status " + string(st), n})
		}
	}

	return tw.Render()
}

// Diff renders added, removed and changed articles.
func (r *Renderer) Diff(d *dataset.Diff) string {
	if d == nil || d.Empty() {
		return "No changes.\n"
	}

	tw := r.newTable(
		fmt.Sprintf("%d added, %d removed, %d changed", len(d.Added), len(d.Removed), len(d.Changed)),
		table.Row{"Change", "ID", "Title", "Fields"},
	)

	for _, e := range d.Added {
		tw.AppendRow(table.Row{"added", e.ID, Truncate(e.Title, r.titleWidth), ""})
	}

	for _, e := range d.Removed {
		tw.AppendRow(table.Row{"removed", e.ID, Truncate(e.Title, r.titleWidth), ""})
	}

	for _, e := range d.Changed {
		tw.AppendRow(table.Row{"changed", e.ID, Truncate(e.Title, r.titleWidth), strings.Join(e.Fields, ", ")})
	}

	return tw.Render() + "\n"
}

// Resolution is one location looked up against the country table.
type Resolution struct {
	Raw         string
	CountryName string
	Result      models.LocationResolution
}

// Resolutions renders how each location resolved.
func (r *Renderer) Resolutions(version string, rows []Resolution) string {
	tw := r.newTable("Country table "+version, table.Row{"Location", "Code", "Country", "Region", "Confidence", "Candidates"})

	for _, row := range rows {
		tw.AppendRow(table.Row{
			Truncate(row.Raw, r.titleWidth),
			models.Deref(row.Result.Country),
			row.CountryName,
			string(row.Result.Region),
			row.Result.Confidence.String(),
			strings.Join(row.Result.Candidates, ", "),
		})
	}

	return tw.Render() + "\n"
}

func shortVersion(v string) string {
	if len(v) > 12 {
		return v[:12]
	}

	return v
}
