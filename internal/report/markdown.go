package report

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"wikiweird/internal/models"
)

// minColumnWidth keeps the separator row a valid markdown rule ("---").
const minColumnWidth = 3

// Markdown renders a snapshot as one aligned markdown table per region, in
// region display order. Regions without articles are omitted.
func (r *Renderer) Markdown(snap *models.Snapshot) string {
	if snap == nil {
		return ""
	}

	byRegion := make(map[models.Region][]models.Article)
	for _, a := range snap.Articles {
		byRegion[a.Region] = append(byRegion[a.Region], a)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# Unusual articles\n\nGenerated %s from listing `%s`, %d articles.\n",
		snap.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"), shortVersion(snap.SourceVersion), len(snap.Articles))

	for _, region := range models.Regions {
		articles := byRegion[region]
		if len(articles) == 0 {
			continue
		}

		rows := [][]string{{"Title", "Country", "Status", "Description"}, nil}
		for _, a := range articles {
			country := models.Deref(a.Country)
			if country == "" {
				country = "-"
			}

			rows = append(rows, []string{
				fmt.Sprintf("[%s](%s)", escapeCell(Truncate(a.Title, r.titleWidth)), a.URL),
				country,
				string(a.Status),
				escapeCell(Truncate(models.Deref(a.Description), r.titleWidth)),
			})
		}

		fmt.Fprintf(&b, "\n## %s\n\n", region)

		for _, line := range alignTable(rows) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// alignTable pads every cell to its column's display width. A nil row
// becomes the header separator.
func alignTable(rows [][]string) []string {
	colCount := 0
	for _, row := range rows {
		colCount = max(colCount, len(row))
	}

	colWidths := make([]int, colCount)
	for i := range colWidths {
		colWidths[i] = minColumnWidth
	}

	for _, row := range rows {
		for i, cell := range row {
			colWidths[i] = max(colWidths[i], runewidth.StringWidth(cell))
		}
	}

	result := make([]string, 0, len(rows))

	for _, row := range rows {
		var sb strings.Builder

		sb.WriteString("|")

		for j := 0; j < colCount; j++ {
			sb.WriteString(" ")

			if row == nil {
				sb.WriteString(strings.Repeat("-", colWidths[j]))
			} else {
				content := ""
				if j < len(row) {
					content = row[j]
				}

				sb.WriteString(content)
				sb.WriteString(strings.Repeat(" ", colWidths[j]-runewidth.StringWidth(content)))
			}

			sb.WriteString(" |")
		}

		result = append(result, sb.String())
	}

	return result
}
