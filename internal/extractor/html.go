package extractor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// htmlColumns is the header layout of one rendered table.
type htmlColumns struct {
	titleCol int
	locCol   int
}

func (e *Extractor) htmlWalker(raw string) (walker, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparsableHTML, err)
	}

	doc.Find(".mw-editsection, sup.reference, style, script").Remove()

	if doc.Find("li, tr").Length() == 0 {
		return nil, ErrNoStructure
	}

	return func(yield func(row) bool) {
		var headings [7]string

		liLocs := make(map[*html.Node]string)
		tables := make(map[*html.Node]htmlColumns)
		ordinal := 0

		doc.Find("h2, h3, h4, h5, h6, li, tr").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			name := goquery.NodeName(s)

			if level, ok := headingLevel(name); ok {
				headings[level] = e.text.NormalizeWhitespace(s.Text())
				for l := level + 1; l < len(headings); l++ {
					headings[l] = ""
				}

				return true
			}

			ordinal++

			state := &wikiState{headings: headings}
			r := row{
				heading: state.innermost(3),
				section: e.sectionName(state.innermost(2)),
				group:   headings[2],
				anchor:  fmt.Sprintf("%s:%d", e.sectionName(state.innermost(2)), ordinal),
			}

			if name == "li" {
				e.htmlListRow(s, &r, liLocs)
			} else if !e.htmlTableRow(s, &r, tables) {
				return true
			}

			return yield(r)
		})
	}, nil
}

func headingLevel(name string) (int, bool) {
	if len(name) == 2 && name[0] == 'h' && name[1] >= '2' && name[1] <= '6' {
		return int(name[1] - '0'), true
	}

	return 0, false
}

// htmlListRow fills r from an <li>, ignoring nested lists.
func (e *Extractor) htmlListRow(li *goquery.Selection, r *row, liLocs map[*html.Node]string) {
	if parent := li.ParentsFiltered("li").First(); parent.Length() > 0 {
		r.inherited = liLocs[parent.Get(0)]
	}

	item := li.Clone()
	item.Find("ul, ol").Remove()

	flagLinks := item.Find(".flagicon").NextFiltered("a")
	flagSet := make(map[*html.Node]bool)

	var flags []string

	flagLinks.Each(func(_ int, a *goquery.Selection) {
		flagSet[a.Get(0)] = true
		flags = append(flags, e.text.NormalizeWhitespace(a.Text()))
	})

	text := e.text.NormalizeWhitespace(item.Text())

	if anchor, title, ok := e.firstAnchor(item, flagSet); ok {
		r.title = title

		label := e.text.NormalizeWhitespace(anchor.Text())
		if idx := strings.Index(text, label); idx >= 0 && label != "" {
			r.location = e.locationFromRest(text[idx+len(label):])
		}
	} else {
		r.title, r.location = e.splitQuoted(text)
	}

	if len(flags) > 0 {
		r.location = strings.Join(flags, "; ")
	}

	own := r.location
	if own == "" {
		own = r.inherited
	}

	liLocs[li.Get(0)] = own
}

// htmlTableRow fills r from a <tr>. Header rows return false.
func (e *Extractor) htmlTableRow(tr *goquery.Selection, r *row, tables map[*html.Node]htmlColumns) bool {
	cells := tr.Children().Filter("td, th")
	if cells.Length() == 0 || cells.Filter("td").Length() == 0 {
		return false
	}

	cols := e.tableColumns(tr.Closest("table"), tables)

	cell := func(i int) *goquery.Selection {
		return cells.Eq(i)
	}

	if cols.titleCol >= 0 && cols.titleCol < cells.Length() {
		if _, title, ok := e.firstAnchor(cell(cols.titleCol), nil); ok {
			r.title = title
		} else {
			r.title = strings.Trim(e.text.NormalizeWhitespace(cell(cols.titleCol).Text()), `"“”'`)
		}
	} else {
		cells.EachWithBreak(func(i int, c *goquery.Selection) bool {
			if i == cols.locCol {
				return true
			}

			_, title, ok := e.firstAnchor(c, nil)
			if ok {
				r.title = title
			}

			return !ok
		})
	}

	if cols.locCol >= 0 && cols.locCol < cells.Length() {
		r.location = e.text.TrimPunctuation(e.text.NormalizeWhitespace(cell(cols.locCol).Text()))
	}

	return true
}

func (e *Extractor) tableColumns(table *goquery.Selection, tables map[*html.Node]htmlColumns) htmlColumns {
	cols := htmlColumns{titleCol: -1, locCol: -1}
	if table.Length() == 0 {
		return cols
	}

	if known, ok := tables[table.Get(0)]; ok {
		return known
	}

	table.Find("tr").First().Children().Filter("th").Each(func(i int, th *goquery.Selection) {
		name := strings.ToLower(th.Text())

		switch {
		case strings.Contains(name, "location") || strings.Contains(name, "country") || strings.Contains(name, "place"):
			cols.locCol = i
		case strings.Contains(name, "article") || strings.Contains(name, "title") || strings.Contains(name, "name"):
			cols.titleCol = i
		}
	})

	tables[table.Get(0)] = cols

	return cols
}

// firstAnchor returns the first link in s that points at an article.
func (e *Extractor) firstAnchor(s *goquery.Selection, exclude map[*html.Node]bool) (*goquery.Selection, string, bool) {
	var (
		found *goquery.Selection
		title string
	)

	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if exclude[a.Get(0)] {
			return true
		}

		t := anchorTitle(a)
		if !isArticleTitle(t) {
			return true
		}

		found = a
		title = e.cleanTitle(t)

		return false
	})

	return found, title, found != nil
}

// anchorTitle reads the article title from a rendered wiki link.
func anchorTitle(a *goquery.Selection) string {
	href, _ := a.Attr("href")
	if strings.HasPrefix(href, "#") {
		return ""
	}

	if t, ok := a.Attr("title"); ok && t != "" {
		return strings.TrimSuffix(t, " (page does not exist)")
	}

	for _, prefix := range []string{"/wiki/", "./"} {
		if idx := strings.Index(href, prefix); idx >= 0 {
			path := href[idx+len(prefix):]
			if unescaped, err := url.PathUnescape(path); err == nil {
				path = unescaped
			}

			return path
		}
	}

	return ""
}
