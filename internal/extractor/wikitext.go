package extractor

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	commentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
	refRe      = regexp.MustCompile(`(?is)<ref[^>]*/>|<ref[^>]*>.*?</ref>`)
	headingRe  = regexp.MustCompile(`^(={2,6})\s*(.+?)\s*={2,6}\s*$`)
	listItemRe = regexp.MustCompile(`^([*#][*#:]*)\s*(.*)$`)
	linkRe     = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]*))?\]\]`)
	flagRe     = regexp.MustCompile(`(?i)\{\{\s*(?:flag|flagicon|flagcountry|flagu)\s*\|\s*([^|{}]+?)\s*(?:\|[^{}]*)?\}\}`)
	templateRe = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	extLinkRe  = regexp.MustCompile(`\[https?://\S+\s*([^\]]*)\]`)
)

// blankOut removes matches of re but keeps their newlines so line numbers survive.
func blankOut(re *regexp.Regexp, s string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Repeat("\n", strings.Count(m, "\n"))
	})
}

// wikiState tracks headings, list nesting and table layout while walking lines.
type wikiState struct {
	headings [7]string
	listLocs []string
	table    *wikiTable
}

type wikiTable struct {
	cells    []string
	startRow int
	titleCol int
	locCol   int
	header   bool
	data     bool
}

func (st *wikiState) setHeading(level int, text string) {
	st.headings[level] = text
	for l := level + 1; l < len(st.headings); l++ {
		st.headings[l] = ""
	}

	st.listLocs = nil
}

// innermost returns the deepest non-empty heading at or below minLevel.
func (st *wikiState) innermost(minLevel int) string {
	for l := len(st.headings) - 1; l >= minLevel; l-- {
		if st.headings[l] != "" {
			return st.headings[l]
		}
	}

	return ""
}

func (e *Extractor) wikitextWalker(raw string) (walker, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = blankOut(commentRe, text)
	text = blankOut(refRe, text)

	lines := strings.Split(text, "\n")
	if !hasWikiStructure(lines) {
		return nil, ErrNoStructure
	}

	return func(yield func(row) bool) {
		st := &wikiState{}

		for i, line := range lines {
			lineNo := i + 1
			trimmed := strings.TrimSpace(line)

			if st.table != nil {
				if r, ok := e.tableLine(st, trimmed, lineNo); ok && !yield(r) {
					return
				}

				continue
			}

			switch {
			case headingRe.MatchString(trimmed):
				m := headingRe.FindStringSubmatch(trimmed)
				st.setHeading(len(m[1]), e.plainText(m[2]))
			case strings.HasPrefix(trimmed, "{|"):
				st.table = &wikiTable{titleCol: -1, locCol: -1}
			case listItemRe.MatchString(trimmed):
				m := listItemRe.FindStringSubmatch(trimmed)
				depth := len(strings.TrimRight(m[1], ":"))

				if !yield(e.listRow(st, depth, m[2], lineNo)) {
					return
				}
			}
		}
	}, nil
}

func hasWikiStructure(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "{|") || listItemRe.MatchString(trimmed) {
			return true
		}
	}

	return false
}

func (e *Extractor) anchor(st *wikiState, lineNo int) string {
	return fmt.Sprintf("%s:%d", e.sectionName(st.innermost(2)), lineNo)
}

// listRow parses one bullet. Nested bullets without a location inherit their parent's.
func (e *Extractor) listRow(st *wikiState, depth int, body string, lineNo int) row {
	r := row{
		heading: st.innermost(3),
		section: e.sectionName(st.innermost(2)),
		group:   st.headings[2],
		anchor:  e.anchor(st, lineNo),
	}

	if len(st.listLocs) >= depth {
		st.listLocs = st.listLocs[:depth-1]
	}

	for len(st.listLocs) < depth-1 {
		st.listLocs = append(st.listLocs, "")
	}

	for d := len(st.listLocs) - 1; d >= 0; d-- {
		if st.listLocs[d] != "" {
			r.inherited = st.listLocs[d]

			break
		}
	}

	flags := flagNames(body)
	body = flagRe.ReplaceAllString(body, "")

	title, rest, ok := e.firstLink(body)
	if ok {
		r.title = title
		r.location = e.locationFromRest(e.plainText(rest))
	} else {
		r.title, r.location = e.splitQuoted(e.plainText(body))
	}

	if len(flags) > 0 {
		r.location = strings.Join(flags, "; ")
	}

	own := r.location
	if own == "" {
		own = r.inherited
	}

	st.listLocs = append(st.listLocs, own)

	return r
}

// tableLine consumes one line inside {| ... |}; it returns a row when one completes.
func (e *Extractor) tableLine(st *wikiState, line string, lineNo int) (row, bool) {
	t := st.table

	switch {
	case strings.HasPrefix(line, "|}"):
		r, ok := e.finishRow(st)
		st.table = nil

		return r, ok
	case strings.HasPrefix(line, "|-"):
		return e.finishRow(st)
	case strings.HasPrefix(line, "|+"):
		return row{}, false
	case strings.HasPrefix(line, "!"):
		if len(t.cells) == 0 {
			t.startRow = lineNo
		}

		for _, cell := range strings.Split(strings.TrimPrefix(line, "!"), "!!") {
			t.cells = append(t.cells, stripCellAttrs(cell))
		}

		t.header = true
	case strings.HasPrefix(line, "|"):
		if len(t.cells) == 0 {
			t.startRow = lineNo
		}

		for _, cell := range strings.Split(strings.TrimPrefix(line, "|"), "||") {
			t.cells = append(t.cells, stripCellAttrs(cell))
		}

		t.data = true
	case line != "" && len(t.cells) > 0:
		// Continuation of the previous cell.
		t.cells[len(t.cells)-1] += " " + line
	}

	return row{}, false
}

// finishRow turns the buffered cells into a row, or records them as the header.
func (e *Extractor) finishRow(st *wikiState) (row, bool) {
	t := st.table
	cells := t.cells
	header := t.header && !t.data
	startRow := t.startRow

	t.cells = nil
	t.header = false
	t.data = false

	if len(cells) == 0 {
		return row{}, false
	}

	if header {
		for i, cell := range cells {
			name := strings.ToLower(e.plainText(cell))

			switch {
			case strings.Contains(name, "location") || strings.Contains(name, "country") || strings.Contains(name, "place"):
				t.locCol = i
			case strings.Contains(name, "article") || strings.Contains(name, "title") || strings.Contains(name, "name"):
				t.titleCol = i
			}
		}

		return row{}, false
	}

	r := row{
		heading: st.innermost(3),
		section: e.sectionName(st.innermost(2)),
		group:   st.headings[2],
		anchor:  e.anchor(st, startRow),
	}

	if t.titleCol >= 0 && t.titleCol < len(cells) {
		if title, _, ok := e.firstLink(flagRe.ReplaceAllString(cells[t.titleCol], "")); ok {
			r.title = title
		} else {
			r.title = e.cleanTitle(strings.Trim(e.plainText(cells[t.titleCol]), `"“”'`))
		}
	} else {
		for i, cell := range cells {
			if i == t.locCol {
				continue
			}

			if title, _, ok := e.firstLink(flagRe.ReplaceAllString(cell, "")); ok {
				r.title = title

				break
			}
		}
	}

	switch {
	case t.locCol >= 0 && t.locCol < len(cells):
		if flags := flagNames(cells[t.locCol]); len(flags) > 0 {
			r.location = strings.Join(flags, "; ")
		} else {
			r.location = e.text.TrimPunctuation(e.plainText(cells[t.locCol]))
		}
	default:
		var flags []string
		for _, cell := range cells {
			flags = append(flags, flagNames(cell)...)
		}

		r.location = strings.Join(flags, "; ")
	}

	return r, true
}

// stripCellAttrs drops a leading `style="..." |` attribute block from a table cell.
func stripCellAttrs(cell string) string {
	depth := 0

	for i := 0; i < len(cell); i++ {
		switch {
		case strings.HasPrefix(cell[i:], "[[") || strings.HasPrefix(cell[i:], "{{"):
			depth++
			i++
		case strings.HasPrefix(cell[i:], "]]") || strings.HasPrefix(cell[i:], "}}"):
			depth--
			i++
		case cell[i] == '|' && depth == 0:
			if strings.Contains(cell[:i], "=") {
				return strings.TrimSpace(cell[i+1:])
			}

			return strings.TrimSpace(cell)
		}
	}

	return strings.TrimSpace(cell)
}

// firstLink returns the first article link in s and the text after it.
func (e *Extractor) firstLink(s string) (string, string, bool) {
	for _, loc := range linkRe.FindAllStringSubmatchIndex(s, -1) {
		target := strings.TrimSpace(s[loc[2]:loc[3]])
		if !isArticleTitle(target) {
			continue
		}

		return e.cleanTitle(target), s[loc[1]:], true
	}

	return "", "", false
}

func flagNames(s string) []string {
	var names []string
	for _, m := range flagRe.FindAllStringSubmatch(s, -1) {
		names = append(names, strings.TrimSpace(m[1]))
	}

	return names
}

// plainText strips wiki markup, keeping link labels.
func (e *Extractor) plainText(s string) string {
	s = linkRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		if !isArticleTitle(strings.TrimSpace(sub[1])) {
			return ""
		}

		if sub[2] != "" {
			return sub[2]
		}

		return sub[1]
	})
	s = extLinkRe.ReplaceAllString(s, "$1")

	for templateRe.MatchString(s) {
		s = templateRe.ReplaceAllString(s, "")
	}

	s = tagRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "'''", "")
	s = strings.ReplaceAll(s, "''", "")

	return e.text.NormalizeWhitespace(s)
}
