// Package extractor turns the raw unusual-articles listing into SourceEntry values.
package extractor

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"wikiweird/internal/config"
	"wikiweird/internal/logger"
	"wikiweird/internal/models"
	"wikiweird/pkg/utils"
)

// Extraction errors.
var (
	ErrEmptyListing   = errors.New("listing is empty")
	ErrNoStructure    = errors.New("listing has no headings, lists or tables")
	ErrUnknownFormat  = errors.New("unknown listing format")
	ErrNoEntries      = errors.New("listing produced no entries")
	ErrUnparsableHTML = errors.New("listing HTML could not be parsed")
)

// ExtractionError reports a listing that cannot be parsed at all.
type ExtractionError struct {
	Err    error
	Origin string
}

func (e *ExtractionError) Error() string {
	if e.Origin == "" {
		return "extraction failed: " + e.Err.Error()
	}

	return fmt.Sprintf("extraction of %s failed: %s", e.Origin, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Splitter breaks a raw location into one string per country.
type Splitter func(raw string) []string

// skipPrefixes are namespaces whose links never name an article.
var skipPrefixes = []string{
	"file:", "image:", "category:", ":category:", "wp:", "wikipedia:",
	"template:", "commons:", "help:", "portal:", "special:", "talk:",
}

var separatorRe = regexp.MustCompile(`\s*(?:;|/|&|\band\b)\s*`)

// DefaultSplitter splits on common list separators.
func DefaultSplitter(raw string) []string {
	var parts []string

	for _, p := range separatorRe.Split(raw, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	return parts
}

// Stats counts what a Sequence produced. Final only once the sequence is drained.
type Stats struct {
	Rows    int
	Emitted int
	Skipped int
	Limited int
}

// Extractor parses listings in wikitext or rendered HTML.
type Extractor struct {
	logger        *logger.Logger
	splitter      Splitter
	text          *utils.StringHelper
	format        string
	origin        string
	maxPerSection int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithFormat forces a markup dialect instead of detecting it.
func WithFormat(format string) Option {
	return func(e *Extractor) { e.format = format }
}

// WithSplitter replaces DefaultSplitter.
func WithSplitter(s Splitter) Option {
	return func(e *Extractor) { e.splitter = s }
}

// WithMaxEntriesPerSection limits rows per section; 0 means unlimited.
func WithMaxEntriesPerSection(n int) Option {
	return func(e *Extractor) { e.maxPerSection = n }
}

// WithLogger sets the logger used for skipped rows.
func WithLogger(l *logger.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l.Component("extractor")
		}
	}
}

// WithOrigin names the listing in errors.
func WithOrigin(origin string) Option {
	return func(e *Extractor) { e.origin = origin }
}

// New creates an extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		logger:   logger.NewNop(),
		splitter: DefaultSplitter,
		text:     utils.NewStringHelper(),
		format:   config.FormatAuto,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// row is one candidate entry before splitting.
type row struct {
	title     string
	location  string
	inherited string
	heading   string
	section   string
	group     string
	anchor    string
}

// walker yields rows in listing order until yield returns false.
type walker func(yield func(row) bool)

// Sequence is a lazy, single-use stream of SourceEntry.
type Sequence struct {
	ext      *Extractor
	walk     walker
	stats    Stats
	consumed bool
}

// Extract checks that raw has usable structure and returns a lazy entry sequence.
func (e *Extractor) Extract(raw string) (*Sequence, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ExtractionError{Err: ErrEmptyListing, Origin: e.origin}
	}

	format := e.format
	if format == "" || format == config.FormatAuto {
		format = DetectFormat(raw)
	}

	var (
		walk walker
		err  error
	)

	switch format {
	case config.FormatWikitext:
		walk, err = e.wikitextWalker(raw)
	case config.FormatHTML:
		walk, err = e.htmlWalker(raw)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	if err != nil {
		return nil, &ExtractionError{Err: err, Origin: e.origin}
	}

	return &Sequence{ext: e, walk: walk}, nil
}

// DetectFormat guesses the markup dialect of raw.
func DetectFormat(raw string) string {
	lower := strings.ToLower(raw)
	if strings.Contains(raw, "[[") || strings.Contains(raw, "\n==") || strings.HasPrefix(raw, "==") {
		return config.FormatWikitext
	}

	for _, tag := range []string{"<html", "<body", "<h2", "<h3", "<ul", "<ol", "<table", "<li"} {
		if strings.Contains(lower, tag) {
			return config.FormatHTML
		}
	}

	return config.FormatWikitext
}

// All yields every entry once. Later calls yield nothing.
func (s *Sequence) All() iter.Seq[models.SourceEntry] {
	return func(yield func(models.SourceEntry) bool) {
		if s.consumed {
			return
		}

		s.consumed = true

		order := 0
		perSection := make(map[string]int)

		s.walk(func(r row) bool {
			s.stats.Rows++

			if r.title == "" {
				s.stats.Skipped++
				s.ext.logger.Warn("skipping row without title", "anchor", r.anchor)

				return true
			}

			if limit := s.ext.maxPerSection; limit > 0 {
				if perSection[r.section] >= limit {
					s.stats.Limited++

					return true
				}

				perSection[r.section]++
			}

			for _, loc := range s.ext.locations(r) {
				entry := models.SourceEntry{
					Title:        r.title,
					RawLocation:  loc,
					SourceAnchor: r.anchor,
					Section:      r.group,
					Order:        order,
				}
				order++
				s.stats.Emitted++

				if !yield(entry) {
					return false
				}
			}

			return true
		})
	}
}

// Collect drains the sequence into a slice.
func (s *Sequence) Collect() []models.SourceEntry {
	var entries []models.SourceEntry
	for entry := range s.All() {
		entries = append(entries, entry)
	}

	return entries
}

// Stats returns the counters gathered so far.
func (s *Sequence) Stats() Stats {
	return s.stats
}

// locations picks the row's effective location and splits it.
func (e *Extractor) locations(r row) []string {
	loc := r.location
	if loc == "" {
		loc = r.inherited
	}

	if loc == "" {
		loc = r.heading
	}

	if loc == "" {
		return []string{""}
	}

	parts := e.splitter(loc)
	if len(parts) == 0 {
		return []string{""}
	}

	return parts
}

// isArticleTitle rejects namespaced and empty link targets.
func isArticleTitle(title string) bool {
	if title == "" || strings.HasPrefix(title, "#") {
		return false
	}

	lower := strings.ToLower(title)
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}

	return true
}

// cleanTitle turns a link target into a display title.
func (e *Extractor) cleanTitle(target string) string {
	if i := strings.Index(target, "#"); i > 0 {
		target = target[:i]
	}

	return e.text.NormalizeWhitespace(strings.ReplaceAll(target, "_", " "))
}

var locationSeparators = []string{"—", "–", "-", ":"}

// locationLeads introduce a location only when a capitalised name follows:
// ", Czech Republic" and "in Portland, Oregon" but not ", a chapel".
var locationLeads = []string{",", "in "}

// maxLocationWords separates "— Czech Republic" from "— a chapel decorated with bones".
const maxLocationWords = 6

// locationFromRest reads a location from the text following a title:
// "— Czech Republic", ", Czech Republic", "in Portland, Oregon" or a
// trailing "(Czech Republic)". Longer trailing text is a description and
// yields no location.
func (e *Extractor) locationFromRest(rest string) string {
	rest = e.text.NormalizeWhitespace(rest)

	for _, sep := range locationSeparators {
		if after, ok := strings.CutPrefix(rest, sep); ok {
			after = e.text.TrimPunctuation(after)
			if len(strings.Fields(after)) > maxLocationWords {
				return ""
			}

			return after
		}
	}

	for _, lead := range locationLeads {
		if after, ok := strings.CutPrefix(rest, lead); ok {
			after = e.text.TrimPunctuation(after)
			if first, _ := utf8.DecodeRuneInString(after); !unicode.IsUpper(first) {
				return ""
			}

			if len(strings.Fields(after)) > maxLocationWords {
				return ""
			}

			return after
		}
	}

	if strings.HasSuffix(rest, ")") {
		if open := strings.LastIndex(rest, "("); open >= 0 {
			return e.text.TrimPunctuation(rest[open+1 : len(rest)-1])
		}
	}

	return ""
}

// splitQuoted handles rows without a link: `"Title" — Location`.
func (e *Extractor) splitQuoted(text string) (string, string) {
	text = e.text.NormalizeWhitespace(text)

	for _, sep := range []string{" — ", " – ", " - ", ": "} {
		if before, after, ok := strings.Cut(text, sep); ok {
			title := strings.Trim(before, ` "“”'`)

			return title, e.text.TrimPunctuation(after)
		}
	}

	return "", ""
}

// sectionName returns the slug used in anchors and per-section limits.
func (e *Extractor) sectionName(heading string) string {
	if slug := e.text.Slug(heading); slug != "" {
		return slug
	}

	return "top"
}
