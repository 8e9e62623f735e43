// Package resolver maps raw location text to a country and region.
package resolver

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"wikiweird/internal/models"
)

//go:embed countries.yaml
var countriesYAML []byte

// Table errors.
var (
	ErrInvalidTable = errors.New("invalid country table")
	ErrNoLocation   = errors.New("no location text")
	ErrNoMatch      = errors.New("location not in country table")
)

// ResolutionDefect records an entry that could not be placed.
type ResolutionDefect struct {
	Err         error
	Title       string
	Anchor      string
	RawLocation string
}

func (d *ResolutionDefect) Error() string {
	return fmt.Sprintf("resolve %q (%s): %s: %q", d.Title, d.Anchor, d.Err, d.RawLocation)
}

func (d *ResolutionDefect) Unwrap() error {
	return d.Err
}

// Country is one row of the country table.
type Country struct {
	Code     string        `yaml:"code"`
	Name     string        `yaml:"name"`
	Region   models.Region `yaml:"region"`
	Aliases  []string      `yaml:"aliases"`
	Demonyms []string      `yaml:"demonyms"`
	Places   []string      `yaml:"places"`
}

// MultiName maps one name to several countries.
type MultiName struct {
	Name       string   `yaml:"name"`
	Successors []string `yaml:"successors"`
	Candidates []string `yaml:"candidates"`
}

func (m MultiName) codes() []string {
	return append(append([]string{}, m.Successors...), m.Candidates...)
}

// Table is the versioned static data the resolver is built from.
type Table struct {
	Version    string      `yaml:"version"`
	Countries  []Country   `yaml:"countries"`
	Historical []MultiName `yaml:"historical"`
	Ambiguous  []MultiName `yaml:"ambiguous"`
}

// LoadTable parses a YAML country table.
func LoadTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	return &t, nil
}

// DefaultTable returns the embedded country table.
func DefaultTable() (*Table, error) {
	return LoadTable(countriesYAML)
}

type term struct {
	words []string
	codes []string
	short bool
}

// Resolver resolves raw locations against a Table. It is safe for concurrent use.
type Resolver struct {
	table     *Table
	countries map[string]*Country
	rank      map[string]int
	exact     map[string]string
	heuristic map[string][]string
	terms     []term
	protect   *regexp.Regexp
}

// New builds a resolver from the embedded table and runs the self-check.
func New() (*Resolver, error) {
	t, err := DefaultTable()
	if err != nil {
		return nil, err
	}

	return NewWithTable(t)
}

// MustNew is like New but panics if the embedded table is broken.
func MustNew() *Resolver {
	r, err := New()
	if err != nil {
		panic(err)
	}

	return r
}

var codePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// NewWithTable indexes t, failing if any country lacks a valid region or two
// countries claim the same name.
func NewWithTable(t *Table) (*Resolver, error) {
	if t == nil || t.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidTable)
	}

	if len(t.Countries) == 0 {
		return nil, fmt.Errorf("%w: no countries", ErrInvalidTable)
	}

	r := &Resolver{
		table:     t,
		countries: make(map[string]*Country, len(t.Countries)),
		rank:      make(map[string]int, len(t.Countries)),
		exact:     make(map[string]string),
		heuristic: make(map[string][]string),
	}

	for i := range t.Countries {
		c := &t.Countries[i]

		if !codePattern.MatchString(c.Code) {
			return nil, fmt.Errorf("%w: bad code %q", ErrInvalidTable, c.Code)
		}

		if _, dup := r.countries[c.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate code %s", ErrInvalidTable, c.Code)
		}

		if c.Name == "" {
			return nil, fmt.Errorf("%w: %s has no name", ErrInvalidTable, c.Code)
		}

		if !c.Region.Valid() || c.Region == models.RegionUnresolved {
			return nil, fmt.Errorf("%w: %s has no region mapping (%q)", ErrInvalidTable, c.Code, c.Region)
		}

		r.countries[c.Code] = c
		r.rank[c.Code] = i

		for _, name := range append([]string{c.Name}, c.Aliases...) {
			if err := r.addExact(name, c.Code); err != nil {
				return nil, err
			}
		}

		for _, name := range append(append([]string{}, c.Demonyms...), c.Places...) {
			r.addHeuristic(name, c.Code)
		}
	}

	for _, m := range append(append([]MultiName{}, t.Historical...), t.Ambiguous...) {
		codes := m.codes()
		if m.Name == "" || len(codes) == 0 {
			return nil, fmt.Errorf("%w: incomplete entry %q", ErrInvalidTable, m.Name)
		}

		for _, code := range codes {
			if _, ok := r.countries[code]; !ok {
				return nil, fmt.Errorf("%w: %q refers to unknown code %s", ErrInvalidTable, m.Name, code)
			}

			r.addHeuristic(m.Name, code)
		}
	}

	r.buildTerms()
	r.buildProtect()

	return r, nil
}

func (r *Resolver) addExact(name, code string) error {
	key := strings.Join(normalize(name).key, " ")
	if key == "" {
		return fmt.Errorf("%w: empty name for %s", ErrInvalidTable, code)
	}

	if other, ok := r.exact[key]; ok && other != code {
		return fmt.Errorf("%w: %q claimed by %s and %s", ErrInvalidTable, name, other, code)
	}

	r.exact[key] = code

	return nil
}

func (r *Resolver) addHeuristic(name, code string) {
	key := strings.Join(normalize(name).key, " ")
	if key == "" || slices.Contains(r.heuristic[key], code) {
		return
	}

	r.heuristic[key] = append(r.heuristic[key], code)
}

func (r *Resolver) buildTerms() {
	add := func(key string, codes []string) {
		r.terms = append(r.terms, term{
			words: strings.Fields(key),
			codes: codes,
			short: utf8.RuneCountInString(key) < 4,
		})
	}

	for key, code := range r.exact {
		add(key, []string{code})
	}

	for key, codes := range r.heuristic {
		add(key, codes)
	}

	// Map iteration order is random; keep scans deterministic.
	sort.Slice(r.terms, func(i, j int) bool {
		return strings.Join(r.terms[i].words, " ") < strings.Join(r.terms[j].words, " ")
	})
}

// buildProtect compiles the names that contain list separators so Split keeps them whole.
func (r *Resolver) buildProtect() {
	var names []string

	collect := func(name string) {
		if separatorRe.MatchString(name) {
			names = append(names, regexp.QuoteMeta(name))
		}
	}

	for _, c := range r.table.Countries {
		for _, name := range append(append([]string{c.Name}, c.Aliases...), c.Places...) {
			collect(name)
		}
	}

	if len(names) == 0 {
		return
	}

	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	r.protect = regexp.MustCompile(`(?i)\b(?:` + strings.Join(names, "|") + `)`)
}

// Version returns the table version.
func (r *Resolver) Version() string {
	return r.table.Version
}

// Country looks up a table row by ISO code.
func (r *Resolver) Country(code string) (Country, bool) {
	c, ok := r.countries[code]
	if !ok {
		return Country{}, false
	}

	return *c, true
}

// Countries returns the table rows in table order.
func (r *Resolver) Countries() []Country {
	return slices.Clone(r.table.Countries)
}

// Resolve maps raw to a country: exact name or alias first, then demonyms,
// places, historical names and substrings, otherwise Unresolved. Commas
// separate levels of one place ("Paris, Texas"), so the broadest level that
// names a country decides.
func (r *Resolver) Resolve(raw string) models.LocationResolution {
	n := normalize(raw)
	if len(n.key) == 0 {
		return models.Unresolved()
	}

	key := strings.Join(n.key, " ")

	if code, ok := r.exact[key]; ok {
		return r.resolved([]string{code}, models.ConfidenceExact)
	}

	if codes, ok := r.heuristic[key]; ok {
		return r.resolved(codes, models.ConfidenceHeuristic)
	}

	if res, ok := r.resolveLevels(raw); ok {
		return res
	}

	if codes := r.scan(n); len(codes) > 0 {
		return r.resolved(codes, models.ConfidenceHeuristic)
	}

	return models.Unresolved()
}

// resolveLevels walks the comma-separated levels of raw from the right. A
// level that is a country name wins outright; otherwise the rightmost level
// matching a place, demonym or substring does.
func (r *Resolver) resolveLevels(raw string) (models.LocationResolution, bool) {
	if !strings.Contains(raw, ",") {
		return models.LocationResolution{}, false
	}

	var levels []normalized

	for _, part := range strings.Split(raw, ",") {
		if n := normalize(part); len(n.key) > 0 {
			levels = append(levels, n)
		}
	}

	if len(levels) < 2 {
		return models.LocationResolution{}, false
	}

	for i := len(levels) - 1; i >= 0; i-- {
		if code, ok := r.exact[strings.Join(levels[i].key, " ")]; ok {
			return r.resolved([]string{code}, models.ConfidenceExact), true
		}
	}

	for i := len(levels) - 1; i >= 0; i-- {
		if codes, ok := r.heuristic[strings.Join(levels[i].key, " ")]; ok {
			return r.resolved(codes, models.ConfidenceHeuristic), true
		}

		if codes := r.scan(levels[i]); len(codes) > 0 {
			return r.resolved(codes, models.ConfidenceHeuristic), true
		}
	}

	return models.LocationResolution{}, false
}

// ResolveEntry resolves an entry and reports a defect when it stays Unresolved.
func (r *Resolver) ResolveEntry(e models.SourceEntry) (models.LocationResolution, error) {
	res := r.Resolve(e.RawLocation)
	if res.Confidence != models.ConfidenceUnresolved {
		return res, nil
	}

	cause := ErrNoMatch
	if strings.TrimSpace(e.RawLocation) == "" {
		cause = ErrNoLocation
	}

	return res, &ResolutionDefect{
		Err:         cause,
		Title:       e.Title,
		Anchor:      e.SourceAnchor,
		RawLocation: e.RawLocation,
	}
}

// resolved picks the first candidate in table order and keeps the rest for logging.
func (r *Resolver) resolved(codes []string, conf models.Confidence) models.LocationResolution {
	codes = slices.Clone(codes)
	slices.SortStableFunc(codes, func(a, b string) int { return r.rank[a] - r.rank[b] })
	codes = slices.Compact(codes)

	code := codes[0]
	res := models.LocationResolution{
		Country:    &code,
		Region:     r.countries[code].Region,
		Confidence: conf,
	}

	if len(codes) > 1 {
		res.Candidates = codes
	}

	return res
}

// regionHeadings maps listing section headings to regions.
var regionHeadings = []struct {
	name   string
	region models.Region
}{
	{"africa", models.RegionAfrica},
	{"asia", models.RegionAsia},
	{"middle east", models.RegionAsia},
	{"europe", models.RegionEurope},
	{"north america", models.RegionNorthAmerica},
	{"central america", models.RegionNorthAmerica},
	{"caribbean", models.RegionNorthAmerica},
	{"south america", models.RegionSouthAmerica},
	{"oceania", models.RegionOceania},
	{"australia and oceania", models.RegionOceania},
	{"australasia", models.RegionOceania},
	{"pacific", models.RegionOceania},
	{"antarctica", models.RegionAntarctica},
}

// RegionOf maps a section heading such as "North America" or
// "Central America and the Caribbean" to a region. A heading that is itself
// a country name maps to that country's region.
func (r *Resolver) RegionOf(heading string) (models.Region, bool) {
	key := strings.Join(normalize(heading).key, " ")
	if key == "" {
		return models.RegionUnresolved, false
	}

	for _, h := range regionHeadings {
		if key == h.name || strings.HasPrefix(key, h.name+" ") {
			return h.region, true
		}
	}

	if code, ok := r.exact[key]; ok {
		return r.countries[code].Region, true
	}

	return models.RegionUnresolved, false
}

// Evidence is text written about an article. Weight is how much a country
// named in it counts towards placing the article there.
type Evidence struct {
	Text   string
	Weight int
}

// ResolveContext places an article from what is written about it, for
// entries whose listed location did not resolve. Each piece of evidence adds
// its weight to every country it names once; unless region is Unresolved,
// countries outside it are ignored. The highest score wins with ties broken
// in table order, and the result is never better than Heuristic.
func (r *Resolver) ResolveContext(region models.Region, evidence ...Evidence) models.LocationResolution {
	filter := region.Valid() && region != models.RegionUnresolved
	scores := make(map[string]int)

	for _, ev := range evidence {
		n := normalize(ev.Text)
		if ev.Weight <= 0 || len(n.key) == 0 {
			continue
		}

		named := make(map[string]bool)

		for _, code := range r.scan(n) {
			if named[code] || (filter && r.countries[code].Region != region) {
				continue
			}

			named[code] = true
			scores[code] += ev.Weight
		}
	}

	var (
		best int
		top  []string
	)

	for code, score := range scores {
		switch {
		case score > best:
			best, top = score, []string{code}
		case score == best:
			top = append(top, code)
		}
	}

	if len(top) == 0 {
		return models.Unresolved()
	}

	return r.resolved(top, models.ConfidenceHeuristic)
}

type span struct {
	start, end int
	codes      []string
}

// scan finds every table term inside the text, drops terms nested in longer
// matches ("wales" in "new south wales") and returns the remaining codes.
func (r *Resolver) scan(n normalized) []string {
	var spans []span

	for _, t := range r.terms {
		hay := n.key
		needle := t.words

		if t.short {
			hay = n.cased
			needle = make([]string, len(t.words))

			for i, w := range t.words {
				needle[i] = strings.ToUpper(w)
			}
		}

		for i := 0; i+len(needle) <= len(hay); i++ {
			if slices.Equal(hay[i:i+len(needle)], needle) {
				spans = append(spans, span{start: i, end: i + len(needle), codes: t.codes})
			}
		}
	}

	var codes []string

	for _, s := range spans {
		if nested(s, spans) {
			continue
		}

		codes = append(codes, s.codes...)
	}

	return codes
}

func nested(s span, all []span) bool {
	for _, o := range all {
		if o.start <= s.start && s.end <= o.end && o.end-o.start > s.end-s.start {
			return true
		}
	}

	return false
}

var (
	separatorRe   = regexp.MustCompile(`\s*(?:;|/|&|\band\b)\s*`)
	placeholderRe = regexp.MustCompile("\x00([0-9]+)\x00")
)

// Split breaks a location into one string per country. Commas are not list
// separators ("Perth, Scotland" is one place). Compound names such as
// "Bosnia and Herzegovina" stay whole, parts naming the same country collapse
// to the most confident one, and text with no recognisable part is returned
// unsplit.
func (r *Resolver) Split(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var saved []string

	masked := raw
	if r.protect != nil {
		masked = r.protect.ReplaceAllStringFunc(raw, func(m string) string {
			saved = append(saved, m)

			return "\x00" + strconv.Itoa(len(saved)-1) + "\x00"
		})
	}

	var parts []string

	for _, p := range separatorRe.Split(masked, -1) {
		p = placeholderRe.ReplaceAllStringFunc(p, func(m string) string {
			idx, _ := strconv.Atoi(strings.Trim(m, "\x00"))

			return saved[idx]
		})

		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	if len(parts) <= 1 {
		return []string{raw}
	}

	type pick struct {
		part string
		conf models.Confidence
	}

	picks := make(map[string]pick)

	var order []string

	for _, p := range parts {
		res := r.Resolve(p)
		if res.Country == nil {
			continue
		}

		code := *res.Country

		prev, seen := picks[code]
		if !seen {
			order = append(order, code)
		}

		if !seen || res.Confidence > prev.conf {
			picks[code] = pick{part: p, conf: res.Confidence}
		}
	}

	if len(order) == 0 {
		return []string{raw}
	}

	out := make([]string, 0, len(order))
	for _, code := range order {
		out = append(out, picks[code].part)
	}

	return out
}

// normalized holds the folded words of a location and the same words with case kept.
type normalized struct {
	key   []string
	cased []string
}

// normalize strips diacritics and punctuation, folds case and drops a leading "the".
func normalize(raw string) normalized {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	stripped, _, err := transform.String(stripper, raw)
	if err != nil {
		stripped = raw
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}

		return ' '
	}, stripped)

	n := normalized{
		key:   strings.Fields(cases.Fold().String(cleaned)),
		cased: strings.Fields(cleaned),
	}

	if len(n.key) > 1 && n.key[0] == "the" {
		n.key = n.key[1:]
		n.cased = n.cased[1:]
	}

	return n
}
