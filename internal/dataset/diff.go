package dataset

import (
	"sort"

	"wikiweird/internal/models"
)

// DiffEntry is one article that differs between two snapshots.
type DiffEntry struct {
	ID    string
	Title string
	// Fields lists the changed JSON fields; empty for added and removed articles.
	Fields []string
}

// Diff lists article ids added, removed and changed between two snapshots, sorted by id.
type Diff struct {
	Added   []DiffEntry
	Removed []DiffEntry
	Changed []DiffEntry
}

// Empty reports whether the snapshots carry the same articles.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Compare diffs prev against next. A nil prev counts every article as added.
func Compare(prev, next *models.Snapshot) *Diff {
	before := index(prev)
	after := index(next)

	d := &Diff{}

	for id, a := range after {
		old, ok := before[id]
		if !ok {
			d.Added = append(d.Added, DiffEntry{ID: id, Title: a.Title})

			continue
		}

		if fields := changedFields(old, a); len(fields) > 0 {
			d.Changed = append(d.Changed, DiffEntry{ID: id, Title: a.Title, Fields: fields})
		}
	}

	for id, a := range before {
		if _, ok := after[id]; !ok {
			d.Removed = append(d.Removed, DiffEntry{ID: id, Title: a.Title})
		}
	}

	for _, entries := range [][]DiffEntry{d.Added, d.Removed, d.Changed} {
		sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	}

	return d
}

func index(s *models.Snapshot) map[string]models.Article {
	if s == nil {
		return map[string]models.Article{}
	}

	m := make(map[string]models.Article, len(s.Articles))
	for _, a := range s.Articles {
		m[a.ID] = a
	}

	return m
}

func changedFields(a, b models.Article) []string {
	var fields []string

	check := func(name string, same bool) {
		if !same {
			fields = append(fields, name)
		}
	}

	check("title", a.Title == b.Title)
	check("description", models.Deref(a.Description) == models.Deref(b.Description) && (a.Description == nil) == (b.Description == nil))
	check("url", a.URL == b.URL)
	check("thumbnailUrl", models.Deref(a.ThumbnailURL) == models.Deref(b.ThumbnailURL) && (a.ThumbnailURL == nil) == (b.ThumbnailURL == nil))
	check("country", models.Deref(a.Country) == models.Deref(b.Country) && (a.Country == nil) == (b.Country == nil))
	check("region", a.Region == b.Region)
	check("status", a.Status == b.Status)

	return fields
}
