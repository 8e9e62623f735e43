// Package models defines data structures shared by the extractor, resolver, enricher and writer.
package models

import "time"

// Article is the canonical output record consumed by the map frontend.
type Article struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  *string `json:"description"`
	URL          string  `json:"url"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	Country      *string `json:"country"`
	Region       Region  `json:"region"`
	Status       Status  `json:"status"`
}

// Equal reports whether two articles carry the same field values.
func (a Article) Equal(b Article) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.URL == b.URL &&
		a.Region == b.Region &&
		a.Status == b.Status &&
		equalPtr(a.Description, b.Description) &&
		equalPtr(a.ThumbnailURL, b.ThumbnailURL) &&
		equalPtr(a.Country, b.Country)
}

// Snapshot is one immutable, versioned output of a pipeline run.
type Snapshot struct {
	GeneratedAt   time.Time `json:"generatedAt"`
	SourceVersion string    `json:"sourceVersion"`
	Articles      []Article `json:"articles"`
}

// SameContent reports whether two snapshots differ only in GeneratedAt.
func (s *Snapshot) SameContent(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}

	if s.SourceVersion != other.SourceVersion || len(s.Articles) != len(other.Articles) {
		return false
	}

	for i := range s.Articles {
		if !s.Articles[i].Equal(other.Articles[i]) {
			return false
		}
	}

	return true
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}
