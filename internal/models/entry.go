package models

import "time"

// SourceEntry is one candidate row of the unusual-articles listing.
type SourceEntry struct {
	Title        string
	RawLocation  string
	SourceAnchor string
	// Section is the top-level listing heading the row sits under, usually a continent.
	Section string
	// Order is the zero-based position in listing order.
	Order int
}

// LocationResolution is the resolver's verdict for a raw location string.
type LocationResolution struct {
	Country    *string
	Region     Region
	Confidence Confidence
	// Candidates lists every country code considered for an ambiguous match.
	Candidates []string
}

// Unresolved returns the resolution used when no country matched.
func Unresolved() LocationResolution {
	return LocationResolution{
		Region:     RegionUnresolved,
		Confidence: ConfidenceUnresolved,
	}
}

// EnrichmentResult holds the knowledge-base metadata for one title.
type EnrichmentResult struct {
	FetchedAt      time.Time
	Title          string
	CanonicalTitle string
	Description    *string
	// Extract is the lead paragraph, kept for locating articles the listing did not place.
	Extract        string
	URL            string
	ThumbnailURL   *string
	RedirectedFrom string
	Status         Status
	// Reason records the last failure for StatusError.
	Reason string
}
