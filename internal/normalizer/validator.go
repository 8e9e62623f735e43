package normalizer

import (
	"errors"
	"fmt"
	"regexp"

	"wikiweird/internal/models"
	"wikiweird/pkg/metadata"
	"wikiweird/pkg/utils"
)

// Validation errors.
var (
	ErrInvalidID          = errors.New("id must be a 16 character hex digest")
	ErrDuplicateID        = errors.New("id already used by another article")
	ErrMissingTitle       = errors.New("title is empty")
	ErrInvalidURL         = errors.New("url is not an absolute http(s) URL")
	ErrInvalidRegion      = errors.New("region is not an enumerated value")
	ErrInvalidStatus      = errors.New("status is not an enumerated value")
	ErrInvalidCountry     = errors.New("country must be an ISO 3166-1 alpha-2 code")
	ErrRegionMismatch     = errors.New("region disagrees with country")
	ErrUnexpectedOptional = errors.New("description and thumbnail must be null unless status is Ok")
)

// ValidationDefect reports an article dropped from the snapshot.
type ValidationDefect struct {
	Err    error
	ID     string
	Title  string
	Anchor string
}

func (d *ValidationDefect) Error() string {
	return fmt.Sprintf("article %q (%s) failed validation: %v", d.Title, d.ID, d.Err)
}

func (d *ValidationDefect) Unwrap() error {
	return d.Err
}

// Validator checks articles against the output schema.
type Validator struct {
	idPattern      *regexp.Regexp
	countryPattern *regexp.Regexp
	http           *utils.HTTPHelper
}

// NewValidator creates a new validator instance.
func NewValidator() *Validator {
	return &Validator{
		idPattern:      regexp.MustCompile(fmt.Sprintf(`^[0-9a-f]{%d}$`, metadata.IDLength)),
		countryPattern: regexp.MustCompile(`^[A-Z]{2}$`),
		http:           utils.NewHTTPHelper(""),
	}
}

// Validate returns the first schema violation of a, or nil.
func (v *Validator) Validate(a models.Article) error {
	if !v.idPattern.MatchString(a.ID) {
		return ErrInvalidID
	}

	if a.Title == "" {
		return ErrMissingTitle
	}

	if !v.http.IsValidURL(a.URL) {
		return fmt.Errorf("%w: %q", ErrInvalidURL, a.URL)
	}

	if !a.Region.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRegion, a.Region)
	}

	if !a.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, a.Status)
	}

	if a.Country != nil && !v.countryPattern.MatchString(*a.Country) {
		return fmt.Errorf("%w: %q", ErrInvalidCountry, *a.Country)
	}

	if (a.Country == nil) != (a.Region == models.RegionUnresolved) {
		return ErrRegionMismatch
	}

	if a.Status != models.StatusOk && (a.Description != nil || a.ThumbnailURL != nil) {
		return ErrUnexpectedOptional
	}

	return nil
}
