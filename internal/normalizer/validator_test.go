package normalizer

import (
	"errors"
	"testing"

	"wikiweird/internal/models"
	"wikiweird/pkg/metadata"
)

func validArticle() models.Article {
	code := "CZ"

	return models.Article{
		ID:          metadata.ArticleID("Sedlec Ossuary"),
		Title:       "Sedlec Ossuary",
		Description: models.StringPtr("A chapel"),
		URL:         "https://en.wikipedia.org/wiki/Sedlec_Ossuary",
		Country:     &code,
		Region:      models.RegionEurope,
		Status:      models.StatusOk,
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(validArticle()); err != nil {
		t.Fatalf("Expected valid article, got %v", err)
	}

	lower := "cz"

	tests := []struct {
		name    string
		mutate  func(*models.Article)
		wantErr error
	}{
		{"short id", func(a *models.Article) { a.ID = "abc" }, ErrInvalidID},
		{"empty title", func(a *models.Article) { a.Title = "" }, ErrMissingTitle},
		{"relative url", func(a *models.Article) { a.URL = "/wiki/Sedlec_Ossuary" }, ErrInvalidURL},
		{"empty region", func(a *models.Article) { a.Region = "" }, ErrInvalidRegion},
		{"unknown status", func(a *models.Article) { a.Status = "Pending" }, ErrInvalidStatus},
		{"lowercase country", func(a *models.Article) { a.Country = &lower }, ErrInvalidCountry},
		{"country without region", func(a *models.Article) { a.Region = models.RegionUnresolved }, ErrRegionMismatch},
		{"region without country", func(a *models.Article) { a.Country = nil }, ErrRegionMismatch},
		{"description on error", func(a *models.Article) { a.Status = models.StatusError }, ErrUnexpectedOptional},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validArticle()
			tt.mutate(&a)

			if err := v.Validate(a); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidator_UnresolvedIsValid(t *testing.T) {
	a := validArticle()
	a.Country = nil
	a.Region = models.RegionUnresolved
	a.Status = models.StatusError
	a.Description = nil

	if err := NewValidator().Validate(a); err != nil {
		t.Errorf("Unresolved error article should be valid, got %v", err)
	}
}
