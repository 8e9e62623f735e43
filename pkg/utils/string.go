package utils

import (
	"strings"
	"unicode"
)

// StringHelper provides string utility functions.
type StringHelper struct{}

// NewStringHelper creates a new string helper.
func NewStringHelper() *StringHelper {
	return &StringHelper{}
}

// NormalizeWhitespace replaces runs of whitespace with a single space and trims the ends.
func (s *StringHelper) NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// TrimPunctuation strips leading and trailing punctuation and whitespace.
func (s *StringHelper) TrimPunctuation(str string) string {
	return strings.TrimFunc(str, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != ')' && r != '(')
	})
}

// Slug lowercases str and joins its alphanumeric words with hyphens.
func (s *StringHelper) Slug(str string) string {
	fields := strings.FieldsFunc(strings.ToLower(str), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	return strings.Join(fields, "-")
}

// WikiPath converts a title into its URL path form ("Spite house" -> "Spite_house").
func (s *StringHelper) WikiPath(title string) string {
	return strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
}
