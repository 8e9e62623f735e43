// Package metadata provides content hashing used for snapshot versions and article identifiers.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IDLength is the number of hex characters kept for article identifiers.
const IDLength = 16

// CalculateHash computes the SHA-256 hex digest of content.
func CalculateHash(content string) string {
	hash := sha256.Sum256([]byte(content))

	return hex.EncodeToString(hash[:])
}

// SourceVersion returns the version marker of a raw listing.
// Line endings and trailing newlines are normalized so that a re-fetch of
// the same listing yields the same version.
func SourceVersion(raw string) string {
	clean := strings.ReplaceAll(raw, "\r\n", "\n")
	clean = strings.TrimRight(clean, "\n")

	return CalculateHash(clean)
}

// ArticleID derives the stable identifier of an article from its canonical title.
func ArticleID(canonicalTitle string) string {
	return CalculateHash(canonicalTitle)[:IDLength]
}
