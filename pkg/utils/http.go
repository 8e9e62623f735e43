// Package utils provides common utility functions.
package utils

import (
	"net/http"
	"net/url"
)

// DefaultUserAgent identifies the pipeline to remote APIs.
const DefaultUserAgent = "wikiweird/1.0 (https://github.com/ameliatheamazin/wikiweird)"

// HTTPHelper provides HTTP utility functions.
type HTTPHelper struct {
	userAgent string
}

// NewHTTPHelper creates a new HTTP helper. An empty user agent falls back to DefaultUserAgent.
func NewHTTPHelper(userAgent string) *HTTPHelper {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &HTTPHelper{userAgent: userAgent}
}

// IsValidURL reports whether raw is an absolute http(s) URL.
func (h *HTTPHelper) IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// BuildHeaders creates HTTP headers with defaults.
func (h *HTTPHelper) BuildHeaders(customHeaders map[string]string) http.Header {
	headers := http.Header{}

	headers.Set("User-Agent", h.userAgent)
	headers.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")

	for key, value := range customHeaders {
		headers.Set(key, value)
	}

	return headers
}

// Apply copies the default headers onto req.
func (h *HTTPHelper) Apply(req *http.Request, customHeaders map[string]string) {
	for key, values := range h.BuildHeaders(customHeaders) {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
}
