package enricher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"wikiweird/pkg/utils"
)

// Lookup errors.
var (
	ErrNotFound          = errors.New("page not found")
	ErrTooManyRedirects  = errors.New("redirect chain longer than one hop")
	ErrMalformedSummary  = errors.New("malformed summary response")
	ErrUnexpectedStatus  = errors.New("unexpected status code")
	ErrMissingRedirectTo = errors.New("redirect without location")
)

// TransientError is a failure worth retrying: timeouts, rate limits and 5xx responses.
type TransientError struct {
	Err        error
	StatusCode int
	// RetryAfter is the server-requested wait, zero when absent.
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient failure (status %d): %v", e.StatusCode, e.Err)
	}

	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError

	return errors.As(err, &te)
}

// Summary is the subset of the REST page summary the pipeline uses.
type Summary struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Titles struct {
		Canonical  string `json:"canonical"`
		Normalized string `json:"normalized"`
	} `json:"titles"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
	Thumbnail   *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`

	// RedirectedFrom is the requested title when a redirect was followed.
	RedirectedFrom string `json:"-"`
}

// CanonicalTitle returns the display form of the authoritative title.
func (s *Summary) CanonicalTitle() string {
	for _, t := range []string{s.Titles.Normalized, s.Titles.Canonical, s.Title} {
		if t != "" {
			return strings.ReplaceAll(t, "_", " ")
		}
	}

	return ""
}

// IsDisambiguation reports whether the page lists several meanings.
func (s *Summary) IsDisambiguation() bool {
	return s.Type == "disambiguation"
}

// Text returns the short description, falling back to the lead extract.
func (s *Summary) Text() string {
	if s.Description != "" {
		return s.Description
	}

	return s.Extract
}

// ThumbnailURL returns the thumbnail source or "".
func (s *Summary) ThumbnailURL() string {
	if s.Thumbnail == nil {
		return ""
	}

	return s.Thumbnail.Source
}

// Lookuper fetches the summary of one title.
type Lookuper interface {
	Lookup(ctx context.Context, title string) (*Summary, error)
}

// Client talks to the REST summary endpoint.
type Client struct {
	http    *http.Client
	headers *utils.HTTPHelper
	baseURL string
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client. Its redirect policy is overridden.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		copied := *hc
		c.http = &copied
	}
}

// NewClient creates a summary client for baseURL (e.g. https://en.wikipedia.org/api/rest_v1).
func NewClient(baseURL, userAgent string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{},
		headers: utils.NewHTTPHelper(userAgent),
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Redirects are followed by hand so the canonical title can be recorded.
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return c
}

// Lookup fetches the summary for title, following at most one redirect.
func (c *Client) Lookup(ctx context.Context, title string) (*Summary, error) {
	summary, location, err := c.get(ctx, title)
	if err != nil {
		return nil, err
	}

	if location == "" {
		return summary, nil
	}

	target := titleFromLocation(location)
	if target == "" {
		return nil, ErrMissingRedirectTo
	}

	summary, location, err = c.get(ctx, target)
	if err != nil {
		return nil, err
	}

	if location != "" {
		return nil, fmt.Errorf("%w: %s -> %s -> %s", ErrTooManyRedirects, title, target, titleFromLocation(location))
	}

	summary.RedirectedFrom = title

	return summary, nil
}

func (c *Client) summaryURL(title string) string {
	return c.baseURL + "/page/summary/" + url.PathEscape(utils.NewStringHelper().WikiPath(title)) + "?redirect=false"
}

// get performs one request. A redirect returns its Location instead of a summary.
func (c *Client) get(ctx context.Context, title string) (*Summary, string, error) {
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)

		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.summaryURL(title), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	c.headers.Apply(req, nil)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		return nil, "", &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		var s Summary
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			if ctx.Err() == nil && reqCtx.Err() != nil {
				return nil, "", &TransientError{Err: err}
			}

			return nil, "", fmt.Errorf("%w: %w", ErrMalformedSummary, err)
		}

		return &s, "", nil
	case code == http.StatusMovedPermanently || code == http.StatusFound || code == http.StatusSeeOther ||
		code == http.StatusTemporaryRedirect || code == http.StatusPermanentRedirect:
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, "", ErrMissingRedirectTo
		}

		return nil, location, nil
	case code == http.StatusNotFound:
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, title)
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil, "", &TransientError{
			Err:        fmt.Errorf("%w: %d", ErrUnexpectedStatus, code),
			StatusCode: code,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return nil, "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
}

// titleFromLocation extracts the page title from a redirect target such as
// "Sedlec_Ossuary" or "https://host/api/rest_v1/page/summary/Sedlec_Ossuary".
func titleFromLocation(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}

	base := path.Base(u.EscapedPath())
	if base == "." || base == "/" {
		return ""
	}

	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}

	return strings.ReplaceAll(base, "_", " ")
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}

	return time.Duration(secs) * time.Second
}
