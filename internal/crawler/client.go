package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"wikiweird/internal/config"
	"wikiweird/internal/logger"
)

// Client errors.
var (
	ErrPageMissing      = errors.New("wiki page missing")
	ErrMalformedPayload = errors.New("malformed MediaWiki API payload")
)

// Listing is the raw listing text plus where it came from.
type Listing struct {
	Raw    string
	Origin string
	// Format is the markup dialect when the fetch path implies one, otherwise empty.
	Format string
}

// Client fetches listings from a file, a MediaWiki page or a plain URL.
type Client struct {
	scraper *Scraper
	logger  *logger.Logger
}

// NewClient creates a new crawler client with default dependencies.
func NewClient(log *logger.Logger) *Client {
	return NewClientWithDeps(NewScraper(), log)
}

// NewClientWithDeps creates a new crawler client with an injected scraper.
func NewClientWithDeps(scraper *Scraper, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		scraper: scraper,
		logger:  log.Component("crawler"),
	}
}

// FetchListing returns the raw listing described by src.
func (c *Client) FetchListing(ctx context.Context, src config.SourceConfig) (*Listing, error) {
	switch {
	case src.IsLocalFile():
		content, err := c.scraper.ReadLocalFile(src.File)
		if err != nil {
			return nil, err
		}

		return &Listing{Raw: content, Origin: src.File, Format: formatOf(src)}, nil
	case src.IsWikiPage():
		return c.fetchPage(ctx, src)
	default:
		return c.fetchURLs(ctx, src)
	}
}

// fetchPage reads the page wikitext through action=parse.
func (c *Client) fetchPage(ctx context.Context, src config.SourceConfig) (*Listing, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", src.Page)
	params.Set("prop", "wikitext")
	params.Set("format", "json")
	params.Set("formatversion", "2")

	endpoint := src.APIURL + "?" + params.Encode()

	c.logger.Info("fetching listing page", "page", src.Page, "api", src.APIURL)

	body, err := c.scraper.Scrape(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %q: %w", src.Page, err)
	}

	wikitext, err := decodeParseResponse([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("page %q: %w", src.Page, err)
	}

	return &Listing{Raw: wikitext, Origin: src.Page, Format: config.FormatWikitext}, nil
}

type parseResponse struct {
	Parse *struct {
		Title    string          `json:"title"`
		Wikitext json.RawMessage `json:"wikitext"`
	} `json:"parse"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// decodeParseResponse accepts both formatversion 1 ({"*": text}) and 2 (plain string).
func decodeParseResponse(body []byte) (string, error) {
	var resp parseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if resp.Error != nil {
		if resp.Error.Code == "missingtitle" {
			return "", fmt.Errorf("%w: %s", ErrPageMissing, resp.Error.Info)
		}

		return "", fmt.Errorf("parse API error %s: %s", resp.Error.Code, resp.Error.Info)
	}

	if resp.Parse == nil || len(resp.Parse.Wikitext) == 0 {
		return "", ErrMalformedPayload
	}

	var text string
	if err := json.Unmarshal(resp.Parse.Wikitext, &text); err == nil {
		return text, nil
	}

	var legacy map[string]string
	if err := json.Unmarshal(resp.Parse.Wikitext, &legacy); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	text, ok := legacy["*"]
	if !ok {
		return "", ErrMalformedPayload
	}

	return text, nil
}

// FetchCategories lists the visible categories of an article through
// action=query, without the "Category:" prefix.
func (c *Client) FetchCategories(ctx context.Context, apiURL, title string) ([]string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "categories")
	params.Set("titles", title)
	params.Set("clshow", "!hidden")
	params.Set("cllimit", "max")
	params.Set("format", "json")
	params.Set("formatversion", "2")

	body, err := c.scraper.Scrape(ctx, apiURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories of %q: %w", title, err)
	}

	categories, err := decodeCategoriesResponse([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("categories of %q: %w", title, err)
	}

	c.logger.Debug("fetched categories", "title", title, "count", len(categories))

	return categories, nil
}

type categoriesResponse struct {
	Query *struct {
		Pages []struct {
			Title      string `json:"title"`
			Missing    bool   `json:"missing"`
			Categories []struct {
				Title string `json:"title"`
			} `json:"categories"`
		} `json:"pages"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

func decodeCategoriesResponse(body []byte) ([]string, error) {
	var resp categoriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("query API error %s: %s", resp.Error.Code, resp.Error.Info)
	}

	if resp.Query == nil {
		return nil, ErrMalformedPayload
	}

	var categories []string

	for _, page := range resp.Query.Pages {
		if page.Missing {
			return nil, fmt.Errorf("%w: %s", ErrPageMissing, page.Title)
		}

		for _, cat := range page.Categories {
			categories = append(categories, strings.TrimPrefix(cat.Title, "Category:"))
		}
	}

	return categories, nil
}

// fetchURLs tries the primary URL and then each backup in order.
func (c *Client) fetchURLs(ctx context.Context, src config.SourceConfig) (*Listing, error) {
	manager := NewURLManager(src)
	defer manager.LogAttemptSummary(c.logger)

	var lastErr error

	for manager.HasMore() {
		u, err := manager.NextURL()
		if err != nil {
			return nil, err
		}

		start := time.Now()
		content, status, err := c.scraper.FetchWithStatus(ctx, u)
		manager.RecordAttempt(u, err, status, time.Since(start))

		if err == nil {
			return &Listing{Raw: content, Origin: u, Format: formatOf(src)}, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Warn("listing source failed", "url", u, "status", status, "reason", err.Error())
		lastErr = err
	}

	if lastErr == nil {
		return nil, ErrNoSourcesAvailable
	}

	return nil, fmt.Errorf("%w: %w", ErrAllSourcesExhausted, lastErr)
}

func formatOf(src config.SourceConfig) string {
	if src.Format == config.FormatAuto {
		return ""
	}

	return src.Format
}
