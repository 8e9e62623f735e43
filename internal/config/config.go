// Package config provides configuration management for the pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrSourceMissing            = errors.New("source requires one of page, url or file")
	ErrSourceMissingAPIURL      = errors.New("source.api_url is required when source.page is set")
	ErrInvalidSourceFormat      = errors.New("source.format must be one of: auto, wikitext, html")
	ErrInvalidEntryLimit        = errors.New("source.max_entries_per_section must be non-negative")
	ErrMissingBaseURL           = errors.New("enrichment.base_url is required")
	ErrInvalidConcurrency       = errors.New("enrichment.concurrency must be at least 1")
	ErrInvalidBatchSize         = errors.New("enrichment.batch_size must be at least 1")
	ErrInvalidRate              = errors.New("enrichment.requests_per_second must be non-negative")
	ErrInvalidCacheBackend      = errors.New("enrichment.cache_backend must be 'memory' or 'sqlite'")
	ErrMissingCachePath         = errors.New("enrichment.cache_path is required for the sqlite cache")
	ErrInvalidCacheTTL          = errors.New("enrichment.cache_ttl_hours must be non-negative")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrMissingOutputPath        = errors.New("output.path is required")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be one of: auto, text, json")
)

// Listing markup dialects.
const (
	FormatAuto     = "auto"
	FormatWikitext = "wikitext"
	FormatHTML     = "html"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
	Retry      RetryPolicy      `yaml:"retry"`
}

// SourceConfig describes where the unusual-articles listing comes from.
type SourceConfig struct {
	Name       string   `yaml:"name"`
	Page       string   `yaml:"page"`
	APIURL     string   `yaml:"api_url"`
	URL        string   `yaml:"url"`
	File       string   `yaml:"file"`
	Format     string   `yaml:"format"`
	BackupURLs []string `yaml:"backup_urls"`
	// MaxEntriesPerSection limits extraction for trial runs; 0 means unlimited.
	MaxEntriesPerSection int `yaml:"max_entries_per_section"`
}

// IsLocalFile returns true if this source uses a local file.
func (s *SourceConfig) IsLocalFile() bool {
	return s.File != ""
}

// IsWikiPage returns true if the listing is fetched through the MediaWiki parse API.
func (s *SourceConfig) IsWikiPage() bool {
	return !s.IsLocalFile() && s.Page != ""
}

// GetSource returns the file path if local, the page name for wiki pages, or the URL.
func (s *SourceConfig) GetSource() string {
	switch {
	case s.IsLocalFile():
		return s.File
	case s.IsWikiPage():
		return s.Page
	default:
		return s.URL
	}
}

// GetAllURLs returns all URLs (primary + backups) for a remote source.
func (s *SourceConfig) GetAllURLs() []string {
	var urls []string
	if s.URL != "" {
		urls = append(urls, s.URL)
	}

	return append(urls, s.BackupURLs...)
}

// EnrichmentConfig controls the metadata enricher.
type EnrichmentConfig struct {
	BaseURL           string  `yaml:"base_url"`
	WikiBaseURL       string  `yaml:"wiki_base_url"`
	UserAgent         string  `yaml:"user_agent"`
	CacheBackend      string  `yaml:"cache_backend"`
	CachePath         string  `yaml:"cache_path"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Concurrency       int     `yaml:"concurrency"`
	BatchSize         int     `yaml:"batch_size"`
	CacheTTLHours     int     `yaml:"cache_ttl_hours"`
	// CategoryLookup fetches article categories through source.api_url to
	// place entries whose listed location did not resolve.
	CategoryLookup bool `yaml:"category_lookup"`
}

// CacheTTL returns the freshness window of cached results.
func (e *EnrichmentConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLHours) * time.Hour
}

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// OutputConfig defines where snapshots are published.
type OutputConfig struct {
	Path        string `yaml:"path"`
	HistoryDir  string `yaml:"history_dir"`
	PrettyPrint bool   `yaml:"pretty_print"`
}

// historySubdir is where history copies live next to the current dataset by default.
const historySubdir = "snapshots"

// DefaultHistoryDir returns the history directory that sits next to path.
func DefaultHistoryDir(path string) string {
	return filepath.Join(filepath.Dir(path), historySubdir)
}

// SetPath moves the current dataset to path. A history directory that was
// still the sibling of the old path moves along with it.
func (o *OutputConfig) SetPath(path string) {
	if o.HistoryDir == DefaultHistoryDir(o.Path) {
		o.HistoryDir = DefaultHistoryDir(path)
	}

	o.Path = path
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Name:   "Places and infrastructure",
			Page:   "Wikipedia:Unusual articles/Places and infrastructure",
			APIURL: "https://en.wikipedia.org/w/api.php",
			Format: FormatAuto,
		},
		Enrichment: EnrichmentConfig{
			BaseURL:           "https://en.wikipedia.org/api/rest_v1",
			WikiBaseURL:       "https://en.wikipedia.org/wiki/",
			CacheBackend:      CacheMemory,
			RequestsPerSecond: 5,
			Concurrency:       4,
			BatchSize:         50,
			CacheTTLHours:     24 * 7,
			CategoryLookup:    true,
		},
		Retry: RetryPolicy{
			MaxAttempts:       4,
			InitialDelayMs:    500,
			MaxDelayMs:        30000,
			BackoffMultiplier: 2.0,
			TimeoutSec:        15,
		},
		Output: OutputConfig{
			Path:        "data/dataset.json",
			HistoryDir:  DefaultHistoryDir("data/dataset.json"),
			PrettyPrint: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// LoadConfig loads configuration from a YAML file layered over Default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings from WIKIWEIRD_* variables returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("WIKIWEIRD_SOURCE_FILE"); ok && v != "" {
		c.Source.File = v
	}

	if v, ok := lookup("WIKIWEIRD_USER_AGENT"); ok && v != "" {
		c.Enrichment.UserAgent = v
	}

	if v, ok := lookup("WIKIWEIRD_CACHE_PATH"); ok && v != "" {
		c.Enrichment.CacheBackend = CacheSQLite
		c.Enrichment.CachePath = v
	}

	if v, ok := lookup("WIKIWEIRD_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WIKIWEIRD_CONCURRENCY: %w", err)
		}

		c.Enrichment.Concurrency = n
	}

	if v, ok := lookup("WIKIWEIRD_OUTPUT"); ok && v != "" {
		c.Output.SetPath(v)
	}

	if v, ok := lookup("WIKIWEIRD_LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	src := c.Source
	if src.File == "" && src.Page == "" && src.URL == "" {
		return ErrSourceMissing
	}

	if src.IsWikiPage() && src.APIURL == "" {
		return ErrSourceMissingAPIURL
	}

	switch src.Format {
	case FormatAuto, FormatWikitext, FormatHTML:
	default:
		return ErrInvalidSourceFormat
	}

	if src.MaxEntriesPerSection < 0 {
		return ErrInvalidEntryLimit
	}

	// Validate enrichment config
	enr := c.Enrichment
	if enr.BaseURL == "" {
		return ErrMissingBaseURL
	}

	if enr.Concurrency < 1 {
		return ErrInvalidConcurrency
	}

	if enr.BatchSize < 1 {
		return ErrInvalidBatchSize
	}

	if enr.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}

	switch enr.CacheBackend {
	case CacheMemory:
	case CacheSQLite:
		if enr.CachePath == "" {
			return ErrMissingCachePath
		}
	default:
		return ErrInvalidCacheBackend
	}

	if enr.CacheTTLHours < 0 {
		return ErrInvalidCacheTTL
	}

	// Validate retry policy
	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if c.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if c.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	if c.Output.Path == "" {
		return ErrMissingOutputPath
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{"auto": true, "text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// GetRetryDelay returns the backoff to wait before the given attempt number.
// The first attempt never waits; later attempts grow exponentially up to MaxDelayMs.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 2; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	// Cap at max delay
	if rp.MaxDelayMs > 0 && delayMs > float64(rp.MaxDelayMs) {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(delayMs) * time.Millisecond
}

// GetTimeout returns the per-request timeout.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Source: %s, Concurrency: %d, MaxAttempts: %d, Output: %s}",
		c.Source.GetSource(),
		c.Enrichment.Concurrency,
		c.Retry.MaxAttempts,
		c.Output.Path,
	)
}
