package enricher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"wikiweird/internal/models"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const cacheSchema = `CREATE TABLE IF NOT EXISTS enrichment_cache (
    title TEXT PRIMARY KEY,
    canonical_title TEXT NOT NULL,
    description TEXT,
    extract TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL,
    thumbnail_url TEXT,
    redirected_from TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    fetched_at TEXT NOT NULL
)`

// SQLiteCache persists enrichment results across runs.
type SQLiteCache struct {
	db   *sql.DB
	path string
}

// OpenSQLiteCache opens or creates the cache database at path.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(cacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	if err := addExtractColumn(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteCache{db: db, path: path}, nil
}

// addExtractColumn upgrades caches created before extracts were stored.
func addExtractColumn(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info('enrichment_cache')`)
	if err != nil {
		return fmt.Errorf("inspect cache schema: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect cache schema: %w", err)
		}

		if name == "extract" {
			return nil
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect cache schema: %w", err)
	}

	if _, err := db.Exec(`ALTER TABLE enrichment_cache ADD COLUMN extract TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add extract column: %w", err)
	}

	return nil
}

// Path returns the database file location.
func (c *SQLiteCache) Path() string {
	return c.path
}

// Close closes the underlying database connection.
func (c *SQLiteCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}

	return c.db.Close()
}

// Get returns the cached result for title.
func (c *SQLiteCache) Get(ctx context.Context, title string) (models.EnrichmentResult, bool, error) {
	var (
		r           models.EnrichmentResult
		description sql.NullString
		thumbnail   sql.NullString
		status      string
		fetchedAt   string
	)

	err := retryOnBusy(ctx, func() error {
		return c.db.QueryRowContext(ctx,
			`SELECT title, canonical_title, description, extract, url, thumbnail_url,
                    redirected_from, status, reason, fetched_at
             FROM enrichment_cache WHERE title = ?`, title,
		).Scan(&r.Title, &r.CanonicalTitle, &description, &r.Extract, &r.URL, &thumbnail,
			&r.RedirectedFrom, &status, &r.Reason, &fetchedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.EnrichmentResult{}, false, nil
	}

	if err != nil {
		return models.EnrichmentResult{}, false, fmt.Errorf("read cache entry %q: %w", title, err)
	}

	r.Status = models.Status(status)
	if description.Valid {
		r.Description = &description.String
	}

	if thumbnail.Valid {
		r.ThumbnailURL = &thumbnail.String
	}

	r.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return models.EnrichmentResult{}, false, fmt.Errorf("parse fetched_at for %q: %w", title, err)
	}

	return r, true, nil
}

// Put upserts result under its Title.
func (c *SQLiteCache) Put(ctx context.Context, r models.EnrichmentResult) error {
	err := retryOnBusy(ctx, func() error {
		_, execErr := c.db.ExecContext(ctx,
			`INSERT INTO enrichment_cache (
                title, canonical_title, description, extract, url, thumbnail_url,
                redirected_from, status, reason, fetched_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(title) DO UPDATE SET
                canonical_title = excluded.canonical_title,
                description = excluded.description,
                extract = excluded.extract,
                url = excluded.url,
                thumbnail_url = excluded.thumbnail_url,
                redirected_from = excluded.redirected_from,
                status = excluded.status,
                reason = excluded.reason,
                fetched_at = excluded.fetched_at`,
			r.Title, r.CanonicalTitle, nullableString(r.Description), r.Extract, r.URL, nullableString(r.ThumbnailURL),
			r.RedirectedFrom, string(r.Status), r.Reason, r.FetchedAt.UTC().Format(time.RFC3339Nano),
		)

		return execErr
	})
	if err != nil {
		return fmt.Errorf("write cache entry %q: %w", r.Title, err)
	}

	return nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}

	return *s
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}

	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff

	var lastErr error

	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}

	return lastErr
}
