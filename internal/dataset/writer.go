// Package dataset publishes snapshots atomically and compares them.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"wikiweird/internal/config"
	"wikiweird/internal/logger"
	"wikiweird/internal/models"
)

// Writer errors.
var (
	ErrNilSnapshot     = errors.New("snapshot is nil")
	ErrLocked          = errors.New("dataset is locked by another run")
	ErrCorruptSnapshot = errors.New("snapshot file is not valid JSON")
)

const lockRetryDelay = 100 * time.Millisecond

// WriteFailure reports a publish that did not complete. The previous
// dataset is still the current one.
type WriteFailure struct {
	Err  error
	Op   string
	Path string
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("publish %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *WriteFailure) Unwrap() error {
	return e.Err
}

// PublishResult describes what Publish wrote.
type PublishResult struct {
	Diff        *Diff
	Path        string
	HistoryPath string
	// Unchanged is true when the articles and source version match the previous dataset.
	Unchanged bool
}

// Writer publishes snapshots to a current-dataset path plus a history directory.
type Writer struct {
	logger     *logger.Logger
	path       string
	historyDir string
	pretty     bool
}

// NewWriter creates a writer from the output section.
func NewWriter(cfg config.OutputConfig, log *logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNop()
	}

	return &Writer{
		logger:     log.Component("dataset"),
		path:       cfg.Path,
		historyDir: cfg.HistoryDir,
		pretty:     cfg.PrettyPrint,
	}
}

// Path returns the current-dataset location.
func (w *Writer) Path() string {
	return w.path
}

// Publish replaces the current dataset with snap. Readers see either the old
// file or the new one, never a partial write.
func (w *Writer) Publish(ctx context.Context, snap *models.Snapshot) (*PublishResult, error) {
	if snap == nil {
		return nil, &WriteFailure{Err: ErrNilSnapshot, Op: "validate", Path: w.path}
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return nil, &WriteFailure{Err: err, Op: "create directory", Path: w.path}
	}

	lock := flock.New(w.path + ".lock")

	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, &WriteFailure{Err: err, Op: "lock", Path: w.path}
	}

	if !locked {
		return nil, &WriteFailure{Err: ErrLocked, Op: "lock", Path: w.path}
	}

	defer func() {
		if err := lock.Unlock(); err != nil {
			w.logger.Warn("failed to release dataset lock", "error", err)
		}
	}()

	prev, err := Load(w.path)
	if err != nil {
		w.logger.Warn("ignoring unreadable previous dataset", "path", w.path, "error", err)
		prev = nil
	}

	data, err := w.encode(snap)
	if err != nil {
		return nil, &WriteFailure{Err: err, Op: "encode", Path: w.path}
	}

	result := &PublishResult{
		Diff:      Compare(prev, snap),
		Path:      w.path,
		Unchanged: prev.SameContent(snap),
	}

	if err := ctx.Err(); err != nil {
		return nil, &WriteFailure{Err: err, Op: "publish", Path: w.path}
	}

	if err := writeFileAtomic(w.path, data, 0o644); err != nil {
		return nil, &WriteFailure{Err: err, Op: "publish", Path: w.path}
	}

	// History only records snapshots that became current. A failed copy does
	// not undo the publish.
	if !result.Unchanged && w.historyDir != "" {
		histPath, err := w.writeHistory(snap, data)
		if err != nil {
			w.logger.Error("history copy failed; current dataset was published", "error", err)
		} else {
			result.HistoryPath = histPath
		}
	}

	w.logger.Info("dataset published",
		"path", w.path,
		"articles", len(snap.Articles),
		"unchanged", result.Unchanged,
		"added", len(result.Diff.Added),
		"removed", len(result.Diff.Removed),
		"changed", len(result.Diff.Changed),
	)

	return result, nil
}

// HistoryName returns the immutable file name of a snapshot.
func HistoryName(snap *models.Snapshot) string {
	version := snap.SourceVersion
	if len(version) > 12 {
		version = version[:12]
	}

	return fmt.Sprintf("%s-%s.json", snap.GeneratedAt.UTC().Format("20060102T150405Z"), version)
}

func (w *Writer) writeHistory(snap *models.Snapshot, data []byte) (string, error) {
	if err := os.MkdirAll(w.historyDir, 0o755); err != nil {
		return "", &WriteFailure{Err: err, Op: "create history directory", Path: w.historyDir}
	}

	histPath := filepath.Join(w.historyDir, HistoryName(snap))

	// History copies are immutable.
	if _, err := os.Stat(histPath); err == nil {
		return histPath, nil
	}

	if err := writeFileAtomic(histPath, data, 0o444); err != nil {
		return "", &WriteFailure{Err: err, Op: "write history", Path: histPath}
	}

	return histPath, nil
}

func (w *Writer) encode(snap *models.Snapshot) ([]byte, error) {
	out := *snap
	if out.Articles == nil {
		out.Articles = []models.Article{}
	}

	var (
		data []byte
		err  error
	)

	if w.pretty {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}

	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	return append(data, '\n'), nil
}

// Load reads a snapshot. A missing file returns nil without error.
func Load(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptSnapshot, path, err)
	}

	return &snap, nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
