// Package feed writes the published snapshot to disk for static dashboards.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/okian/benchtrack/pkg/logger"
	"github.com/okian/benchtrack/pkg/metrics"
)

const lockRetry = 20 * time.Millisecond

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the writer logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.log = l
		}
	}
}

// WithFileMode sets the permissions of the written feed.
func WithFileMode(mode fs.FileMode) Option {
	return func(w *Writer) { w.mode = mode }
}

// Writer replaces the feed file atomically. Writers in other processes are
// excluded by a lock file next to the feed.
type Writer struct {
	path string
	mode fs.FileMode
	lock *flock.Flock
	log  logger.Logger
}

// NewWriter returns a Writer for path.
func NewWriter(path string, opts ...Option) (*Writer, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	w := &Writer{
		path: path,
		mode: 0o644,
		lock: flock.New(lockPath(path)),
		log:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func lockPath(path string) string { return path + ".lock" }

// Path returns the feed path.
func (w *Writer) Path() string { return w.path }

// Write replaces the feed with data. It reports false without touching the
// file when the current content is already identical.
func (w *Writer) Write(ctx context.Context, data []byte) (bool, error) {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return false, fmt.Errorf("create feed directory: %w", err)
	}
	locked, err := w.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	if !locked {
		return false, ErrLockTimeout
	}
	defer func() {
		if err := w.lock.Unlock(); err != nil {
			w.log.Warn(ctx, "feed unlock failed", logger.Error(err))
		}
	}()

	current, err := os.ReadFile(w.path)
	switch {
	case err == nil && bytes.Equal(current, data):
		metrics.RecordSnapshotUnchanged()
		return false, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("read feed: %w", err)
	}

	if err := w.replace(data); err != nil {
		metrics.RecordErrorByComponent("feed", "write")
		return false, err
	}

	metrics.RecordSnapshotPublishDuration(float64(time.Since(start).Microseconds()) / 1000)
	metrics.UpdateSnapshotLastUnix(float64(time.Now().Unix()))
	metrics.UpdateSnapshotBytes(len(data))
	metrics.IncrementSnapshotCount()
	w.log.Debug(ctx, "feed written", logger.String("path", w.path), logger.Int("bytes", len(data)))
	return true, nil
}

// replace writes data to a temp file in the feed directory and renames it
// over the feed.
func (w *Writer) replace(data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(w.path), "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp feed: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp feed: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp feed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp feed: %w", err)
	}
	if err = os.Chmod(tmp.Name(), w.mode); err != nil {
		return fmt.Errorf("chmod temp feed: %w", err)
	}
	if err = os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("rename feed: %w", err)
	}
	return nil
}

// Read returns the feed content under a shared lock. A missing feed yields
// an error matching fs.ErrNotExist.
func Read(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	lock := flock.New(lockPath(path))
	locked, err := lock.TryRLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}
	defer func() { _ = lock.Unlock() }()

	return os.ReadFile(path)
}
