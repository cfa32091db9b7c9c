// Package payload gives read-only access to the pre-built JSON document that
// is posted. The bytes are opaque: nothing here parses them.
package payload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrMissing is returned when the payload file does not exist.
var ErrMissing = errors.New("payload: file not found")

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Open opens path for streaming and returns its size so the request can
// carry a Content-Length. The caller closes the file.
func Open(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, 0, fmt.Errorf("payload: open %q: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("payload: stat %q: %w", path, err)
	}
	return f, fi.Size(), nil
}

// Wait blocks until path exists, timeout elapses or ctx is cancelled. It
// watches the parent directory so a file created by rename is seen. A
// timeout of zero checks once.
func Wait(ctx context.Context, path string, timeout time.Duration) error {
	if Exists(path) {
		return nil
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: %s", ErrMissing, path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("payload: create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("payload: watch %q: %w", dir, err)
	}

	// The file may have appeared between the first check and Add.
	if Exists(path) {
		return nil
	}

	slog.Info("payload: waiting for file", "path", path, "timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			return fmt.Errorf("%w after %s: %s", ErrMissing, timeout, path)

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("%w: watcher closed: %s", ErrMissing, path)
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if Exists(path) {
				slog.Info("payload: file appeared", "path", path)
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("%w: watcher closed: %s", ErrMissing, path)
			}
			slog.Error("payload: watcher error", "err", err)
		}
	}
}
