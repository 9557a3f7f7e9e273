package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"
)

// inProgressMarker sits in a key directory for the whole pipeline run.
// A directory that still holds it is never reported as converted.
const inProgressMarker = ".rendering"

// Store is the directory-per-key layout on durable storage.
//
//	{Root}/
//	  {cacheKey}/
//	    .rendering        (only while a run is in flight)
//	    slide-001.png ... (slide decks)
//	    document.pdf      (documents)
type Store struct {
	root   string
	mount  string
	logger *slog.Logger
}

// NewStore creates root if needed. mount is the public URL prefix that serves root.
func NewStore(root, mount string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{
		root:   abs,
		mount:  path.Clean("/" + mount),
		logger: logger,
	}, nil
}

// Root returns the absolute artifact root.
func (s *Store) Root() string { return s.root }

// Mount returns the public URL prefix, always starting with a slash.
func (s *Store) Mount() string { return s.mount }

// Dir returns the directory of key. It does not check existence.
func (s *Store) Dir(key string) string { return filepath.Join(s.root, key) }

// URL returns the public relative URL of a file inside key's directory.
func (s *Store) URL(key, name string) string { return path.Join(s.mount, key, name) }

// Exists reports whether key's directory is present, complete or not.
func (s *Store) Exists(key string) bool {
	st, err := os.Stat(s.Dir(key))
	return err == nil && st.IsDir()
}

// InProgress reports whether key's directory carries the in-progress marker.
func (s *Store) InProgress(key string) bool {
	_, err := os.Stat(filepath.Join(s.Dir(key), inProgressMarker))
	return err == nil
}

// MarkerAge returns how long ago key's in-progress marker was written.
func (s *Store) MarkerAge(key string) (time.Duration, bool) {
	st, err := os.Stat(filepath.Join(s.Dir(key), inProgressMarker))
	if err != nil {
		return 0, false
	}
	return time.Since(st.ModTime()), true
}

// Begin creates key's directory and marks it in progress.
func (s *Store) Begin(key string) (string, error) {
	dir := s.Dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, inProgressMarker), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		return "", fmt.Errorf("mark key directory in progress: %w", err)
	}
	return dir, nil
}

// Commit clears the in-progress marker; this is the last step of a successful run.
func (s *Store) Commit(key string) error {
	if err := os.Remove(filepath.Join(s.Dir(key), inProgressMarker)); err != nil {
		return fmt.Errorf("commit key directory: %w", err)
	}
	return nil
}

// Discard recursively deletes key's directory, restoring the never-converted state.
func (s *Store) Discard(key string) error {
	if err := os.RemoveAll(s.Dir(key)); err != nil {
		return fmt.Errorf("remove key directory: %w", err)
	}
	return nil
}

// abort discards key's directory after cause and returns cause, joined with any cleanup error.
func (s *Store) abort(key string, cause error) error {
	if err := s.Discard(key); err != nil {
		s.logger.Error("cleanup after failed conversion", "cache_key", key, "error", err)
		return errors.Join(cause, err)
	}
	s.logger.Debug("removed key directory after failure", "cache_key", key)
	return cause
}

// Sweep deletes directories left in progress by a crashed run. Markers younger than
// olderThan are kept since another process sharing the root may still own them.
func (s *Store) Sweep(ctx context.Context, olderThan time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read artifact root: %w", err)
	}
	var removed []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.IsDir() {
			continue
		}
		st, err := os.Stat(filepath.Join(s.root, e.Name(), inProgressMarker))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("sweep stat failed", "cache_key", e.Name(), "error", err)
			}
			continue
		}
		if olderThan > 0 && time.Since(st.ModTime()) < olderThan {
			continue
		}
		if err := s.Discard(e.Name()); err != nil {
			return removed, err
		}
		s.logger.Info("swept incomplete conversion", "cache_key", e.Name())
		removed = append(removed, e.Name())
	}
	return removed, nil
}
