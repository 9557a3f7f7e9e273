package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/async"
	"github.com/joseph-ayodele/docrender/internal/render"
)

// Warmer queues source documents for conversion before anyone asks for them.
type Warmer struct {
	queue  Enqueuer
	logger *slog.Logger
}

func NewWarmer(queue Enqueuer, logger *slog.Logger) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{queue: queue, logger: logger}
}

// WarmPath queues a single file.
func (w *Warmer) WarmPath(ctx context.Context, path string) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{SourcePath: path}, fmt.Errorf("abs path: %w", err)
	}
	format := constants.MapExtToFormat(filepath.Ext(abs))
	if format == "" {
		return Result{SourcePath: abs}, fmt.Errorf("unsupported or missing extension: %q", filepath.Ext(abs))
	}

	key, sum, err := KeyFor(abs)
	if err != nil {
		return Result{SourcePath: abs}, err
	}
	res := Result{SourcePath: abs, CacheKey: key, Format: format, HashHex: sum}

	job := async.Job{Source: render.SourceDocument{Path: abs, Format: format}, Key: key}
	if err := w.queue.Enqueue(ctx, job); err != nil {
		return res, err
	}
	w.logger.Debug("queued for warm-up", "path", abs, "cache_key", key)
	return res, nil
}

// WarmDirectory walks root, skips hidden if requested, and queues every renderable
// file. Returns per-file results + aggregate stats.
func (w *Warmer) WarmDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []Result
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := w.WarmPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		return nil
	})

	w.logger.Info("directory scanned",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"queued", stats.Succeeded,
		"failed", stats.Failed,
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// Watch queues files as they appear under roots until ctx ends.
func (w *Warmer) Watch(ctx context.Context, cfg WatchConfig) error {
	events, errs, err := StartWatcher(ctx, cfg, w.logger)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-events:
			if !ok {
				return nil
			}
			if cfg.SkipHidden && IsHidden(p) {
				continue
			}
			if _, err := w.WarmPath(ctx, p); err != nil {
				w.logger.Warn("warm-up of watched file failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("watcher reported error", "error", err)
		}
	}
}
