package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/entity"
)

// Options wires optional collaborators into a Converter.
type Options struct {
	Runner   Runner      // nil -> ExecRunner
	Pages    PageCounter // nil -> PDFInspector
	Locker   Locker      // nil -> in-process exclusion only
	Journal  Journal     // nil -> attempts are not recorded
	Settings Settings
	// StaleAfter is the age at which another process's in-progress directory is
	// treated as abandoned. Zero means DefaultStaleAfter.
	StaleAfter time.Duration
}

// DefaultStaleAfter matches the default sweep grace.
const DefaultStaleAfter = 10 * time.Minute

// Converter is the entry point of the core. Concurrent calls for one key collapse
// into a single pipeline run whose outcome every caller observes.
type Converter struct {
	store      *Store
	cache      *Cache
	pipelines  map[constants.Format]Pipeline
	locker     Locker
	journal    Journal
	staleAfter time.Duration
	logger     *slog.Logger

	group singleflight.Group
	// format of the running flight per key, guarded by mu
	inflight map[string]constants.Format

	// flights run on base rather than on a caller's context, so an abandoned
	// request cannot leave a half-written directory behind.
	base   context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// ErrClosed is returned by Convert after Close.
var ErrClosed = errors.New("converter closed")

func NewConverter(store *Store, opts Options, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Pages == nil {
		opts.Pages = NewPDFInspector()
	}
	if opts.Locker == nil {
		opts.Locker = noopLocker{}
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	base, cancel := context.WithCancel(context.Background())
	return &Converter{
		store: store,
		cache: NewCache(store),
		pipelines: map[constants.Format]Pipeline{
			constants.SlideDeck: NewSlidePipeline(store, opts.Runner, opts.Pages, opts.Settings, logger),
			constants.Document:  NewDocumentPipeline(store, opts.Runner, opts.Pages, opts.Settings, logger),
		},
		locker:     opts.Locker,
		journal:    opts.Journal,
		staleAfter: opts.StaleAfter,
		logger:     logger,
		inflight:   make(map[string]constants.Format),
		base:       base,
		cancel:     cancel,
	}
}

// Store exposes the artifact store the converter writes to.
func (c *Converter) Store() *Store { return c.store }

// IsConverted reports whether key holds a complete artifact set for format.
func (c *Converter) IsConverted(format constants.Format, key string) bool {
	return c.cache.IsConverted(format, key)
}

// Artifacts lists the artifact set of a converted key.
func (c *Converter) Artifacts(format constants.Format, key string) (ArtifactSet, error) {
	if !constants.IsValidCacheKey(key) {
		return ArtifactSet{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return c.cache.Artifacts(format, key)
}

// ArtifactFile resolves the on-disk path of a servable artifact file.
func (c *Converter) ArtifactFile(key, name string) (string, bool) {
	return c.cache.File(key, name)
}

// Convert returns the artifact set of key, rendering src on a cache miss.
// If ctx ends first Convert returns ctx.Err(); the run itself continues and
// either completes the key or removes it within the stage deadlines.
func (c *Converter) Convert(ctx context.Context, src SourceDocument, key string) (ArtifactSet, error) {
	if !constants.IsValidCacheKey(key) {
		return ArtifactSet{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if _, ok := c.pipelines[src.Format]; !ok {
		return ArtifactSet{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, src.Format)
	}

	if c.cache.IsConverted(src.Format, key) {
		c.logger.Debug("cache hit", "cache_key", key, "format", src.Format)
		return c.cache.Artifacts(src.Format, key)
	}

	if _, err := os.Stat(src.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ArtifactSet{}, &SourceNotFoundError{Path: src.Path, Err: err}
		}
		return ArtifactSet{}, fmt.Errorf("stat source: %w", err)
	}

	c.mu.Lock()
	running, ok := c.inflight[key]
	c.mu.Unlock()
	if ok && running != src.Format {
		return ArtifactSet{}, fmt.Errorf("%w: %q is being converted as %s, not %s", ErrFormatConflict, key, running, src.Format)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		c.wg.Add(1)
		c.inflight[key] = src.Format
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
			c.wg.Done()
		}()
		return c.flight(src, key)
	})

	select {
	case <-ctx.Done():
		c.logger.Warn("caller gave up waiting for conversion", "cache_key", key, "error", ctx.Err())
		return ArtifactSet{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ArtifactSet{}, res.Err
		}
		set := res.Val.(ArtifactSet)
		if set.Format != src.Format {
			return ArtifactSet{}, fmt.Errorf("%w: %q holds a %s artifact set, not %s", ErrFormatConflict, key, set.Format, src.Format)
		}
		if res.Shared {
			c.logger.Debug("joined in-flight conversion", "cache_key", key)
		}
		return set, nil
	}
}

// flight is the single authoritative attempt for key.
func (c *Converter) flight(src SourceDocument, key string) (ArtifactSet, error) {
	ctx := c.base
	logger := c.logger.With("cache_key", key, "format", src.Format)

	release, err := c.locker.Acquire(ctx, key)
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("acquire lease for %q: %w", key, err)
	}
	defer release()

	// another flight or process may have finished while we waited
	if c.cache.IsConverted(src.Format, key) {
		logger.Debug("converted while waiting")
		return c.cache.Artifacts(src.Format, key)
	}
	if c.store.Exists(key) {
		for f := range c.pipelines {
			if f != src.Format && c.cache.IsConverted(f, key) {
				return ArtifactSet{}, fmt.Errorf("%w: %q holds a %s artifact set, not %s", ErrFormatConflict, key, f, src.Format)
			}
		}
		// a fresh marker belongs to a live run in another process sharing the root
		if age, ok := c.store.MarkerAge(key); ok && age < c.staleAfter {
			return ArtifactSet{}, fmt.Errorf("%w: %q started %s ago", ErrBusy, key, age.Round(time.Second))
		}
		logger.Warn("removing incomplete key directory before conversion")
		if err := c.store.Discard(key); err != nil {
			return ArtifactSet{}, err
		}
	}

	attempt := &entity.ConversionAttempt{
		ID:         uuid.New(),
		CacheKey:   key,
		Format:     string(src.Format),
		SourcePath: src.Path,
		Status:     string(constants.AttemptStatusRunning),
		StartedAt:  time.Now().UTC(),
	}
	c.recordStart(ctx, attempt)

	set, err := c.pipelines[src.Format].Render(ctx, src, key)
	c.recordFinish(ctx, attempt, set, err)
	if err != nil {
		logger.Error("conversion failed", "error", err, "duration_ms", time.Since(attempt.StartedAt).Milliseconds())
		return ArtifactSet{}, err
	}
	return set, nil
}

func (c *Converter) recordStart(ctx context.Context, a *entity.ConversionAttempt) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Start(ctx, a); err != nil {
		c.logger.Warn("journal start failed", "cache_key", a.CacheKey, "error", err)
	}
}

func (c *Converter) recordFinish(ctx context.Context, a *entity.ConversionAttempt, set ArtifactSet, err error) {
	if c.journal == nil {
		return
	}
	status := constants.AttemptStatusConverted
	var stage, reason, msg string
	if err != nil {
		status = constants.AttemptStatusFailed
		msg = err.Error()
		var ce *ConversionError
		if errors.As(err, &ce) {
			stage, reason = ce.Stage, ce.Reason
		}
	}
	// a cancelled base context must not prevent the final row
	ctx = context.WithoutCancel(ctx)
	if jerr := c.journal.Finish(ctx, a.ID, status, set.Pages(), stage, reason, msg, time.Now().UTC()); jerr != nil {
		c.logger.Warn("journal finish failed", "cache_key", a.CacheKey, "error", jerr)
	}
}

// Sweep removes directories abandoned in progress by a crashed process.
func (c *Converter) Sweep(ctx context.Context, olderThan time.Duration) ([]string, error) {
	return c.store.Sweep(ctx, olderThan)
}

// Close cancels running flights, which kills their renderers and removes their
// directories, and waits for them to finish or ctx to end.
func (c *Converter) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	done := make(chan struct{})
	go func() { defer close(done); c.wg.Wait() }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
