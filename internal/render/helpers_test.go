package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/entity"
)

// fakeRunner imitates soffice and magick by writing the files they would produce.
type fakeRunner struct {
	mu    sync.Mutex
	calls []Command

	pages       int           // images written by the rasterizer
	officeFails bool          // office stage exits non-zero without output
	rasterNone  bool          // rasterizer exits zero without images
	rasterFails bool          // rasterizer writes its pages, then exits non-zero
	rasterSkip  int           // page the rasterizer never writes
	rasterExtra []string      // extra files the rasterizer leaves behind
	timeoutOn   string        // command name that reports a timeout
	gate        chan struct{} // when set, every run blocks until it is closed
}

func (f *fakeRunner) Run(ctx context.Context, c Command, _ *slog.Logger) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return Result{Canceled: true}, ctx.Err()
		}
	}
	if c.Name == f.timeoutOn {
		return Result{TimedOut: true}, context.DeadlineExceeded
	}

	switch c.Name {
	case "soffice":
		if f.officeFails {
			return Result{Output: []byte("Error: source file could not be loaded")}, errors.New("exit status 1")
		}
		outDir := argAfter(c.Args, "--outdir")
		src := c.Args[len(c.Args)-1]
		stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		if err := os.WriteFile(filepath.Join(outDir, stem+".pdf"), []byte("%PDF-1.4 fake"), 0o644); err != nil {
			return Result{}, err
		}
	case "magick":
		if f.rasterNone {
			return Result{}, nil
		}
		pattern := c.Args[len(c.Args)-1]
		for i := 1; i <= f.pages; i++ {
			if i == f.rasterSkip {
				continue
			}
			if err := os.WriteFile(fmt.Sprintf(pattern, i), []byte("png"), 0o644); err != nil {
				return Result{}, err
			}
		}
		for _, name := range f.rasterExtra {
			if err := os.WriteFile(filepath.Join(filepath.Dir(pattern), name), []byte("png"), 0o644); err != nil {
				return Result{}, err
			}
		}
		if f.rasterFails {
			return Result{Output: []byte("magick: cache resources exhausted")}, errors.New("exit status 1")
		}
	}
	return Result{Output: []byte("ok")}, nil
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

type fakePages struct {
	n   int
	err error
}

func (p fakePages) PageCount(string) (int, error) { return p.n, p.err }

type fakeJournal struct {
	mu       sync.Mutex
	started  []*entity.ConversionAttempt
	finished []constants.AttemptStatus
	reasons  []string
	pages    []int
	fail     bool
}

func (j *fakeJournal) Start(_ context.Context, a *entity.ConversionAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errors.New("journal down")
	}
	j.started = append(j.started, a)
	return nil
}

func (j *fakeJournal) Finish(_ context.Context, _ uuid.UUID, status constants.AttemptStatus, pages int, _, reason, _ string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errors.New("journal down")
	}
	j.finished = append(j.finished, status)
	j.reasons = append(j.reasons, reason)
	j.pages = append(j.pages, pages)
	return nil
}

type countingLocker struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (l *countingLocker) Acquire(context.Context, string) (func(), error) {
	l.mu.Lock()
	l.acquired++
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "converted", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func newTestConverter(t *testing.T, r Runner, opts Options) (*Converter, *Store) {
	t.Helper()
	store := newTestStore(t)
	return newConverterOn(t, store, r, opts), store
}

// newConverterOn builds a converter on an existing store, as a second process
// sharing the artifact root would.
func newConverterOn(t *testing.T, store *Store, r Runner, opts Options) *Converter {
	t.Helper()
	opts.Runner = r
	if opts.Pages == nil {
		opts.Pages = fakePages{err: errors.New("not a real pdf")}
	}
	c := NewConverter(store, opts, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// writeSource creates an uploaded source file and returns its path.
func writeSource(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("source bytes"), 0o644))
	return p
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
}
