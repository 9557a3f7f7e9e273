package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/docrender/internal/common"
	"github.com/joseph-ayodele/docrender/internal/render"
)

// ErrShuttingDown is returned by Enqueue once Shutdown has started.
var ErrShuttingDown = errors.New("queue is shutting down")

// Job asks for one key to be converted in the background.
type Job struct {
	Source      render.SourceDocument
	Key         string
	SubmittedAt time.Time
	RequestID   string
}

// Converter is the part of render.Converter the workers call.
type Converter interface {
	Convert(ctx context.Context, src render.SourceDocument, key string) (render.ArtifactSet, error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// WarmQueue converts keys ahead of the first viewer. Duplicate jobs are harmless:
// the converter collapses concurrent runs and serves repeats from the cache.
type WarmQueue struct {
	conv    Converter
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// senders hold the read lock so Shutdown never closes ch under them
	mu     sync.RWMutex
	closed bool
}

type Option func(*WarmQueue)

func WithWorkers(n int) Option {
	return func(q *WarmQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *WarmQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *WarmQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewWarmQueue(conv Converter, logger *slog.Logger, opts ...Option) *WarmQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &WarmQueue{
		conv:    conv,
		logger:  logger,
		workers: 2,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *WarmQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *WarmQueue) process(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}

	start := time.Now()
	set, err := q.conv.Convert(ctx, job.Source, job.Key)
	if err != nil {
		q.logger.Error("warm-up failed", "worker_id", workerID, "cache_key", job.Key, "error", err)
		return
	}
	q.logger.Info("warmed key",
		"worker_id", workerID,
		"cache_key", job.Key,
		"pages", set.Pages(),
		"queued_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// Enqueue blocks while the queue is full, until ctx ends.
func (q *WarmQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "cache_key", job.Key)
		return ErrShuttingDown
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued key for warm-up", "cache_key", job.Key, "format", job.Source.Format)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "cache_key", job.Key)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of jobs waiting for a worker.
func (q *WarmQueue) Len() int { return len(q.ch) }

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *WarmQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
