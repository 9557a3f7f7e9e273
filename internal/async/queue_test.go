package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/render"
)

type recordingConverter struct {
	mu   sync.Mutex
	keys []string
	gate chan struct{}
	fail bool
}

func (c *recordingConverter) Convert(ctx context.Context, _ render.SourceDocument, key string) (render.ArtifactSet, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return render.ArtifactSet{}, ctx.Err()
		}
	}
	c.mu.Lock()
	c.keys = append(c.keys, key)
	c.mu.Unlock()
	if c.fail {
		return render.ArtifactSet{}, errors.New("renderer exploded")
	}
	return render.ArtifactSet{Format: constants.SlideDeck, Slides: []render.Slide{{Page: 1}}}, nil
}

func (c *recordingConverter) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.keys...)
}

func job(key string) Job {
	return Job{Source: render.SourceDocument{Path: "/u/" + key + ".pptx", Format: constants.SlideDeck}, Key: key}
}

func TestWarmQueue_ProcessesAndDrains(t *testing.T) {
	conv := &recordingConverter{}
	q := NewWarmQueue(conv, nil, WithWorkers(3), WithQueueSize(8))

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, q.Enqueue(context.Background(), job(k)))
	}
	q.Shutdown(context.Background())

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, conv.seen())
}

func TestWarmQueue_FailuresDoNotStopWorkers(t *testing.T) {
	conv := &recordingConverter{fail: true}
	q := NewWarmQueue(conv, nil, WithWorkers(1))

	require.NoError(t, q.Enqueue(context.Background(), job("a")))
	require.NoError(t, q.Enqueue(context.Background(), job("b")))
	q.Shutdown(context.Background())

	assert.Equal(t, []string{"a", "b"}, conv.seen())
}

func TestWarmQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewWarmQueue(&recordingConverter{}, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), job("late"))
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestWarmQueue_BackpressureHonorsContext(t *testing.T) {
	conv := &recordingConverter{gate: make(chan struct{})}
	q := NewWarmQueue(conv, nil, WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(conv.gate)
		q.Shutdown(context.Background())
	}()

	// one job held by the worker, one in the buffer
	require.NoError(t, q.Enqueue(context.Background(), job("a")))
	require.Eventually(t, func() bool { return q.Len() == 0 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), job("b")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, job("c"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWarmQueue_ProcessTimeout(t *testing.T) {
	conv := &recordingConverter{gate: make(chan struct{})}
	defer close(conv.gate)
	q := NewWarmQueue(conv, nil, WithWorkers(1), WithProcessTimeout(20*time.Millisecond))

	require.NoError(t, q.Enqueue(context.Background(), job("slow")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)
	require.NoError(t, ctx.Err())
	assert.Empty(t, conv.seen())
}
