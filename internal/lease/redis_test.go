package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	l, err := NewRedisLocker(Config{Addr: mr.Addr(), Prefix: "test:", TTL: ttl, PollInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, mr
}

func TestNewRedisLocker_Unreachable(t *testing.T) {
	_, err := NewRedisLocker(Config{Addr: "127.0.0.1:1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestAcquireRelease(t *testing.T) {
	l, mr := setupTestLocker(t, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "deck")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lease:deck"))
	assert.Greater(t, mr.TTL("test:lease:deck"), time.Duration(0))

	release()
	assert.False(t, mr.Exists("test:lease:deck"))

	// second release is a no-op
	release()
}

func TestAcquire_WaitsForHolder(t *testing.T) {
	l, _ := setupTestLocker(t, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "deck")
	require.NoError(t, err)

	got := make(chan struct{})
	go func() {
		r2, err := l.Acquire(ctx, "deck")
		if err == nil {
			r2()
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("second acquire must wait for the first release")
	case <-time.After(100 * time.Millisecond):
	}
	release()

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestAcquire_ContextEnds(t *testing.T) {
	l, _ := setupTestLocker(t, time.Minute)

	release, err := l.Acquire(context.Background(), "deck")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "deck")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_DistinctKeys(t *testing.T) {
	l, _ := setupTestLocker(t, time.Minute)
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "a")
	require.NoError(t, err)
	defer r1()
	r2, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	defer r2()
}

func TestRelease_DoesNotDeleteForeignLease(t *testing.T) {
	l, mr := setupTestLocker(t, time.Minute)

	release, err := l.Acquire(context.Background(), "deck")
	require.NoError(t, err)

	// lease expired and was taken over by another process
	require.NoError(t, mr.Set("test:lease:deck", "someone-else"))
	release()

	v, err := mr.Get("test:lease:deck")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}
