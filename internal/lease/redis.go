// Package lease provides a Redis-backed mutual exclusion per cache key, so several
// docrender processes sharing one artifact root never render the same key at once.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Config holds the connection and lease settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	TTL          time.Duration
	PollInterval time.Duration
}

// RedisLocker hands out one lease per cache key. A lease is refreshed while held and
// expires on its own if the holder dies.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
	logger *slog.Logger
}

// NewRedisLocker connects and pings Redis.
func NewRedisLocker(cfg Config, logger *slog.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisLocker(client, cfg, logger), nil
}

func newRedisLocker(client *redis.Client, cfg Config, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "docrender:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 4 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &RedisLocker{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		poll:   cfg.PollInterval,
		logger: logger,
	}
}

func (l *RedisLocker) leaseKey(key string) string { return l.prefix + "lease:" + key }

// Acquire blocks until the lease for key is held or ctx ends. The returned release
// function is safe to call more than once.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	name := l.leaseKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	waited := false
	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			break
		}
		if !waited {
			l.logger.Debug("lease held elsewhere, waiting", "cache_key", key)
			waited = true
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(name, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, name, token, stop, done) })
	}, nil
}

func (l *RedisLocker) release(key, name, token string, stop chan struct{}, done <-chan struct{}) {
	close(stop)
	<-done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{name}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("lease release failed", "cache_key", key, "error", err)
	}
}

// keepAlive extends the lease at a third of its TTL until stop is closed.
func (l *RedisLocker) keepAlive(name, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := refreshScript.Run(ctx, l.client, []string{name}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn("lease refresh failed", "lease", name, "error", err)
			} else if n == 0 {
				l.logger.Warn("lease lost before release", "lease", name)
				return
			}
		}
	}
}

// Close closes the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
