// Package lock keeps two crawl runs from crawling the same category at the
// same time.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IshaanNene/ListingScout/internal/config"
	"github.com/IshaanNene/ListingScout/internal/types"
)

const keyPrefix = "listingscout:lock:"

// Locker acquires and releases per-category crawl locks. Acquire returns
// types.ErrLockHeld when another run owns the category.
type Locker interface {
	Acquire(ctx context.Context, category, owner string) error
	Release(ctx context.Context, category, owner string) error
	Close() error
}

// Key returns the lock key of a category.
func Key(category string) string { return keyPrefix + category }

// releaseScript deletes the key only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker stores locks as Redis keys with a TTL.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a RedisLocker and checks the server is reachable.
func NewRedisLocker(ctx context.Context, cfg config.LockConfig, logger *slog.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "redis_lock"),
	}, nil
}

// Acquire sets the category key if it is absent.
func (l *RedisLocker) Acquire(ctx context.Context, category, owner string) error {
	ok, err := l.client.SetNX(ctx, Key(category), owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %q: %w", category, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrLockHeld, category)
	}
	l.logger.Debug("lock acquired", "category", category, "owner", owner, "ttl", l.ttl)
	return nil
}

// Release deletes the category key if owner still holds it. Releasing a lock
// that expired or was taken over is not an error.
func (l *RedisLocker) Release(ctx context.Context, category, owner string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{Key(category)}, owner).Int()
	if err != nil {
		return fmt.Errorf("release lock %q: %w", category, err)
	}
	if n == 0 {
		l.logger.Warn("lock no longer owned at release", "category", category, "owner", owner)
	}
	return nil
}

func (l *RedisLocker) Close() error { return l.client.Close() }

// LocalLocker holds locks in process memory. It is used when the Redis lock
// is disabled and still prevents overlapping runs within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]string
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

func (l *LocalLocker) Acquire(ctx context.Context, category, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[category]; ok {
		return fmt.Errorf("%w: %s", types.ErrLockHeld, category)
	}
	l.held[category] = owner
	return nil
}

func (l *LocalLocker) Release(ctx context.Context, category, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[category] == owner {
		delete(l.held, category)
	}
	return nil
}

func (l *LocalLocker) Close() error { return nil }

// Open returns a RedisLocker when the lock is enabled, else a LocalLocker.
func Open(ctx context.Context, cfg config.LockConfig, logger *slog.Logger) (Locker, error) {
	if !cfg.Enabled {
		return NewLocalLocker(), nil
	}
	return NewRedisLocker(ctx, cfg, logger)
}
