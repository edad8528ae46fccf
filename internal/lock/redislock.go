// Package lock guards per-session critical sections with a Redis key.
//
// A holder writes a random token under the key with SET NX and a TTL, and only
// the holder of that token may delete it again. The TTL bounds how long a
// crashed holder can block the session.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by TryWithLock when another holder owns the key.
var ErrLocked = errors.New("lock: already held")

var errNoClient = errors.New("lock: redis client not configured")

const (
	defaultTTL     = 30 * time.Second
	defaultBackoff = 50 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Key namespaces a lock by the guarded operation and the owning session.
func Key(operation, sessionID string) string {
	return fmt.Sprintf("lock:%s:%s", operation, sessionID)
}

// Locker hands out Redis-backed locks.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// WithLock waits until key is free, then runs fn while holding it. Waiting
// stops when ctx is done.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	ticker := time.NewTicker(backoff)
	defer ticker.Stop()

	for {
		unlock, err := l.acquire(ctx, key, ttl)
		if err == nil {
			defer unlock()
			return fn(ctx)
		}
		if !errors.Is(err, ErrLocked) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryWithLock runs fn only if key is free right now; a concurrent holder makes
// it return ErrLocked without waiting.
func (l Locker) TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	unlock, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.R == nil {
		return nil, errNoClient
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// The caller's ctx may already be cancelled; release regardless.
		_ = releaseScript.Run(context.Background(), l.R, []string{key}, token).Err()
	}, nil
}
