// Package lock implements a non-blocking mutual-exclusion lock shared by
// every service instance through Redis.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can keep a key locked.
const DefaultTTL = 10 * time.Second

// releaseScript deletes KEYS[1] only while it still holds ARGV[1]. A plain
// GET followed by DEL could remove a lock another instance took over after
// this holder's TTL ran out.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker returns a Locker whose TryAcquire uses ttl when given zero.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{client: client, ttl: ttl}
}

// NewToken returns a fresh ownership token.
func NewToken() string {
	return uuid.NewString()
}

// TryAcquire sets key to token if key is free and returns immediately.
// false with a nil error means another holder owns key.
func (l *Locker) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = l.ttl
	}
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes key if and only if it still holds token, in a single
// server-side step. It reports whether the delete happened.
func (l *Locker) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", key, err)
	}
	return n == 1, nil
}
