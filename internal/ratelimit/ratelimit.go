// Package ratelimit provides a fixed-window request limiter whose state lives
// entirely in Redis, so every service instance sharing the Redis shares the
// same budget per key.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// KEYS[1]: counter key
// ARGV[1]: limit
// ARGV[2]: window in seconds
//
// Returns 1 when the call is allowed, 0 otherwise. The read, the decision
// and the write happen in one script invocation.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = redis.call('GET', key)
if current == false then
	redis.call('SET', key, 1, 'EX', window)
	return 1
end
if tonumber(current) < limit then
	redis.call('INCR', key)
	return 1
end
return 0
`)

type Limiter struct {
	client *redis.Client
}

func New(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow reports whether one more call for key fits into limit calls per
// window. On a Redis error it returns true together with the error so the
// caller can choose to fail open.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	seconds := int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	n, err := allowScript.Run(ctx, l.client, []string{keyPrefix + key}, limit, seconds).Int64()
	if err != nil {
		return true, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return n == 1, nil
}
