// Package cache keeps expendable copies of short links in Redis under two
// independent namespaces. The cache is a hint: every failure is logged and
// reported as a miss, never as an error.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shortlink/internal/model"
	"shortlink/internal/util"
)

// DefaultTTL matches the idle expiry the links were cached with historically.
const DefaultTTL = 10 * time.Minute

// Namespace selects one of the two lookup indices.
type Namespace string

const (
	ByURL  Namespace = "shortlink:by-url:"
	ByCode Namespace = "shortlink:by-code:"
)

// Key returns the Redis key for k in ns. Original URLs are hashed so keys
// stay short no matter the URL length.
func (ns Namespace) Key(k string) string {
	if ns == ByURL {
		return string(ns) + util.HashURL(k)
	}
	return string(ns) + k
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached link stored under key in ns.
func (c *Redis) Get(ctx context.Context, ns Namespace, key string) (*model.ShortLink, bool) {
	b, err := c.client.Get(ctx, ns.Key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("namespace", string(ns)), zap.Error(err))
		}
		return nil, false
	}
	var link model.ShortLink
	if err := json.Unmarshal(b, &link); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("namespace", string(ns)), zap.Error(err))
		return nil, false
	}
	return &link, true
}

// PutLink populates both namespaces with link in one round trip.
func (c *Redis) PutLink(ctx context.Context, link *model.ShortLink) {
	if link == nil {
		return
	}
	b, err := json.Marshal(link)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.Error(err))
		return
	}
	_, err = c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, ByURL.Key(link.OriginalURL), b, c.ttl)
		p.Set(ctx, ByCode.Key(link.ShortCode), b, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn("cache populate failed", zap.String("short_code", link.ShortCode), zap.Error(err))
	}
}

// Ping reports whether Redis answers.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
