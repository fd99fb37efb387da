package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shortlink/internal/model"
)

func newTestCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, time.Minute, zap.NewNop()), mr
}

func testLink() *model.ShortLink {
	return &model.ShortLink{
		ID:          7,
		ShortCode:   "aB3dE9",
		OriginalURL: "https://example.com/a",
		ClickCount:  2,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRedis_PutLinkPopulatesBothNamespaces(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	link := testLink()

	c.PutLink(ctx, link)

	got, ok := c.Get(ctx, ByCode, link.ShortCode)
	require.True(t, ok)
	assert.Equal(t, link, got)

	got, ok = c.Get(ctx, ByURL, link.OriginalURL)
	require.True(t, ok)
	assert.Equal(t, link, got)

	assert.Equal(t, time.Minute, mr.TTL(ByCode.Key(link.ShortCode)))
	assert.Equal(t, time.Minute, mr.TTL(ByURL.Key(link.OriginalURL)))
}

func TestRedis_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	_, ok := c.Get(context.Background(), ByCode, "zzzzzz")
	assert.False(t, ok)
}

func TestRedis_Expiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	link := testLink()

	c.PutLink(ctx, link)
	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, ByCode, link.ShortCode)
	assert.False(t, ok)
	_, ok = c.Get(ctx, ByURL, link.OriginalURL)
	assert.False(t, ok)
}

func TestRedis_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set(ByCode.Key("aaaaaa"), "{not json"))

	_, ok := c.Get(context.Background(), ByCode, "aaaaaa")
	assert.False(t, ok)
}

func TestRedis_UnavailableDegradesToMiss(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()
	ctx := context.Background()

	assert.NotPanics(t, func() { c.PutLink(ctx, testLink()) })
	_, ok := c.Get(ctx, ByCode, "aB3dE9")
	assert.False(t, ok)
	assert.Error(t, c.Ping(ctx))
}

func TestNamespace_KeyHashesURLs(t *testing.T) {
	long := "https://example.com/" + string(make([]byte, 1500))
	assert.Len(t, ByURL.Key(long), len(ByURL)+64)
	assert.Equal(t, "shortlink:by-code:abc123", ByCode.Key("abc123"))
}
