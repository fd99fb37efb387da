package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_InsertAndFind(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	link, err := m.Insert(ctx, "https://example.com/a", "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.ID)
	assert.Zero(t, link.ClickCount)
	assert.False(t, link.CreatedAt.IsZero())

	byCode, err := m.FindByCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, link, byCode)

	byURL, err := m.FindByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, link, byURL)

	_, err = m.FindByCode(ctx, "nope00")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.FindByURL(ctx, "https://example.com/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UniqueConstraints(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Insert(ctx, "https://example.com/a", "abc123")
	require.NoError(t, err)

	_, err = m.Insert(ctx, "https://example.com/a", "xyz789")
	assert.ErrorIs(t, err, ErrDuplicateURL)

	_, err = m.Insert(ctx, "https://example.com/b", "abc123")
	assert.ErrorIs(t, err, ErrDuplicateCode)

	assert.Equal(t, 1, m.Len())
}

func TestMemory_UpdateAndIncrement(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	link, err := m.Insert(ctx, "https://example.com/a", "abc123")
	require.NoError(t, err)

	link.ClickCount = 5
	updated, err := m.Update(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated.ClickCount)

	updated, err = m.IncrementClickBy(ctx, "abc123", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(7), updated.ClickCount)

	// returned rows are copies
	updated.ClickCount = 100
	got, err := m.FindByCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ClickCount)

	_, err = m.IncrementClickBy(ctx, "zzzzzz", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	link.ID = 99
	_, err = m.Update(ctx, link)
	assert.ErrorIs(t, err, ErrNotFound)
}
