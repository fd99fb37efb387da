package repository

import (
	"context"
	"sync"
	"time"

	"shortlink/internal/model"
)

// Memory is an in-process store with the same uniqueness rules as the
// short_links table. It is meant for local development and tests; rows are
// lost on restart and are not shared between processes.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*model.ShortLink
	byURL  map[string]int64
	byCode map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[int64]*model.ShortLink),
		byURL:  make(map[string]int64),
		byCode: make(map[string]int64),
	}
}

func (m *Memory) FindByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *Memory) FindByURL(ctx context.Context, original string) (*model.ShortLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byURL[original]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *Memory) Insert(ctx context.Context, original, code string) (*model.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byURL[original]; ok {
		return nil, ErrDuplicateURL
	}
	if _, ok := m.byCode[code]; ok {
		return nil, ErrDuplicateCode
	}
	m.nextID++
	link := &model.ShortLink{
		ID:          m.nextID,
		ShortCode:   code,
		OriginalURL: original,
		CreatedAt:   time.Now().UTC(),
	}
	m.byID[link.ID] = link
	m.byURL[original] = link.ID
	m.byCode[code] = link.ID
	return link.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, link *model.ShortLink) (*model.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[link.ID]
	if !ok {
		return nil, ErrNotFound
	}
	stored.ClickCount = link.ClickCount
	return stored.Clone(), nil
}

func (m *Memory) IncrementClickBy(ctx context.Context, code string, delta int64) (*model.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	stored := m.byID[id]
	stored.ClickCount += delta
	return stored.Clone(), nil
}

// Len returns the number of stored rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
