package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"shortlink/internal/cache"
	"shortlink/internal/lock"
	"shortlink/internal/model"
	"shortlink/internal/repository"
	"shortlink/internal/util"
)

const (
	lockPrefix = "shortlink:lock:url:"

	DefaultMaxAttempts    = 10
	DefaultClickWorkers   = 4
	DefaultClickQueueSize = 1024
	defaultClickTimeout   = 5 * time.Second
	releaseTimeout        = 2 * time.Second
	lookupTimeout         = 5 * time.Second
)

// Store is the durable record store. Insert must fail with
// repository.ErrDuplicateURL or repository.ErrDuplicateCode on the matching
// unique violation; lookups report repository.ErrNotFound.
type Store interface {
	Insert(ctx context.Context, original, code string) (*model.ShortLink, error)
	FindByURL(ctx context.Context, original string) (*model.ShortLink, error)
	FindByCode(ctx context.Context, code string) (*model.ShortLink, error)
	Update(ctx context.Context, link *model.ShortLink) (*model.ShortLink, error)
	IncrementClickBy(ctx context.Context, code string, delta int64) (*model.ShortLink, error)
}

// Cache never fails: errors surface as misses.
type Cache interface {
	Get(ctx context.Context, ns cache.Namespace, key string) (*model.ShortLink, bool)
	PutLink(ctx context.Context, link *model.ShortLink)
}

type Locker interface {
	TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) (bool, error)
}

// ClickMode selects how IncrementClickCount updates the counter.
type ClickMode string

const (
	// ClickLossy reads the row, adds one and writes it back. Concurrent
	// increments of the same link can overwrite each other.
	ClickLossy ClickMode = "lossy"
	// ClickAtomic lets the database add one in place.
	ClickAtomic ClickMode = "atomic"
)

type Options struct {
	LockTTL        time.Duration
	MaxAttempts    int
	ClickMode      ClickMode
	ClickWorkers   int
	ClickQueueSize int
	ClickTimeout   time.Duration
	// GenerateCode overrides util.GenerateShortCode.
	GenerateCode func() string
}

type Service struct {
	store  Store
	cache  Cache
	locker Locker
	logger *zap.Logger

	lockTTL     time.Duration
	maxAttempts int
	clickMode   ClickMode
	generate    func() string

	lookups singleflight.Group

	clicks       chan *model.ShortLink
	clickTimeout time.Duration
	clickMu      sync.RWMutex
	closed       bool
	wg           sync.WaitGroup
}

func NewService(store Store, c Cache, locker Locker, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = lock.DefaultTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.ClickMode == "" {
		opts.ClickMode = ClickLossy
	}
	if opts.ClickWorkers <= 0 {
		opts.ClickWorkers = DefaultClickWorkers
	}
	if opts.ClickQueueSize <= 0 {
		opts.ClickQueueSize = DefaultClickQueueSize
	}
	if opts.ClickTimeout <= 0 {
		opts.ClickTimeout = defaultClickTimeout
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = util.GenerateShortCode
	}

	s := &Service{
		store:        store,
		cache:        c,
		locker:       locker,
		logger:       logger,
		lockTTL:      opts.LockTTL,
		maxAttempts:  opts.MaxAttempts,
		clickMode:    opts.ClickMode,
		generate:     opts.GenerateCode,
		clicks:       make(chan *model.ShortLink, opts.ClickQueueSize),
		clickTimeout: opts.ClickTimeout,
	}
	for i := 0; i < opts.ClickWorkers; i++ {
		s.wg.Add(1)
		go s.clickWorker()
	}
	return s
}

// LockKey is the distributed lock key guarding creation for original.
func LockKey(original string) string {
	return lockPrefix + util.HashURL(original)
}

// CreateOrGet returns the link for original, creating it if none exists.
// At most one instance runs the creation path for a URL at a time; a caller
// that loses the lock and finds no record gets ErrContention.
func (s *Service) CreateOrGet(ctx context.Context, original string) (*model.ShortLink, error) {
	original = strings.TrimSpace(original)
	if err := util.ValidateURL(original); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	key := LockKey(original)
	token := lock.NewToken()

	acquired, err := s.locker.TryAcquire(ctx, key, token, s.lockTTL)
	switch {
	case err != nil:
		// unique constraints still hold without the lock
		s.logger.Warn("lock unavailable, creating without it", zap.String("lock_key", key), zap.Error(err))
	case !acquired:
		existing, err := s.findExisting(ctx, original)
		if err == nil {
			return existing, nil
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrContention
		}
		return nil, err
	default:
		defer s.release(ctx, key, token)
	}

	// another instance may have finished between our first look and the lock
	existing, err := s.findExisting(ctx, original)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return s.insert(ctx, original)
}

// CreateOrGetRetry calls CreateOrGet up to attempts times while it reports
// ErrContention, sleeping attempt*backoff in between.
func (s *Service) CreateOrGetRetry(ctx context.Context, original string, attempts int, backoff time.Duration) (*model.ShortLink, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var link *model.ShortLink
		link, err = s.CreateOrGet(ctx, original)
		if !errors.Is(err, ErrContention) {
			return link, err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}
	return nil, err
}

func (s *Service) insert(ctx context.Context, original string) (*model.ShortLink, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code := s.generate()
		link, err := s.store.Insert(ctx, original, code)
		switch {
		case err == nil:
			s.cache.PutLink(ctx, link)
			return link, nil
		case errors.Is(err, repository.ErrDuplicateCode):
			s.logger.Debug("short code collision", zap.String("short_code", code), zap.Int("attempt", attempt))
		case errors.Is(err, repository.ErrDuplicateURL):
			// written by someone outside our lock
			existing, err := s.store.FindByURL(ctx, original)
			if err != nil {
				return nil, fmt.Errorf("refetch after url conflict: %w", err)
			}
			s.cache.PutLink(ctx, existing)
			return existing, nil
		default:
			return nil, err
		}
	}
	s.logger.Error("short code generation exhausted",
		zap.String("original_url", original),
		zap.Int("attempts", s.maxAttempts),
	)
	return nil, ErrGenerationExhausted
}

func (s *Service) release(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	released, err := s.locker.Release(ctx, key, token)
	if err != nil {
		s.logger.Warn("lock release failed", zap.String("lock_key", key), zap.Error(err))
		return
	}
	if !released {
		s.logger.Warn("lock expired before release", zap.String("lock_key", key))
	}
}

func (s *Service) findExisting(ctx context.Context, original string) (*model.ShortLink, error) {
	if link, ok := s.cache.Get(ctx, cache.ByURL, original); ok {
		return link, nil
	}
	link, err := s.store.FindByURL(ctx, original)
	if err != nil {
		return nil, err
	}
	s.cache.PutLink(ctx, link)
	return link, nil
}

// Lookup returns the link for code without touching its click counter.
// A cache hit is returned as is, without checking the store.
func (s *Service) Lookup(ctx context.Context, code string) (*model.ShortLink, error) {
	if link, ok := s.cache.Get(ctx, cache.ByCode, code); ok {
		return link, nil
	}
	// the query is shared, so no single caller's cancellation may end it
	ch := s.lookups.DoChan(code, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		link, err := s.store.FindByCode(qctx, code)
		if err != nil {
			return nil, err
		}
		s.cache.PutLink(qctx, link)
		return link, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, repository.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, res.Err
		}
		return res.Val.(*model.ShortLink).Clone(), nil
	}
}

// Resolve looks code up and queues one click for it. The click is counted
// in the background; its outcome never affects the returned link.
func (s *Service) Resolve(ctx context.Context, code string) (*model.ShortLink, error) {
	link, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	s.dispatchClick(link.Clone())
	return link, nil
}

// IncrementClickCount adds one click to link in the store and refreshes
// both cache entries. It makes a single attempt.
func (s *Service) IncrementClickCount(ctx context.Context, link *model.ShortLink) error {
	var (
		updated *model.ShortLink
		err     error
	)
	switch s.clickMode {
	case ClickAtomic:
		updated, err = s.store.IncrementClickBy(ctx, link.ShortCode, 1)
	default:
		var current *model.ShortLink
		current, err = s.store.FindByCode(ctx, link.ShortCode)
		if err != nil {
			return fmt.Errorf("read click count: %w", err)
		}
		current.ClickCount++
		updated, err = s.store.Update(ctx, current)
	}
	if err != nil {
		return fmt.Errorf("write click count: %w", err)
	}
	s.cache.PutLink(ctx, updated)
	return nil
}
