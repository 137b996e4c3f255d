package sqlstore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/ratelimit"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// FactoryOption tunes the stores built by RepositoryFactory.
type FactoryOption func(*RepositoryFactory)

// WithDedupWindow overrides the seen-event window. Production wiring keeps
// core.DedupWindow; tests shrink it.
func WithDedupWindow(window time.Duration) FactoryOption {
	return func(f *RepositoryFactory) {
		if window > 0 {
			f.window = window
		}
	}
}

// WithRateLimitCache fronts the rate-limit state store with a cache of the
// given TTL.
func WithRateLimitCache(ttl time.Duration) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheRateLimit = true
		f.cacheTTL = cachedStateTTL(ttl)
	}
}

type RepositoryFactory struct {
	db *bun.DB

	window         time.Duration
	cacheRateLimit bool
	cacheTTL       time.Duration

	seenEventStore      *SeenEventStore
	dispatchStore       *DispatchStore
	rateLimitStateStore ratelimit.StateStore
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{window: core.DedupWindow}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.seenEventStore != nil && f.dispatchStore != nil && f.rateLimitStateStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) SeenEventStore() *SeenEventStore {
	if f == nil {
		return nil
	}
	return f.seenEventStore
}

func (f *RepositoryFactory) DispatchStore() *DispatchStore {
	if f == nil {
		return nil
	}
	return f.dispatchStore
}

func (f *RepositoryFactory) RateLimitStateStore() ratelimit.StateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

func (f *RepositoryFactory) initStores() error {
	seenEventStore, err := NewSeenEventStore(f.db, f.window)
	if err != nil {
		return err
	}
	f.seenEventStore = seenEventStore

	dispatchStore, err := NewDispatchStore(f.db)
	if err != nil {
		return err
	}
	f.dispatchStore = dispatchStore

	rateLimitStore, err := NewRateLimitStateStore(f.db)
	if err != nil {
		return err
	}
	f.rateLimitStateStore = rateLimitStore
	if !f.cacheRateLimit {
		return nil
	}

	config := repositorycache.DefaultConfig()
	config.TTL = f.cacheTTL
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		return fmt.Errorf("sqlstore: rate-limit cache: %w", err)
	}
	cached, err := NewCachedRateLimitStateStore(rateLimitStore, cacheService)
	if err != nil {
		return err
	}
	f.rateLimitStateStore = cached
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
