package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rehud/rehud-delta/log"
)

var ErrCacheMiss = errors.New("cache miss")

const DefaultExpiration = 5 * time.Minute

type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (*V, error)
	Invalidate(key K)
}

type (
	Option[K comparable, V any]     func(*config[K, V])
	LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (*V, error)
)

type item[T any] struct {
	data    T
	expires time.Time
}

type config[K comparable, V any] struct {
	expiration time.Duration
	loader     LoaderFunc[K, V]
	now        func() time.Time
	l          *log.Logger
}

type loaderCache[K comparable, V any] struct {
	mutex  sync.Mutex
	items  map[K]item[*V]
	config *config[K, V]
}

func WithExpiration[K comparable, V any](expiration time.Duration) Option[K, V] {
	return func(c *config[K, V]) {
		c.expiration = expiration
	}
}

func WithLoader[K comparable, V any](lf LoaderFunc[K, V]) Option[K, V] {
	return func(c *config[K, V]) {
		c.loader = lf
	}
}

func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *config[K, V]) {
		c.now = now
	}
}

func WithLogger[K comparable, V any](arg *log.Logger) Option[K, V] {
	return func(c *config[K, V]) {
		c.l = arg
	}
}

// New creates a cache which loads missing or expired entries via the loader.
// A nil value returned by the loader is cached as well.
func New[K comparable, V any](opts ...Option[K, V]) Cache[K, V] {
	c := &config[K, V]{
		expiration: DefaultExpiration,
		now:        time.Now,
		l:          log.Default().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return &loaderCache[K, V]{
		items:  make(map[K]item[*V]),
		config: c,
	}
}

func (c *loaderCache[K, V]) Get(ctx context.Context, key K) (*V, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if cacheItem, ok := c.items[key]; ok {
		if !cacheItem.expires.After(c.config.now()) {
			delete(c.items, key)
			return c.load(ctx, key)
		}
		return cacheItem.data, nil
	}
	return c.load(ctx, key)
}

func (c *loaderCache[K, V]) load(ctx context.Context, key K) (*V, error) {
	if c.config.loader == nil {
		return nil, ErrCacheMiss
	}
	v, err := c.config.loader(ctx, key)
	c.config.l.Debug("loading entry", log.Any("key", key))
	if err != nil {
		return nil, err
	}
	c.items[key] = item[*V]{data: v, expires: c.config.now().Add(c.config.expiration)}
	return v, nil
}

func (c *loaderCache[K, V]) Invalidate(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
	c.config.l.Debug("invalidated", log.Any("key", key), log.Int("remain", len(c.items)))
}
