// Package codecache maps fingerprints to linked code objects.
//
// At most one compilation per key is in flight at any time: concurrent
// callers for a key share one result, and callers for different keys never
// wait on each other. Published entries are immutable. A failed compilation
// publishes nothing; every caller that waited on it receives the failure and
// a later call compiles again.
//
// Thread-safety model:
//   - GetOrCompile/IsCached/Len/Stats: safe from any goroutine
//   - unbounded caches read entries from a sync.Map without locks
//   - bounded caches (WithMaxEntries) use an LRU that locks internally;
//     evicting an entry never affects callers already holding it
package codecache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/stepc/internal/ir"
	"github.com/roach88/stepc/internal/kernel"
)

// CompileFunc produces the program for a key on a cache miss.
type CompileFunc func(ctx context.Context) (*kernel.Program, error)

// ArtifactStore persists programs across processes. *store.Store
// implements it.
type ArtifactStore interface {
	GetOrCreate(ctx context.Context, key ir.Key, build func() (*kernel.Program, error)) (*kernel.Program, bool, error)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Compiles  int64 `json:"compiles"`
	Failures  int64 `json:"failures"`
	Evictions int64 `json:"evictions"`
	DiskLoads int64 `json:"disk_loads"`
}

// Cache is the code object cache.
type Cache struct {
	entries sync.Map // ir.Key -> *kernel.CodeObject, when unbounded
	bounded *lru.Cache[ir.Key, *kernel.CodeObject]
	flights singleflight.Group

	maxEntries int
	store      ArtifactStore
	linkOpts   []kernel.LinkOption
	logger     *slog.Logger

	hits, misses, compiles, failures, evictions, diskLoads atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the cache to n entries, evicting least recently
// used. n <= 0 means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithStore consults s on every miss before compiling.
func WithStore(s ArtifactStore) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// WithLinkOptions passes opts to kernel.Link for every published entry.
func WithLinkOptions(opts ...kernel.LinkOption) Option {
	return func(c *Cache) {
		c.linkOpts = append(c.linkOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxEntries > 0 {
		// NewWithEvict only fails for a non-positive size.
		c.bounded, _ = lru.NewWithEvict(c.maxEntries, func(key ir.Key, _ *kernel.CodeObject) {
			c.evictions.Add(1)
			c.logger.Debug("code object evicted", "key", key.Short())
		})
	}
	return c
}

func (c *Cache) lookup(key ir.Key) (*kernel.CodeObject, bool) {
	if c.bounded != nil {
		return c.bounded.Get(key)
	}
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*kernel.CodeObject), true
}

func (c *Cache) publish(key ir.Key, co *kernel.CodeObject) {
	if c.bounded != nil {
		c.bounded.Add(key, co)
		return
	}
	c.entries.Store(key, co)
}

// GetOrCompile returns the code object for key, compiling it with compile
// on a miss. Errors are COMPILATION_FAILURE.
//
// The first caller's ctx governs a shared compilation; if it is cancelled
// every caller waiting on that compilation receives the cancellation.
func (c *Cache) GetOrCompile(ctx context.Context, key ir.Key, compile CompileFunc) (*kernel.CodeObject, error) {
	if co, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return co, nil
	}
	c.misses.Add(1)

	v, err, shared := c.flights.Do(string(key), func() (any, error) {
		// A flight for this key may have published between our lookup
		// and Do.
		if co, ok := c.lookup(key); ok {
			return co, nil
		}
		co, err := c.build(ctx, key, compile)
		if err != nil {
			c.failures.Add(1)
			c.logger.Warn("compilation failed", "key", key.Short(), "error", err)
			return nil, err
		}
		c.publish(key, co)
		return co, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("shared compilation result", "key", key.Short())
	}
	return v.(*kernel.CodeObject), nil
}

func (c *Cache) build(ctx context.Context, key ir.Key, compile CompileFunc) (*kernel.CodeObject, error) {
	if compile == nil {
		return nil, ir.Errorf(ir.ErrCodeCompilationFailure, "", "no compile function for %s", key.Short())
	}
	run := func() (*kernel.Program, error) {
		c.compiles.Add(1)
		c.logger.Debug("compiling code object", "key", key.Short())
		return compile(ctx)
	}

	var (
		p   *kernel.Program
		err error
	)
	if c.store != nil {
		var loaded bool
		p, loaded, err = c.store.GetOrCreate(ctx, key, run)
		if loaded {
			c.diskLoads.Add(1)
			c.logger.Debug("code object loaded from store", "key", key.Short())
		}
	} else {
		p, err = run()
	}
	if err != nil {
		return nil, asCompilationFailure(key, err)
	}

	co, err := kernel.Link(p, c.linkOpts...)
	if err != nil {
		return nil, asCompilationFailure(key, err)
	}
	return co, nil
}

func asCompilationFailure(key ir.Key, err error) error {
	if ir.IsCode(err, ir.ErrCodeCompilationFailure) {
		return err
	}
	return ir.WrapError(ir.ErrCodeCompilationFailure, "", "compile "+key.Short(), err)
}

// IsCached reports whether key has a published entry. It does not count
// as a hit and does not refresh LRU recency.
func (c *Cache) IsCached(key ir.Key) bool {
	if c.bounded != nil {
		return c.bounded.Contains(key)
	}
	_, ok := c.entries.Load(key)
	return ok
}

// Len returns the number of published entries.
func (c *Cache) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Compiles:  c.compiles.Load(),
		Failures:  c.failures.Load(),
		Evictions: c.evictions.Load(),
		DiskLoads: c.diskLoads.Load(),
	}
}

// IsCompilationFailure reports whether err is a compilation failure.
func IsCompilationFailure(err error) bool {
	var e *ir.Error
	return errors.As(err, &e) && e.Code == ir.ErrCodeCompilationFailure
}
