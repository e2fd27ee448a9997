package memo

import (
	"context"
	"sync"

	"github.com/goliatone/go-memo/cache"
	"github.com/goliatone/go-memo/internal/cacheinfra"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Registry tracks the caches of all memoized functions sharing a disk
// directory and a call stack. Most programs use the process wide Default
// registry; tests create their own.
type Registry struct {
	caches   *xsync.MapOf[string, *FuncCache]
	cacheDir string
	stack    *CallStack
	logger   *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCacheDir sets the directory persisted entries are written to.
func WithCacheDir(dir string) RegistryOption {
	return func(r *Registry) {
		if dir != "" {
			r.cacheDir = dir
		}
	}
}

// WithRegistryLogger sets the logger used by the registry and its call stack.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		caches: xsync.NewMapOf[string, *FuncCache](),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cacheDir == "" {
		r.cacheDir = cache.DefaultCacheDir()
	}
	r.stack = NewCallStack(r.logger)
	return r
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// Default returns the process wide registry, created on first use.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// CacheDir returns the directory persisted entries live in.
func (r *Registry) CacheDir() string { return r.cacheDir }

// CallStack returns the call stack shared by the registry's functions.
func (r *Registry) CallStack() *CallStack { return r.stack }

// Register returns the cache of the function identified by name, creating
// it with cfg on first use. Later calls reuse the existing cache.
func (r *Registry) Register(name string, cfg cache.Config, clock cache.Clock) *FuncCache {
	c, loaded := r.caches.LoadOrCompute(name, func() *FuncCache {
		return newFuncCache(name, cfg, clock, r.cacheDir, r.logger)
	})
	if !loaded {
		r.logger.Debug("registered memoized function",
			zap.String("function", name),
			zap.Duration("ttl", cfg.TTL),
			zap.String("persist", string(cfg.Persist)),
		)
	}
	return c
}

// Lookup returns the cache registered under name.
func (r *Registry) Lookup(name string) (*FuncCache, bool) {
	return r.caches.Load(name)
}

// Clear removes the entries of the function registered under name.
func (r *Registry) Clear(ctx context.Context, name string) error {
	c, ok := r.caches.Load(name)
	if !ok {
		return nil
	}
	return c.Clear(ctx)
}

// ClearAll clears every registered cache and removes the disk cache
// directory if it exists.
func (r *Registry) ClearAll(_ context.Context) error {
	r.caches.Range(func(_ string, c *FuncCache) bool {
		c.purgeMemory()
		return true
	})

	removed, err := cacheinfra.RemoveAll(r.cacheDir)
	if err != nil {
		return err
	}
	if removed {
		r.logger.Debug("removed disk cache", zap.String("dir", r.cacheDir))
	}
	return nil
}

// GetStats implements StatsProvider: one record per stored entry across
// all registered functions, in no particular order.
func (r *Registry) GetStats() []CacheStat {
	var stats []CacheStat
	r.caches.Range(func(_ string, c *FuncCache) bool {
		stats = append(stats, c.Stats()...)
		return true
	})
	if stats == nil {
		stats = []CacheStat{}
	}
	return stats
}

// ClearAllMemoCaches clears every cache of the default registry.
func ClearAllMemoCaches(ctx context.Context) error {
	return Default().ClearAll(ctx)
}
