package memo

import (
	"context"
	"sync"

	"github.com/goliatone/go-memo/cache"
	"github.com/goliatone/go-memo/internal/cacheinfra"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FuncCache is the cache of a single memoized function. Lookups walk the
// tiers in order (memory, then disk) and promote lower tier hits upwards.
type FuncCache struct {
	name   string
	config cache.Config
	memory *cacheinfra.MemoryTier
	disk   *cacheinfra.DiskTier
	tiers  []cache.Tier
	clock  cache.Clock
	logger *zap.Logger

	// keys tracks every key this function stored or loaded, so Clear can
	// remove its disk entries without touching other functions' files.
	keys *xsync.MapOf[cache.Key, struct{}]

	// clearMu is held shared by store and exclusively by Clear, so a file
	// is never written after Clear looked at its key.
	clearMu sync.RWMutex
}

func newFuncCache(name string, cfg cache.Config, clock cache.Clock, cacheDir string, logger *zap.Logger) *FuncCache {
	c := &FuncCache{
		name:   name,
		config: cfg,
		memory: cacheinfra.NewMemoryTier(cacheinfra.MemoryConfigFrom(cfg, clock)),
		keys:   xsync.NewMapOf[cache.Key, struct{}](),
		clock:  clock,
		logger: logger,
	}
	c.tiers = []cache.Tier{c.memory}

	if cfg.Persist == cache.PersistDisk {
		c.disk = cacheinfra.NewDiskTier(cacheinfra.DiskConfig{
			Dir:   cacheDir,
			TTL:   cfg.TTL,
			Clock: clock,
		})
		c.tiers = append(c.tiers, c.disk)
	}
	return c
}

// Name returns the identity of the memoized function.
func (c *FuncCache) Name() string { return c.name }

// Config returns the configuration the cache was created with.
func (c *FuncCache) Config() cache.Config { return c.config }

// Persistent reports whether the disk tier is enabled.
func (c *FuncCache) Persistent() bool { return c.disk != nil }

// lookup returns the blob stored for key by the first tier that holds it.
// Promoted entries keep their original timestamp, so a disk hit expires
// from memory when it would have expired from disk.
func (c *FuncCache) lookup(ctx context.Context, key cache.Key) ([]byte, bool, error) {
	for i, tier := range c.tiers {
		entry, ok, err := tier.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if i > 0 {
			c.keys.Store(key, struct{}{})
			for _, upper := range c.tiers[:i] {
				_ = upper.Set(ctx, key, entry)
			}
		}
		return entry.Blob, true, nil
	}
	return nil, false, nil
}

// store writes blob to every tier, stamped with the current time.
// A failed disk write is logged and otherwise ignored: the value is still
// served from memory.
func (c *FuncCache) store(ctx context.Context, key cache.Key, blob []byte) {
	c.clearMu.RLock()
	defer c.clearMu.RUnlock()

	entry := cache.Entry{Blob: blob, StoredAt: c.clock.Now()}
	c.keys.Store(key, struct{}{})
	for _, tier := range c.tiers {
		if err := tier.Set(ctx, key, entry); err != nil {
			c.logger.Warn("failed to store memoized value",
				zap.String("function", c.name),
				zap.String("key", key.String()),
				zap.Error(err),
			)
		}
	}
}

// Clear removes every entry of this function, including its disk files.
// A key whose file could not be removed stays tracked for the next Clear.
func (c *FuncCache) Clear(ctx context.Context) error {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()

	var err error
	c.keys.Range(func(key cache.Key, _ struct{}) bool {
		if c.disk != nil {
			if derr := c.disk.Delete(ctx, key); derr != nil {
				err = multierr.Append(err, derr)
				return true
			}
		}
		c.keys.Delete(key)
		return true
	})
	c.logger.Debug("cleared memoized function",
		zap.String("function", c.name),
		zap.Int("entries", c.memory.Len()),
	)
	c.memory.Purge()
	return err
}

// purgeMemory drops the in-memory entries only. Used by Registry.ClearAll,
// which removes the disk tree in one go.
func (c *FuncCache) purgeMemory() {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()
	c.memory.Purge()
	c.keys.Clear()
}

// Stats returns one record per live in-memory entry.
func (c *FuncCache) Stats() []CacheStat {
	sizes := c.memory.Sizes()
	stats := make([]CacheStat, 0, len(sizes))
	for _, size := range sizes {
		stats = append(stats, CacheStat{
			CategoryName: CategoryName,
			CacheName:    c.name,
			ByteLength:   size,
		})
	}
	return stats
}
