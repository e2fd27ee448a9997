package cacheinfra

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-memo/cache"
	"github.com/viccon/sturdyc"
)

// retention is the lifetime handed to sturdyc. Expiry is decided by the
// tier itself against an injectable clock, so sturdyc only has to hold on
// to entries until they are evicted for capacity.
const retention = 100 * 365 * 24 * time.Hour

// unboundedCapacity stands in for "no limit" since sturdyc needs a capacity.
const unboundedCapacity = 1 << 20

// MemoryConfig holds the configuration for the sturdyc backed memory tier.
type MemoryConfig struct {
	// Capacity defines the maximum number of entries held in memory.
	// Zero means unbounded.
	Capacity int

	// NumShards determines the number of sturdyc shards.
	NumShards int

	// EvictionPercentage specifies what percentage of entries to evict
	// when a shard reaches its capacity.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc scans for entries past retention.
	// Zero disables the background scan, so the tier starts no goroutine.
	EvictionInterval time.Duration

	// TTL is the lifetime of an entry. Zero disables expiry.
	TTL time.Duration

	// Clock is the time source for TTL checks. Defaults to cache.SystemClock.
	Clock cache.Clock
}

// MemoryConfigFrom maps a function cache configuration to the memory tier.
func MemoryConfigFrom(cfg cache.Config, clock cache.Clock) MemoryConfig {
	return MemoryConfig{
		Capacity:           cfg.MaxEntries,
		NumShards:          cfg.NumShards,
		EvictionPercentage: cfg.EvictionPercentage,
		TTL:                cfg.TTL,
		Clock:              clock,
	}
}

// normalized fills in zero values so the sturdyc constructor never sees an
// invalid argument. Small capacities collapse onto a single shard, otherwise
// each shard would round down to zero entries.
func (c MemoryConfig) normalized() MemoryConfig {
	if c.Capacity <= 0 {
		c.Capacity = unboundedCapacity
	}
	if c.NumShards <= 0 {
		c.NumShards = cache.DefaultConfig().NumShards
	}
	if c.Capacity < c.NumShards*8 {
		c.NumShards = 1
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		c.EvictionPercentage = cache.DefaultConfig().EvictionPercentage
	}
	if c.TTL < 0 {
		c.TTL = 0
	}
	if c.Clock == nil {
		c.Clock = cache.SystemClock{}
	}
	return c
}

// ToSturdycOptions converts the config to sturdyc.Option slice.
// Capacity, NumShards and EvictionPercentage are passed directly to the
// sturdyc.New() constructor and are not included in the options.
func (c MemoryConfig) ToSturdycOptions() []sturdyc.Option {
	if c.EvictionInterval <= 0 {
		return []sturdyc.Option{sturdyc.WithNoContinuousEvictions()}
	}
	return []sturdyc.Option{sturdyc.WithEvictionInterval(c.EvictionInterval)}
}

// MemoryTier is the in-memory tier of a memoized function's cache.
// Expired entries are treated as absent and purged lazily on lookup.
type MemoryTier struct {
	// mu covers read-check-delete sequences; without it a lookup could delete
	// an entry that a concurrent Set just refreshed.
	mu     sync.Mutex
	client *sturdyc.Client[cache.Entry]
	ttl    time.Duration
	clock  cache.Clock
}

var _ cache.Tier = (*MemoryTier)(nil)

// NewMemoryTier creates a memory tier backed by a sturdyc client.
//
// Entries past retention are only possible with a positive EvictionInterval,
// and only then does sturdyc run an eviction goroutine. That goroutine lives
// as long as the process, so the default leaves it off: function caches are
// created per registered function and never closed.
func NewMemoryTier(cfg MemoryConfig) *MemoryTier {
	cfg = cfg.normalized()

	client := sturdyc.New[cache.Entry](
		cfg.Capacity,
		cfg.NumShards,
		retention,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &MemoryTier{
		client: client,
		ttl:    cfg.TTL,
		clock:  cfg.Clock,
	}
}

func (m *MemoryTier) expired(storedAt time.Time) bool {
	return cache.Expired(storedAt, m.clock.Now(), m.ttl)
}

// Get implements cache.Tier. It never returns an error.
func (m *MemoryTier) Get(_ context.Context, key cache.Key) (cache.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.client.Get(string(key))
	if !ok {
		return cache.Entry{}, false, nil
	}
	if m.expired(entry.StoredAt) {
		m.client.Delete(string(key))
		return cache.Entry{}, false, nil
	}
	return entry, true, nil
}

// Set implements cache.Tier, overwriting any entry stored under key.
// An entry without a timestamp is stamped with the tier's clock.
func (m *MemoryTier) Set(_ context.Context, key cache.Key, entry cache.Entry) error {
	stored := cache.Entry{
		Blob:     make([]byte, len(entry.Blob)),
		StoredAt: entry.StoredAt,
	}
	copy(stored.Blob, entry.Blob)
	if stored.StoredAt.IsZero() {
		stored.StoredAt = m.clock.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.client.Set(string(key), stored)
	return nil
}

// Delete implements cache.Tier.
func (m *MemoryTier) Delete(_ context.Context, key cache.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client.Delete(string(key))
	return nil
}

// Sizes returns the serialized size of every live entry.
func (m *MemoryTier) Sizes() map[cache.Key]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	sizes := make(map[cache.Key]int)
	for _, k := range m.client.ScanKeys() {
		if entry, ok := m.client.Get(k); ok && !m.expired(entry.StoredAt) {
			sizes[cache.Key(k)] = len(entry.Blob)
		}
	}
	return sizes
}

// Len returns the number of entries held, expired ones included.
func (m *MemoryTier) Len() int {
	return m.client.Size()
}

// Purge removes every entry.
func (m *MemoryTier) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.client.ScanKeys() {
		m.client.Delete(k)
	}
}
