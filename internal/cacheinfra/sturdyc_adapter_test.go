package cacheinfra

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-memo/cache"
	"github.com/goliatone/go-memo/pkg/testsupport"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func blobEntry(s string) cache.Entry {
	return cache.Entry{Blob: []byte(s)}
}

func TestMemoryConfigFrom(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.TTL = time.Hour
	cfg.MaxEntries = 500
	clock := testsupport.NewFakeClock(epoch)

	mc := MemoryConfigFrom(cfg, clock)

	if mc.Capacity != 500 {
		t.Errorf("Expected capacity 500, got %d", mc.Capacity)
	}
	if mc.NumShards != cfg.NumShards {
		t.Errorf("Expected %d shards, got %d", cfg.NumShards, mc.NumShards)
	}
	if mc.EvictionPercentage != cfg.EvictionPercentage {
		t.Errorf("Expected eviction percentage %d, got %d", cfg.EvictionPercentage, mc.EvictionPercentage)
	}
	if mc.TTL != time.Hour {
		t.Errorf("Expected TTL %v, got %v", time.Hour, mc.TTL)
	}
	if mc.Clock != clock {
		t.Error("Expected the injected clock to be carried over")
	}
}

func TestMemoryConfig_Normalized(t *testing.T) {
	tests := []struct {
		name       string
		cfg        MemoryConfig
		wantCap    int
		wantShards int
		wantEvict  int
	}{
		{
			name:       "zero values",
			cfg:        MemoryConfig{},
			wantCap:    unboundedCapacity,
			wantShards: 16,
			wantEvict:  10,
		},
		{
			name:       "small capacity collapses shards",
			cfg:        MemoryConfig{Capacity: 10, NumShards: 16, EvictionPercentage: 50},
			wantCap:    10,
			wantShards: 1,
			wantEvict:  50,
		},
		{
			name:       "large capacity keeps shards",
			cfg:        MemoryConfig{Capacity: 10000, NumShards: 32, EvictionPercentage: 200},
			wantCap:    10000,
			wantShards: 32,
			wantEvict:  10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.normalized()
			if got.Capacity != tt.wantCap {
				t.Errorf("Capacity = %d, want %d", got.Capacity, tt.wantCap)
			}
			if got.NumShards != tt.wantShards {
				t.Errorf("NumShards = %d, want %d", got.NumShards, tt.wantShards)
			}
			if got.EvictionPercentage != tt.wantEvict {
				t.Errorf("EvictionPercentage = %d, want %d", got.EvictionPercentage, tt.wantEvict)
			}
			if got.Clock == nil {
				t.Error("Clock should default to the system clock")
			}
		})
	}
}

func TestMemoryConfig_ToSturdycOptions(t *testing.T) {
	// Without an interval the only option turns the eviction goroutine off.
	if got := len(MemoryConfig{}.ToSturdycOptions()); got != 1 {
		t.Errorf("Expected 1 option without interval, got %d", got)
	}
	if got := len(MemoryConfig{EvictionInterval: time.Minute}.ToSturdycOptions()); got != 1 {
		t.Errorf("Expected 1 option with interval, got %d", got)
	}
}

func TestMemoryTier_EvictionModes(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		tier := NewMemoryTier(MemoryConfig{Capacity: 4})
		if err := tier.Set(ctx, "k", blobEntry("v")); err != nil {
			t.Fatalf("Set() failed: %v", err)
		}
	}

	tier := NewMemoryTier(MemoryConfig{EvictionInterval: time.Hour})
	if err := tier.Set(ctx, "k", blobEntry("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if _, ok, _ := tier.Get(ctx, "k"); !ok {
		t.Error("Expected hit on a tier with background eviction")
	}
}

func TestMemoryTier_GetSetDelete(t *testing.T) {
	tier := NewMemoryTier(MemoryConfig{})
	ctx := context.Background()

	_, ok, err := tier.Get(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("Expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := tier.Set(ctx, "k", blobEntry("v1")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	entry, ok, err := tier.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if string(entry.Blob) != "v1" {
		t.Errorf("Expected v1, got %q", entry.Blob)
	}

	if err := tier.Set(ctx, "k", blobEntry("v2")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if entry, _, _ = tier.Get(ctx, "k"); string(entry.Blob) != "v2" {
		t.Errorf("Set should overwrite, got %q", entry.Blob)
	}

	if err := tier.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok, _ = tier.Get(ctx, "k"); ok {
		t.Error("Expected miss after delete")
	}
	if err := tier.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete should be idempotent, got %v", err)
	}
}

func TestMemoryTier_SetCopiesBlob(t *testing.T) {
	tier := NewMemoryTier(MemoryConfig{})
	ctx := context.Background()

	blob := []byte("value")
	if err := tier.Set(ctx, "k", cache.Entry{Blob: blob}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	blob[0] = 'X'

	got, _, _ := tier.Get(ctx, "k")
	if !bytes.Equal(got.Blob, []byte("value")) {
		t.Errorf("Stored blob should be independent of the caller's, got %q", got.Blob)
	}
}

func TestMemoryTier_StampsEntries(t *testing.T) {
	clock := testsupport.NewFakeClock(epoch)
	tier := NewMemoryTier(MemoryConfig{Clock: clock})
	ctx := context.Background()

	if err := tier.Set(ctx, "fresh", blobEntry("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	stamped := epoch.Add(-time.Minute)
	if err := tier.Set(ctx, "promoted", cache.Entry{Blob: []byte("v"), StoredAt: stamped}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	if got, _, _ := tier.Get(ctx, "fresh"); !got.StoredAt.Equal(epoch) {
		t.Errorf("Expected entry stamped with the clock, got %v", got.StoredAt)
	}
	if got, _, _ := tier.Get(ctx, "promoted"); !got.StoredAt.Equal(stamped) {
		t.Errorf("Expected original timestamp to be kept, got %v", got.StoredAt)
	}
}

func TestMemoryTier_TTL(t *testing.T) {
	clock := testsupport.NewFakeClock(epoch)
	tier := NewMemoryTier(MemoryConfig{TTL: time.Hour, Clock: clock})
	ctx := context.Background()

	if err := tier.Set(ctx, "k", blobEntry("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	clock.Advance(time.Hour - time.Nanosecond)
	if _, ok, _ := tier.Get(ctx, "k"); !ok {
		t.Error("Entry should be live before the ttl elapses")
	}

	clock.Advance(time.Nanosecond)
	if _, ok, _ := tier.Get(ctx, "k"); ok {
		t.Error("Entry should expire exactly when the ttl elapses")
	}
	if tier.Len() != 0 {
		t.Errorf("Expired entry should be purged on lookup, %d left", tier.Len())
	}
}

func TestMemoryTier_TTLCountsFromStoredAt(t *testing.T) {
	clock := testsupport.NewFakeClock(epoch)
	tier := NewMemoryTier(MemoryConfig{TTL: time.Hour, Clock: clock})
	ctx := context.Background()

	old := cache.Entry{Blob: []byte("v"), StoredAt: epoch.Add(-59 * time.Minute)}
	if err := tier.Set(ctx, "k", old); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if _, ok, _ := tier.Get(ctx, "k"); !ok {
		t.Fatal("Entry should be live one minute before its deadline")
	}

	clock.Advance(time.Minute)
	if _, ok, _ := tier.Get(ctx, "k"); ok {
		t.Error("Entry should expire relative to its original timestamp")
	}
}

func TestMemoryTier_NoTTL(t *testing.T) {
	clock := testsupport.NewFakeClock(epoch)
	tier := NewMemoryTier(MemoryConfig{Clock: clock})
	ctx := context.Background()

	if err := tier.Set(ctx, "k", blobEntry("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	clock.Advance(10 * 365 * 24 * time.Hour)

	if _, ok, _ := tier.Get(ctx, "k"); !ok {
		t.Error("Entries without ttl should never expire")
	}
}

func TestMemoryTier_SizesSkipExpired(t *testing.T) {
	clock := testsupport.NewFakeClock(epoch)
	tier := NewMemoryTier(MemoryConfig{TTL: time.Minute, Clock: clock})
	ctx := context.Background()

	_ = tier.Set(ctx, "old", blobEntry("12345"))
	clock.Advance(2 * time.Minute)
	_ = tier.Set(ctx, "new", blobEntry("123"))

	sizes := tier.Sizes()
	if len(sizes) != 1 || sizes["new"] != 3 {
		t.Errorf("Expected only the live entry, got %v", sizes)
	}
}

func TestMemoryTier_Purge(t *testing.T) {
	tier := NewMemoryTier(MemoryConfig{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := tier.Set(ctx, cache.Key(fmt.Sprintf("k%d", i)), blobEntry("v")); err != nil {
			t.Fatalf("Set() failed: %v", err)
		}
	}
	if tier.Len() != 10 {
		t.Fatalf("Expected 10 entries, got %d", tier.Len())
	}

	tier.Purge()
	if tier.Len() != 0 {
		t.Errorf("Expected empty tier after purge, got %d", tier.Len())
	}
	if len(tier.Sizes()) != 0 {
		t.Errorf("Expected no sizes after purge, got %v", tier.Sizes())
	}
}

func TestMemoryTier_Concurrent(t *testing.T) {
	clock := testsupport.NewFakeClock(epoch)
	tier := NewMemoryTier(MemoryConfig{TTL: time.Minute, Clock: clock})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := cache.Key(fmt.Sprintf("k%d", i%20))
				_ = tier.Set(ctx, key, cache.Entry{Blob: []byte{byte(g)}})
				_, _, _ = tier.Get(ctx, key)
				if i%50 == 0 {
					clock.Advance(time.Second)
				}
			}
		}(g)
	}
	wg.Wait()

	for key := range tier.Sizes() {
		entry, ok, err := tier.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if ok && len(entry.Blob) != 1 {
			t.Errorf("Expected one byte blob for %s, got %d", key, len(entry.Blob))
		}
	}
}
