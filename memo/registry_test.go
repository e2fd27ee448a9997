package memo

import (
	"context"
	"os"
	"reflect"
	"sort"
	"testing"

	"github.com/goliatone/go-memo/cache"
	"github.com/goliatone/go-memo/pkg/testsupport"
	"github.com/vmihailenco/msgpack/v5"
)

func msgpackLen(t *testing.T, v any) int {
	t.Helper()
	b, err := msgpack.Marshal(v)
	if err != nil {
		t.Fatalf("msgpack.Marshal() failed: %v", err)
	}
	return len(b)
}

func sortStats(stats []CacheStat) []CacheStat {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].CacheName != stats[j].CacheName {
			return stats[i].CacheName < stats[j].CacheName
		}
		return stats[i].ByteLength < stats[j].ByteLength
	})
	return stats
}

func TestRegistry_Register(t *testing.T) {
	reg := newTestRegistry(t)
	clock := cache.SystemClock{}

	first := reg.Register("fn", cache.Config{Persist: cache.PersistDisk, NumShards: 1, EvictionPercentage: 10}, clock)
	second := reg.Register("fn", cache.DefaultConfig(), clock)

	if first != second {
		t.Fatal("Registration should be idempotent")
	}
	if !second.Persistent() {
		t.Error("The first configuration should win")
	}
	if second.Name() != "fn" {
		t.Errorf("Expected name fn, got %q", second.Name())
	}

	found, ok := reg.Lookup("fn")
	if !ok || found != first {
		t.Errorf("Lookup() = %p, %v; want the registered cache", found, ok)
	}

	if _, ok = reg.Lookup("missing"); ok {
		t.Error("Lookup() should miss unknown functions")
	}
	if err := reg.Clear(context.Background(), "missing"); err != nil {
		t.Errorf("Clearing an unknown function should be a no-op, got %v", err)
	}
}

func TestRegistry_NoStats(t *testing.T) {
	reg := newTestRegistry(t)
	stats := reg.GetStats()
	if stats == nil || len(stats) != 0 {
		t.Errorf("Expected an empty, non-nil slice, got %#v", stats)
	}
}

func TestRegistry_MultipleStats(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	foo, err := Memoize1(func(ctx context.Context, count int) ([]float64, error) {
		return filled(count), nil
	}, WithRegistry(reg))
	mustNoError(t, err)

	bar, err := Memoize0(func(ctx context.Context) (string, error) {
		return "shivermetimbers", nil
	}, WithRegistry(reg))
	mustNoError(t, err)

	_, err = foo.Call(ctx, 1)
	mustNoError(t, err)
	_, err = foo.Call(ctx, 53)
	mustNoError(t, err)
	_, err = bar.Call(ctx)
	mustNoError(t, err)
	_, err = bar.Call(ctx)
	mustNoError(t, err)

	expected := sortStats([]CacheStat{
		{CategoryName: CategoryName, CacheName: foo.Name(), ByteLength: msgpackLen(t, filled(1))},
		{CategoryName: CategoryName, CacheName: foo.Name(), ByteLength: msgpackLen(t, filled(53))},
		{CategoryName: CategoryName, CacheName: bar.Name(), ByteLength: msgpackLen(t, "shivermetimbers")},
	})
	if got := sortStats(reg.GetStats()); !reflect.DeepEqual(got, expected) {
		t.Errorf("GetStats() = %+v, want %+v", got, expected)
	}
}

func filled(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 3.14
	}
	return out
}

func TestRegistry_StatsSkipExpiredEntries(t *testing.T) {
	reg := newTestRegistry(t)
	clock := testsupport.NewFakeClock(epoch)

	f, err := Memoize0(func(ctx context.Context) (int, error) {
		return 1, nil
	}, WithRegistry(reg), WithClock(clock), WithTTL(oneDay))
	mustNoError(t, err)

	_, err = f.Call(context.Background())
	mustNoError(t, err)
	if n := len(reg.GetStats()); n != 1 {
		t.Fatalf("Expected 1 entry, got %d", n)
	}

	clock.Advance(2 * oneDay)
	if stats := reg.GetStats(); len(stats) != 0 {
		t.Errorf("Expired entries should not be reported, got %v", stats)
	}
}

func TestRegistry_ClearAllDiskCaches(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	calls := 0
	f, err := Memoize1(func(ctx context.Context, x int) (int, error) {
		calls++
		return x, nil
	}, WithRegistry(reg), WithPersist(cache.PersistDisk))
	mustNoError(t, err)

	_, err = f.Call(ctx, 1)
	mustNoError(t, err)
	if files := testsupport.MemoFiles(t, reg.CacheDir()); len(files) != 1 {
		t.Fatalf("Expected 1 persisted file, got %v", files)
	}

	mustNoError(t, reg.ClearAll(ctx))
	if _, statErr := os.Stat(reg.CacheDir()); !os.IsNotExist(statErr) {
		t.Errorf("The cache directory should be removed, stat error: %v", statErr)
	}
	if stats := reg.GetStats(); len(stats) != 0 {
		t.Errorf("Expected no stats after ClearAll, got %v", stats)
	}

	_, err = f.Call(ctx, 1)
	mustNoError(t, err)
	if calls != 2 {
		t.Errorf("Functions should keep working after ClearAll, computed %d times", calls)
	}
}

func TestRegistry_ClearAllWithoutDirectory(t *testing.T) {
	reg := newTestRegistry(t)
	if _, statErr := os.Stat(reg.CacheDir()); !os.IsNotExist(statErr) {
		t.Fatalf("Expected no cache directory, stat error: %v", statErr)
	}

	if err := reg.ClearAll(context.Background()); err != nil {
		t.Errorf("ClearAll() without a directory failed: %v", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	ctx := context.Background()
	mustNoError(t, ClearAllMemoCaches(ctx))

	if Default() != Default() {
		t.Fatal("Default() should return a singleton")
	}
	if got, want := Default().CacheDir(), os.Getenv(cache.CacheDirEnv); got != want {
		t.Errorf("Expected cache dir %q, got %q", want, got)
	}

	f, err := Memoize0(func(ctx context.Context) (string, error) {
		return "default", nil
	}, WithPersist(cache.PersistDisk))
	mustNoError(t, err)

	_, err = f.Call(ctx)
	mustNoError(t, err)

	stats := GetMemoStatsProvider().GetStats()
	if len(stats) != 1 || stats[0].CacheName != f.Name() {
		t.Fatalf("Expected one stat for %q, got %+v", f.Name(), stats)
	}
	if files := testsupport.MemoFiles(t, Default().CacheDir()); len(files) != 1 {
		t.Errorf("Expected 1 persisted file, got %v", files)
	}

	mustNoError(t, ClearAllMemoCaches(ctx))
	if stats := GetMemoStatsProvider().GetStats(); len(stats) != 0 {
		t.Errorf("Expected no stats after clearing, got %v", stats)
	}
	if files := testsupport.MemoFiles(t, Default().CacheDir()); len(files) != 0 {
		t.Errorf("Expected no files after clearing, got %v", files)
	}
}
