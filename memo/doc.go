// Package memo provides function memoization on top of the cache package.
//
// # Overview
//
// A memoized function computes its result once per distinct set of
// arguments and serves later calls from its cache. Each function owns a
// FuncCache made of an in-memory tier and, optionally, a disk tier. Caches
// are registered by function identity in a Registry, which also provides
// global clearing and statistics.
//
// # Key Features
//
//   - **Type-safe wrappers**: Memoize0, Memoize1 and Memoize2 keep the wrapped signature
//   - **Copy on read**: values are stored serialized; every hit decodes a fresh copy
//   - **Per function TTL**: expiry is checked lazily on lookup against an injectable clock
//   - **Opt-in persistence**: cache.PersistDisk writes one file per entry under the cache dir
//   - **Statistics**: Registry.GetStats and a prometheus Collector
//
// # Basic Usage
//
//	loadReport, err := memo.Memoize1(func(ctx context.Context, month string) (Report, error) {
//		return queryReport(ctx, month)
//	}, memo.WithTTL(24*time.Hour), memo.WithPersist(cache.PersistDisk))
//	if err != nil {
//		return err // invalid options fail here, not on first call
//	}
//
//	report, err := loadReport.Call(ctx, "2024-01") // computed
//	report, err = loadReport.Call(ctx, "2024-01")  // served from cache
//	err = loadReport.Clear(ctx)
//
// # Caching Behavior
//
//  1. Build the key from the function identity and the arguments
//  2. Look up the memory tier, then the disk tier (hits are promoted to memory)
//  3. On a miss, run the function under a call stack frame
//  4. Serialize the result and store it in every tier
//  5. Return the result to the caller
//
// Errors returned by the function are not cached. Two goroutines missing on
// the same key may both run the function; the cache stays consistent.
//
// # Function Identity
//
// The identity defaults to the fully qualified name of the function value
// (runtime.FuncForPC). Method values of different receivers share a name;
// use WithName to tell them apart.
//
// # Values
//
// Results are serialized with msgpack. Only exported struct fields survive
// a round trip, and results typed as interfaces decode to msgpack's generic
// representation.
//
// # Call Stack
//
// Computations push a frame on the context passed to the wrapped function.
// Nested memoized calls should receive that context; CallStack.IsNested and
// CallStack.Warn use it to report side effects that will not replay on a hit.
package memo
