package cache

import (
	"context"
	"time"
)

// Key is the hex encoded SHA-256 digest identifying a single memoized call.
type Key string

// String returns the digest as a plain string.
func (k Key) String() string { return string(k) }

// KeyBuilder builds a cache key from a function identity + arbitrary args.
// It is responsible for producing stable keys across calls and processes.
type KeyBuilder interface {
	BuildKey(identity string, args ...any) (Key, error)
}

// Entry is a serialized value together with the moment it was computed.
// StoredAt travels with the blob across tiers, so promoting an entry never
// extends its lifetime.
type Entry struct {
	Blob     []byte
	StoredAt time.Time
}

// Tier is a single storage layer of a memoized function's cache.
// Tiers hold serialized blobs, never live values, so a read can always
// hand out an independent copy.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Get returns (Entry{}, false, nil) on miss, expired entries included.
// An error means the tier holds an entry for the key that could not be read.
// - Delete is idempotent.
type Tier interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Set(ctx context.Context, key Key, entry Entry) error
	Delete(ctx context.Context, key Key) error
}
