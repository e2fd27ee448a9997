package cache

import "time"

// Clock is the time source used for TTL bookkeeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock. Values returned by time.Now carry a
// monotonic reading, so elapsed time comparisons are immune to wall clock jumps.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Expired reports whether an entry stored at storedAt is stale at now.
// An entry lives for exactly ttl: it is stale from storedAt+ttl onwards.
// A ttl of zero or less never expires.
func Expired(storedAt, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(storedAt) >= ttl
}
