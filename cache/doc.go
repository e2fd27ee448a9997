// Package cache provides the contracts shared by memoized functions:
// key derivation, storage tiers, configuration and typed errors.
//
// # Overview
//
// This package exports two main interfaces and their default implementations:
//
//   - KeyBuilder: derives a stable Key from a function identity and its call arguments
//   - Tier: a storage layer holding serialized blobs (memory, disk)
//
// The memo package composes them into memoized functions; the tier
// implementations live in internal/cacheinfra.
//
// # Basic Usage
//
//	builder := cache.NewDefaultKeyBuilder()
//	key, err := builder.BuildKey("reports.Load", "2024-01", map[string]int{"limit": 10})
//	if errors.Is(err, cache.ErrUnserializableArgument) {
//		// a channel, func or cyclic value was passed
//	}
//
// # Key Derivation Strategy
//
// The default key builder walks every argument with reflection and writes a
// tagged, length prefixed canonical encoding, then hashes it with SHA-256:
//
//   - Basic types: type name + fixed width value
//   - Pointers and interfaces: the value they point to
//   - Slices/arrays: recursive serialization of elements
//   - Maps: entries sorted by their encoded key
//   - Structs: every field, exported or not, with its name
//   - encoding.BinaryMarshaler implementations (time.Time): their binary form
//
// There is a single path for all argument types. Channels, functions,
// unsafe pointers and cyclic values have no stable representation and fail
// with an UnserializableArgumentError.
//
// # Error Handling
//
// Errors are typed and matched with errors.Is:
//
//   - ErrInvalidConfiguration: *InvalidConfigurationError, raised when a function is memoized
//   - ErrUnserializableArgument: *UnserializableArgumentError, raised from the call site
//   - ErrCacheRead: *ReadError, a stored entry exists but is corrupt
//
// See the memo package for the decorator that ties these together.
package cache
