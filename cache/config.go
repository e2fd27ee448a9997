package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Persist selects the storage tiers backing a memoized function.
type Persist string

const (
	// PersistNone keeps entries in memory only.
	PersistNone Persist = ""
	// PersistDisk additionally writes every entry under the cache directory.
	PersistDisk Persist = "disk"
)

// CacheDirEnv overrides the default cache directory when set.
const CacheDirEnv = "MEMO_CACHE_DIR"

// FileExtension is appended to the key of every persisted entry.
const FileExtension = ".memo"

// Config exposes per function cache configuration options.
type Config struct {
	// TTL is how long an entry stays valid after it was stored.
	// Zero keeps entries until they are cleared.
	TTL time.Duration

	// Persist enables the disk tier when set to PersistDisk.
	Persist Persist

	// MaxEntries bounds the number of in-memory entries. Zero means unbounded.
	MaxEntries int

	// NumShards determines the number of shards of the in-memory tier.
	NumShards int

	// EvictionPercentage specifies what percentage of entries to evict
	// when the in-memory tier reaches MaxEntries. Must be between 1-100.
	EvictionPercentage int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:                0,
		Persist:            PersistNone,
		MaxEntries:         0,
		NumShards:          16,
		EvictionPercentage: 10,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := validation.Validate(string(c.Persist),
		validation.In(string(PersistNone), string(PersistDisk)),
	); err != nil {
		return &InvalidConfigurationError{
			Field:   "Persist",
			Value:   string(c.Persist),
			Message: fmt.Sprintf("Unsupported persist option '%s'. Valid values are 'disk' or None.", c.Persist),
		}
	}

	err := validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxEntries, validation.Min(0)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
	)
	return toConfigError(err)
}

// toConfigError flattens ozzo validation errors into a single typed error,
// reporting the first offending field in alphabetical order.
func toConfigError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &InvalidConfigurationError{Field: "Config", Message: err.Error()}
	}

	fields := make([]string, 0, len(fieldErrs))
	for field := range fieldErrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	return &InvalidConfigurationError{
		Field:   fields[0],
		Message: fieldErrs[fields[0]].Error(),
	}
}

var (
	cacheDirOnce sync.Once
	cacheDir     string
)

// DefaultCacheDir returns the directory shared by every persisted entry:
// $MEMO_CACHE_DIR when set, otherwise <home>/.streamlit/cache.
// The value is resolved once per process.
func DefaultCacheDir() string {
	cacheDirOnce.Do(func() {
		cacheDir = resolveCacheDir(os.Getenv(CacheDirEnv))
	})
	return cacheDir
}

func resolveCacheDir(override string) string {
	if override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".streamlit", "cache")
}
