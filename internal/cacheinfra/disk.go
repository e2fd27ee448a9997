package cacheinfra

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goliatone/go-memo/cache"
	"github.com/google/uuid"
)

// DiskConfig holds the configuration for the disk tier.
type DiskConfig struct {
	// Dir is the root directory, created on first write.
	Dir string

	// TTL is the lifetime of an entry, measured from its StoredAt.
	// Zero disables expiry.
	TTL time.Duration

	// Clock is the time source for TTL checks. Defaults to cache.SystemClock.
	Clock cache.Clock
}

// DiskTier persists one framed entry per key under a directory shared by all
// memoized functions: <dir>/<key>.memo.
type DiskTier struct {
	dir   string
	ttl   time.Duration
	clock cache.Clock
}

var _ cache.Tier = (*DiskTier)(nil)

// NewDiskTier creates a disk tier from cfg.
func NewDiskTier(cfg DiskConfig) *DiskTier {
	if cfg.Clock == nil {
		cfg.Clock = cache.SystemClock{}
	}
	if cfg.TTL < 0 {
		cfg.TTL = 0
	}
	return &DiskTier{dir: cfg.Dir, ttl: cfg.TTL, clock: cfg.Clock}
}

// Dir returns the root directory.
func (d *DiskTier) Dir() string { return d.dir }

// Path returns the file backing key.
func (d *DiskTier) Path(key cache.Key) string {
	return filepath.Join(d.dir, string(key)+cache.FileExtension)
}

// Get implements cache.Tier. A missing file is a miss, as is a root that
// is not a directory; an unreadable or corrupt file is a *cache.ReadError.
// An expired file is removed and reported as a miss.
func (d *DiskTier) Get(_ context.Context, key cache.Key) (cache.Entry, bool, error) {
	path := d.Path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, &cache.ReadError{Path: path, Err: err}
	}

	entry, err := Unframe(data)
	if err != nil {
		return cache.Entry{}, false, &cache.ReadError{Path: path, Err: err}
	}
	if cache.Expired(entry.StoredAt, d.clock.Now(), d.ttl) {
		_ = os.Remove(path)
		return cache.Entry{}, false, nil
	}
	return entry, true, nil
}

// Set implements cache.Tier. The frame is written to a temporary file and
// renamed into place so readers never observe a partial entry.
// An entry without a timestamp is stamped with the tier's clock.
func (d *DiskTier) Set(_ context.Context, key cache.Key, entry cache.Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = d.clock.Now()
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}

	tmp := filepath.Join(d.dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, Frame(entry), 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, d.Path(key)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Delete implements cache.Tier. Absence is not an error.
func (d *DiskTier) Delete(_ context.Context, key cache.Key) error {
	err := os.Remove(d.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveAll deletes the whole directory tree rooted at dir. A missing
// directory is skipped silently.
func RemoveAll(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}
	return true, os.RemoveAll(dir)
}
