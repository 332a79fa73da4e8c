// cache.go - Local object cache
//
// Compiled objects land in a content-addressed store keyed by unit
// fingerprint, with a JSON sidecar describing what produced them.
// Writes go through temp files and rename so concurrent builds never
// observe half a file; mutating operations additionally take a file
// lock so separate compiler processes stay out of each other's way.
//
// Layout: <dir>/objects/<fp[:2]>/<fp>.o and <fp>.json

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/xyproto/env/v2"
	"go.uber.org/zap"
)

// CacheMeta is the sidecar stored next to every cached object
type CacheMeta struct {
	Unit        string    `json:"unit"`
	Fingerprint string    `json:"fingerprint"`
	Backend     string    `json:"backend"`
	Mode        string    `json:"mode"`
	Triple      string    `json:"triple"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheStats combines on-disk totals with this process's counters
type CacheStats struct {
	Dir     string
	Objects int
	Bytes   int64
	Hits    int64
	Misses  int64
	Stores  int64
}

type ObjectCache struct {
	dir string
	log *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	stores atomic.Int64
}

// DefaultCacheDir honors XDG_CACHE_HOME and falls back to ~/.cache
func DefaultCacheDir() string {
	base := env.Str("XDG_CACHE_HOME")
	if base == "" {
		base = filepath.Join(env.HomeDir(), ".cache")
	}
	return filepath.Join(base, "indentc")
}

func OpenObjectCache(dir string, log *zap.Logger) (*ObjectCache, error) {
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory: %w", err)
	}
	return &ObjectCache{dir: dir, log: log}, nil
}

func (c *ObjectCache) Dir() string { return c.dir }

func (c *ObjectCache) objectPath(fp string) string {
	return filepath.Join(c.dir, "objects", fp[:2], fp+".o")
}

func (c *ObjectCache) metaPath(fp string) string {
	return filepath.Join(c.dir, "objects", fp[:2], fp+".json")
}

// Lookup reports whether a healthy object for fp exists and returns
// its path. A missing or inconsistent sidecar counts as a miss and
// evicts the entry.
func (c *ObjectCache) Lookup(fp string) (string, bool) {
	path := c.objectPath(fp)
	info, err := os.Stat(path)
	if err != nil {
		c.misses.Add(1)
		return "", false
	}
	meta, err := c.readMeta(fp)
	if err != nil || meta.Size != info.Size() {
		c.log.Warn("evicting inconsistent cache entry", zap.String("fingerprint", fp), zap.Error(err))
		os.Remove(path)
		os.Remove(c.metaPath(fp))
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return path, true
}

func (c *ObjectCache) readMeta(fp string) (CacheMeta, error) {
	var meta CacheMeta
	data, err := os.ReadFile(c.metaPath(fp))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("bad sidecar: %w", err)
	}
	return meta, nil
}

// Store writes an object and its sidecar atomically and returns the
// object's final path.
func (c *ObjectCache) Store(fp string, object []byte, meta CacheMeta) (string, error) {
	meta.Fingerprint = fp
	meta.Size = int64(len(object))
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	path := c.objectPath(fp)
	err := c.withLock(func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := writeFileAtomic(path, object); err != nil {
			return err
		}
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		return writeFileAtomic(c.metaPath(fp), data)
	})
	if err != nil {
		return "", fmt.Errorf("cache store failed: %w", err)
	}
	c.stores.Add(1)
	return path, nil
}

// writeFileAtomic writes via a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

type cacheEntry struct {
	fp      string
	size    int64
	modTime time.Time
}

func (c *ObjectCache) entries() ([]cacheEntry, error) {
	var out []cacheEntry
	root := filepath.Join(c.dir, "objects")
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".o" {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil // racing a concurrent trim
		}
		fp := d.Name()[:len(d.Name())-2]
		out = append(out, cacheEntry{fp: fp, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	return out, err
}

func (c *ObjectCache) Stats() (CacheStats, error) {
	stats := CacheStats{
		Dir:    c.dir,
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Stores: c.stores.Load(),
	}
	entries, err := c.entries()
	if err != nil {
		return stats, err
	}
	stats.Objects = len(entries)
	for _, e := range entries {
		stats.Bytes += e.size
	}
	return stats, nil
}

// Trim evicts oldest entries until the cache fits maxBytes. Returns
// how many objects went and how many bytes they freed.
func (c *ObjectCache) Trim(maxBytes int64) (int, int64, error) {
	var removed int
	var freed int64
	err := c.withLock(func() error {
		entries, err := c.entries()
		if err != nil {
			return err
		}
		var total int64
		for _, e := range entries {
			total += e.size
		}
		if total <= maxBytes {
			return nil
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].modTime.Before(entries[j].modTime)
		})
		for _, e := range entries {
			if total <= maxBytes {
				break
			}
			if err := os.Remove(c.objectPath(e.fp)); err != nil && !os.IsNotExist(err) {
				return err
			}
			os.Remove(c.metaPath(e.fp))
			total -= e.size
			freed += e.size
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, freed, fmt.Errorf("cache trim failed: %w", err)
	}
	c.log.Info("trimmed cache", zap.Int("objects", removed), zap.Int64("bytes", freed))
	return removed, freed, nil
}

// Clear removes every cached object
func (c *ObjectCache) Clear() error {
	return c.withLock(func() error {
		root := filepath.Join(c.dir, "objects")
		if err := os.RemoveAll(root); err != nil {
			return fmt.Errorf("cache clear failed: %w", err)
		}
		return os.MkdirAll(root, 0o755)
	})
}

// withLock serializes mutating cache operations across processes
func (c *ObjectCache) withLock(fn func() error) error {
	lockPath := filepath.Join(c.dir, ".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := lockFile(f); err != nil {
		return fmt.Errorf("cache lock: %w", err)
	}
	defer unlockFile(f)
	return fn()
}
