package main

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testCache(t *testing.T) *ObjectCache {
	t.Helper()
	c, err := OpenObjectCache(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	return c
}

// testFP builds a unique well-formed fingerprint
func testFP(n int) string {
	return fmt.Sprintf("%064x", n)
}

// TestCacheRoundtrip verifies store then lookup returns the object
// and the sidecar records what produced it.
func TestCacheRoundtrip(t *testing.T) {
	c := testCache(t)
	fp := testFP(1)
	object := []byte("object bytes")

	path, err := c.Store(fp, object, CacheMeta{
		Unit:    "math",
		Backend: "fast",
		Mode:    "dev",
		Triple:  "x86_64-unknown-linux-gnu",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	got, ok := c.Lookup(fp)
	if !ok {
		t.Fatal("lookup missed a just-stored object")
	}
	if got != path {
		t.Errorf("lookup path = %s, want %s", got, path)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if string(data) != "object bytes" {
		t.Errorf("object content = %q", data)
	}

	raw, err := os.ReadFile(c.metaPath(fp))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var meta CacheMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("decode sidecar: %v", err)
	}
	if meta.Unit != "math" || meta.Backend != "fast" {
		t.Errorf("sidecar = %+v", meta)
	}
	if meta.Fingerprint != fp {
		t.Errorf("sidecar fingerprint = %s, want %s", meta.Fingerprint, fp)
	}
	if meta.Size != int64(len(object)) {
		t.Errorf("sidecar size = %d, want %d", meta.Size, len(object))
	}
	if meta.CreatedAt.IsZero() {
		t.Error("sidecar creation time not set")
	}
}

// TestCacheMiss verifies absent fingerprints miss and count
func TestCacheMiss(t *testing.T) {
	c := testCache(t)
	if _, ok := c.Lookup(testFP(42)); ok {
		t.Error("lookup hit an empty cache")
	}
	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Misses != 1 || stats.Hits != 0 {
		t.Errorf("hits/misses = %d/%d, want 0/1", stats.Hits, stats.Misses)
	}
}

// TestCacheEvictsCorruptEntries verifies a bad sidecar turns the entry
// into a miss and removes it.
func TestCacheEvictsCorruptEntries(t *testing.T) {
	t.Run("unparseable sidecar", func(t *testing.T) {
		c := testCache(t)
		fp := testFP(2)
		if _, err := c.Store(fp, []byte("obj"), CacheMeta{Unit: "u"}); err != nil {
			t.Fatalf("store: %v", err)
		}
		if err := os.WriteFile(c.metaPath(fp), []byte("not json"), 0o644); err != nil {
			t.Fatalf("corrupt sidecar: %v", err)
		}
		if _, ok := c.Lookup(fp); ok {
			t.Error("lookup hit an entry with a corrupt sidecar")
		}
		if _, err := os.Stat(c.objectPath(fp)); !os.IsNotExist(err) {
			t.Error("corrupt entry's object was not evicted")
		}
	})
	t.Run("size mismatch", func(t *testing.T) {
		c := testCache(t)
		fp := testFP(3)
		if _, err := c.Store(fp, []byte("obj"), CacheMeta{Unit: "u"}); err != nil {
			t.Fatalf("store: %v", err)
		}
		if err := os.WriteFile(c.objectPath(fp), []byte("truncated object bytes"), 0o644); err != nil {
			t.Fatalf("rewrite object: %v", err)
		}
		if _, ok := c.Lookup(fp); ok {
			t.Error("lookup hit an entry whose size disagrees with its sidecar")
		}
	})
}

// TestCacheStats verifies on-disk totals and process counters
func TestCacheStats(t *testing.T) {
	c := testCache(t)
	if _, err := c.Store(testFP(4), make([]byte, 100), CacheMeta{Unit: "a"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := c.Store(testFP(5), make([]byte, 50), CacheMeta{Unit: "b"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	c.Lookup(testFP(4))
	c.Lookup(testFP(99))

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Objects != 2 {
		t.Errorf("objects = %d, want 2", stats.Objects)
	}
	if stats.Bytes != 150 {
		t.Errorf("bytes = %d, want 150", stats.Bytes)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.Stores != 2 {
		t.Errorf("hits/misses/stores = %d/%d/%d, want 1/1/2", stats.Hits, stats.Misses, stats.Stores)
	}
}

// TestCacheTrim verifies eviction is oldest-first and reports what it
// removed.
func TestCacheTrim(t *testing.T) {
	c := testCache(t)
	now := time.Now()

	sizes := []int{100, 200, 300}
	for i, size := range sizes {
		fp := testFP(10 + i)
		if _, err := c.Store(fp, make([]byte, size), CacheMeta{Unit: "u"}); err != nil {
			t.Fatalf("store: %v", err)
		}
		// oldest entry first
		age := time.Duration(len(sizes)-i) * time.Hour
		if err := os.Chtimes(c.objectPath(fp), now.Add(-age), now.Add(-age)); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	t.Run("under budget is a no-op", func(t *testing.T) {
		evicted, freed, err := c.Trim(10_000)
		if err != nil {
			t.Fatalf("trim: %v", err)
		}
		if evicted != 0 || freed != 0 {
			t.Errorf("trim removed %d objects (%d bytes) under budget", evicted, freed)
		}
	})

	t.Run("evicts oldest first", func(t *testing.T) {
		evicted, freed, err := c.Trim(350)
		if err != nil {
			t.Fatalf("trim: %v", err)
		}
		if evicted != 2 || freed != 300 {
			t.Errorf("trim removed %d objects freeing %d bytes, want 2 freeing 300", evicted, freed)
		}
		if _, ok := c.Lookup(testFP(10)); ok {
			t.Error("oldest entry survived the trim")
		}
		if _, ok := c.Lookup(testFP(12)); !ok {
			t.Error("newest entry did not survive the trim")
		}
	})
}

// TestCacheClear verifies the store empties and stays usable
func TestCacheClear(t *testing.T) {
	c := testCache(t)
	fp := testFP(20)
	if _, err := c.Store(fp, []byte("obj"), CacheMeta{Unit: "u"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := c.Lookup(fp); ok {
		t.Error("lookup hit after clear")
	}
	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("stats after clear: %v", err)
	}
	if stats.Objects != 0 || stats.Bytes != 0 {
		t.Errorf("cache not empty after clear: %+v", stats)
	}
	// the cache keeps working after a clear
	if _, err := c.Store(fp, []byte("obj"), CacheMeta{Unit: "u"}); err != nil {
		t.Fatalf("store after clear: %v", err)
	}
	if _, ok := c.Lookup(fp); !ok {
		t.Error("lookup missed after re-store")
	}
}

// TestCacheOverwrite verifies storing the same fingerprint twice keeps
// the newest object.
func TestCacheOverwrite(t *testing.T) {
	c := testCache(t)
	fp := testFP(30)
	if _, err := c.Store(fp, []byte("first"), CacheMeta{Unit: "u"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := c.Store(fp, []byte("second version"), CacheMeta{Unit: "u"}); err != nil {
		t.Fatalf("re-store: %v", err)
	}
	path, ok := c.Lookup(fp)
	if !ok {
		t.Fatal("lookup missed after overwrite")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "second version" {
		t.Errorf("object content = %q, want the overwritten version", data)
	}
}
