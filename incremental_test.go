package main

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func stampFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// TestBuildStateFirstScan: everything is new before the first pass
func TestBuildStateFirstScan(t *testing.T) {
	dir := t.TempDir()
	a := stampFile(t, dir, "a.ind", "unit a\n")
	b := stampFile(t, dir, "b.ind", "unit b\n")

	s := NewBuildState()
	changed := s.ScanChanged([]string{a, b})
	sort.Strings(changed)
	if len(changed) != 2 || changed[0] != a || changed[1] != b {
		t.Errorf("changed = %v, want both files", changed)
	}
	if s.Passes() != 0 {
		t.Errorf("Passes() = %d before any pass", s.Passes())
	}
}

// TestBuildStateNoOpTouch: a fresh mod time with identical content is
// not a change, which is what editor save events tend to produce.
func TestBuildStateNoOpTouch(t *testing.T) {
	dir := t.TempDir()
	a := stampFile(t, dir, "a.ind", "unit a\n")

	s := NewBuildState()
	s.RecordPass([]string{a}, nil)

	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(a, future, future); err != nil {
		t.Fatal(err)
	}
	if changed := s.ScanChanged([]string{a}); len(changed) != 0 {
		t.Errorf("a touch with unchanged content reported as changed: %v", changed)
	}
}

// TestBuildStateModTimeGate: when the mod time matches the snapshot the
// content is not even read
func TestBuildStateModTimeGate(t *testing.T) {
	dir := t.TempDir()
	a := stampFile(t, dir, "a.ind", "unit a\n")

	s := NewBuildState()
	s.RecordPass([]string{a}, nil)
	info, err := os.Stat(a)
	if err != nil {
		t.Fatal(err)
	}

	stampFile(t, dir, "a.ind", "unit a\nconst c = 1\n")
	if err := os.Chtimes(a, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}
	if changed := s.ScanChanged([]string{a}); len(changed) != 0 {
		t.Errorf("matching mod time should skip the digest, got %v", changed)
	}
}

func TestBuildStateContentChange(t *testing.T) {
	dir := t.TempDir()
	a := stampFile(t, dir, "a.ind", "unit a\n")
	b := stampFile(t, dir, "b.ind", "unit b\n")

	s := NewBuildState()
	s.RecordPass([]string{a, b}, nil)

	stampFile(t, dir, "a.ind", "unit a\nconst c = 1\n")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(a, future, future); err != nil {
		t.Fatal(err)
	}

	changed := s.ScanChanged([]string{a, b})
	if len(changed) != 1 || changed[0] != a {
		t.Errorf("changed = %v, want just %s", changed, a)
	}
}

func TestBuildStateNewAndVanished(t *testing.T) {
	t.Run("new file", func(t *testing.T) {
		dir := t.TempDir()
		a := stampFile(t, dir, "a.ind", "unit a\n")
		s := NewBuildState()
		s.RecordPass([]string{a}, nil)

		b := stampFile(t, dir, "b.ind", "unit b\n")
		changed := s.ScanChanged([]string{a, b})
		if len(changed) != 1 || changed[0] != b {
			t.Errorf("changed = %v, want just the new file", changed)
		}
	})

	t.Run("deleted but still listed", func(t *testing.T) {
		dir := t.TempDir()
		a := stampFile(t, dir, "a.ind", "unit a\n")
		s := NewBuildState()
		s.RecordPass([]string{a}, nil)

		if err := os.Remove(a); err != nil {
			t.Fatal(err)
		}
		changed := s.ScanChanged([]string{a})
		if len(changed) != 1 || changed[0] != a {
			t.Errorf("changed = %v, want the deleted file", changed)
		}
	})

	t.Run("dropped from the set", func(t *testing.T) {
		dir := t.TempDir()
		a := stampFile(t, dir, "a.ind", "unit a\n")
		b := stampFile(t, dir, "b.ind", "unit b\n")
		s := NewBuildState()
		s.RecordPass([]string{a, b}, nil)

		changed := s.ScanChanged([]string{a})
		if len(changed) != 1 || changed[0] != b {
			t.Errorf("changed = %v, want the vanished file", changed)
		}
	})
}

// TestBuildStateFingerprints: each pass replaces the fingerprint map
func TestBuildStateFingerprints(t *testing.T) {
	dir := t.TempDir()
	a := stampFile(t, dir, "a.ind", "unit a\n")

	s := NewBuildState()
	s.RecordPass([]string{a}, map[string]string{"a": "fp-one", "b": "fp-two"})
	if s.Passes() != 1 {
		t.Errorf("Passes() = %d", s.Passes())
	}
	if fp, ok := s.Fingerprint("a"); !ok || fp != "fp-one" {
		t.Errorf("Fingerprint(a) = %q, %v", fp, ok)
	}
	if _, ok := s.Fingerprint("zzz"); ok {
		t.Error("unknown unit reported a fingerprint")
	}

	s.RecordPass([]string{a}, map[string]string{"a": "fp-three"})
	if s.Passes() != 2 {
		t.Errorf("Passes() = %d after second pass", s.Passes())
	}
	if fp, _ := s.Fingerprint("a"); fp != "fp-three" {
		t.Errorf("Fingerprint(a) = %q after second pass", fp)
	}
	if _, ok := s.Fingerprint("b"); ok {
		t.Error("stale fingerprint survived a new pass")
	}
}
