// incremental.go - In-process build state for watch mode
//
// The object cache makes recompiles cheap; this state makes them free.
// Between watch cycles it remembers each source file's modification
// time and content digest plus the fingerprints of the last successful
// pass, so a cycle triggered by a no-op event (editors touch files
// without changing them) skips the build entirely.

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"
)

type sourceStamp struct {
	modTime time.Time
	digest  string
}

// BuildState tracks what the previous watch cycle saw
type BuildState struct {
	mu           sync.Mutex
	stamps       map[string]sourceStamp
	fingerprints map[string]string // unit name -> fingerprint
	passes       int
}

func NewBuildState() *BuildState {
	return &BuildState{
		stamps:       make(map[string]sourceStamp),
		fingerprints: make(map[string]string),
	}
}

// Passes reports how many passes have been recorded
func (s *BuildState) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// ScanChanged compares the given source files against the last recorded
// pass and returns the paths that differ. New files and files that
// vanished both count. Mod times gate the check; equal content with a
// fresh mod time does not count as a change.
func (s *BuildState) ScanChanged(paths []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		seen[path] = true
		prev, known := s.stamps[path]
		info, err := os.Stat(path)
		if err != nil {
			if known {
				changed = append(changed, path)
			}
			continue
		}
		if !known {
			changed = append(changed, path)
			continue
		}
		if info.ModTime().Equal(prev.modTime) {
			continue
		}
		if digestFile(path) != prev.digest {
			changed = append(changed, path)
		}
	}
	for path := range s.stamps {
		if !seen[path] {
			changed = append(changed, path)
		}
	}
	return changed
}

// RecordPass snapshots the sources and unit fingerprints of a
// completed pass. Files that no longer exist drop out of the snapshot.
func (s *BuildState) RecordPass(paths []string, fingerprints map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stamps = make(map[string]sourceStamp, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		s.stamps[path] = sourceStamp{modTime: info.ModTime(), digest: digestFile(path)}
	}
	s.fingerprints = make(map[string]string, len(fingerprints))
	for unit, fp := range fingerprints {
		s.fingerprints[unit] = fp
	}
	s.passes++
}

// Fingerprint returns the fingerprint the last pass recorded for a unit
func (s *BuildState) Fingerprint(unit string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.fingerprints[unit]
	return fp, ok
}

func digestFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
