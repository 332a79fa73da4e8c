// manifest.go - Build manifests
//
// Every build writes build.json next to its products: a unique build
// id, the toolchain inputs, and a per-unit record of fingerprints and
// cache behavior. CI reads it to audit cache effectiveness; bug
// reports attach it to pin down what exactly was built.

package main

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type BuildManifest struct {
	BuildID     string       `json:"build_id"`
	Project     string       `json:"project"`
	Compiler    string       `json:"compiler_version"`
	Target      string       `json:"target"`
	Mode        string       `json:"mode"`
	Backend     string       `json:"backend"`
	StartedAt   time.Time    `json:"started_at"`
	DurationMS  int64        `json:"duration_ms"`
	Binary      string       `json:"binary,omitempty"`
	CacheHits   int          `json:"cache_hits"`
	CacheMisses int          `json:"cache_misses"`
	Units       []UnitRecord `json:"units"`

	mu    sync.Mutex
	start time.Time
}

type UnitRecord struct {
	Name        string `json:"name"`
	Source      string `json:"source"`
	Fingerprint string `json:"fingerprint"`
	Object      string `json:"object"`
	CacheTier   string `json:"cache,omitempty"` // "local", "remote", or empty for a fresh compile
	DurationMS  int64  `json:"duration_ms"`
}

func NewBuildManifest(project string, key buildKey) *BuildManifest {
	now := time.Now()
	return &BuildManifest{
		BuildID:   uuid.New().String(),
		Project:   project,
		Compiler:  key.Version,
		Target:    key.Triple,
		Mode:      key.Mode.String(),
		Backend:   key.Backend,
		StartedAt: now.UTC(),
		start:     now,
	}
}

func (m *BuildManifest) AddUnit(rec UnitRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Units = append(m.Units, rec)
	switch rec.CacheTier {
	case "":
		m.CacheMisses++
	default:
		m.CacheHits++
	}
}

// Finish stamps the total duration and writes the manifest
func (m *BuildManifest) Finish(path, binary string) error {
	m.mu.Lock()
	m.Binary = binary
	m.DurationMS = time.Since(m.start).Milliseconds()
	m.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'))
}
