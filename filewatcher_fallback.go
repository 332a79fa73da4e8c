// filewatcher_fallback.go - Source change notification (polling)
//
// Platforms without inotify or kqueue support fall back to polling the
// watched directories twice a second. New, changed and removed entries
// are found by diffing a modification-time snapshot.

//go:build !linux && !darwin
// +build !linux,!darwin

package main

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const watchPollInterval = 500 * time.Millisecond

type SourceWatcher struct {
	log         *zap.Logger
	dirs        map[string]bool
	snapshot    map[string]time.Time // file path -> last seen mod time
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
	stopChan    chan struct{}
}

func NewSourceWatcher(log *zap.Logger, onChange func(string)) (*SourceWatcher, error) {
	return &SourceWatcher{
		log:         log,
		dirs:        make(map[string]bool),
		snapshot:    make(map[string]time.Time),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
		stopChan:    make(chan struct{}),
	}, nil
}

// AddDir registers dir for polling. The first scan primes the
// snapshot so files that already exist do not count as changes.
func (sw *SourceWatcher) AddDir(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	sw.mu.Lock()
	known := sw.dirs[absDir]
	sw.dirs[absDir] = true
	sw.mu.Unlock()

	if !known {
		sw.scanDir(absDir, false)
	}
	return nil
}

// Watch polls until Close.
func (sw *SourceWatcher) Watch() {
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.checkDirs()
		case <-sw.stopChan:
			return
		}
	}
}

func (sw *SourceWatcher) checkDirs() {
	sw.mu.Lock()
	dirs := make([]string, 0, len(sw.dirs))
	for dir := range sw.dirs {
		dirs = append(dirs, dir)
	}
	sw.mu.Unlock()

	for _, dir := range dirs {
		sw.scanDir(dir, true)
	}
}

// scanDir diffs dir against the snapshot. With notify set the
// differences fire the callback; without it they only prime the
// snapshot.
func (sw *SourceWatcher) scanDir(dir string, notify bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		sw.log.Debug("poll scan failed", zap.String("dir", dir), zap.Error(err))
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		seen[path] = true

		sw.mu.Lock()
		last, known := sw.snapshot[path]
		sw.snapshot[path] = info.ModTime()
		sw.mu.Unlock()

		if notify && (!known || info.ModTime().After(last)) {
			sw.debouncedCallback(path)
		}
	}

	// Entries that vanished since the last scan.
	sw.mu.Lock()
	var removed []string
	for path := range sw.snapshot {
		if filepath.Dir(path) == dir && !seen[path] {
			removed = append(removed, path)
			delete(sw.snapshot, path)
		}
	}
	sw.mu.Unlock()

	if notify {
		for _, path := range removed {
			sw.debouncedCallback(path)
		}
	}
}

func (sw *SourceWatcher) debouncedCallback(path string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if timer, exists := sw.debounceMap[path]; exists {
		timer.Stop()
	}

	sw.debounceMap[path] = time.AfterFunc(watchDebounce, func() {
		sw.onChange(path)
		sw.mu.Lock()
		delete(sw.debounceMap, path)
		sw.mu.Unlock()
	})
}

func (sw *SourceWatcher) Close() error {
	select {
	case <-sw.stopChan:
	default:
		close(sw.stopChan)
	}
	return nil
}
