// filewatcher_darwin.go - Source change notification (macOS)
//
// kqueue cannot watch a directory's contents in one shot, so the
// watch combines a descriptor on each source directory (entry
// creation, deletion, rename) with a descriptor per file for in-place
// writes. Re-adding a directory rescans it: new files gain watches and
// files replaced by atomic-rename saves get their stale descriptors
// reopened.

//go:build darwin
// +build darwin

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type SourceWatcher struct {
	kq          int
	log         *zap.Logger
	watchMap    map[int]string // descriptor -> path it reports for
	dirFDs      map[string]int
	fileFDs     map[string]int
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
}

func NewSourceWatcher(log *zap.Logger, onChange func(string)) (*SourceWatcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue failed: %v", err)
	}

	return &SourceWatcher{
		kq:          kq,
		log:         log,
		watchMap:    make(map[int]string),
		dirFDs:      make(map[string]int),
		fileFDs:     make(map[string]int),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
	}, nil
}

// AddDir watches dir and every regular file currently in it. Calling
// it again rescans, which is how new and renamed-over files get their
// descriptors.
func (sw *SourceWatcher) AddDir(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	sw.mu.Lock()
	_, haveDir := sw.dirFDs[absDir]
	sw.mu.Unlock()

	if !haveDir {
		fd, err := sw.register(absDir, unix.NOTE_WRITE|unix.NOTE_DELETE|unix.NOTE_RENAME)
		if err != nil {
			return err
		}
		sw.mu.Lock()
		sw.dirFDs[absDir] = fd
		sw.mu.Unlock()
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %v", absDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sw.addFile(filepath.Join(absDir, entry.Name()))
	}
	return nil
}

// addFile (re)opens path and registers a write watch. An existing
// descriptor is closed first; after an atomic-rename save it points at
// the replaced inode and would never fire again.
func (sw *SourceWatcher) addFile(path string) {
	sw.mu.Lock()
	old, exists := sw.fileFDs[path]
	sw.mu.Unlock()
	if exists {
		unix.Close(old)
		sw.mu.Lock()
		delete(sw.watchMap, old)
		delete(sw.fileFDs, path)
		sw.mu.Unlock()
	}

	fd, err := sw.register(path, unix.NOTE_WRITE|unix.NOTE_ATTRIB)
	if err != nil {
		// The file may be mid-rename; the directory event still fires.
		sw.log.Debug("file watch failed", zap.String("path", path), zap.Error(err))
		return
	}
	sw.mu.Lock()
	sw.fileFDs[path] = fd
	sw.mu.Unlock()
}

func (sw *SourceWatcher) register(path string, fflags uint32) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return -1, fmt.Errorf("failed to open %s: %v", path, err)
	}

	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: fflags,
	}
	if _, err := unix.Kevent(sw.kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to add kevent for %s: %v", path, err)
	}

	sw.mu.Lock()
	sw.watchMap[fd] = path
	sw.mu.Unlock()

	return fd, nil
}

// Watch delivers change events until Close tears the queue down.
func (sw *SourceWatcher) Watch() {
	events := make([]unix.Kevent_t, 10)

	for {
		n, err := unix.Kevent(sw.kq, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EBADF {
				return
			}
			sw.log.Debug("kevent read failed", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Ident)

			sw.mu.Lock()
			path := sw.watchMap[fd]
			sw.mu.Unlock()

			if path != "" {
				sw.debouncedCallback(path)
			}
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
	sw.mu.Lock()
	defer sw.mu.Unlock()

	for fd := range sw.watchMap {
		unix.Close(fd)
	}

	return unix.Close(sw.kq)
}
