// filewatcher_linux.go - Source change notification (Linux)
//
// Watch mode subscribes to the source directories with inotify. The
// watches are per directory rather than per file, so units created
// after the watch starts are still seen; the event's trailing name
// field says which entry changed. Editors tend to fire bursts of
// events per save, so a per-path debounce timer sits in front of the
// callback.

//go:build linux
// +build linux

package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const watchEventMask = unix.IN_MODIFY | unix.IN_CLOSE_WRITE | unix.IN_CREATE |
	unix.IN_DELETE | unix.IN_MOVED_TO | unix.IN_MOVED_FROM

type SourceWatcher struct {
	fd          int
	log         *zap.Logger
	watchMap    map[int]string // watch descriptor -> directory
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
}

func NewSourceWatcher(log *zap.Logger, onChange func(string)) (*SourceWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %v", err)
	}

	return &SourceWatcher{
		fd:          fd,
		log:         log,
		watchMap:    make(map[int]string),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
	}, nil
}

// AddDir starts watching dir. Adding a directory that is already
// watched refreshes the same descriptor, so callers can re-add after
// every rebuild without bookkeeping.
func (sw *SourceWatcher) AddDir(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	wd, err := unix.InotifyAddWatch(sw.fd, absDir, watchEventMask)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %v", absDir, err)
	}

	sw.mu.Lock()
	sw.watchMap[wd] = absDir
	sw.mu.Unlock()

	return nil
}

// Watch delivers change events until Close tears the descriptor down.
func (sw *SourceWatcher) Watch() {
	// One header plus NAME_MAX has to fit, and a burst of renames can
	// pack several events into a single read.
	buf := make([]byte, 4096)

	for {
		n, err := unix.Read(sw.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if err == unix.EBADF {
				return
			}
			sw.log.Debug("inotify read failed", zap.Error(err))
			continue
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			end := offset + unix.SizeofInotifyEvent + int(event.Len)
			if end > n {
				break
			}
			name := buf[offset+unix.SizeofInotifyEvent : end]
			offset = end

			if event.Mask&watchEventMask == 0 {
				continue
			}

			sw.mu.Lock()
			dir := sw.watchMap[int(event.Wd)]
			sw.mu.Unlock()

			entry := string(bytes.TrimRight(name, "\x00"))
			if dir == "" || entry == "" {
				continue
			}
			sw.debouncedCallback(filepath.Join(dir, entry))
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
	return unix.Close(sw.fd)
}
