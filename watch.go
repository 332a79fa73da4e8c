// watch.go - Watch mode
//
// build --watch keeps the process alive and turns source changes into
// rebuild cycles. The object cache already makes a cycle cheap; the
// BuildState snapshot makes a no-op cycle free by noticing when an
// event changed mod times but not content. Diagnostics reset between
// cycles so every pass reports against the current sources only.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Editors fire bursts of events per save; changes inside this window
// collapse into a single rebuild cycle.
const watchDebounce = 200 * time.Millisecond

// Watch builds once, then rebuilds on every source change until the
// context is canceled.
func (d *Driver) Watch(ctx context.Context, opts BuildOptions) error {
	state := NewBuildState()

	events := make(chan string, 64)
	watcher, err := NewSourceWatcher(d.log, func(path string) {
		select {
		case events <- path:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("watch mode unavailable: %w", err)
	}
	defer watcher.Close()

	dirs := d.watchDirs()
	for _, dir := range dirs {
		if err := watcher.AddDir(dir); err != nil {
			return err
		}
	}
	go watcher.Watch()

	fmt.Fprintf(os.Stderr, "watching %s for changes (%s mode, ctrl-c stops)\n", d.cfg.SrcDir, d.cfg.Mode)
	d.watchCycle(ctx, opts, state, "")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "watch stopped")
			return nil
		case path := <-events:
			if filepath.Ext(path) != sourceExt {
				continue
			}
			drainEvents(events)
			sources, err := d.sourcePaths()
			if err == nil && state.Passes() > 0 && len(state.ScanChanged(sources)) == 0 {
				d.log.Debug("event carried no content change", zap.String("path", path))
				continue
			}
			d.watchCycle(ctx, opts, state, path)
			// Editors that save by rename replace the watched inode;
			// re-adding after each cycle keeps the watch alive.
			for _, dir := range dirs {
				if err := watcher.AddDir(dir); err != nil {
					d.log.Warn("could not re-arm watch", zap.String("dir", dir), zap.Error(err))
				}
			}
		}
	}
}

// watchCycle runs one build pass and prints a single result line
func (d *Driver) watchCycle(ctx context.Context, opts BuildOptions, state *BuildState, trigger string) {
	cycle := state.Passes() + 1
	if trigger != "" {
		fmt.Fprintf(os.Stderr, "[%s] %s changed\n", time.Now().Format("15:04:05"), filepath.Base(trigger))
	}
	d.diags.Clear()

	start := time.Now()
	res, err := d.Build(ctx, opts)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cycle %d: %v (%s)\n", cycle, err, elapsed)
		return
	}

	sources, _ := d.sourcePaths()
	fingerprints := make(map[string]string)
	changed, cached := 0, 0
	if res.Manifest != nil {
		for _, u := range res.Manifest.Units {
			fingerprints[u.Name] = u.Fingerprint
			if prev, ok := state.Fingerprint(u.Name); !ok || prev != u.Fingerprint {
				changed++
			}
			if u.CacheTier != "" {
				cached++
			}
		}
	}
	state.RecordPass(sources, fingerprints)
	fmt.Fprintf(os.Stderr, "cycle %d: ok in %s (%d units, %d changed, %d from cache)\n",
		cycle, elapsed, len(fingerprints), changed, cached)
}

// watchDirs lists the directories whose entries can invalidate a build
func (d *Driver) watchDirs() []string {
	if len(d.cfg.Units) == 0 {
		return []string{d.cfg.SrcDir}
	}
	seen := make(map[string]bool)
	var dirs []string
	for _, path := range d.cfg.Units {
		dir := filepath.Dir(path)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func drainEvents(ch chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
