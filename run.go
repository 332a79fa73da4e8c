// run.go - Build-and-execute
//
// `indentc run` compiles to scratch space and executes the result with
// the caller's stdio. The program's exit code becomes ours, so shell
// scripts can wrap compiled programs without ceremony. On Linux the
// binary lands in /dev/shm when available to keep edit-run loops off
// slow disks.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// Run builds the project and executes the binary, returning the
// program's exit code.
func (d *Driver) Run(ctx context.Context, opts BuildOptions, args []string) (int, error) {
	scratch, cleanup, err := runScratchDir()
	if err != nil {
		return 1, err
	}
	defer cleanup()

	if opts.Output == "" {
		opts.Output = filepath.Join(scratch, d.cfg.Name)
	}
	opts.Emit = "bin"

	result, err := d.Build(ctx, opts)
	if err != nil {
		return 1, err
	}

	d.log.Debug("executing", zap.String("binary", result.Binary), zap.Strings("args", args))
	cmd := exec.CommandContext(ctx, result.Binary, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, fmt.Errorf("could not execute %s: %w", result.Binary, err)
	}
	return 0, nil
}

// runScratchDir picks a scratch directory for run binaries, preferring
// memory-backed /dev/shm.
func runScratchDir() (string, func(), error) {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		if dir, err := os.MkdirTemp("/dev/shm", "indentc-run-*"); err == nil {
			return dir, func() { os.RemoveAll(dir) }, nil
		}
	}
	dir, err := os.MkdirTemp("", "indentc-run-*")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}
