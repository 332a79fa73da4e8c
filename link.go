// link.go - Assembling and linking through the system toolchain
//
// Object files and final binaries come from an external C compiler
// driver. Backends hand over textual artifacts (.s or .ll); this file
// turns them into .o and links the pile. LLVM IR input needs clang in
// particular, everything else takes whatever cc-compatible driver is
// first on PATH.

package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Toolchain wraps the external compiler driver used for assembling
// and linking.
type Toolchain struct {
	CC    string
	clang string // resolved lazily, only .ll input needs it
	log   *zap.Logger
}

// FindToolchain locates the compiler driver. An explicit override wins;
// otherwise the first of clang, gcc, cc found on PATH is used.
func FindToolchain(override string, log *zap.Logger) (*Toolchain, error) {
	if override != "" {
		path, err := exec.LookPath(override)
		if err != nil {
			return nil, fmt.Errorf("configured compiler '%s' not found: %w", override, err)
		}
		return &Toolchain{CC: path, log: log}, nil
	}
	for _, name := range []string{"clang", "gcc", "cc"} {
		if path, err := exec.LookPath(name); err == nil {
			return &Toolchain{CC: path, log: log}, nil
		}
	}
	return nil, fmt.Errorf("no C compiler found on PATH (tried clang, gcc, cc); install one or set INDENTC_CC")
}

func (tc *Toolchain) findClang() (string, error) {
	if tc.clang != "" {
		return tc.clang, nil
	}
	if strings.HasPrefix(filepath.Base(tc.CC), "clang") {
		tc.clang = tc.CC
		return tc.clang, nil
	}
	path, err := exec.LookPath("clang")
	if err != nil {
		return "", fmt.Errorf("assembling LLVM IR requires clang: %w", err)
	}
	tc.clang = path
	return tc.clang, nil
}

// Assemble turns one backend artifact into an object file. Release
// artifacts are LLVM IR and get clang -O2; assembly goes through the
// plain driver.
func (tc *Toolchain) Assemble(ctx context.Context, src, obj string) error {
	var name string
	var args []string
	if filepath.Ext(src) == ".ll" {
		clang, err := tc.findClang()
		if err != nil {
			return err
		}
		name = clang
		args = []string{"-O2", "-Wno-override-module", "-c", src, "-o", obj}
	} else {
		name = tc.CC
		args = []string{"-c", src, "-o", obj}
	}
	return tc.run(ctx, "assemble", name, args)
}

// Link combines object files into the final executable
func (tc *Toolchain) Link(ctx context.Context, objects []string, out string) error {
	args := append([]string{}, objects...)
	args = append(args, "-o", out)
	return tc.run(ctx, "link", tc.CC, args)
}

func (tc *Toolchain) run(ctx context.Context, phase, name string, args []string) error {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	tc.log.Debug("toolchain command",
		zap.String("phase", phase),
		zap.String("cmd", name+" "+strings.Join(args, " ")),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %s failed: %w\n%s", phase, filepath.Base(name), err, msg)
		}
		return fmt.Errorf("%s: %s failed: %w", phase, filepath.Base(name), err)
	}
	return nil
}
