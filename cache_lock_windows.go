//go:build windows
// +build windows

package main

import "os"

// Windows has no flock; cross-process cache writes stay safe through
// the temp-and-rename discipline alone.
func lockFile(f *os.File) error   { return nil }
func unlockFile(f *os.File) error { return nil }
