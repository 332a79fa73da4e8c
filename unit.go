// unit.go - Compilation units
//
// A unit is one .ind file; the file stem is the unit name. Units of a
// project live flat in one source directory.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const sourceExt = ".ind"

// discoverUnits lists the project's source files, sorted for
// deterministic build order.
func discoverUnits(srcDir string) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), sourceExt) {
			paths = append(paths, filepath.Join(srcDir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s files in %s", sourceExt, srcDir)
	}
	sort.Strings(paths)
	return paths, nil
}

// loadUnits reads and parses every source file. Parse errors go to the
// collector; the returned slice always has one entry per readable file
// so later stages can report as much as possible in one run. The
// second return maps unit names to their decoded text, which is what
// fingerprints digest.
func loadUnits(paths []string, diags *DiagnosticCollector) ([]*UnitFile, map[string]string, error) {
	var units []*UnitFile
	sources := make(map[string]string, len(paths))
	for _, path := range paths {
		text, err := readSource(path)
		if err != nil {
			return nil, nil, err
		}
		units = append(units, ParseUnit(path, text, diags))
		sources[unitName(path)] = text
	}
	return units, sources, nil
}

// unitName returns the unit name a path implies
func unitName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), sourceExt)
}
