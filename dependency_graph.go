// dependency_graph.go - The unit dependency graph
//
// Built from the parsed 'use' declarations before any checking starts.
// The graph decides compile order, drives parallel scheduling, and is
// where import mistakes (unknown units, self-imports, cycles) get
// diagnosed with the offending path spelled out.

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// UnitGraph records which units use which
type UnitGraph struct {
	units map[string]*UnitFile
	deps  map[string][]string
}

// BuildUnitGraph indexes parsed units and validates their imports.
// Structural problems are reported to the collector; the graph is
// still returned so unrelated units keep compiling.
func BuildUnitGraph(files []*UnitFile, diags *DiagnosticCollector) *UnitGraph {
	g := &UnitGraph{
		units: map[string]*UnitFile{},
		deps:  map[string][]string{},
	}

	for _, f := range files {
		if f.Name == "" {
			continue // parse already reported the missing header
		}
		if prev, dup := g.units[f.Name]; dup {
			diags.Errorf(CategorySyntax,
				SourceLocation{File: f.Path, Line: f.NamePos.Line, Col: f.NamePos.Col, Length: len(f.Name)},
				"unit '%s' is already defined by %s", f.Name, prev.Path)
			continue
		}
		g.units[f.Name] = f
	}

	for name, f := range g.units {
		seen := map[string]bool{}
		for _, use := range f.Uses {
			loc := SourceLocation{File: f.Path, Line: use.Pos.Line, Col: use.Pos.Col, Length: len("use")}
			switch {
			case use.Name == name:
				diags.Errorf(CategorySyntax, loc, "unit '%s' cannot use itself", name)
			case seen[use.Name]:
				diags.Errorf(CategorySyntax, loc, "duplicate use of unit '%s'", use.Name)
			case g.units[use.Name] == nil:
				diags.Add(&Diagnostic{
					Level:    LevelError,
					Category: CategorySyntax,
					Loc:      loc,
					Message:  fmt.Sprintf("use of unknown unit '%s'", use.Name),
					Help:     fmt.Sprintf("expected a file named %s%s in the source directory", use.Name, sourceExt),
				})
			default:
				seen[use.Name] = true
				g.deps[name] = append(g.deps[name], use.Name)
			}
		}
		sort.Strings(g.deps[name])
	}
	return g
}

// Unit returns the parsed file for a unit name
func (g *UnitGraph) Unit(name string) *UnitFile {
	return g.units[name]
}

// Names returns all unit names, sorted
func (g *UnitGraph) Names() []string {
	names := make([]string, 0, len(g.units))
	for name := range g.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deps returns a unit's direct dependencies, sorted
func (g *UnitGraph) Deps(name string) []string {
	return g.deps[name]
}

// TransitiveDeps walks everything reachable from a unit, excluding the
// unit itself, sorted.
func (g *UnitGraph) TransitiveDeps(name string) []string {
	reached := map[string]bool{}
	var walk func(n string)
	walk = func(n string) {
		for _, dep := range g.deps[n] {
			if !reached[dep] {
				reached[dep] = true
				walk(dep)
			}
		}
	}
	walk(name)
	out := make([]string, 0, len(reached))
	for dep := range reached {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// TopoOrder returns units in dependency order: every unit appears
// after all units it uses. A cycle comes back as an error naming the
// full path.
func (g *UnitGraph) TopoOrder() ([]string, error) {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // finished
	)
	color := map[string]int{}
	var order []string
	var path []string

	var visit func(n string) error
	visit = func(n string) error {
		switch color[n] {
		case black:
			return nil
		case gray:
			// close the loop for the message
			start := 0
			for i, p := range path {
				if p == n {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, path[start:]...), n)
			return fmt.Errorf("import cycle: %s", strings.Join(cycle, " -> "))
		}
		color[n] = gray
		path = append(path, n)
		for _, dep := range g.deps[n] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		order = append(order, n)
		return nil
	}

	for _, name := range g.Names() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Levels groups units into waves where every unit's dependencies sit
// in earlier waves; units within one wave compile in parallel.
func (g *UnitGraph) Levels() ([][]string, error) {
	if _, err := g.TopoOrder(); err != nil {
		return nil, err
	}
	depth := map[string]int{}
	var depthOf func(n string) int
	depthOf = func(n string) int {
		if d, ok := depth[n]; ok {
			return d
		}
		d := 0
		for _, dep := range g.deps[n] {
			if dd := depthOf(dep) + 1; dd > d {
				d = dd
			}
		}
		depth[n] = d
		return d
	}

	maxDepth := 0
	for _, name := range g.Names() {
		if d := depthOf(name); d > maxDepth {
			maxDepth = d
		}
	}
	levels := make([][]string, maxDepth+1)
	for _, name := range g.Names() {
		d := depth[name]
		levels[d] = append(levels[d], name)
	}
	for _, level := range levels {
		sort.Strings(level)
	}
	return levels, nil
}

// DumpTree writes an indented dependency tree rooted at a unit;
// surfaced by verbose builds.
func (g *UnitGraph) DumpTree(w io.Writer, root string) {
	var dump func(n string, depth int, onPath map[string]bool)
	dump = func(n string, depth int, onPath map[string]bool) {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), n)
		if onPath[n] {
			return
		}
		onPath[n] = true
		for _, dep := range g.deps[n] {
			dump(dep, depth+1, onPath)
		}
		delete(onPath, n)
	}
	dump(root, 0, map[string]bool{})
}
