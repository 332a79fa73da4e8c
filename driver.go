// driver.go - Build orchestration
//
// One build runs front to back here: discover units, parse them all,
// shape the import graph, check level by level, then compile units in
// parallel with the cache deciding who actually reaches a backend.
// Linking happens once at the end against the stable unit order.
//
// Checking is the only order-sensitive stage; everything after it is
// per-unit independent, so workers fan out under one errgroup with the
// configured job limit.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/xyproto/env/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BuildOptions are the per-invocation knobs that come from flags
// rather than configuration.
type BuildOptions struct {
	Emit   string // asm, ir, ll, obj or bin; empty means bin
	Output string // -o override for the binary path
}

type BuildResult struct {
	Binary    string
	Objects   []string
	Artifacts []string // --emit asm/ir/ll outputs
	Manifest  *BuildManifest
}

type Driver struct {
	cfg     *Config
	log     *zap.Logger
	diags   *DiagnosticCollector
	cache   *ObjectCache
	remote  *RemoteCache
	backend Backend
	key     buildKey
	times   *PhaseTimes
}

func NewDriver(cfg *Config, log *zap.Logger) *Driver {
	return &Driver{
		cfg:   cfg,
		log:   log,
		diags: NewDiagnosticCollector(),
		times: &PhaseTimes{},
	}
}

func (d *Driver) jobs() int {
	if d.cfg.Jobs > 0 {
		return d.cfg.Jobs
	}
	return runtime.NumCPU()
}

// checkedProgram is the analyzed whole program: every unit parsed,
// checked in dependency order, with interface hashes ready for
// fingerprinting.
type checkedProgram struct {
	graph       *UnitGraph
	order       []string
	units       map[string]*CheckedUnit
	sources     map[string]string
	ifaceHashes map[string]string
}

// sourcePaths resolves the unit set: explicit file arguments when the
// invocation gave any, a directory scan otherwise.
func (d *Driver) sourcePaths() ([]string, error) {
	if len(d.cfg.Units) > 0 {
		return d.cfg.Units, nil
	}
	return discoverUnits(d.cfg.SrcDir)
}

// analyze runs the front-end over the whole project
func (d *Driver) analyze(ctx context.Context) (*checkedProgram, error) {
	paths, err := d.sourcePaths()
	if err != nil {
		return nil, err
	}
	d.log.Debug("discovered units", zap.Int("count", len(paths)), zap.String("dir", d.cfg.SrcDir))

	var files []*UnitFile
	var sources map[string]string
	err = d.times.Timed(PhaseParse, func() error {
		var err error
		files, sources, err = loadUnits(paths, d.diags)
		return err
	})
	if err != nil {
		return nil, err
	}
	if d.diags.HasErrors() {
		return nil, d.fail()
	}

	graph := BuildUnitGraph(files, d.diags)
	if d.diags.HasErrors() {
		return nil, d.fail()
	}
	order, err := graph.TopoOrder()
	if err != nil {
		return nil, err
	}
	levels, err := graph.Levels()
	if err != nil {
		return nil, err
	}

	checked := make(map[string]*CheckedUnit, len(order))
	var mu sync.Mutex
	for _, level := range levels {
		err := d.times.Timed(PhaseCheck, func() error {
			g, _ := errgroup.WithContext(ctx)
			g.SetLimit(d.jobs())
			for _, name := range level {
				name := name
				g.Go(func() error {
					imports := map[string]*UnitInterface{}
					mu.Lock()
					for _, dep := range graph.Deps(name) {
						imports[dep] = checked[dep].Iface
					}
					mu.Unlock()
					cu := CheckUnit(graph.Unit(name), imports, d.diags)
					mu.Lock()
					checked[name] = cu
					mu.Unlock()
					return nil
				})
			}
			return g.Wait()
		})
		if err != nil {
			return nil, err
		}
		// a broken level would only cascade noise into its dependents
		if d.diags.HasErrors() {
			return nil, d.fail()
		}
	}

	hashes := make(map[string]string, len(order))
	for name, cu := range checked {
		hashes[name] = interfaceHash(cu.Iface)
	}
	return &checkedProgram{
		graph:       graph,
		order:       order,
		units:       checked,
		sources:     sources,
		ifaceHashes: hashes,
	}, nil
}

func (d *Driver) fail() error {
	d.diags.Report(os.Stderr, useColor())
	return fmt.Errorf("build failed with %d error(s)", d.diags.ErrorCount())
}

func (d *Driver) reportWarnings() {
	if !d.diags.HasErrors() && len(d.diags.Diagnostics()) > 0 {
		d.diags.Report(os.Stderr, useColor())
	}
}

func useColor() bool {
	if env.Has("NO_COLOR") {
		return false
	}
	info, err := os.Stderr.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// Check runs the front-end only
func (d *Driver) Check(ctx context.Context) error {
	_, err := d.analyze(ctx)
	d.reportWarnings()
	return err
}

// Build compiles the project per opts and returns what it produced
func (d *Driver) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	prog, err := d.analyze(ctx)
	if err != nil {
		return nil, err
	}
	d.reportWarnings()

	backend, err := SelectBackend(d.cfg.Mode, d.cfg.Backend, d.cfg.Target)
	if err != nil {
		return nil, err
	}
	d.backend = backend
	d.key = buildKey{
		Version: Version,
		Triple:  d.cfg.Target.Triple(),
		Mode:    d.cfg.Mode,
		Backend: backend.Name(),
	}
	d.log.Debug("build configured",
		zap.String("target", d.key.Triple),
		zap.String("mode", d.key.Mode.String()),
		zap.String("backend", d.key.Backend),
		zap.Int("jobs", d.jobs()))

	emit := opts.Emit
	if emit == "" {
		emit = "bin"
	}
	switch emit {
	case "ir":
		return d.emitIR(prog)
	case "asm", "ll":
		return d.emitBackendText(prog, emit)
	case "obj", "bin":
	default:
		return nil, fmt.Errorf("unknown --emit kind '%s' (expected asm, ir, ll, obj or bin)", emit)
	}

	if emit == "bin" {
		if err := requireMain(prog); err != nil {
			return nil, err
		}
	}

	tc, err := FindToolchain(d.cfg.CC, d.log)
	if err != nil {
		return nil, err
	}
	d.openCaches()

	objDir := filepath.Join(d.cfg.OutDir, "obj")
	if err := os.MkdirAll(objDir, 0o755); err != nil {
		return nil, err
	}

	manifest := NewBuildManifest(d.cfg.Name, d.key)
	objects := make(map[string]string, len(prog.order))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.jobs())
	for _, name := range prog.order {
		name := name
		g.Go(func() error {
			rec, err := d.compileUnit(gctx, tc, prog, name, objDir)
			if err != nil {
				return err
			}
			mu.Lock()
			objects[name] = rec.Object
			mu.Unlock()
			manifest.AddUnit(rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &BuildResult{Manifest: manifest}
	for _, name := range prog.order {
		result.Objects = append(result.Objects, objects[name])
	}

	if emit == "bin" {
		binary := opts.Output
		if binary == "" {
			binary = d.cfg.BinaryPath()
		}
		if err := os.MkdirAll(filepath.Dir(binary), 0o755); err != nil {
			return nil, err
		}
		err := d.times.Timed(PhaseLink, func() error {
			return tc.Link(ctx, result.Objects, binary)
		})
		if err != nil {
			return nil, err
		}
		result.Binary = binary
	}

	if err := manifest.Finish(filepath.Join(d.cfg.OutDir, "build.json"), result.Binary); err != nil {
		d.log.Warn("could not write build manifest", zap.Error(err))
	}
	d.times.LogSummary(d.log)
	d.log.Info("build complete",
		zap.String("build_id", manifest.BuildID),
		zap.Int("units", len(prog.order)),
		zap.Int("cache_hits", manifest.CacheHits),
		zap.Int("cache_misses", manifest.CacheMisses),
		zap.Int64("duration_ms", time.Since(manifest.StartedAt).Milliseconds()))
	return result, nil
}

func (d *Driver) openCaches() {
	if d.cfg.NoCache {
		return
	}
	cache, err := OpenObjectCache(d.cfg.CacheDir, d.log)
	if err != nil {
		d.log.Warn("object cache unavailable, compiling everything", zap.Error(err))
		return
	}
	d.cache = cache
	if d.cfg.RemoteCache != "" {
		d.remote = NewRemoteCache(d.cfg.RemoteCache, d.log)
	}
}

func requireMain(prog *checkedProgram) error {
	main, ok := prog.units["main"]
	if !ok {
		return fmt.Errorf("a binary needs a unit named 'main' (expected a file main%s)", sourceExt)
	}
	if main.Sigs["main"] == nil {
		return fmt.Errorf("unit 'main' does not define fn main()")
	}
	return nil
}

// lowerAndOptimize takes one checked unit to backend-ready IR
func (d *Driver) lowerAndOptimize(name string, cu *CheckedUnit) (*IRUnit, error) {
	var u *IRUnit
	err := d.times.Timed(PhaseLower, func() error {
		u = lowerUnit(cu)
		return u.Validate()
	})
	if err != nil {
		return nil, fmt.Errorf("internal error while lowering unit '%s': %w", name, err)
	}
	if d.key.Mode == ModeRelease {
		d.times.Timed(PhaseOptimize, func() error {
			optimizeUnit(u, d.log)
			return nil
		})
	}
	return u, nil
}

func (d *Driver) compileUnit(ctx context.Context, tc *Toolchain, prog *checkedProgram, name, objDir string) (UnitRecord, error) {
	start := time.Now()
	cu := prog.units[name]

	depHashes := make(map[string]string)
	for _, dep := range prog.graph.Deps(name) {
		depHashes[dep] = prog.ifaceHashes[dep]
	}
	fp := unitFingerprint(d.key, []byte(prog.sources[name]), depHashes)

	rec := UnitRecord{Name: name, Source: cu.File.Path, Fingerprint: fp}
	objPath := filepath.Join(objDir, name+".o")

	if d.cache != nil {
		if cached, ok := d.cache.Lookup(fp); ok {
			if err := copyFile(cached, objPath); err != nil {
				return rec, err
			}
			rec.Object = objPath
			rec.CacheTier = "local"
			rec.DurationMS = time.Since(start).Milliseconds()
			d.log.Debug("object from local cache", zap.String("unit", name), zap.String("fingerprint", fp))
			return rec, nil
		}
		if d.remote != nil {
			if data, ok := d.remote.Fetch(ctx, fp); ok {
				if err := os.WriteFile(objPath, data, 0o644); err != nil {
					return rec, err
				}
				if _, err := d.cache.Store(fp, data, d.cacheMeta(name)); err != nil {
					d.log.Warn("could not store remote object locally", zap.Error(err))
				}
				rec.Object = objPath
				rec.CacheTier = "remote"
				rec.DurationMS = time.Since(start).Milliseconds()
				return rec, nil
			}
		}
	}

	u, err := d.lowerAndOptimize(name, cu)
	if err != nil {
		return rec, err
	}

	var artifact []byte
	err = d.times.Timed(PhaseCodegen, func() error {
		var err error
		artifact, err = d.backend.Generate(u, d.cfg.Target)
		return err
	})
	if err != nil {
		return rec, fmt.Errorf("code generation for unit '%s' failed: %w", name, err)
	}

	artifactPath := filepath.Join(objDir, name+d.backend.OutputExt())
	if err := os.WriteFile(artifactPath, artifact, 0o644); err != nil {
		return rec, err
	}
	err = d.times.Timed(PhaseAssemble, func() error {
		return tc.Assemble(ctx, artifactPath, objPath)
	})
	if err != nil {
		return rec, err
	}
	rec.Object = objPath

	if d.cache != nil {
		if obj, err := os.ReadFile(objPath); err == nil {
			if _, err := d.cache.Store(fp, obj, d.cacheMeta(name)); err != nil {
				d.log.Warn("cache store failed", zap.String("unit", name), zap.Error(err))
			} else if d.remote != nil {
				d.remote.Push(ctx, fp, obj)
			}
		}
	}

	rec.DurationMS = time.Since(start).Milliseconds()
	d.log.Debug("compiled unit",
		zap.String("unit", name),
		zap.String("backend", d.key.Backend),
		zap.Int64("duration_ms", rec.DurationMS))
	return rec, nil
}

func (d *Driver) cacheMeta(unit string) CacheMeta {
	return CacheMeta{
		Unit:    unit,
		Backend: d.key.Backend,
		Mode:    d.key.Mode.String(),
		Triple:  d.key.Triple,
	}
}

// emitIR writes each unit's IR text and stops before any backend
func (d *Driver) emitIR(prog *checkedProgram) (*BuildResult, error) {
	if err := os.MkdirAll(d.cfg.OutDir, 0o755); err != nil {
		return nil, err
	}
	result := &BuildResult{}
	for _, name := range prog.order {
		u, err := d.lowerAndOptimize(name, prog.units[name])
		if err != nil {
			return nil, err
		}
		path := filepath.Join(d.cfg.OutDir, name+".ir")
		if err := os.WriteFile(path, []byte(u.String()), 0o644); err != nil {
			return nil, err
		}
		result.Artifacts = append(result.Artifacts, path)
	}
	return result, nil
}

// emitBackendText writes the backend's textual artifact per unit
func (d *Driver) emitBackendText(prog *checkedProgram, emit string) (*BuildResult, error) {
	want := ".s"
	if emit == "ll" {
		want = ".ll"
	}
	if d.backend.OutputExt() != want {
		return nil, fmt.Errorf("--emit %s needs the %s backend, but this build selected %s; pass --backend explicitly",
			emit, map[string]string{".s": "fast", ".ll": "llvm"}[want], d.backend.Name())
	}
	if err := os.MkdirAll(d.cfg.OutDir, 0o755); err != nil {
		return nil, err
	}
	result := &BuildResult{}
	for _, name := range prog.order {
		u, err := d.lowerAndOptimize(name, prog.units[name])
		if err != nil {
			return nil, err
		}
		var artifact []byte
		err = d.times.Timed(PhaseCodegen, func() error {
			var err error
			artifact, err = d.backend.Generate(u, d.cfg.Target)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("code generation for unit '%s' failed: %w", name, err)
		}
		path := filepath.Join(d.cfg.OutDir, name+want)
		if err := os.WriteFile(path, artifact, 0o644); err != nil {
			return nil, err
		}
		result.Artifacts = append(result.Artifacts, path)
	}
	return result, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
