// cli.go - Command-line interface
//
// Subcommands mirror the build lifecycle: check, build, run, plus
// cache management and a version stamp. Positional arguments name
// either a project directory or explicit .ind files; everything else
// comes from configuration with flags last in the precedence chain.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version participates in every unit fingerprint, so an upgrade
// invalidates stale cached objects on its own.
const Version = "0.3.0"

// exitCodeError carries a child program's exit status through cobra
type exitCodeError struct{ code int }

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context) int {
	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	fmt.Fprintf(os.Stderr, "indentc: %v\n", err)
	return 1
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indentc",
		Short: "indentc builds Indent projects",
		Long: `indentc compiles Indent projects: it checks every unit, recompiles
the ones whose fingerprints changed, and links a binary. Builds
default to the fast dev backend; --mode release selects the
optimizing LLVM pipeline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log compiler internals to stderr")

	cmd.AddCommand(
		newBuildCmd(),
		newRunCmd(),
		newCheckCmd(),
		newCacheCmd(),
		newVersionCmd(),
	)
	return cmd
}

func loggerFor(cmd *cobra.Command) *zap.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	return NewLogger(verbose)
}

// buildFlags are the per-invocation knobs shared by build and run
type buildFlags struct {
	output  string
	mode    string
	backend string
	target  string
	emit    string
	jobs    int
	watch   bool
	noCache bool
}

func (f *buildFlags) register(cmd *cobra.Command, forBuild bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.mode, "mode", "dev", "build mode: dev or release")
	flags.StringVar(&f.backend, "backend", "", "code generator: fast or llvm (default picked by mode)")
	flags.IntVarP(&f.jobs, "jobs", "j", 0, "parallel unit compilations (default: all CPUs)")
	flags.BoolVar(&f.noCache, "no-cache", false, "compile every unit, bypassing the object cache")
	if forBuild {
		flags.StringVarP(&f.output, "output", "o", "", "binary path (default: <out>/<project name>)")
		flags.StringVar(&f.target, "target", "", "target triple, e.g. x86_64-linux")
		flags.StringVar(&f.emit, "emit", "bin", "stop after this artifact: asm, ir, ll, obj or bin")
		flags.BoolVarP(&f.watch, "watch", "w", false, "stay running and rebuild on source changes")
	}
}

// apply layers the explicitly set flags over cfg. Unset flags leave the
// manifest and environment values alone.
func (f *buildFlags) apply(cmd *cobra.Command, cfg *Config) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		mode, err := ParseBuildMode(f.mode)
		if err != nil {
			return err
		}
		cfg.Mode = mode
	} else if f.watch {
		// watch is an edit loop; release only when asked for
		cfg.Mode = ModeDev
	}
	if f.backend != "" {
		if _, ok := backendRegistry[f.backend]; !ok {
			return fmt.Errorf("unknown backend '%s' (available: %s)", f.backend, backendNames())
		}
		cfg.Backend = f.backend
	}
	if f.target != "" {
		target, err := ParsePlatform(f.target)
		if err != nil {
			return err
		}
		cfg.Target = target
	}
	if f.jobs > 0 {
		cfg.Jobs = f.jobs
	}
	if f.noCache {
		cfg.NoCache = true
	}
	return nil
}

// resolveConfig turns positional arguments into a configuration: no
// arguments builds the current directory's project, one directory
// argument builds that project, and .ind arguments build exactly those
// units.
func resolveConfig(args []string) (*Config, error) {
	var dir string
	var units []string
	switch {
	case len(args) == 0:
		dir = "."
	case len(args) == 1 && isProjectDir(args[0]):
		dir = args[0]
	default:
		for _, arg := range args {
			if filepath.Ext(arg) != sourceExt {
				return nil, fmt.Errorf("'%s' is neither a project directory nor a %s file", arg, sourceExt)
			}
			abs, err := filepath.Abs(arg)
			if err != nil {
				return nil, err
			}
			if _, err := os.Stat(abs); err != nil {
				return nil, fmt.Errorf("no such source file: %s", arg)
			}
			units = append(units, abs)
		}
		dir = filepath.Dir(units[0])
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	cfg.Units = units
	if len(units) == 1 && FindManifest(dir) == "" {
		cfg.Name = unitName(units[0])
	}
	return cfg, nil
}

func isProjectDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func newBuildCmd() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build [path | file.ind ...]",
		Short: "Compile a project or a set of units",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerFor(cmd)
			defer log.Sync()

			cfg, err := resolveConfig(args)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}

			d := NewDriver(cfg, log)
			opts := BuildOptions{Emit: f.emit, Output: f.output}
			if f.watch {
				return d.Watch(cmd.Context(), opts)
			}
			_, err = d.Build(cmd.Context(), opts)
			return err
		},
	}
	f.register(cmd, true)
	return cmd
}

func newRunCmd() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "run [path | file.ind ...] [-- program args]",
		Short: "Compile and execute, passing through the exit code",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerFor(cmd)
			defer log.Sync()

			var progArgs []string
			if n := cmd.ArgsLenAtDash(); n >= 0 {
				progArgs = args[n:]
				args = args[:n]
			}
			cfg, err := resolveConfig(args)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}

			d := NewDriver(cfg, log)
			code, err := d.Run(cmd.Context(), BuildOptions{}, progArgs)
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}
	f.register(cmd, false)
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [path | file.ind ...]",
		Short: "Parse and type-check without generating code",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerFor(cmd)
			defer log.Sync()

			cfg, err := resolveConfig(args)
			if err != nil {
				return err
			}
			return NewDriver(cfg, log).Check(cmd.Context())
		},
	}
	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the object cache",
	}
	cmd.AddCommand(
		newCacheStatsCmd(),
		newCacheTrimCmd(),
		newCacheClearCmd(),
		newCacheServeCmd(),
	)
	return cmd
}

// cacheFor opens the cache named by --dir, or the one the current
// project would use.
func cacheFor(cmd *cobra.Command, dir string) (*ObjectCache, error) {
	if dir == "" {
		cfg, err := LoadConfig(".")
		if err != nil {
			return nil, err
		}
		dir = cfg.CacheDir
	}
	return OpenObjectCache(dir, loggerFor(cmd))
}

func newCacheStatsCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show object count and total size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := cacheFor(cmd, dir)
			if err != nil {
				return err
			}
			stats, err := cache.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("cache:   %s\n", stats.Dir)
			fmt.Printf("objects: %d\n", stats.Objects)
			fmt.Printf("size:    %s\n", formatBytes(stats.Bytes))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "cache directory (default: the project's)")
	return cmd
}

func newCacheTrimCmd() *cobra.Command {
	var dir string
	var maxMB int64
	cmd := &cobra.Command{
		Use:   "trim",
		Short: "Evict oldest objects until the cache fits a size budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := cacheFor(cmd, dir)
			if err != nil {
				return err
			}
			evicted, freed, err := cache.Trim(maxMB << 20)
			if err != nil {
				return err
			}
			fmt.Printf("evicted %d object(s), freed %s\n", evicted, formatBytes(freed))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "cache directory (default: the project's)")
	cmd.Flags().Int64Var(&maxMB, "max-mb", 512, "size budget in MiB")
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached object",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := cacheFor(cmd, dir)
			if err != nil {
				return err
			}
			if err := cache.Clear(); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "cache directory (default: the project's)")
	return cmd
}

func newCacheServeCmd() *cobra.Command {
	var dir, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve this cache to other builds over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerFor(cmd)
			defer log.Sync()

			cache, err := cacheFor(cmd, dir)
			if err != nil {
				return err
			}
			return RunCacheServer(addr, cache, log)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "cache directory (default: the project's)")
	cmd.Flags().StringVar(&addr, "addr", ":8755", "listen address")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("indentc %s (%s)\n", Version, HostPlatform().Triple())
		},
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
