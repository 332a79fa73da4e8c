// config.go - Project configuration
//
// Settings layer in a fixed order: built-in defaults, then the
// indent.yaml manifest, then INDENTC_* environment variables, then
// command-line flags (applied in cli.go). Later layers win. A missing
// manifest is fine; a directory of .ind files builds with defaults.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

const manifestName = "indent.yaml"

type Config struct {
	Name   string   // project and default binary name
	Root   string   // directory holding the manifest (or the build dir)
	SrcDir string   // where the .ind units live
	Units  []string // explicit .ind arguments; when set, SrcDir is not scanned
	OutDir string   // build products and the final binary

	Mode    BuildMode
	Backend string // explicit backend name, empty means mode decides
	Target  Platform
	Jobs    int // parallel unit compilations, 0 means GOMAXPROCS

	CacheDir    string
	RemoteCache string // base URL, empty disables the remote tier
	NoCache     bool
	CC          string // compiler driver override
}

func DefaultConfig(root string) *Config {
	return &Config{
		Name:     filepath.Base(root),
		Root:     root,
		SrcDir:   root,
		OutDir:   filepath.Join(root, "build"),
		Mode:     ModeDev,
		Target:   HostPlatform(),
		CacheDir: DefaultCacheDir(),
	}
}

type manifestDTO struct {
	Name   string `yaml:"name"`
	Src    string `yaml:"src"`
	Output string `yaml:"output"`

	Build struct {
		Mode    string `yaml:"mode"`
		Backend string `yaml:"backend"`
		Target  string `yaml:"target"`
		Jobs    int    `yaml:"jobs"`
	} `yaml:"build"`

	Cache struct {
		Dir      string `yaml:"dir"`
		Remote   string `yaml:"remote"`
		Disabled bool   `yaml:"disabled"`
	} `yaml:"cache"`
}

// FindManifest walks up from dir looking for indent.yaml. Returns the
// manifest path, or "" when no ancestor has one.
func FindManifest(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, manifestName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadConfig resolves the configuration for a build rooted at dir,
// reading the manifest when one exists and applying INDENTC_* values
// on top.
func LoadConfig(dir string) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	manifest := FindManifest(dir)
	root := dir
	if manifest != "" {
		root = filepath.Dir(manifest)
	}
	cfg := DefaultConfig(root)

	if manifest != "" {
		b, err := os.ReadFile(manifest)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", manifest, err)
		}
		var dto manifestDTO
		if err := yaml.Unmarshal(b, &dto); err != nil {
			return nil, fmt.Errorf("%s: %w", manifest, err)
		}
		if err := cfg.applyManifest(manifest, dto); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyManifest(path string, dto manifestDTO) error {
	if dto.Name != "" {
		c.Name = dto.Name
	}
	if dto.Src != "" {
		c.SrcDir = filepath.Join(c.Root, dto.Src)
	}
	if dto.Output != "" {
		c.OutDir = filepath.Join(c.Root, dto.Output)
	}
	if dto.Build.Mode != "" {
		mode, err := ParseBuildMode(dto.Build.Mode)
		if err != nil {
			return fmt.Errorf("%s: build.mode: %w", path, err)
		}
		c.Mode = mode
	}
	if dto.Build.Backend != "" {
		if _, ok := backendRegistry[dto.Build.Backend]; !ok {
			return fmt.Errorf("%s: build.backend: unknown backend '%s' (available: %s)", path, dto.Build.Backend, backendNames())
		}
		c.Backend = dto.Build.Backend
	}
	if dto.Build.Target != "" {
		target, err := ParsePlatform(dto.Build.Target)
		if err != nil {
			return fmt.Errorf("%s: build.target: %w", path, err)
		}
		c.Target = target
	}
	if dto.Build.Jobs < 0 {
		return fmt.Errorf("%s: build.jobs must not be negative", path)
	}
	if dto.Build.Jobs > 0 {
		c.Jobs = dto.Build.Jobs
	}
	if dto.Cache.Dir != "" {
		c.CacheDir = dto.Cache.Dir
		if !filepath.IsAbs(c.CacheDir) {
			c.CacheDir = filepath.Join(c.Root, c.CacheDir)
		}
	}
	if dto.Cache.Remote != "" {
		c.RemoteCache = dto.Cache.Remote
	}
	if dto.Cache.Disabled {
		c.NoCache = true
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := env.Str("INDENTC_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := env.Str("INDENTC_REMOTE_CACHE"); v != "" {
		c.RemoteCache = v
	}
	if env.Bool("INDENTC_NO_CACHE") {
		c.NoCache = true
	}
	if v := env.Str("INDENTC_CC"); v != "" {
		c.CC = v
	}
	if v := env.Str("INDENTC_MODE"); v != "" {
		mode, err := ParseBuildMode(v)
		if err != nil {
			return fmt.Errorf("INDENTC_MODE: %w", err)
		}
		c.Mode = mode
	}
	if v := env.Str("INDENTC_BACKEND"); v != "" {
		if _, ok := backendRegistry[v]; !ok {
			return fmt.Errorf("INDENTC_BACKEND: unknown backend '%s' (available: %s)", v, backendNames())
		}
		c.Backend = v
	}
	if v := env.Int("INDENTC_JOBS", 0); v > 0 {
		c.Jobs = v
	}
	return nil
}

// BinaryPath is where the linked executable lands unless -o overrides
func (c *Config) BinaryPath() string {
	name := c.Name
	if c.Target.OS == OSWindows {
		name += ".exe"
	}
	return filepath.Join(c.OutDir, name)
}
