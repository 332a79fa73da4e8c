package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, manifestName), []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

// clearBuildEnv keeps ambient INDENTC_* settings out of config tests
func clearBuildEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"INDENTC_CACHE_DIR", "INDENTC_REMOTE_CACHE", "INDENTC_NO_CACHE",
		"INDENTC_CC", "INDENTC_MODE", "INDENTC_BACKEND", "INDENTC_JOBS",
	} {
		t.Setenv(key, "")
	}
}

// TestConfigDefaults verifies a bare directory builds with defaults
func TestConfigDefaults(t *testing.T) {
	clearBuildEnv(t)
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != filepath.Base(dir) {
		t.Errorf("name = %q, want directory name %q", cfg.Name, filepath.Base(dir))
	}
	if cfg.SrcDir != dir {
		t.Errorf("src dir = %q, want %q", cfg.SrcDir, dir)
	}
	if cfg.OutDir != filepath.Join(dir, "build") {
		t.Errorf("out dir = %q", cfg.OutDir)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("mode = %s, want dev", cfg.Mode)
	}
	if cfg.Target != HostPlatform() {
		t.Errorf("target = %s, want host", cfg.Target)
	}
	if cfg.NoCache {
		t.Error("caching disabled by default")
	}
}

// TestConfigManifest verifies indent.yaml settings land and resolve
// relative to the manifest directory.
func TestConfigManifest(t *testing.T) {
	clearBuildEnv(t)
	dir := t.TempDir()
	writeManifest(t, dir, `name: calc
src: src
output: out

build:
  mode: release
  backend: llvm
  target: arm64-linux
  jobs: 4

cache:
  dir: .cache
  remote: http://cache.example:8755
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "calc" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.SrcDir != filepath.Join(dir, "src") {
		t.Errorf("src dir = %q", cfg.SrcDir)
	}
	if cfg.OutDir != filepath.Join(dir, "out") {
		t.Errorf("out dir = %q", cfg.OutDir)
	}
	if cfg.Mode != ModeRelease {
		t.Errorf("mode = %s", cfg.Mode)
	}
	if cfg.Backend != "llvm" {
		t.Errorf("backend = %q", cfg.Backend)
	}
	if cfg.Target != (Platform{Arch: ArchARM64, OS: OSLinux}) {
		t.Errorf("target = %s", cfg.Target)
	}
	if cfg.Jobs != 4 {
		t.Errorf("jobs = %d", cfg.Jobs)
	}
	if cfg.CacheDir != filepath.Join(dir, ".cache") {
		t.Errorf("cache dir = %q", cfg.CacheDir)
	}
	if cfg.RemoteCache != "http://cache.example:8755" {
		t.Errorf("remote cache = %q", cfg.RemoteCache)
	}
}

// TestConfigManifestDiscovery verifies the walk up to an ancestor
// manifest keeps the project root there.
func TestConfigManifestDiscovery(t *testing.T) {
	clearBuildEnv(t)
	root := t.TempDir()
	writeManifest(t, root, "name: app\n")
	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cfg, err := LoadConfig(nested)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "app" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Root != root {
		t.Errorf("root = %q, want ancestor %q", cfg.Root, root)
	}
}

// TestConfigEnvOverrides verifies INDENTC_* wins over the manifest
func TestConfigEnvOverrides(t *testing.T) {
	clearBuildEnv(t)
	dir := t.TempDir()
	writeManifest(t, dir, `name: app
build:
  mode: dev
  backend: fast
cache:
  remote: http://manifest.example
`)

	t.Setenv("INDENTC_MODE", "release")
	t.Setenv("INDENTC_BACKEND", "llvm")
	t.Setenv("INDENTC_REMOTE_CACHE", "http://env.example")
	t.Setenv("INDENTC_CACHE_DIR", "/tmp/indentc-test-cache")
	t.Setenv("INDENTC_NO_CACHE", "1")
	t.Setenv("INDENTC_JOBS", "8")
	t.Setenv("INDENTC_CC", "clang-17")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeRelease {
		t.Errorf("mode = %s, env should win", cfg.Mode)
	}
	if cfg.Backend != "llvm" {
		t.Errorf("backend = %q, env should win", cfg.Backend)
	}
	if cfg.RemoteCache != "http://env.example" {
		t.Errorf("remote cache = %q, env should win", cfg.RemoteCache)
	}
	if cfg.CacheDir != "/tmp/indentc-test-cache" {
		t.Errorf("cache dir = %q", cfg.CacheDir)
	}
	if !cfg.NoCache {
		t.Error("INDENTC_NO_CACHE ignored")
	}
	if cfg.Jobs != 8 {
		t.Errorf("jobs = %d", cfg.Jobs)
	}
	if cfg.CC != "clang-17" {
		t.Errorf("cc = %q", cfg.CC)
	}
}

// TestConfigRejectsBadValues verifies validation errors carry the
// manifest path and the offending key.
func TestConfigRejectsBadValues(t *testing.T) {
	clearBuildEnv(t)
	tests := []struct {
		name     string
		manifest string
	}{
		{"bad mode", "build:\n  mode: turbo\n"},
		{"bad backend", "build:\n  backend: gcc\n"},
		{"bad target", "build:\n  target: vax-linux\n"},
		{"negative jobs", "build:\n  jobs: -2\n"},
		{"broken yaml", "name: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.manifest)
			if _, err := LoadConfig(dir); err == nil {
				t.Error("bad manifest accepted")
			}
		})
	}
}

// TestConfigBadEnvRejected verifies environment values validate too
func TestConfigBadEnvRejected(t *testing.T) {
	clearBuildEnv(t)
	t.Setenv("INDENTC_BACKEND", "gcc")
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Error("unknown INDENTC_BACKEND accepted")
	}
}

// TestBinaryPath verifies the output naming per target
func TestBinaryPath(t *testing.T) {
	cfg := &Config{Name: "app", OutDir: "/proj/build", Target: Platform{Arch: ArchX86_64, OS: OSLinux}}
	if got := cfg.BinaryPath(); got != filepath.Join("/proj/build", "app") {
		t.Errorf("binary path = %q", got)
	}
	cfg.Target.OS = OSWindows
	if got := cfg.BinaryPath(); got != filepath.Join("/proj/build", "app.exe") {
		t.Errorf("windows binary path = %q", got)
	}
}
