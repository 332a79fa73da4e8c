// backend.go - Backend selection
//
// Two code generators sit behind one interface: the fast backend emits
// x86-64 assembly directly and keeps dev rebuilds cheap; the llvm
// backend emits LLVM IR and buys release performance with clang -O2.
// Build mode picks the default, --backend overrides it.

package main

import "fmt"

// BuildMode selects the compilation profile
type BuildMode int

const (
	ModeDev BuildMode = iota
	ModeRelease
)

func (m BuildMode) String() string {
	if m == ModeRelease {
		return "release"
	}
	return "dev"
}

func ParseBuildMode(s string) (BuildMode, error) {
	switch s {
	case "dev", "":
		return ModeDev, nil
	case "release":
		return ModeRelease, nil
	}
	return ModeDev, fmt.Errorf("unknown build mode '%s' (expected dev or release)", s)
}

// Backend turns IR units into a textual artifact the system toolchain
// can assemble into an object file.
type Backend interface {
	Name() string
	// OutputExt is the artifact extension: ".s" or ".ll"
	OutputExt() string
	Generate(u *IRUnit, platform Platform) ([]byte, error)
}

var backendRegistry = map[string]Backend{
	"fast": &fastBackend{},
	"llvm": &llvmBackend{},
}

func backendNames() string {
	return "fast, llvm"
}

// SelectBackend resolves the backend for a build. An explicit name
// wins; otherwise dev builds use fast and release builds use llvm.
// The fast backend only speaks x86-64, so other targets fall back to
// llvm unless the user asked for fast by name.
func SelectBackend(mode BuildMode, explicit string, platform Platform) (Backend, error) {
	if explicit != "" {
		be, ok := backendRegistry[explicit]
		if !ok {
			return nil, fmt.Errorf("unknown backend '%s' (available: %s)", explicit, backendNames())
		}
		if be.Name() == "fast" && !fastSupports(platform) {
			return nil, fmt.Errorf("the fast backend only emits x86_64 ELF assembly, not code for %s; use --backend llvm", platform)
		}
		return be, nil
	}

	if mode == ModeRelease {
		return backendRegistry["llvm"], nil
	}
	if !fastSupports(platform) {
		return backendRegistry["llvm"], nil
	}
	return backendRegistry["fast"], nil
}

func fastSupports(platform Platform) bool {
	return platform.Arch == ArchX86_64 && platform.OS == OSLinux
}
