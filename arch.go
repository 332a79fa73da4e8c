// arch.go - Target architecture and platform handling for indentc
//
// The fast backend only ever emits x86_64 assembly; every other target
// goes through the LLVM backend, which hands the triple to the external
// toolchain.

package main

import (
	"fmt"
	"runtime"
	"strings"
)

// Arch represents a target CPU architecture
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_64
	ArchARM64
	ArchRiscv64
)

// String returns the canonical name of the architecture
func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchARM64:
		return "arm64"
	case ArchRiscv64:
		return "riscv64"
	default:
		return "unknown"
	}
}

// ParseArch converts an architecture name to an Arch value.
// Accepts common aliases (amd64, aarch64, etc.)
func ParseArch(s string) Arch {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "x64":
		return ArchX86_64
	case "arm64", "aarch64":
		return ArchARM64
	case "riscv64", "riscv":
		return ArchRiscv64
	default:
		return ArchUnknown
	}
}

// OS represents a target operating system
type OS int

const (
	OSUnknown OS = iota
	OSLinux
	OSMacOS
	OSWindows
)

// String returns the canonical name of the operating system
func (o OS) String() string {
	switch o {
	case OSLinux:
		return "linux"
	case OSMacOS:
		return "macos"
	case OSWindows:
		return "windows"
	default:
		return "unknown"
	}
}

// ParseOS converts an OS name to an OS value
func ParseOS(s string) OS {
	switch strings.ToLower(s) {
	case "linux":
		return OSLinux
	case "macos", "darwin", "osx":
		return OSMacOS
	case "windows", "win":
		return OSWindows
	default:
		return OSUnknown
	}
}

// Platform is a complete compilation target
type Platform struct {
	Arch Arch
	OS   OS
}

// String returns the short form, e.g. "x86_64-linux"
func (p Platform) String() string {
	return p.Arch.String() + "-" + p.OS.String()
}

// Triple returns the target triple handed to the external toolchain,
// e.g. "x86_64-unknown-linux-gnu"
func (p Platform) Triple() string {
	vendor := "unknown"
	sys := ""
	switch p.OS {
	case OSLinux:
		sys = "linux-gnu"
	case OSMacOS:
		vendor = "apple"
		sys = "darwin"
	case OSWindows:
		vendor = "pc"
		sys = "windows-msvc"
	default:
		sys = "none"
	}
	arch := p.Arch.String()
	if p.Arch == ArchARM64 {
		arch = "aarch64"
	}
	return fmt.Sprintf("%s-%s-%s", arch, vendor, sys)
}

// Valid reports whether both architecture and OS are known
func (p Platform) Valid() bool {
	return p.Arch != ArchUnknown && p.OS != OSUnknown
}

// ParsePlatform parses "arch", "arch-os" or a full triple like
// "x86_64-unknown-linux-gnu". A bare architecture keeps the host OS.
func ParsePlatform(s string) (Platform, error) {
	host := HostPlatform()
	if s == "" {
		return host, nil
	}
	parts := strings.Split(s, "-")
	arch := ParseArch(parts[0])
	if arch == ArchUnknown {
		return Platform{}, fmt.Errorf("unknown architecture %q in target %q", parts[0], s)
	}
	os := host.OS
	if len(parts) > 1 {
		// arch-os form, or triple form with the OS in a later field
		os = OSUnknown
		for _, part := range parts[1:] {
			if strings.HasPrefix(part, "linux") {
				os = OSLinux
				break
			}
			if candidate := ParseOS(part); candidate != OSUnknown {
				os = candidate
				break
			}
		}
		if os == OSUnknown {
			return Platform{}, fmt.Errorf("unknown operating system in target %q", s)
		}
	}
	return Platform{Arch: arch, OS: os}, nil
}

// HostPlatform detects the platform indentc itself runs on
func HostPlatform() Platform {
	var arch Arch
	switch runtime.GOARCH {
	case "amd64":
		arch = ArchX86_64
	case "arm64":
		arch = ArchARM64
	case "riscv64":
		arch = ArchRiscv64
	}
	var os OS
	switch runtime.GOOS {
	case "linux":
		os = OSLinux
	case "darwin":
		os = OSMacOS
	case "windows":
		os = OSWindows
	}
	return Platform{Arch: arch, OS: os}
}
