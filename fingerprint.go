// fingerprint.go - Cache keys for compiled units
//
// A unit's fingerprint covers everything that can change its object
// code: the compiler version, the target, the build profile, its own
// source bytes, and the exported interface of every unit it imports.
// Interfaces hash over the canonical exported surface only, so editing
// a function body invalidates that unit alone while its importers keep
// hitting the cache.

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// interfaceHash digests a unit's exported surface: public function
// signatures and public constants with their folded values.
func interfaceHash(iface *UnitInterface) string {
	h := sha256.New()
	fmt.Fprintf(h, "unit %s\n", iface.Name)

	names := make([]string, 0, len(iface.Funcs))
	for name := range iface.Funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "fn %s %s\n", name, iface.Funcs[name].String())
	}

	names = names[:0]
	for name := range iface.Consts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := iface.Consts[name]
		fmt.Fprintf(h, "const %s %s %s\n", name, v.typ(), v.render())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// buildKey pins the toolchain-level inputs shared by every unit of a
// build: compiler version, target triple, profile and backend.
type buildKey struct {
	Version string
	Triple  string
	Mode    BuildMode
	Backend string
}

// unitFingerprint computes the cache key for one unit's object file.
// depHashes maps each direct import to its interface hash; order does
// not matter, the digest sorts them.
func unitFingerprint(key buildKey, source []byte, depHashes map[string]string) string {
	h := sha256.New()
	fmt.Fprintf(h, "indentc %s\ntarget %s\nmode %s\nbackend %s\n", key.Version, key.Triple, key.Mode, key.Backend)
	fmt.Fprintf(h, "source %d\n", len(source))
	h.Write(source)

	deps := make([]string, 0, len(depHashes))
	for name := range depHashes {
		deps = append(deps, name)
	}
	sort.Strings(deps)
	for _, name := range deps {
		fmt.Fprintf(h, "\ndep %s %s", name, depHashes[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}
