package main

import (
	"testing"
)

// checkedIface compiles one unit far enough to extract its interface
func checkedIface(t *testing.T, name, src string) *UnitInterface {
	t.Helper()
	diags := NewDiagnosticCollector()
	unit := ParseUnit(name+".ind", src, diags)
	cu := CheckUnit(unit, nil, diags)
	if diags.HasErrors() {
		t.Fatalf("unit failed to check: %v", diags.Diagnostics())
	}
	return cu.Iface
}

// TestInterfaceHashStability verifies the hash tracks the exported
// surface and nothing else.
func TestInterfaceHashStability(t *testing.T) {
	base := `unit math
pub const pi = 3.14159

pub fn add(a: int, b: int) -> int {
	return a + b
}
`
	baseHash := interfaceHash(checkedIface(t, "math", base))

	t.Run("deterministic", func(t *testing.T) {
		if got := interfaceHash(checkedIface(t, "math", base)); got != baseHash {
			t.Errorf("same source hashed differently: %s vs %s", got, baseHash)
		}
	})

	t.Run("body change keeps the hash", func(t *testing.T) {
		edited := `unit math
pub const pi = 3.14159

pub fn add(a: int, b: int) -> int {
	let sum = b + a
	return sum
}
`
		if got := interfaceHash(checkedIface(t, "math", edited)); got != baseHash {
			t.Error("editing a function body changed the interface hash")
		}
	})

	t.Run("signature change breaks the hash", func(t *testing.T) {
		edited := `unit math
pub const pi = 3.14159

pub fn add(a: int, b: int) -> float {
	return 1.0
}
`
		if got := interfaceHash(checkedIface(t, "math", edited)); got == baseHash {
			t.Error("changing a result type kept the interface hash")
		}
	})

	t.Run("public constant value breaks the hash", func(t *testing.T) {
		edited := `unit math
pub const pi = 3.14160

pub fn add(a: int, b: int) -> int {
	return a + b
}
`
		if got := interfaceHash(checkedIface(t, "math", edited)); got == baseHash {
			t.Error("changing a public constant kept the interface hash")
		}
	})

	t.Run("private members never count", func(t *testing.T) {
		edited := `unit math
pub const pi = 3.14159
const scratch = 99

pub fn add(a: int, b: int) -> int {
	return a + b
}

fn helper() -> int {
	return scratch
}
`
		if got := interfaceHash(checkedIface(t, "math", edited)); got != baseHash {
			t.Error("adding private members changed the interface hash")
		}
	})
}

// TestUnitFingerprint verifies every build input moves the key
func TestUnitFingerprint(t *testing.T) {
	key := buildKey{Version: "0.3.0", Triple: "x86_64-unknown-linux-gnu", Mode: ModeDev, Backend: "fast"}
	source := []byte("unit main\nfn main() {\n}\n")
	deps := map[string]string{"math": "aaa", "geo": "bbb"}

	base := unitFingerprint(key, source, deps)

	t.Run("deterministic", func(t *testing.T) {
		if got := unitFingerprint(key, source, deps); got != base {
			t.Error("identical inputs produced different fingerprints")
		}
	})

	t.Run("dep order ignored", func(t *testing.T) {
		reordered := map[string]string{"geo": "bbb", "math": "aaa"}
		if got := unitFingerprint(key, source, reordered); got != base {
			t.Error("map iteration order leaked into the fingerprint")
		}
	})

	t.Run("source bytes count", func(t *testing.T) {
		if got := unitFingerprint(key, []byte("unit main\nfn main() {\nprintln(1)\n}\n"), deps); got == base {
			t.Error("source edit kept the fingerprint")
		}
	})

	t.Run("dep interface counts", func(t *testing.T) {
		changed := map[string]string{"math": "ccc", "geo": "bbb"}
		if got := unitFingerprint(key, source, changed); got == base {
			t.Error("dependency interface change kept the fingerprint")
		}
	})

	tests := []struct {
		name string
		key  buildKey
	}{
		{"version", buildKey{Version: "0.3.1", Triple: key.Triple, Mode: key.Mode, Backend: key.Backend}},
		{"triple", buildKey{Version: key.Version, Triple: "aarch64-unknown-linux-gnu", Mode: key.Mode, Backend: key.Backend}},
		{"mode", buildKey{Version: key.Version, Triple: key.Triple, Mode: ModeRelease, Backend: key.Backend}},
		{"backend", buildKey{Version: key.Version, Triple: key.Triple, Mode: key.Mode, Backend: "llvm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name+" counts", func(t *testing.T) {
			if got := unitFingerprint(tt.key, source, deps); got == base {
				t.Errorf("%s change kept the fingerprint", tt.name)
			}
		})
	}
}

// TestFingerprintNoDeps verifies a dependency-free unit still keys on
// its own source.
func TestFingerprintNoDeps(t *testing.T) {
	key := buildKey{Version: "0.3.0", Triple: "x86_64-unknown-linux-gnu", Mode: ModeDev, Backend: "fast"}
	a := unitFingerprint(key, []byte("a"), nil)
	b := unitFingerprint(key, []byte("b"), nil)
	if a == b {
		t.Error("different sources share a fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}
