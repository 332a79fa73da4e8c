// types.go - Semantic types for the Indent checker
//
// The surface has four value types plus void. Literals and constant
// expressions stay untyped until a use site forces a concrete type,
// in the manner of Go's untyped constants.

package main

// TypeKind enumerates semantic types
type TypeKind int

const (
	TypeInvalid TypeKind = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeString
	TypeVoid
	TypeUntypedInt
	TypeUntypedFloat
	TypeUntypedBool
)

// Type is a semantic type; the singletons below are the only instances
type Type struct {
	Kind TypeKind
}

var (
	typInvalid      = &Type{TypeInvalid}
	typInt          = &Type{TypeInt}
	typFloat        = &Type{TypeFloat}
	typBool         = &Type{TypeBool}
	typString       = &Type{TypeString}
	typVoid         = &Type{TypeVoid}
	typUntypedInt   = &Type{TypeUntypedInt}
	typUntypedFloat = &Type{TypeUntypedFloat}
	typUntypedBool  = &Type{TypeUntypedBool}
)

func (t *Type) String() string {
	switch t.Kind {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeVoid:
		return "void"
	case TypeUntypedInt:
		return "untyped int"
	case TypeUntypedFloat:
		return "untyped float"
	case TypeUntypedBool:
		return "untyped bool"
	default:
		return "invalid"
	}
}

// typeFromName resolves a written type name; nil when unknown
func typeFromName(name string) *Type {
	switch name {
	case "int":
		return typInt
	case "float":
		return typFloat
	case "bool":
		return typBool
	case "string":
		return typString
	default:
		return nil
	}
}

// IsInvalid reports the poison type used to suppress cascades
func (t *Type) IsInvalid() bool { return t.Kind == TypeInvalid }

// IsUntyped reports whether the type is a constant-expression type
func (t *Type) IsUntyped() bool {
	switch t.Kind {
	case TypeUntypedInt, TypeUntypedFloat, TypeUntypedBool:
		return true
	}
	return false
}

// IsNumeric covers int, float, and their untyped forms
func (t *Type) IsNumeric() bool {
	switch t.Kind {
	case TypeInt, TypeFloat, TypeUntypedInt, TypeUntypedFloat:
		return true
	}
	return false
}

// IsBoolean covers bool and untyped bool
func (t *Type) IsBoolean() bool {
	return t.Kind == TypeBool || t.Kind == TypeUntypedBool
}

// Default materializes an untyped constant type at a use site with no
// other type context.
func (t *Type) Default() *Type {
	switch t.Kind {
	case TypeUntypedInt:
		return typInt
	case TypeUntypedFloat:
		return typFloat
	case TypeUntypedBool:
		return typBool
	}
	return t
}

// assignable reports whether a value of type src can bind to dst.
// Untyped constants adapt: an untyped int fits both int and float
// contexts, an untyped float only float. The invalid type fits
// anywhere so earlier errors stay silent.
func assignable(dst, src *Type) bool {
	if dst.IsInvalid() || src.IsInvalid() {
		return true
	}
	if dst.Kind == src.Kind {
		return true
	}
	switch src.Kind {
	case TypeUntypedInt:
		return dst.Kind == TypeInt || dst.Kind == TypeFloat
	case TypeUntypedFloat:
		return dst.Kind == TypeFloat
	case TypeUntypedBool:
		return dst.Kind == TypeBool
	}
	return false
}

// sameType reports whether two operand types agree for a binary
// operator, allowing untyped operands to adapt to the typed side.
func sameType(a, b *Type) (*Type, bool) {
	if a.IsInvalid() || b.IsInvalid() {
		return typInvalid, true
	}
	if a.Kind == b.Kind {
		return a, true
	}
	if a.IsUntyped() && !b.IsUntyped() && assignable(b, a) {
		return b, true
	}
	if b.IsUntyped() && !a.IsUntyped() && assignable(a, b) {
		return a, true
	}
	// two different untyped kinds: int and float mix to float
	if a.IsUntyped() && b.IsUntyped() {
		numA := a.Kind == TypeUntypedInt || a.Kind == TypeUntypedFloat
		numB := b.Kind == TypeUntypedInt || b.Kind == TypeUntypedFloat
		if numA && numB {
			return typUntypedFloat, true
		}
	}
	return typInvalid, false
}

// FuncSig is a function's external signature
type FuncSig struct {
	Params []*Type
	Result *Type // typVoid when the function returns nothing
}

func (s *FuncSig) String() string {
	out := "fn("
	for i, p := range s.Params {
		if i > 0 {
			out += ", "
		}
		out += p.String()
	}
	out += ")"
	if s.Result != nil && s.Result.Kind != TypeVoid {
		out += " -> " + s.Result.String()
	}
	return out
}
