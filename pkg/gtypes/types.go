// Package gtypes defines the shader type system used by the NIR passes:
// scalars, vectors, arrays and structs, with the element-count and bit-width
// queries the lowering passes need.
package gtypes

import (
	"fmt"
	"strings"
)

// Type is the interface for all shader types
type Type interface {
	implType()
	String() string
}

// BaseType is the scalar kind underlying a scalar or vector type
type BaseType int

const (
	Float BaseType = iota
	Double
	Int
	Uint
	Int64
	Uint64
	Bool
)

var baseNames = []string{"float", "double", "int", "uint", "int64", "uint64", "bool"}

// vector name prefixes, indexed by BaseType
var vecPrefixes = []string{"vec", "dvec", "ivec", "uvec", "i64vec", "u64vec", "bvec"}

func (b BaseType) String() string {
	if int(b) < len(baseNames) {
		return baseNames[b]
	}
	return "?"
}

// BitSize returns the width of one component in bits.
func (b BaseType) BitSize() int {
	switch b {
	case Double, Int64, Uint64:
		return 64
	case Bool:
		return 1
	default:
		return 32
	}
}

// Scalar is a single-component type
type Scalar struct {
	Base BaseType
}

// Vector is a 2, 3 or 4 component type
type Vector struct {
	Base       BaseType
	Components int
}

// Array is a fixed-length array type
type Array struct {
	Elem   Type
	Length int
}

// Struct is a record type; fields are addressed by index
type Struct struct {
	Name   string
	Fields []Field
}

// Field is a struct member
type Field struct {
	Name string
	Type Type
}

func (Scalar) implType() {}
func (Vector) implType() {}
func (Array) implType()  {}
func (Struct) implType() {}

func (t Scalar) String() string { return t.Base.String() }

func (t Vector) String() string {
	if int(t.Base) < len(vecPrefixes) {
		return fmt.Sprintf("%s%d", vecPrefixes[t.Base], t.Components)
	}
	return fmt.Sprintf("?vec%d", t.Components)
}

func (t Array) String() string {
	// Print outer dimension first: float[3][4] is an array of 3 float[4]
	dims := []int{t.Length}
	elem := t.Elem
	for {
		a, ok := elem.(Array)
		if !ok {
			break
		}
		dims = append(dims, a.Length)
		elem = a.Elem
	}
	var sb strings.Builder
	if elem == nil {
		sb.WriteString("?")
	} else {
		sb.WriteString(elem.String())
	}
	for _, d := range dims {
		fmt.Fprintf(&sb, "[%d]", d)
	}
	return sb.String()
}

func (t Struct) String() string {
	if t.Name == "" {
		return "struct <anonymous>"
	}
	return "struct " + t.Name
}

// Common type constructors

// FloatType returns the 32-bit float scalar type
func FloatType() Type { return Scalar{Base: Float} }

// IntType returns the 32-bit signed integer scalar type
func IntType() Type { return Scalar{Base: Int} }

// UintType returns the 32-bit unsigned integer scalar type
func UintType() Type { return Scalar{Base: Uint} }

// BoolType returns the boolean scalar type
func BoolType() Type { return Scalar{Base: Bool} }

// Vec returns a vector of n components of the given base type.
// A one-component vector is the scalar type itself.
func Vec(base BaseType, n int) Type {
	if n == 1 {
		return Scalar{Base: base}
	}
	return Vector{Base: base, Components: n}
}

// Vec4 returns the vec4 type
func Vec4() Type { return Vector{Base: Float, Components: 4} }

// ArrayOf returns an array of n elements
func ArrayOf(elem Type, n int) Type {
	return Array{Elem: elem, Length: n}
}

// IsVectorOrScalar reports whether t is a scalar or vector type.
func IsVectorOrScalar(t Type) bool {
	switch t.(type) {
	case Scalar, Vector:
		return true
	}
	return false
}

// VectorElements returns the component count of a scalar or vector type,
// and 0 for anything else.
func VectorElements(t Type) int {
	switch tt := t.(type) {
	case Scalar:
		return 1
	case Vector:
		return tt.Components
	}
	return 0
}

// BitSize returns the component bit width of a scalar or vector type,
// and 0 for anything else.
func BitSize(t Type) int {
	switch tt := t.(type) {
	case Scalar:
		return tt.Base.BitSize()
	case Vector:
		return tt.Base.BitSize()
	}
	return 0
}

// Length returns the number of elements of an array, the number of fields
// of a struct, or the component count of a vector. Scalars have length 0.
func Length(t Type) int {
	switch tt := t.(type) {
	case Array:
		return tt.Length
	case Struct:
		return len(tt.Fields)
	case Vector:
		return tt.Components
	}
	return 0
}

// ElementType returns the element type of an array, or nil.
func ElementType(t Type) Type {
	if a, ok := t.(Array); ok {
		return a.Elem
	}
	return nil
}

// FieldType returns the type of field i of a struct, or nil when t is not a
// struct or i is out of range.
func FieldType(t Type, i int) Type {
	s, ok := t.(Struct)
	if !ok || i < 0 || i >= len(s.Fields) {
		return nil
	}
	return s.Fields[i].Type
}

// FieldIndex returns the index of the named field of a struct, or -1.
func FieldIndex(t Type, name string) int {
	s, ok := t.(Struct)
	if !ok {
		return -1
	}
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Equal checks if two types are equal
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case Scalar:
		tb, ok := b.(Scalar)
		return ok && ta.Base == tb.Base
	case Vector:
		tb, ok := b.(Vector)
		return ok && ta.Base == tb.Base && ta.Components == tb.Components
	case Array:
		tb, ok := b.(Array)
		return ok && ta.Length == tb.Length && Equal(ta.Elem, tb.Elem)
	case Struct:
		tb, ok := b.(Struct)
		if !ok || ta.Name != tb.Name || len(ta.Fields) != len(tb.Fields) {
			return false
		}
		for i, f := range ta.Fields {
			if f.Name != tb.Fields[i].Name || !Equal(f.Type, tb.Fields[i].Type) {
				return false
			}
		}
		return true
	}
	return false
}
