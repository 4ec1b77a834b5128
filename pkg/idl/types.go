package idl

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of a Type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBool
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindI8
	KindI16
	KindI32
	KindI64
	KindI128
	KindF32
	KindF64
	KindString
	KindBytes
	KindPubkey
	KindVector
	KindOption
	KindArray
	KindStruct
	KindEnum
	KindDefined
)

var primitiveNames = map[string]Kind{
	"bool":      KindBool,
	"u8":        KindU8,
	"u16":       KindU16,
	"u32":       KindU32,
	"u64":       KindU64,
	"u128":      KindU128,
	"i8":        KindI8,
	"i16":       KindI16,
	"i32":       KindI32,
	"i64":       KindI64,
	"i128":      KindI128,
	"f32":       KindF32,
	"f64":       KindF64,
	"string":    KindString,
	"bytes":     KindBytes,
	"publicKey": KindPubkey,
	"pubkey":    KindPubkey,
}

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindU128:
		return "u128"
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindI128:
		return "i128"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindPubkey:
		return "pubkey"
	case KindVector:
		return "vec"
	case KindOption:
		return "option"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindDefined:
		return "defined"
	default:
		return "unknown"
	}
}

// IsPrimitive reports whether the kind is encoded without reference to
// another type.
func (k Kind) IsPrimitive() bool {
	return k >= KindBool && k <= KindPubkey
}

// Size returns the encoded width of fixed-size primitives, or 0.
func (k Kind) Size() int {
	switch k {
	case KindBool, KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32, KindF32:
		return 4
	case KindU64, KindI64, KindF64:
		return 8
	case KindU128, KindI128:
		return 16
	case KindPubkey:
		return 32
	}
	return 0
}

// Type describes how a value is laid out on the wire.
//
// Elem is set for vectors, options and arrays. Fields is set for structs and
// Variants for enums. Name is the referenced type for KindDefined, and the
// declared name for named structs and enums.
type Type struct {
	Kind     Kind
	Elem     *Type
	Len      int
	Fields   []Field
	Variants []Variant
	Name     string

	// DiscriminantSize is the width in bytes of an enum's variant index.
	DiscriminantSize int

	target *Type
}

// Field is a named member of a struct.
type Field struct {
	Name string
	Type *Type
}

// Variant is a member of an enum. Payload is nil for unit variants.
type Variant struct {
	Name    string
	Index   uint32
	Payload *Type
}

// Primitive returns a type of the given primitive kind.
func Primitive(kind Kind) *Type {
	return &Type{Kind: kind}
}

// Vector returns a length-prefixed sequence of elem.
func Vector(elem *Type) *Type {
	return &Type{Kind: KindVector, Elem: elem}
}

// Option returns an optional elem.
func Option(elem *Type) *Type {
	return &Type{Kind: KindOption, Elem: elem}
}

// Array returns a fixed length sequence of elem.
func Array(elem *Type, length int) *Type {
	return &Type{Kind: KindArray, Elem: elem, Len: length}
}

// Struct returns a struct with the fields in declaration order.
func Struct(fields ...Field) *Type {
	return &Type{Kind: KindStruct, Fields: fields}
}

// Enum returns an enum with a one byte discriminant.
func Enum(variants ...Variant) *Type {
	return &Type{Kind: KindEnum, Variants: variants, DiscriminantSize: 1}
}

// Defined returns a reference to the named type, resolved to target.
func Defined(name string, target *Type) *Type {
	return &Type{Kind: KindDefined, Name: name, target: target}
}

// Resolve follows defined references until a concrete type is reached. It
// returns nil if a reference was never linked to its target.
func (t *Type) Resolve() *Type {
	for t != nil && t.Kind == KindDefined {
		t = t.target
	}
	return t
}

// Variant looks up an enum variant by name.
func (t *Type) Variant(name string) (Variant, bool) {
	for _, v := range t.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// VariantByIndex looks up an enum variant by its discriminant.
func (t *Type) VariantByIndex(index uint32) (Variant, bool) {
	for _, v := range t.Variants {
		if v.Index == index {
			return v, true
		}
	}
	return Variant{}, false
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind {
	case KindVector:
		return fmt.Sprintf("Vec<%s>", t.Elem)
	case KindOption:
		return fmt.Sprintf("Option<%s>", t.Elem)
	case KindArray:
		return fmt.Sprintf("[%s; %d]", t.Elem, t.Len)
	case KindDefined:
		return t.Name
	case KindStruct, KindEnum:
		if t.Name != "" {
			return t.Name
		}

		var parts []string
		if t.Kind == KindStruct {
			for _, f := range t.Fields {
				parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Type))
			}
		} else {
			for _, v := range t.Variants {
				parts = append(parts, v.Name)
			}
		}
		return fmt.Sprintf("%s { %s }", t.Kind, strings.Join(parts, ", "))
	default:
		return t.Kind.String()
	}
}
