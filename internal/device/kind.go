package device

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/23skdu/longbow-addn/internal/variant"
)

// Kind is the element type of a Buffer.
type Kind int

const (
	Invalid Kind = iota
	Int8
	Int16
	Int32
	Int64
	Float16
	Float32
	Float64
	Complex64
	Complex128
	Variant

	numKinds
)

// Element is the set of Go types a Buffer can hold.
type Element interface {
	int8 | int16 | int32 | int64 |
		float16.Float16 | float32 | float64 |
		complex64 | complex128 |
		variant.Value
}

var kindNames = [numKinds]string{
	Invalid:    "invalid",
	Int8:       "int8",
	Int16:      "int16",
	Int32:      "int32",
	Int64:      "int64",
	Float16:    "float16",
	Float32:    "float32",
	Float64:    "float64",
	Complex64:  "complex64",
	Complex128: "complex128",
	Variant:    "variant",
}

// Kinds returns every numeric kind followed by Variant.
func Kinds() []Kind {
	return []Kind{Int8, Int16, Int32, Int64, Float16, Float32, Float64, Complex64, Complex128, Variant}
}

// NumericKinds returns every kind with built-in arithmetic.
func NumericKinds() []Kind {
	return []Kind{Int8, Int16, Int32, Int64, Float16, Float32, Float64, Complex64, Complex128}
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := Int8; k < numKinds; k++ {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return Invalid, fmt.Errorf("unknown element kind %q", s)
}

// Size returns the width of one element in bytes. Variant elements have no
// fixed width and report 0.
func (k Kind) Size() int {
	switch k {
	case Int8:
		return 1
	case Int16, Float16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		return 0
	}
}

func (k Kind) IsNumeric() bool { return k > Invalid && k < Variant }

func (k Kind) IsInteger() bool { return k >= Int8 && k <= Int64 }

func (k Kind) IsFloat() bool { return k >= Float16 && k <= Float64 }

func (k Kind) IsComplex() bool { return k == Complex64 || k == Complex128 }

// KindOf returns the Kind that stores elements of type T.
func KindOf[T Element]() Kind {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	case complex64:
		return Complex64
	case complex128:
		return Complex128
	case variant.Value:
		return Variant
	default:
		return Invalid
	}
}
