package variant

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// IntTypeName is the tag of the builtin integer kind.
const IntTypeName = "int"

// IntValue encodes v as a 4-byte little-endian payload tagged "int".
func IntValue(v int32) Value {
	md := make([]byte, 4)
	binary.LittleEndian.PutUint32(md, uint32(v))
	return Value{TypeName: IntTypeName, Metadata: md}
}

// DecodeInt returns the int32 carried by an "int" value.
func DecodeInt(v Value) (int32, error) {
	if v.TypeName != IntTypeName {
		return 0, fmt.Errorf("%w: want %q, got %q", ErrVariantTypeMismatch, IntTypeName, v.TypeName)
	}
	if len(v.Metadata) != 4 {
		return 0, fmt.Errorf("decode %q: metadata is %d bytes, want 4", IntTypeName, len(v.Metadata))
	}
	return int32(binary.LittleEndian.Uint32(v.Metadata)), nil
}

// CombineInt adds two "int" values with int32 wraparound.
func CombineInt(a, b Value) (Value, error) {
	if a.TypeName != b.TypeName {
		return Value{}, fmt.Errorf("%w: cannot add %q and %q", ErrVariantTypeMismatch, a.TypeName, b.TypeName)
	}
	x, err := DecodeInt(a)
	if err != nil {
		return Value{}, err
	}
	y, err := DecodeInt(b)
	if err != nil {
		return Value{}, err
	}
	return IntValue(x + y), nil
}

func debugStringInt(v Value) (string, error) {
	x, err := DecodeInt(v)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(int64(x), 10), nil
}

// RegisterBuiltins registers the kinds this module ships with.
func RegisterBuiltins(r *Registry) error {
	if err := r.Register(IntTypeName, CombineInt); err != nil {
		return err
	}
	return r.RegisterDebugString(IntTypeName, debugStringInt)
}
