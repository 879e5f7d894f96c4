// Package variant holds opaque tagged payloads and the registry that defines
// how two payloads of the same tag are added together.
package variant

import (
	"bytes"
	"fmt"
)

// Value is an opaque payload. TypeName selects the combine function in a
// Registry; Metadata is the kind-specific encoding of the payload.
// Values are treated as immutable once constructed.
type Value struct {
	TypeName string
	Metadata []byte
}

// New returns a Value that owns a copy of metadata.
func New(typeName string, metadata []byte) Value {
	md := make([]byte, len(metadata))
	copy(md, metadata)
	return Value{TypeName: typeName, Metadata: md}
}

// IsZero reports whether v carries no type tag.
func (v Value) IsZero() bool {
	return v.TypeName == ""
}

// Equal reports whether two values have the same tag and metadata bytes.
func (v Value) Equal(other Value) bool {
	return v.TypeName == other.TypeName && bytes.Equal(v.Metadata, other.Metadata)
}

// String renders the value without consulting a registry.
func (v Value) String() string {
	return fmt.Sprintf("Variant<type: %s value: %d bytes>", v.TypeName, len(v.Metadata))
}
