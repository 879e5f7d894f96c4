package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/23skdu/longbow-addn/internal/variant"
)

// Buffer is a dense, fixed-shape array of one element kind, stored row-major.
type Buffer struct {
	kind  Kind
	shape Shape
	data  any // []T for the Go type matching kind
}

// NewBuffer copies data into a new buffer of the given shape. The kind is
// inferred from T.
func NewBuffer[T Element](shape Shape, data []T) (*Buffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	n := shape.NumElements()
	if len(data) != n {
		return nil, fmt.Errorf("new %s buffer: %d values for shape %v (%d elements)", KindOf[T](), len(data), shape, n)
	}
	s := make([]T, n)
	copy(s, data)
	return &Buffer{kind: KindOf[T](), shape: shape.Clone(), data: s}, nil
}

// MustBuffer is NewBuffer for literals in tests and tools.
func MustBuffer[T Element](shape Shape, data []T) *Buffer {
	b, err := NewBuffer(shape, data)
	if err != nil {
		panic(err)
	}
	return b
}

// Scalar returns a 0-dimensional buffer holding v.
func Scalar[T Element](v T) *Buffer {
	return &Buffer{kind: KindOf[T](), shape: Shape{}, data: []T{v}}
}

// Zeros allocates a zero-filled buffer outside of any pool.
func Zeros(kind Kind, shape Shape) (*Buffer, error) {
	if kind <= Invalid || kind >= numKinds {
		return nil, fmt.Errorf("zeros: invalid kind %v", kind)
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{kind: kind, shape: shape.Clone(), data: makeStorage(kind, shape.NumElements())}, nil
}

func (b *Buffer) Kind() Kind { return b.kind }

func (b *Buffer) Shape() Shape { return b.shape }

// Len returns the number of elements.
func (b *Buffer) Len() int { return b.shape.NumElements() }

// Data returns the backing slice ([]int8, []float16.Float16, []variant.Value, ...).
func (b *Buffer) Data() any { return b.data }

// Values returns the backing slice of b as []T, or nil if T does not match
// the buffer's kind.
func Values[T Element](b *Buffer) []T {
	s, _ := b.data.([]T)
	return s
}

// Clone returns a deep copy of the buffer. Variant metadata is shared since
// values are immutable.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{kind: b.kind, shape: b.shape.Clone(), data: makeStorage(b.kind, b.Len())}
	copyStorage(out.data, b.data)
	return out
}

// SizeBytes returns the size of the element storage. Variant buffers count
// their metadata bytes.
func (b *Buffer) SizeBytes() int {
	if b.kind == Variant {
		total := 0
		for _, v := range Values[variant.Value](b) {
			total += len(v.TypeName) + len(v.Metadata)
		}
		return total
	}
	return b.Len() * b.kind.Size()
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer<%s %v>", b.kind, b.shape)
}

// Bytes returns the little-endian encoding of a numeric buffer.
func (b *Buffer) Bytes() ([]byte, error) {
	if !b.kind.IsNumeric() {
		return nil, fmt.Errorf("bytes: %s buffers have no raw encoding", b.kind)
	}
	var buf bytes.Buffer
	buf.Grow(b.SizeBytes())
	if err := binary.Write(&buf, binary.LittleEndian, b.data); err != nil {
		return nil, fmt.Errorf("bytes: %w", err)
	}
	return buf.Bytes(), nil
}

// FromBytes decodes a little-endian numeric payload produced by Bytes.
func FromBytes(kind Kind, shape Shape, raw []byte) (*Buffer, error) {
	if !kind.IsNumeric() {
		return nil, fmt.Errorf("from bytes: %s buffers have no raw encoding", kind)
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	n := shape.NumElements()
	if n > math.MaxInt/kind.Size() {
		return nil, fmt.Errorf("from bytes: %s%v exceeds the addressable size", kind, shape)
	}
	if want := n * kind.Size(); len(raw) != want {
		return nil, fmt.Errorf("from bytes: %s%v needs %d bytes, got %d", kind, shape, want, len(raw))
	}
	data := makeStorage(kind, n)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("from bytes: %w", err)
	}
	return &Buffer{kind: kind, shape: shape.Clone(), data: data}, nil
}

// FromVariants wraps values in a buffer of the given shape.
func FromVariants(shape Shape, values []variant.Value) (*Buffer, error) {
	return NewBuffer(shape, values)
}

func makeStorage(kind Kind, n int) any {
	switch kind {
	case Int8:
		return make([]int8, n)
	case Int16:
		return make([]int16, n)
	case Int32:
		return make([]int32, n)
	case Int64:
		return make([]int64, n)
	case Float16:
		return make([]float16.Float16, n)
	case Float32:
		return make([]float32, n)
	case Float64:
		return make([]float64, n)
	case Complex64:
		return make([]complex64, n)
	case Complex128:
		return make([]complex128, n)
	case Variant:
		return make([]variant.Value, n)
	default:
		panic(fmt.Sprintf("makeStorage: invalid kind %v", kind))
	}
}

// reuseStorage reslices old to n zeroed elements when it has the capacity.
func reuseStorage(kind Kind, old any, n int) (any, bool) {
	switch kind {
	case Int8:
		return resize(old.([]int8), n)
	case Int16:
		return resize(old.([]int16), n)
	case Int32:
		return resize(old.([]int32), n)
	case Int64:
		return resize(old.([]int64), n)
	case Float16:
		return resize(old.([]float16.Float16), n)
	case Float32:
		return resize(old.([]float32), n)
	case Float64:
		return resize(old.([]float64), n)
	case Complex64:
		return resize(old.([]complex64), n)
	case Complex128:
		return resize(old.([]complex128), n)
	case Variant:
		return resize(old.([]variant.Value), n)
	default:
		panic(fmt.Sprintf("reuseStorage: invalid kind %v", kind))
	}
}

func resize[T any](s []T, n int) ([]T, bool) {
	if cap(s) < n {
		return make([]T, n), false
	}
	s = s[:n]
	clear(s)
	return s, true
}

func copyStorage(dst, src any) {
	switch d := dst.(type) {
	case []int8:
		copy(d, src.([]int8))
	case []int16:
		copy(d, src.([]int16))
	case []int32:
		copy(d, src.([]int32))
	case []int64:
		copy(d, src.([]int64))
	case []float16.Float16:
		copy(d, src.([]float16.Float16))
	case []float32:
		copy(d, src.([]float32))
	case []float64:
		copy(d, src.([]float64))
	case []complex64:
		copy(d, src.([]complex64))
	case []complex128:
		copy(d, src.([]complex128))
	case []variant.Value:
		copy(d, src.([]variant.Value))
	default:
		panic(fmt.Sprintf("copyStorage: unsupported storage %T", dst))
	}
}
