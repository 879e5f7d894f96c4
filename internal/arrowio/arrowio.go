// Package arrowio converts device buffers to and from Arrow record batches,
// the format AddN inputs and results travel in over IPC and Flight.
//
// An input batch carries one column per input buffer, named input_0,
// input_1, ..., with one row per element in row-major order. The schema
// metadata holds the element kind and the shape, so the receiver learns the
// shape only when it reads the batch.
package arrowio

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowf16 "github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/x448/float16"

	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/variant"
)

const (
	// MetaKind and MetaShape are the schema metadata keys.
	MetaKind  = "kind"
	MetaShape = "shape"

	// SumColumn names the single column of a result batch.
	SumColumn = "sum"
)

// ErrSchema is returned when a batch does not follow the layout above.
var ErrSchema = errors.New("arrowio: unexpected schema")

var variantType = arrow.StructOf(
	arrow.Field{Name: "type_name", Type: arrow.BinaryTypes.String},
	arrow.Field{Name: "metadata", Type: arrow.BinaryTypes.Binary},
)

// DataType returns the Arrow column type used for kind.
func DataType(kind device.Kind) (arrow.DataType, error) {
	switch kind {
	case device.Int8:
		return arrow.PrimitiveTypes.Int8, nil
	case device.Int16:
		return arrow.PrimitiveTypes.Int16, nil
	case device.Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case device.Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case device.Float16:
		return arrow.FixedWidthTypes.Float16, nil
	case device.Float32:
		return arrow.PrimitiveTypes.Float32, nil
	case device.Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case device.Complex64:
		return arrow.FixedSizeListOf(2, arrow.PrimitiveTypes.Float32), nil
	case device.Complex128:
		return arrow.FixedSizeListOf(2, arrow.PrimitiveTypes.Float64), nil
	case device.Variant:
		return variantType, nil
	}
	return nil, fmt.Errorf("%w: no column type for kind %v", ErrSchema, kind)
}

// InputColumn returns the column name of input k.
func InputColumn(k int) string {
	return fmt.Sprintf("input_%d", k)
}

// EncodeInputs packs inputs into one batch. All inputs must share kind and
// shape, since every column of a batch has the same length.
func EncodeInputs(mem memory.Allocator, inputs []*device.Buffer) (arrow.RecordBatch, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrSchema)
	}
	first := inputs[0]
	names := make([]string, len(inputs))
	for i, in := range inputs {
		if in.Kind() != first.Kind() || !in.Shape().Equal(first.Shape()) {
			return nil, fmt.Errorf("%w: input %d is %s%v, input 0 is %s%v",
				ErrSchema, i, in.Kind(), in.Shape(), first.Kind(), first.Shape())
		}
		names[i] = InputColumn(i)
	}
	return encode(mem, first.Kind(), first.Shape(), names, inputs)
}

// EncodeBuffer packs a single result buffer into a batch with one column
// named sum.
func EncodeBuffer(mem memory.Allocator, buf *device.Buffer) (arrow.RecordBatch, error) {
	return encode(mem, buf.Kind(), buf.Shape(), []string{SumColumn}, []*device.Buffer{buf})
}

func encode(mem memory.Allocator, kind device.Kind, shape device.Shape, names []string, bufs []*device.Buffer) (arrow.RecordBatch, error) {
	dt, err := DataType(kind)
	if err != nil {
		return nil, err
	}

	fields := make([]arrow.Field, len(bufs))
	cols := make([]arrow.Array, len(bufs))
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()
	for i, b := range bufs {
		fields[i] = arrow.Field{Name: names[i], Type: dt}
		if cols[i], err = encodeColumn(mem, b); err != nil {
			return nil, err
		}
	}

	md := arrow.NewMetadata([]string{MetaKind, MetaShape}, []string{kind.String(), shape.Encode()})
	schema := arrow.NewSchema(fields, &md)
	return array.NewRecordBatch(schema, cols, int64(shape.NumElements())), nil
}

func encodeColumn(mem memory.Allocator, b *device.Buffer) (arrow.Array, error) {
	switch vals := b.Data().(type) {
	case []int8:
		bld := array.NewInt8Builder(mem)
		defer bld.Release()
		bld.AppendValues(vals, nil)
		return bld.NewArray(), nil
	case []int16:
		bld := array.NewInt16Builder(mem)
		defer bld.Release()
		bld.AppendValues(vals, nil)
		return bld.NewArray(), nil
	case []int32:
		bld := array.NewInt32Builder(mem)
		defer bld.Release()
		bld.AppendValues(vals, nil)
		return bld.NewArray(), nil
	case []int64:
		bld := array.NewInt64Builder(mem)
		defer bld.Release()
		bld.AppendValues(vals, nil)
		return bld.NewArray(), nil
	case []float16.Float16:
		bld := array.NewFloat16Builder(mem)
		defer bld.Release()
		bld.Reserve(len(vals))
		for _, v := range vals {
			bld.Append(arrowf16.FromBits(v.Bits()))
		}
		return bld.NewArray(), nil
	case []float32:
		bld := array.NewFloat32Builder(mem)
		defer bld.Release()
		bld.AppendValues(vals, nil)
		return bld.NewArray(), nil
	case []float64:
		bld := array.NewFloat64Builder(mem)
		defer bld.Release()
		bld.AppendValues(vals, nil)
		return bld.NewArray(), nil
	case []complex64:
		bld := array.NewFixedSizeListBuilder(mem, 2, arrow.PrimitiveTypes.Float32)
		defer bld.Release()
		vb := bld.ValueBuilder().(*array.Float32Builder)
		for _, c := range vals {
			bld.Append(true)
			vb.Append(real(c))
			vb.Append(imag(c))
		}
		return bld.NewArray(), nil
	case []complex128:
		bld := array.NewFixedSizeListBuilder(mem, 2, arrow.PrimitiveTypes.Float64)
		defer bld.Release()
		vb := bld.ValueBuilder().(*array.Float64Builder)
		for _, c := range vals {
			bld.Append(true)
			vb.Append(real(c))
			vb.Append(imag(c))
		}
		return bld.NewArray(), nil
	case []variant.Value:
		bld := array.NewStructBuilder(mem, variantType)
		defer bld.Release()
		tags := bld.FieldBuilder(0).(*array.StringBuilder)
		meta := bld.FieldBuilder(1).(*array.BinaryBuilder)
		for _, v := range vals {
			bld.Append(true)
			tags.Append(v.TypeName)
			meta.Append(v.Metadata)
		}
		return bld.NewArray(), nil
	}
	return nil, fmt.Errorf("%w: cannot encode %s buffer", ErrSchema, b.Kind())
}

// Header reads the kind and shape recorded in a batch's schema metadata.
func Header(schema *arrow.Schema) (device.Kind, device.Shape, error) {
	md := schema.Metadata()
	ki, si := md.FindKey(MetaKind), md.FindKey(MetaShape)
	if ki < 0 || si < 0 {
		return device.Invalid, nil, fmt.Errorf("%w: missing %q or %q metadata", ErrSchema, MetaKind, MetaShape)
	}
	kind, err := device.ParseKind(md.Values()[ki])
	if err != nil {
		return device.Invalid, nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	shape, err := device.ParseShape(md.Values()[si])
	if err != nil {
		return device.Invalid, nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return kind, shape, nil
}

// DecodeInputs unpacks every column of rec into a buffer.
func DecodeInputs(rec arrow.RecordBatch) ([]*device.Buffer, error) {
	kind, shape, err := Header(rec.Schema())
	if err != nil {
		return nil, err
	}
	if rec.NumRows() != int64(shape.NumElements()) {
		return nil, fmt.Errorf("%w: %d rows for shape %v", ErrSchema, rec.NumRows(), shape)
	}

	out := make([]*device.Buffer, rec.NumCols())
	for i := range out {
		if out[i], err = decodeColumn(kind, shape, rec.Column(i)); err != nil {
			return nil, fmt.Errorf("column %q: %w", rec.ColumnName(i), err)
		}
	}
	return out, nil
}

// DecodeBuffer unpacks a single-column result batch.
func DecodeBuffer(rec arrow.RecordBatch) (*device.Buffer, error) {
	if rec.NumCols() != 1 {
		return nil, fmt.Errorf("%w: result batch has %d columns", ErrSchema, rec.NumCols())
	}
	bufs, err := DecodeInputs(rec)
	if err != nil {
		return nil, err
	}
	return bufs[0], nil
}

func decodeColumn(kind device.Kind, shape device.Shape, col arrow.Array) (*device.Buffer, error) {
	if col.NullN() > 0 {
		return nil, fmt.Errorf("%w: %d null values", ErrSchema, col.NullN())
	}
	switch arr := col.(type) {
	case *array.Int8:
		return decodeAs(kind, device.Int8, shape, arr.Int8Values())
	case *array.Int16:
		return decodeAs(kind, device.Int16, shape, arr.Int16Values())
	case *array.Int32:
		return decodeAs(kind, device.Int32, shape, arr.Int32Values())
	case *array.Int64:
		return decodeAs(kind, device.Int64, shape, arr.Int64Values())
	case *array.Float16:
		vals := make([]float16.Float16, arr.Len())
		for i := range vals {
			vals[i] = float16.Frombits(arr.Value(i).Uint16())
		}
		return decodeAs(kind, device.Float16, shape, vals)
	case *array.Float32:
		return decodeAs(kind, device.Float32, shape, arr.Float32Values())
	case *array.Float64:
		return decodeAs(kind, device.Float64, shape, arr.Float64Values())
	case *array.FixedSizeList:
		return decodeComplex(kind, shape, arr)
	case *array.Struct:
		if kind != device.Variant || arr.NumField() != 2 {
			return nil, fmt.Errorf("%w: struct column for kind %s", ErrSchema, kind)
		}
		tags, ok1 := arr.Field(0).(*array.String)
		meta, ok2 := arr.Field(1).(*array.Binary)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: variant struct fields are %s, %s",
				ErrSchema, arr.Field(0).DataType(), arr.Field(1).DataType())
		}
		vals := make([]variant.Value, arr.Len())
		for i := range vals {
			vals[i] = variant.New(tags.Value(i), meta.Value(i))
		}
		return device.FromVariants(shape, vals)
	}
	return nil, fmt.Errorf("%w: column type %s", ErrSchema, col.DataType())
}

func decodeAs[T device.Element](want, got device.Kind, shape device.Shape, vals []T) (*device.Buffer, error) {
	if want != got {
		return nil, fmt.Errorf("%w: %s column in a %s batch", ErrSchema, got, want)
	}
	return device.NewBuffer(shape, vals)
}

func decodeComplex(kind device.Kind, shape device.Shape, arr *array.FixedSizeList) (*device.Buffer, error) {
	if arr.DataType().(*arrow.FixedSizeListType).Len() != 2 {
		return nil, fmt.Errorf("%w: complex column must hold pairs, got %s", ErrSchema, arr.DataType())
	}
	switch parts := arr.ListValues().(type) {
	case *array.Float32:
		vals := make([]complex64, arr.Len())
		for i := range vals {
			start, _ := arr.ValueOffsets(i)
			vals[i] = complex(parts.Value(int(start)), parts.Value(int(start)+1))
		}
		return decodeAs(kind, device.Complex64, shape, vals)
	case *array.Float64:
		vals := make([]complex128, arr.Len())
		for i := range vals {
			start, _ := arr.ValueOffsets(i)
			vals[i] = complex(parts.Value(int(start)), parts.Value(int(start)+1))
		}
		return decodeAs(kind, device.Complex128, shape, vals)
	}
	return nil, fmt.Errorf("%w: complex parts of type %s", ErrSchema, arr.ListValues().DataType())
}
