package addn

import (
	"errors"
	"fmt"

	"github.com/x448/float16"

	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/simd"
	"github.com/23skdu/longbow-addn/internal/variant"
)

// GroupSize is the number of inputs added per pass after the remainder
// stage. It fixes the summation order and must not be tuned per machine.
const GroupSize = 8

var (
	// ErrEmptyInputList is returned when AddN is called without inputs.
	ErrEmptyInputList = errors.New("addn: empty input list")

	// ErrShapeMismatch is returned when inputs disagree on shape.
	ErrShapeMismatch = errors.New("addn: shape mismatch")

	// ErrKindMismatch is returned when inputs disagree on element kind.
	// It matches ErrShapeMismatch under errors.Is.
	ErrKindMismatch = fmt.Errorf("%w: element kind differs", ErrShapeMismatch)
)

// Kernel sums buffers. It holds no mutable state of its own and may be used
// from many goroutines at once.
type Kernel struct {
	backend  device.Backend
	variants *variant.Registry
}

// New returns a kernel that allocates outputs from backend and resolves
// variant tags in variants. variants may be nil when no variant inputs are
// expected.
func New(backend device.Backend, variants *variant.Registry) *Kernel {
	if backend == nil {
		backend = device.NewCPUBackend()
	}
	return &Kernel{backend: backend, variants: variants}
}

// Backend returns the allocator outputs come from.
func (k *Kernel) Backend() device.Backend { return k.backend }

// Registry returns the variant registry, possibly nil.
func (k *Kernel) Registry() *variant.Registry { return k.variants }

// AddN returns a new buffer holding the elementwise sum of inputs. The
// inputs are not modified; the output belongs to the caller.
func (k *Kernel) AddN(inputs []*device.Buffer) (*device.Buffer, error) {
	if err := validate(inputs); err != nil {
		invocationErrors.WithLabelValues(errorReason(err)).Inc()
		return nil, err
	}

	kind := inputs[0].Kind()
	invocations.WithLabelValues(kind.String()).Inc()
	inputsPerCall.Observe(float64(len(inputs)))

	out := k.backend.GetBuffer(kind, inputs[0].Shape())
	if err := k.sumInto(out, inputs); err != nil {
		k.backend.PutBuffer(out)
		invocationErrors.WithLabelValues(errorReason(err)).Inc()
		return nil, err
	}
	return out, nil
}

// AddNVariants sums scalar variant values.
func (k *Kernel) AddNVariants(values []variant.Value) (variant.Value, error) {
	if len(values) == 0 {
		return variant.Value{}, ErrEmptyInputList
	}
	ins := make([][]variant.Value, len(values))
	for i := range values {
		ins[i] = values[i : i+1]
	}
	out := make([]variant.Value, 1)
	if err := k.sumVariants(out, ins); err != nil {
		return variant.Value{}, err
	}
	return out[0], nil
}

func validate(inputs []*device.Buffer) error {
	if len(inputs) == 0 {
		return ErrEmptyInputList
	}
	for i, in := range inputs {
		if in == nil {
			return fmt.Errorf("addn: input %d is nil", i)
		}
	}
	first := inputs[0]
	if first.Kind() <= device.Invalid || first.Kind() > device.Variant {
		return fmt.Errorf("addn: unsupported element kind %v", first.Kind())
	}
	for i, in := range inputs[1:] {
		if !in.Shape().Equal(first.Shape()) {
			return fmt.Errorf("%w: input 0 has shape %v, input %d has shape %v",
				ErrShapeMismatch, first.Shape(), i+1, in.Shape())
		}
		if in.Kind() != first.Kind() {
			return fmt.Errorf("%w: input 0 is %s, input %d is %s",
				ErrKindMismatch, first.Kind(), i+1, in.Kind())
		}
	}
	return nil
}

func (k *Kernel) sumInto(out *device.Buffer, inputs []*device.Buffer) error {
	switch out.Kind() {
	case device.Int8:
		sumNumeric(device.Values[int8](out), collect[int8](inputs))
	case device.Int16:
		sumNumeric(device.Values[int16](out), collect[int16](inputs))
	case device.Int32:
		sumNumeric(device.Values[int32](out), collect[int32](inputs))
	case device.Int64:
		sumNumeric(device.Values[int64](out), collect[int64](inputs))
	case device.Float16:
		sumHalf(device.Values[float16.Float16](out), collect[float16.Float16](inputs))
	case device.Float32:
		sumNumeric(device.Values[float32](out), collect[float32](inputs))
	case device.Float64:
		sumNumeric(device.Values[float64](out), collect[float64](inputs))
	case device.Complex64:
		sumNumeric(device.Values[complex64](out), collect[complex64](inputs))
	case device.Complex128:
		sumNumeric(device.Values[complex128](out), collect[complex128](inputs))
	case device.Variant:
		return k.sumVariants(device.Values[variant.Value](out), collect[variant.Value](inputs))
	default:
		return fmt.Errorf("addn: unsupported element kind %v", out.Kind())
	}
	return nil
}

func collect[T device.Element](inputs []*device.Buffer) [][]T {
	out := make([][]T, len(inputs))
	for i, in := range inputs {
		out[i] = device.Values[T](in)
	}
	return out
}

// sumNumeric folds the N mod GroupSize remainder first, then adds the rest
// in groups of GroupSize.
func sumNumeric[T simd.Number](out []T, ins [][]T) {
	n := len(ins)
	r := n % GroupSize
	if r == 0 {
		simd.Init8(out, (*[GroupSize][]T)(ins[:GroupSize]))
		r = GroupSize
	} else {
		simd.Fold(out, ins[:r])
	}
	for ; r < n; r += GroupSize {
		simd.Accumulate8(out, (*[GroupSize][]T)(ins[r:r+GroupSize]))
	}
}

func sumHalf(out []float16.Float16, ins [][]float16.Float16) {
	n := len(ins)
	r := n % GroupSize
	if r == 0 {
		simd.Init8Half(out, (*[GroupSize][]float16.Float16)(ins[:GroupSize]))
		r = GroupSize
	} else {
		simd.FoldHalf(out, ins[:r])
	}
	for ; r < n; r += GroupSize {
		simd.Accumulate8Half(out, (*[GroupSize][]float16.Float16)(ins[r:r+GroupSize]))
	}
}

func (k *Kernel) sumVariants(out []variant.Value, ins [][]variant.Value) error {
	for i := range out {
		acc := variant.New(ins[0][i].TypeName, ins[0][i].Metadata)
		for j, in := range ins[1:] {
			if k.variants == nil {
				return fmt.Errorf("addn: element %d: %w: %q (no registry)", i, variant.ErrUnknownVariantType, acc.TypeName)
			}
			combine, err := k.variants.Lookup(acc.TypeName)
			if err != nil {
				return fmt.Errorf("addn: element %d: %w", i, err)
			}
			acc, err = combine(acc, in[i])
			if err != nil {
				return fmt.Errorf("addn: element %d, input %d: %w", i, j+1, err)
			}
		}
		out[i] = acc
	}
	return nil
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyInputList):
		return "empty_input_list"
	case errors.Is(err, ErrKindMismatch):
		return "kind_mismatch"
	case errors.Is(err, ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, variant.ErrUnknownVariantType):
		return "unknown_variant_type"
	case errors.Is(err, variant.ErrVariantTypeMismatch):
		return "variant_type_mismatch"
	default:
		return "other"
	}
}
