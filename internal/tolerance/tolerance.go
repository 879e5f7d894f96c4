// Package tolerance defines how closely an AddN result must match a
// reference summation for each element kind.
package tolerance

import (
	"fmt"
	"math"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/variant"
)

// Tolerance defines acceptable numeric drift versus a reference summation.
// A pair of values matches when it is within Abs or within Rel.
type Tolerance struct {
	Abs float64
	Rel float64
}

// Exact requires bit-for-bit equality.
var Exact = Tolerance{}

var kindTolerances = map[device.Kind]Tolerance{
	device.Float16:    {Abs: 5e-3, Rel: 5e-3},
	device.Float32:    {Abs: 5e-7, Rel: 5e-7},
	device.Float64:    {Abs: 5e-7, Rel: 5e-7},
	device.Complex64:  {Abs: 5e-7, Rel: 5e-7},
	device.Complex128: {Abs: 5e-7, Rel: 5e-7},
}

// For returns the tolerance of kind. Integer and variant kinds are exact.
func For(kind device.Kind) Tolerance {
	if t, ok := kindTolerances[kind]; ok {
		return t
	}
	return Exact
}

// Close reports whether a and b agree within t. NaNs match each other.
func (t Tolerance) Close(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if t == Exact {
		return a == b
	}
	return scalar.EqualWithinAbsOrRel(a, b, t.Abs, t.Rel)
}

// AllClose returns nil when got and want have the same kind and shape and
// every element agrees within t. Complex elements are compared per component.
func AllClose(got, want *device.Buffer, t Tolerance) error {
	if got.Kind() != want.Kind() {
		return fmt.Errorf("kind mismatch: got %s, want %s", got.Kind(), want.Kind())
	}
	if !got.Shape().Equal(want.Shape()) {
		return fmt.Errorf("shape mismatch: got %v, want %v", got.Shape(), want.Shape())
	}

	switch got.Kind() {
	case device.Variant:
		g, w := device.Values[variant.Value](got), device.Values[variant.Value](want)
		for i := range g {
			if !g[i].Equal(w[i]) {
				return fmt.Errorf("index %d: got %v, want %v", i, g[i], w[i])
			}
		}
		return nil
	case device.Int8, device.Int16, device.Int32, device.Int64:
		g, w := Int64s(got), Int64s(want)
		for i := range g {
			if g[i] != w[i] {
				return fmt.Errorf("index %d: got %d, want %d", i, g[i], w[i])
			}
		}
		return nil
	}

	gr, gi := Float64s(got)
	wr, wi := Float64s(want)
	for i := range gr {
		if !t.Close(gr[i], wr[i]) {
			return fmt.Errorf("index %d (real): got %v, want %v (abs %g, rel %g)", i, gr[i], wr[i], t.Abs, t.Rel)
		}
		if gi != nil && !t.Close(gi[i], wi[i]) {
			return fmt.Errorf("index %d (imag): got %v, want %v (abs %g, rel %g)", i, gi[i], wi[i], t.Abs, t.Rel)
		}
	}
	return nil
}

// Int64s widens an integer buffer.
func Int64s(b *device.Buffer) []int64 {
	out := make([]int64, b.Len())
	switch b.Kind() {
	case device.Int8:
		widen(out, device.Values[int8](b))
	case device.Int16:
		widen(out, device.Values[int16](b))
	case device.Int32:
		widen(out, device.Values[int32](b))
	case device.Int64:
		copy(out, device.Values[int64](b))
	}
	return out
}

// Float64s widens a float or complex buffer into real and imaginary parts.
// im is nil for real kinds.
func Float64s(b *device.Buffer) (re, im []float64) {
	re = make([]float64, b.Len())
	switch b.Kind() {
	case device.Float16:
		device.HalfsToFloat64(re, device.Values[float16.Float16](b))
	case device.Float32:
		widen(re, device.Values[float32](b))
	case device.Float64:
		copy(re, device.Values[float64](b))
	case device.Complex64:
		im = make([]float64, b.Len())
		for i, c := range device.Values[complex64](b) {
			re[i], im[i] = float64(real(c)), float64(imag(c))
		}
	case device.Complex128:
		im = make([]float64, b.Len())
		for i, c := range device.Values[complex128](b) {
			re[i], im[i] = real(c), imag(c)
		}
	}
	return re, im
}

type widenable interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

func widen[D ~int64 | ~float64, S widenable](dst []D, src []S) {
	for i, v := range src {
		dst[i] = D(v)
	}
}
