// Package reference computes AddN results with an independent summation
// order: inputs are added last to first in a wider type and the total is
// narrowed back to the input kind once. It exists to check the kernel, not
// to replace it.
package reference

import (
	"errors"
	"fmt"

	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/blas/cblas128"

	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/tolerance"
)

// ErrUnsupported is returned for kinds without built-in arithmetic.
var ErrUnsupported = errors.New("reference: unsupported element kind")

// Sum returns the elementwise sum of inputs, accumulated in reverse order in
// int64, float64 or complex128.
func Sum(inputs []*device.Buffer) (*device.Buffer, error) {
	if len(inputs) == 0 {
		return nil, errors.New("reference: no inputs")
	}
	kind, shape := inputs[0].Kind(), inputs[0].Shape()
	for i, in := range inputs {
		if in.Kind() != kind || !in.Shape().Equal(shape) {
			return nil, fmt.Errorf("reference: input %d is %s%v, want %s%v", i, in.Kind(), in.Shape(), kind, shape)
		}
	}

	out, err := device.Zeros(kind, shape)
	if err != nil {
		return nil, err
	}
	n := shape.NumElements()

	switch {
	case kind.IsInteger():
		acc := make([]int64, n)
		for k := len(inputs) - 1; k >= 0; k-- {
			for i, v := range tolerance.Int64s(inputs[k]) {
				acc[i] += v
			}
		}
		narrowInts(out, acc)

	case kind.IsFloat():
		acc := make([]float64, n)
		for k := len(inputs) - 1; k >= 0; k-- {
			re, _ := tolerance.Float64s(inputs[k])
			vecmath.AddBlockInPlace(acc, re)
		}
		narrowFloats(out, acc)

	case kind.IsComplex():
		acc := cblas128.Vector{N: n, Inc: 1, Data: make([]complex128, n)}
		x := cblas128.Vector{N: n, Inc: 1, Data: make([]complex128, n)}
		for k := len(inputs) - 1; k >= 0; k-- {
			re, im := tolerance.Float64s(inputs[k])
			for i := range x.Data {
				x.Data[i] = complex(re[i], im[i])
			}
			cblas128.Axpy(1, x, acc)
		}
		narrowComplex(out, acc.Data)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	return out, nil
}

// narrowInts truncates to the kind's width, which matches wraparound
// arithmetic in that width.
func narrowInts(out *device.Buffer, acc []int64) {
	switch out.Kind() {
	case device.Int8:
		narrow(device.Values[int8](out), acc)
	case device.Int16:
		narrow(device.Values[int16](out), acc)
	case device.Int32:
		narrow(device.Values[int32](out), acc)
	case device.Int64:
		copy(device.Values[int64](out), acc)
	}
}

func narrowFloats(out *device.Buffer, acc []float64) {
	switch out.Kind() {
	case device.Float16:
		device.Float64sToHalfs(device.Values[float16.Float16](out), acc)
	case device.Float32:
		narrow(device.Values[float32](out), acc)
	case device.Float64:
		copy(device.Values[float64](out), acc)
	}
}

func narrowComplex(out *device.Buffer, acc []complex128) {
	switch out.Kind() {
	case device.Complex64:
		dst := device.Values[complex64](out)
		for i, c := range acc {
			dst[i] = complex64(c)
		}
	case device.Complex128:
		copy(device.Values[complex128](out), acc)
	}
}

func narrow[D ~int8 | ~int16 | ~int32 | ~float32, S ~int64 | ~float64](dst []D, src []S) {
	for i, v := range src {
		dst[i] = D(v)
	}
}
