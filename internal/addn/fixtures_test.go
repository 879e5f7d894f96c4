package addn

import (
	"math"
	"math/rand"

	"github.com/x448/float16"

	"github.com/23skdu/longbow-addn/internal/device"
)

// randomBuffer draws normally distributed data for kind. Float16, Float32 and
// Complex64 values are snapped to a binary grid coarse enough that every
// partial sum of a few dozen values is exact in that kind; Float64 and
// Complex128 keep full precision. Complex values are built as r + 10i*r.
func randomBuffer(rng *rand.Rand, kind device.Kind, shape device.Shape) *device.Buffer {
	n := shape.NumElements()
	switch kind {
	case device.Int8:
		return device.MustBuffer(shape, fill(n, func() int8 { return int8(rng.Intn(256) - 128) }))
	case device.Int16:
		return device.MustBuffer(shape, fill(n, func() int16 { return int16(rng.Intn(1<<16) - 1<<15) }))
	case device.Int32:
		return device.MustBuffer(shape, fill(n, func() int32 { return int32(rng.Uint32()) }))
	case device.Int64:
		return device.MustBuffer(shape, fill(n, func() int64 { return int64(rng.Uint64()) }))
	case device.Float16:
		return device.MustBuffer(shape, fill(n, func() float16.Float16 {
			return float16.Fromfloat32(float32(snap(rng.NormFloat64(), 8)))
		}))
	case device.Float32:
		return device.MustBuffer(shape, fill(n, func() float32 { return float32(snap(rng.NormFloat64(), 1024)) }))
	case device.Float64:
		return device.MustBuffer(shape, fill(n, rng.NormFloat64))
	case device.Complex64:
		return device.MustBuffer(shape, fill(n, func() complex64 {
			r := float32(snap(rng.NormFloat64(), 1024))
			return complex(r, 10*r)
		}))
	case device.Complex128:
		return device.MustBuffer(shape, fill(n, func() complex128 {
			r := rng.NormFloat64()
			return complex(r, 10*r)
		}))
	default:
		panic("randomBuffer: unsupported kind " + kind.String())
	}
}

// unitBuffer draws full-precision values from [0, 1). Every partial sum is
// then non-negative and no larger than the total, so rounding error stays
// proportional to the result.
func unitBuffer(rng *rand.Rand, kind device.Kind, shape device.Shape) *device.Buffer {
	n := shape.NumElements()
	switch kind {
	case device.Float16:
		return device.MustBuffer(shape, fill(n, func() float16.Float16 { return float16.Fromfloat32(rng.Float32()) }))
	case device.Float32:
		return device.MustBuffer(shape, fill(n, rng.Float32))
	default:
		panic("unitBuffer: unsupported kind " + kind.String())
	}
}

func snap(x, grid float64) float64 {
	return math.Round(x*grid) / grid
}

func fill[T any](n int, next func() T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = next()
	}
	return out
}

func repeat(b *device.Buffer, count int) []*device.Buffer {
	out := make([]*device.Buffer, count)
	for i := range out {
		out[i] = b
	}
	return out
}
