package device

import (
	"github.com/x448/float16"
)

// HalfsToFloat64 widens half precision values into dst. Widening is exact.
func HalfsToFloat64(dst []float64, src []float16.Float16) {
	for i, h := range src {
		dst[i] = float64(h.Float32())
	}
}

// Float64sToHalfs narrows src into dst with round-to-nearest-even.
// Values outside the half range become ±Inf.
func Float64sToHalfs(dst []float16.Float16, src []float64) {
	for i, f := range src {
		dst[i] = float16.Fromfloat32(float32(f))
	}
}

// HalfsFromFloat32 converts float32 values to half precision.
func HalfsFromFloat32(src []float32) []float16.Float16 {
	out := make([]float16.Float16, len(src))
	for i, f := range src {
		out[i] = float16.Fromfloat32(f)
	}
	return out
}
