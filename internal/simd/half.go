package simd

import (
	"github.com/x448/float16"
)

// Half precision values are widened to float32 for each addition and the
// result is rounded back to half before the next one, so every intermediate
// sum is representable in float16.

func addHalf(a, b float16.Float16) float16.Float16 {
	return float16.Fromfloat32(a.Float32() + b.Float32())
}

// VecAddHalf performs dst += src
func VecAddHalf(dst, src []float16.Float16) {
	src = src[:len(dst)]
	for i := range dst {
		dst[i] = addHalf(dst[i], src[i])
	}
}

// FoldHalf is Fold for half precision.
func FoldHalf(dst []float16.Float16, srcs [][]float16.Float16) {
	if len(srcs) == 1 {
		copy(dst, srcs[0])
		return
	}
	first := srcs[0][:len(dst)]
	for i := range dst {
		acc := first[i]
		for _, s := range srcs[1:] {
			acc = addHalf(acc, s[i])
		}
		dst[i] = acc
	}
}

// Accumulate8Half is Accumulate8 for half precision.
func Accumulate8Half(dst []float16.Float16, s *[8][]float16.Float16) {
	n := len(dst)
	s0, s1, s2, s3 := s[0][:n], s[1][:n], s[2][:n], s[3][:n]
	s4, s5, s6, s7 := s[4][:n], s[5][:n], s[6][:n], s[7][:n]
	for i := range dst {
		acc := addHalf(dst[i], s0[i])
		acc = addHalf(acc, s1[i])
		acc = addHalf(acc, s2[i])
		acc = addHalf(acc, s3[i])
		acc = addHalf(acc, s4[i])
		acc = addHalf(acc, s5[i])
		acc = addHalf(acc, s6[i])
		dst[i] = addHalf(acc, s7[i])
	}
}

// Init8Half is Init8 for half precision.
func Init8Half(dst []float16.Float16, s *[8][]float16.Float16) {
	n := len(dst)
	s0, s1, s2, s3 := s[0][:n], s[1][:n], s[2][:n], s[3][:n]
	s4, s5, s6, s7 := s[4][:n], s[5][:n], s[6][:n], s[7][:n]
	for i := range dst {
		acc := addHalf(s0[i], s1[i])
		acc = addHalf(acc, s2[i])
		acc = addHalf(acc, s3[i])
		acc = addHalf(acc, s4[i])
		acc = addHalf(acc, s5[i])
		acc = addHalf(acc, s6[i])
		dst[i] = addHalf(acc, s7[i])
	}
}
