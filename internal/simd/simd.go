// Package simd holds the unrolled elementwise loops behind the AddN kernel.
//
// Every loop adds operands per element strictly left to right:
// dst[i] = ((a[i] + b[i]) + c[i]) + ... Results are therefore bit-identical
// to a plain sequential loop over the same operands in the same order.
package simd

import (
	"golang.org/x/exp/constraints"
)

// Number is the set of element types with built-in arithmetic.
type Number interface {
	constraints.Integer | constraints.Float | constraints.Complex
}

// VecAdd performs dst += src
func VecAdd[T Number](dst, src []T) {
	src = src[:len(dst)]
	// Unrolled loop for better pipelining
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += src[i]
		dst[i+1] += src[i+1]
		dst[i+2] += src[i+2]
		dst[i+3] += src[i+3]
	}
	// Handle remainder
	for ; i < len(dst); i++ {
		dst[i] += src[i]
	}
}

// Fold writes dst = srcs[0] + srcs[1] + ... in a single pass over dst.
// srcs must not be empty.
func Fold[T Number](dst []T, srcs [][]T) {
	switch len(srcs) {
	case 1:
		copy(dst, srcs[0])
	case 2:
		a, b := srcs[0][:len(dst)], srcs[1][:len(dst)]
		for i := range dst {
			dst[i] = a[i] + b[i]
		}
	case 3:
		a, b, c := srcs[0][:len(dst)], srcs[1][:len(dst)], srcs[2][:len(dst)]
		for i := range dst {
			dst[i] = a[i] + b[i] + c[i]
		}
	default:
		first := srcs[0][:len(dst)]
		for i := range dst {
			acc := first[i]
			for _, s := range srcs[1:] {
				acc += s[i]
			}
			dst[i] = acc
		}
	}
}

// Accumulate8 performs dst += s[0] + s[1] + ... + s[7] in a single pass.
func Accumulate8[T Number](dst []T, s *[8][]T) {
	n := len(dst)
	s0, s1, s2, s3 := s[0][:n], s[1][:n], s[2][:n], s[3][:n]
	s4, s5, s6, s7 := s[4][:n], s[5][:n], s[6][:n], s[7][:n]
	for i := range dst {
		dst[i] = dst[i] + s0[i] + s1[i] + s2[i] + s3[i] + s4[i] + s5[i] + s6[i] + s7[i]
	}
}

// Init8 performs dst = s[0] + s[1] + ... + s[7] in a single pass.
func Init8[T Number](dst []T, s *[8][]T) {
	n := len(dst)
	s0, s1, s2, s3 := s[0][:n], s[1][:n], s[2][:n], s[3][:n]
	s4, s5, s6, s7 := s[4][:n], s[5][:n], s[6][:n], s[7][:n]
	for i := range dst {
		dst[i] = s0[i] + s1[i] + s2[i] + s3[i] + s4[i] + s5[i] + s6[i] + s7[i]
	}
}
