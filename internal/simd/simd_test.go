package simd

import (
	"math"
	"testing"

	"github.com/x448/float16"
)

func TestVecAdd(t *testing.T) {
	dst := []float64{1, 2, 3, 4, 5}
	src := []float64{10, 20, 30, 40, 50}
	expected := []float64{11, 22, 33, 44, 55}

	VecAdd(dst, src)

	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("VecAdd(%d) = %f, want %f", i, v, expected[i])
		}
	}
}

func TestVecAdd_IntegerWraparound(t *testing.T) {
	dst := []int8{127, -128, 1}
	VecAdd(dst, []int8{1, -1, 1})

	expected := []int8{-128, 127, 2}
	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("VecAdd(%d) = %d, want %d", i, v, expected[i])
		}
	}
}

func TestFold(t *testing.T) {
	srcs := [][]complex64{
		{1 + 1i, 2},
		{10, 20i},
		{100, 200},
		{1000i, 0},
		{-1, -2},
	}
	for n := 1; n <= len(srcs); n++ {
		dst := make([]complex64, 2)
		Fold(dst, srcs[:n])

		for i := range dst {
			var want complex64
			for _, s := range srcs[:n] {
				want += s[i]
			}
			if dst[i] != want {
				t.Errorf("Fold(n=%d)[%d] = %v, want %v", n, i, dst[i], want)
			}
		}
	}
}

func TestAccumulate8(t *testing.T) {
	var s [8][]float32
	for k := range s {
		s[k] = []float32{float32(k), float32(k) * 0.5, -float32(k), 1e-8}
	}

	dst := []float32{1, 1, 1, 1}
	Accumulate8(dst, &s)

	init := make([]float32, 4)
	Init8(init, &s)

	for i := range dst {
		// Sequential left-to-right loop is the contract, bit for bit.
		want := float32(1)
		var wantInit float32
		for k := range s {
			want += s[k][i]
			if k == 0 {
				wantInit = s[k][i]
			} else {
				wantInit += s[k][i]
			}
		}
		if dst[i] != want {
			t.Errorf("Accumulate8[%d] = %v, want %v", i, dst[i], want)
		}
		if init[i] != wantInit {
			t.Errorf("Init8[%d] = %v, want %v", i, init[i], wantInit)
		}
	}
}

func TestHalfLoops(t *testing.T) {
	h := func(f float32) float16.Float16 { return float16.Fromfloat32(f) }

	dst := []float16.Float16{h(1), h(2)}
	VecAddHalf(dst, []float16.Float16{h(0.5), h(-3)})
	if dst[0].Float32() != 1.5 || dst[1].Float32() != -1 {
		t.Errorf("VecAddHalf = %v, %v", dst[0], dst[1])
	}

	var s [8][]float16.Float16
	for k := range s {
		s[k] = []float16.Float16{h(float32(k) * 0.25)}
	}
	acc := []float16.Float16{h(1)}
	Accumulate8Half(acc, &s)
	// 1 + 0.25 * (0+1+...+7) = 8
	if acc[0].Float32() != 8 {
		t.Errorf("Accumulate8Half = %v, want 8", acc[0])
	}

	init := []float16.Float16{h(100)}
	Init8Half(init, &s)
	if init[0].Float32() != 7 {
		t.Errorf("Init8Half = %v, want 7", init[0])
	}

	fold := make([]float16.Float16, 1)
	FoldHalf(fold, [][]float16.Float16{{h(1)}, {h(2)}, {h(4)}})
	if fold[0].Float32() != 7 {
		t.Errorf("FoldHalf = %v, want 7", fold[0])
	}
}

func TestHalfRoundsEveryStep(t *testing.T) {
	// 2048 + 1 is not representable in half; it rounds back to 2048 each time,
	// so eight ones vanish while a float32 accumulator would keep them.
	h := float16.Fromfloat32
	var s [8][]float16.Float16
	for k := range s {
		s[k] = []float16.Float16{h(1)}
	}
	acc := []float16.Float16{h(2048)}
	Accumulate8Half(acc, &s)
	if got := acc[0].Float32(); got != 2048 {
		t.Errorf("Accumulate8Half = %v, want 2048", got)
	}
	if math.IsNaN(float64(acc[0].Float32())) {
		t.Error("unexpected NaN")
	}
}
