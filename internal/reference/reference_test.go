package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/variant"
)

func TestSum(t *testing.T) {
	t.Run("Int8Wraps", func(t *testing.T) {
		in := device.MustBuffer(device.Shape{2}, []int8{100, -100})
		out, err := Sum([]*device.Buffer{in, in, in})
		require.NoError(t, err)
		assert.Equal(t, []int8{44, -44}, device.Values[int8](out))
	})

	t.Run("Int64", func(t *testing.T) {
		a := device.MustBuffer(device.Shape{2}, []int64{1, -5})
		b := device.MustBuffer(device.Shape{2}, []int64{10, 5})
		out, err := Sum([]*device.Buffer{a, b})
		require.NoError(t, err)
		assert.Equal(t, []int64{11, 0}, device.Values[int64](out))
	})

	t.Run("Float16", func(t *testing.T) {
		a := device.MustBuffer(device.Shape{2}, device.HalfsFromFloat32([]float32{0.5, 1.25}))
		b := device.MustBuffer(device.Shape{2}, device.HalfsFromFloat32([]float32{0.25, -0.25}))
		out, err := Sum([]*device.Buffer{a, b})
		require.NoError(t, err)
		assert.Equal(t, device.HalfsFromFloat32([]float32{0.75, 1}), device.Values[float16.Float16](out))
	})

	t.Run("Float32WideAccumulator", func(t *testing.T) {
		// Summed in float64, so the small terms are not absorbed.
		data := []*device.Buffer{device.Scalar(float32(1e8))}
		for i := 0; i < 8; i++ {
			data = append(data, device.Scalar(float32(1)))
		}
		out, err := Sum(data)
		require.NoError(t, err)
		assert.Equal(t, float32(100000008), device.Values[float32](out)[0])
	})

	t.Run("Complex64", func(t *testing.T) {
		a := device.MustBuffer(device.Shape{2}, []complex64{complex(1, 10), complex(2, 20)})
		b := device.MustBuffer(device.Shape{2}, []complex64{complex(-1, -10), complex(0.5, 5)})
		out, err := Sum([]*device.Buffer{a, b, a})
		require.NoError(t, err)
		assert.Equal(t, []complex64{complex(1, 10), complex(4.5, 45)}, device.Values[complex64](out))
	})

	t.Run("Complex128", func(t *testing.T) {
		a := device.Scalar(complex(0.25, 2.5))
		out, err := Sum([]*device.Buffer{a, a, a, a})
		require.NoError(t, err)
		assert.Equal(t, []complex128{complex(1, 10)}, device.Values[complex128](out))
	})
}

func TestSum_Errors(t *testing.T) {
	_, err := Sum(nil)
	assert.Error(t, err)

	a := device.MustBuffer(device.Shape{2}, []float32{1, 2})
	b := device.MustBuffer(device.Shape{1, 2}, []float32{1, 2})
	_, err = Sum([]*device.Buffer{a, b})
	assert.Error(t, err)

	v := device.Scalar(variant.IntValue(1))
	_, err = Sum([]*device.Buffer{v, v})
	assert.ErrorIs(t, err, ErrUnsupported)
}
