package main

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-addn/internal/addn"
	"github.com/23skdu/longbow-addn/internal/arrowio"
	"github.com/23skdu/longbow-addn/internal/client"
	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/variant"
)

func startTestFlightServer(t *testing.T) string {
	t.Helper()
	kernel := addn.New(device.NewCPUBackend(), variant.NewDefaultRegistry())
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(NewAddNFlightServer(kernel))
	require.NoError(t, server.Init("localhost:0"))
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(server.Shutdown)
	return server.Addr().String()
}

func TestFlightServer_Exchange(t *testing.T) {
	addr := startTestFlightServer(t)
	fc, err := client.NewFlightClient(addr, client.NewCircuitBreaker(3, time.Second))
	require.NoError(t, err)
	defer fc.Close()

	mem := memory.NewGoAllocator()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for n := 1; n <= 10; n++ {
		inputs := make([]*device.Buffer, n)
		for i := range inputs {
			inputs[i] = device.MustBuffer(device.Shape{2, 2}, []float64{1, 2, 3, float64(i)})
		}
		rec, err := arrowio.EncodeInputs(mem, inputs)
		require.NoError(t, err)

		sum, err := fc.Sum(ctx, rec)
		rec.Release()
		require.NoError(t, err, "n=%d", n)

		last := float64(n*(n-1)) / 2
		assert.Equal(t, []float64{float64(n), float64(2 * n), float64(3 * n), last}, device.Values[float64](sum), "n=%d", n)
	}
}

func TestFlightServer_ExchangeErrors(t *testing.T) {
	addr := startTestFlightServer(t)
	fc, err := client.NewFlightClient(addr, nil)
	require.NoError(t, err)
	defer fc.Close()

	mem := memory.NewGoAllocator()
	a := device.Scalar(variant.IntValue(1))
	b := device.Scalar(variant.New("float", []byte{0, 0, 0, 0}))
	rec, err := arrowio.EncodeInputs(mem, []*device.Buffer{a, b})
	require.NoError(t, err)
	defer rec.Release()

	_, err = fc.Sum(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestFlightServer_DoPut(t *testing.T) {
	addr := startTestFlightServer(t)
	fc, err := client.NewFlightClient(addr, nil)
	require.NoError(t, err)
	defer fc.Close()

	in := device.MustBuffer(device.Shape{3}, []complex64{1, complex(0, 1), 2})
	rec, err := arrowio.EncodeInputs(memory.NewGoAllocator(), []*device.Buffer{in, in})
	require.NoError(t, err)
	defer rec.Release()

	assert.NoError(t, fc.DoPut(context.Background(), "results", rec))
}

func TestGRPCCode(t *testing.T) {
	assert.Equal(t, codes.InvalidArgument, grpcCode(addn.ErrEmptyInputList))
	assert.Equal(t, codes.InvalidArgument, grpcCode(addn.ErrKindMismatch))
	assert.Equal(t, codes.FailedPrecondition, grpcCode(variant.ErrUnknownVariantType))
	assert.Equal(t, codes.Internal, grpcCode(assert.AnError))
}
