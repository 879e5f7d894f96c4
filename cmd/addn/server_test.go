package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-addn/internal/addn"
	"github.com/23skdu/longbow-addn/internal/arrowio"
	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/variant"
)

type mockFlightClient struct {
	mock.Mock
}

func (m *mockFlightClient) DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	args := m.Called(ctx, datasetName, record)
	return args.Error(0)
}

func (m *mockFlightClient) Close() error {
	return nil
}

func newTestServer(fc FlightClientInterface) *Server {
	kernel := addn.New(device.NewCPUBackend(), variant.NewDefaultRegistry())
	return NewServer(kernel, fc, "test-dataset", 1<<20)
}

func postCBOR(t *testing.T, srv *Server, req sumRequest) *httptest.ResponseRecorder {
	t.Helper()
	data, err := cbor.Marshal(req)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/addn", bytes.NewReader(data))
	rr := httptest.NewRecorder()
	http.HandlerFunc(srv.handleSum).ServeHTTP(rr, r)
	return rr
}

func rawBytes(t *testing.T, b *device.Buffer) []byte {
	t.Helper()
	raw, err := b.Bytes()
	require.NoError(t, err)
	return raw
}

func TestServer_HandleSum(t *testing.T) {
	t.Run("Float32 with forwarding", func(t *testing.T) {
		mfc := &mockFlightClient{}
		srv := newTestServer(mfc)
		mfc.On("DoPut", mock.Anything, "test-dataset", mock.Anything).Return(nil).Once()

		a := device.MustBuffer(device.Shape{2, 2}, []float32{1, 2, 3, 4})
		b := device.MustBuffer(device.Shape{2, 2}, []float32{0.5, 0.5, 0.5, 0.5})
		rr := postCBOR(t, srv, sumRequest{
			Kind:   "float32",
			Shape:  []int{2, 2},
			Inputs: [][]byte{rawBytes(t, a), rawBytes(t, b), rawBytes(t, a)},
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		mfc.AssertExpectations(t)

		var resp sumResponse
		require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "float32", resp.Kind)
		assert.Equal(t, []int{2, 2}, resp.Shape)

		out, err := device.FromBytes(device.Float32, device.Shape(resp.Shape), resp.Data)
		require.NoError(t, err)
		assert.Equal(t, []float32{2.5, 4.5, 6.5, 8.5}, device.Values[float32](out))
	})

	t.Run("Variant", func(t *testing.T) {
		srv := newTestServer(nil)
		wire := func(v int32) []variantWire {
			iv := variant.IntValue(v)
			return []variantWire{{TypeName: iv.TypeName, Metadata: iv.Metadata}}
		}
		rr := postCBOR(t, srv, sumRequest{
			Kind:     "variant",
			Variants: [][]variantWire{wire(40), wire(2), wire(-12)},
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp sumResponse
		require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, []string{"Variant<type: int value: 30>"}, resp.Debug)
		require.Len(t, resp.Variants, 1)
		got, err := variant.DecodeInt(variant.New(resp.Variants[0].TypeName, resp.Variants[0].Metadata))
		require.NoError(t, err)
		assert.Equal(t, int32(30), got)
	})

	t.Run("Payload does not match shape", func(t *testing.T) {
		srv := newTestServer(nil)
		// A 4-byte payload does not describe a [2 2] int32 tensor.
		rr := postCBOR(t, srv, sumRequest{
			Kind:   "int32",
			Shape:  []int{2, 2},
			Inputs: [][]byte{make([]byte, 16), make([]byte, 4)},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Element count overflows", func(t *testing.T) {
		srv := newTestServer(nil)
		rr := postCBOR(t, srv, sumRequest{
			Kind:   "float32",
			Shape:  []int{1 << 32, 1 << 32},
			Inputs: [][]byte{{}, {}},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = postCBOR(t, srv, sumRequest{
			Kind:     "variant",
			Shape:    []int{1 << 62, 2},
			Variants: [][]variantWire{{}, {}},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Empty input list", func(t *testing.T) {
		srv := newTestServer(nil)
		rr := postCBOR(t, srv, sumRequest{Kind: "int64", Shape: []int{3}})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "empty input list")
	})

	t.Run("Unknown variant type", func(t *testing.T) {
		srv := newTestServer(nil)
		blob := []variantWire{{TypeName: "tensor_list", Metadata: []byte{1}}}
		rr := postCBOR(t, srv, sumRequest{Kind: "variant", Variants: [][]variantWire{blob, blob}})
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("Over budget", func(t *testing.T) {
		kernel := addn.New(nil, nil)
		srv := NewServer(kernel, nil, "test-dataset", 8)
		a := device.MustBuffer(device.Shape{4}, []int32{1, 2, 3, 4})
		rr := postCBOR(t, srv, sumRequest{Kind: "int32", Shape: []int{4}, Inputs: [][]byte{rawBytes(t, a)}})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	t.Run("Bad body", func(t *testing.T) {
		srv := newTestServer(nil)
		r := httptest.NewRequest(http.MethodPost, "/addn", bytes.NewReader([]byte{0xff, 0x00}))
		rr := httptest.NewRecorder()
		srv.handleSum(rr, r)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Method not allowed", func(t *testing.T) {
		srv := newTestServer(nil)
		rr := httptest.NewRecorder()
		srv.handleSum(rr, httptest.NewRequest(http.MethodGet, "/addn", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestServer_HandleSumArrow(t *testing.T) {
	srv := newTestServer(nil)
	mem := memory.NewGoAllocator()

	in := device.MustBuffer(device.Shape{3}, []int16{1, -2, 3})
	rec, err := arrowio.EncodeInputs(mem, []*device.Buffer{in, in, in, in, in, in, in, in, in})
	require.NoError(t, err)
	defer rec.Release()

	var body bytes.Buffer
	w := ipc.NewWriter(&body, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	rr := httptest.NewRecorder()
	srv.handleSumArrow(rr, httptest.NewRequest(http.MethodPost, "/addn/arrow", &body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, arrowStreamType, rr.Header().Get("Content-Type"))

	reader, err := ipc.NewReader(bytes.NewReader(rr.Body.Bytes()), ipc.WithAllocator(mem))
	require.NoError(t, err)
	defer reader.Release()

	batches := 0
	for reader.Next() {
		out, err := arrowio.DecodeBuffer(reader.Record())
		require.NoError(t, err)
		assert.Equal(t, []int16{9, -18, 27}, device.Values[int16](out))
		batches++
	}
	require.NoError(t, reader.Err())
	assert.Equal(t, 2, batches)
}

func TestServer_HandleSumArrow_BadStream(t *testing.T) {
	srv := newTestServer(nil)
	rr := httptest.NewRecorder()
	srv.handleSumArrow(rr, httptest.NewRequest(http.MethodPost, "/addn/arrow", bytes.NewReader([]byte("not arrow"))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(nil)
	rr := httptest.NewRecorder()
	srv.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestParseBytes(t *testing.T) {
	assert.Equal(t, int64(64<<20), parseBytes("64MB"))
	assert.Equal(t, int64(4<<30), parseBytes("4GB"))
	assert.Equal(t, int64(2<<10), parseBytes("2k"))
	assert.Equal(t, int64(1024), parseBytes("1024"))
	assert.Equal(t, int64(0), parseBytes(""))
}
