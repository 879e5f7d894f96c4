package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-addn/internal/addn"
	"github.com/23skdu/longbow-addn/internal/arrowio"
	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/variant"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "addn_request_duration_seconds",
		Help:    "Time spent serving AddN requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "addn_requests_total",
		Help: "AddN HTTP requests by endpoint and status code",
	}, []string{"endpoint", "code"})

	inflightBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "addn_inflight_bytes",
		Help: "Input bytes currently admitted for summation",
	})
)

const arrowStreamType = "application/vnd.apache.arrow.stream"

type FlightClientInterface interface {
	DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error
	Close() error
}

// sumRequest is the CBOR body of POST /addn. Numeric inputs are raw
// little-endian element bytes; variant inputs use Variants instead.
type sumRequest struct {
	Kind     string          `cbor:"kind"`
	Shape    []int           `cbor:"shape"`
	Inputs   [][]byte        `cbor:"inputs,omitempty"`
	Variants [][]variantWire `cbor:"variants,omitempty"`
}

type variantWire struct {
	TypeName string `cbor:"type_name"`
	Metadata []byte `cbor:"metadata"`
}

type sumResponse struct {
	Kind     string        `cbor:"kind"`
	Shape    []int         `cbor:"shape"`
	Data     []byte        `cbor:"data,omitempty"`
	Variants []variantWire `cbor:"variants,omitempty"`
	Debug    []string      `cbor:"debug,omitempty"`
}

type Server struct {
	kernel       *addn.Kernel
	flightClient FlightClientInterface
	datasetName  string
	alloc        memory.Allocator
	sem          *semaphore.Weighted
	maxInflight  int64
}

func NewServer(kernel *addn.Kernel, fc FlightClientInterface, dataset string, maxInflight int64) *Server {
	return &Server{
		kernel:       kernel,
		flightClient: fc,
		datasetName:  dataset,
		alloc:        memory.NewGoAllocator(),
		sem:          semaphore.NewWeighted(maxInflight),
		maxInflight:  maxInflight,
	}
}

func startServer(addr string, srv *Server) {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/addn", srv.handleSum)
	http.HandleFunc("/addn/arrow", srv.handleSumArrow)
	http.HandleFunc("/health", srv.handleHealth)

	log.Info().Str("addr", addr).Msg("Starting AddN HTTP server")
	if srv.flightClient != nil {
		log.Info().Str("dataset", srv.datasetName).Msg("Forwarding results to sink")
	}

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

var tracer = otel.Tracer("addn-server")

func (s *Server) handleSum(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleSum", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	start := time.Now()
	code := http.StatusOK
	defer func() {
		requestDuration.WithLabelValues("addn").Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues("addn", strconv.Itoa(code)).Inc()
	}()
	fail := func(status int, err error) {
		code = status
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, err.Error(), status)
	}

	if r.Method != http.MethodPost {
		fail(http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	var req sumRequest
	if err := cbor.NewDecoder(http.MaxBytesReader(w, r.Body, 2*s.maxInflight+4096)).Decode(&req); err != nil {
		fail(http.StatusBadRequest, fmt.Errorf("cbor decode: %w", err))
		return
	}

	inputs, err := req.buffers()
	if err != nil {
		fail(http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(
		attribute.String("kind", req.Kind),
		attribute.Int("inputs", len(inputs)),
	)

	out, status, err := s.sum(ctx, inputs)
	if err != nil {
		fail(status, err)
		return
	}
	defer s.kernel.Backend().PutBuffer(out)

	resp, err := s.response(out)
	if err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}
	s.forward(ctx, out)

	body, err := cbor.Marshal(resp)
	if err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	_, _ = w.Write(body)
}

func (s *Server) handleSumArrow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleSumArrow", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	start := time.Now()
	code := http.StatusOK
	defer func() {
		requestDuration.WithLabelValues("addn_arrow").Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues("addn_arrow", strconv.Itoa(code)).Inc()
	}()

	if r.Method != http.MethodPost {
		code = http.StatusMethodNotAllowed
		http.Error(w, "Method not allowed", code)
		return
	}

	reader, err := ipc.NewReader(r.Body, ipc.WithAllocator(s.alloc))
	if err != nil {
		code = http.StatusBadRequest
		http.Error(w, fmt.Sprintf("Failed to create IPC reader: %v", err), code)
		return
	}
	defer reader.Release()

	var (
		writer  *ipc.Writer
		batches int
	)
	defer func() {
		if writer != nil {
			_ = writer.Close()
		}
	}()

	for reader.Next() {
		rec, status, err := s.sumRecord(ctx, reader.Record())
		if err != nil {
			code = status
			span.RecordError(err)
			if writer != nil {
				// Headers are gone; the client sees a truncated stream.
				log.Error().Err(err).Int("batch", batches).Msg("AddN arrow stream aborted")
				return
			}
			http.Error(w, err.Error(), code)
			return
		}
		if writer == nil {
			w.Header().Set("Content-Type", arrowStreamType)
			writer = ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(s.alloc))
		}
		err = writer.Write(rec)
		rec.Release()
		if err != nil {
			log.Error().Err(err).Int("batch", batches).Msg("Failed to write result batch")
			return
		}
		batches++
	}

	if err := reader.Err(); err != nil {
		log.Error().Err(err).Msg("Error reading Arrow stream")
		if writer == nil {
			code = http.StatusBadRequest
			http.Error(w, "Stream error", code)
		}
		return
	}
	span.SetAttributes(attribute.Int("batches", batches))
	if writer == nil {
		code = http.StatusNoContent
		w.WriteHeader(code)
	}
}

// sumRecord sums the columns of one input batch into a result batch.
func (s *Server) sumRecord(ctx context.Context, in arrow.RecordBatch) (arrow.RecordBatch, int, error) {
	inputs, err := arrowio.DecodeInputs(in)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	out, status, err := s.sum(ctx, inputs)
	if err != nil {
		return nil, status, err
	}
	defer s.kernel.Backend().PutBuffer(out)

	s.forward(ctx, out)
	rec, err := arrowio.EncodeBuffer(s.alloc, out)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return rec, http.StatusOK, nil
}

// sum admits the request against the byte budget and runs the kernel. The
// returned status is meaningful only when err is non-nil.
func (s *Server) sum(ctx context.Context, inputs []*device.Buffer) (*device.Buffer, int, error) {
	var weight int64
	for _, in := range inputs {
		if in != nil {
			weight += int64(in.SizeBytes())
		}
	}
	if weight > s.maxInflight {
		return nil, http.StatusRequestEntityTooLarge,
			fmt.Errorf("request holds %d input bytes, limit is %d", weight, s.maxInflight)
	}

	if err := s.sem.Acquire(ctx, weight); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		return nil, http.StatusServiceUnavailable, errors.New("server busy")
	}
	inflightBytes.Add(float64(weight))
	defer func() {
		inflightBytes.Sub(float64(weight))
		s.sem.Release(weight)
	}()

	out, err := s.kernel.AddN(inputs)
	if err != nil {
		return nil, statusFor(err), err
	}
	return out, http.StatusOK, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, addn.ErrEmptyInputList), errors.Is(err, addn.ErrShapeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, variant.ErrUnknownVariantType), errors.Is(err, variant.ErrVariantTypeMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) forward(ctx context.Context, out *device.Buffer) {
	if s.flightClient == nil {
		return
	}
	rec, err := arrowio.EncodeBuffer(s.alloc, out)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode result for sink")
		return
	}
	defer rec.Release()
	if err := s.flightClient.DoPut(ctx, s.datasetName, rec); err != nil {
		log.Error().Err(err).Str("dataset", s.datasetName).Msg("Error forwarding result to sink")
	}
}

func (req *sumRequest) buffers() ([]*device.Buffer, error) {
	kind, err := device.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	shape := device.Shape(req.Shape)

	if kind == device.Variant {
		out := make([]*device.Buffer, len(req.Variants))
		for i, wire := range req.Variants {
			vals := make([]variant.Value, len(wire))
			for j, v := range wire {
				vals[j] = variant.New(v.TypeName, v.Metadata)
			}
			if out[i], err = device.FromVariants(shape, vals); err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
		}
		return out, nil
	}

	out := make([]*device.Buffer, len(req.Inputs))
	for i, raw := range req.Inputs {
		if out[i], err = device.FromBytes(kind, shape, raw); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	return out, nil
}

func (s *Server) response(out *device.Buffer) (*sumResponse, error) {
	resp := &sumResponse{Kind: out.Kind().String(), Shape: out.Shape()}
	if out.Kind() != device.Variant {
		data, err := out.Bytes()
		if err != nil {
			return nil, err
		}
		resp.Data = data
		return resp, nil
	}
	reg := s.kernel.Registry()
	for _, v := range device.Values[variant.Value](out) {
		resp.Variants = append(resp.Variants, variantWire{TypeName: v.TypeName, Metadata: v.Metadata})
		if reg != nil {
			resp.Debug = append(resp.Debug, reg.DebugString(v))
		} else {
			resp.Debug = append(resp.Debug, v.String())
		}
	}
	return resp, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
