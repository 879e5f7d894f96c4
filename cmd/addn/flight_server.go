package main

import (
	"errors"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-addn/internal/addn"
	"github.com/23skdu/longbow-addn/internal/arrowio"
	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/variant"
)

type AddNFlightServer struct {
	flight.BaseFlightServer
	kernel *addn.Kernel
	alloc  memory.Allocator
}

func NewAddNFlightServer(kernel *addn.Kernel) *AddNFlightServer {
	return &AddNFlightServer{
		kernel: kernel,
		alloc:  memory.NewGoAllocator(),
	}
}

// DoExchange answers every input batch with a single-column sum batch.
func (s *AddNFlightServer) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	var writer *flight.Writer
	defer func() {
		if writer != nil {
			_ = writer.Close()
		}
	}()

	for reader.Next() {
		out, err := s.sumBatch(reader)
		if err != nil {
			return err
		}
		rec, err := arrowio.EncodeBuffer(s.alloc, out)
		s.kernel.Backend().PutBuffer(out)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if writer == nil {
			writer = flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(s.alloc))
		}
		err = writer.Write(rec)
		rec.Release()
		if err != nil {
			return err
		}
	}
	return reader.Err()
}

// DoPut sums each incoming batch and acknowledges it with the result's
// kind and shape.
func (s *AddNFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	var path []string
	if desc := reader.LatestFlightDescriptor(); desc != nil {
		path = desc.Path
	}

	for reader.Next() {
		out, err := s.sumBatch(reader)
		if err != nil {
			return err
		}
		log.Info().
			Strs("path", path).
			Str("kind", out.Kind().String()).
			Str("shape", out.Shape().String()).
			Int64("inputs", reader.Record().NumCols()).
			Msg("DoPut summed batch")
		ack := &flight.PutResult{AppMetadata: []byte(out.Kind().String() + ":" + out.Shape().Encode())}
		s.kernel.Backend().PutBuffer(out)
		if err := stream.Send(ack); err != nil {
			return err
		}
	}
	return reader.Err()
}

func (s *AddNFlightServer) sumBatch(reader *flight.Reader) (*device.Buffer, error) {
	inputs, err := arrowio.DecodeInputs(reader.Record())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out, err := s.kernel.AddN(inputs)
	if err != nil {
		return nil, status.Error(grpcCode(err), err.Error())
	}
	return out, nil
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, addn.ErrEmptyInputList), errors.Is(err, addn.ErrShapeMismatch):
		return codes.InvalidArgument
	case errors.Is(err, variant.ErrUnknownVariantType), errors.Is(err, variant.ErrVariantTypeMismatch):
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

func StartFlightServer(addr string, kernel *addn.Kernel) {
	server := flight.NewFlightServer()
	server.RegisterFlightService(NewAddNFlightServer(kernel))

	if err := server.Init(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to init Flight server")
	}

	log.Info().Str("addr", addr).Msg("Starting AddN Flight server")
	if err := server.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Flight server failed")
	}
}
