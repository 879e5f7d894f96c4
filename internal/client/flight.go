package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-addn/internal/arrowio"
	"github.com/23skdu/longbow-addn/internal/device"
)

// FlightClient talks to an AddN server, or to any Flight sink, over Apache
// Arrow Flight.
type FlightClient struct {
	client  flight.Client
	conn    *grpc.ClientConn
	breaker *CircuitBreaker
}

// NewFlightClient creates a client for addr. breaker may be nil, in which
// case calls are never short-circuited.
func NewFlightClient(addr string, breaker *CircuitBreaker) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	return &FlightClient{
		client:  flight.NewClientFromConn(conn, nil),
		conn:    conn,
		breaker: breaker,
	}, nil
}

// Sum sends one input batch (see arrowio.EncodeInputs) through DoExchange
// and returns the decoded result.
func (c *FlightClient) Sum(ctx context.Context, rec arrow.RecordBatch) (*device.Buffer, error) {
	var out *device.Buffer
	err := c.call("DoExchange", func() error {
		stream, err := c.client.DoExchange(ctx)
		if err != nil {
			return err
		}

		writer := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
		if err := writer.Write(rec); err != nil {
			return streamError(func() error { _, err := stream.Recv(); return err }, err)
		}
		if err := writer.Close(); err != nil {
			return err
		}
		if err := stream.CloseSend(); err != nil {
			return err
		}

		reader, err := flight.NewRecordReader(stream)
		if err != nil {
			return err
		}
		defer reader.Release()

		if !reader.Next() {
			if err := reader.Err(); err != nil {
				return err
			}
			return fmt.Errorf("client: exchange returned no result")
		}
		out, err = arrowio.DecodeBuffer(reader.Record())
		return err
	})
	return out, err
}

// DoPut sends a RecordBatch to the given dataset on the server.
func (c *FlightClient) DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	return c.call("DoPut", func() error {
		stream, err := c.client.DoPut(ctx)
		if err != nil {
			return err
		}

		writer := flight.NewRecordWriter(stream, ipc.WithSchema(record.Schema()))
		writer.SetFlightDescriptor(&flight.FlightDescriptor{
			Type: flight.DescriptorPATH,
			Path: []string{datasetName},
		})
		if err := writer.Write(record); err != nil {
			return streamError(func() error { _, err := stream.Recv(); return err }, err)
		}
		if err := writer.Close(); err != nil {
			return err
		}
		if err := stream.CloseSend(); err != nil {
			return err
		}

		// Drain acknowledgements so server-side errors surface here.
		for {
			if _, err := stream.Recv(); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	})
}

// Close closes the client connection.
func (c *FlightClient) Close() error {
	return c.conn.Close()
}

// streamError returns the server's status when a send failed because the
// server already ended the stream.
func streamError(recv func() error, err error) error {
	if !errors.Is(err, io.EOF) {
		return err
	}
	if rerr := recv(); rerr != nil && !errors.Is(rerr, io.EOF) {
		return rerr
	}
	return err
}

func (c *FlightClient) call(method string, fn func() error) error {
	if c.breaker != nil && !c.breaker.Allow() {
		requests.WithLabelValues(method, "rejected").Inc()
		return ErrCircuitOpen
	}

	err := fn()
	switch {
	case err == nil:
		requests.WithLabelValues(method, "ok").Inc()
		if c.breaker != nil {
			c.breaker.Success()
		}
	case isTransportFailure(err) && !errors.Is(err, arrowio.ErrSchema):
		requests.WithLabelValues(method, "unavailable").Inc()
		if c.breaker != nil {
			c.breaker.Failure()
		}
	default:
		// The server answered; a rejected request says nothing about its health.
		requests.WithLabelValues(method, "error").Inc()
		if c.breaker != nil {
			c.breaker.Success()
		}
	}
	return err
}

func isTransportFailure(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return true
	case codes.Unknown:
		// Plain errors raised locally (e.g. a broken stream) carry no status.
		_, isStatus := status.FromError(err)
		return !isStatus
	}
	return false
}
