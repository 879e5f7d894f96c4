package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/x448/float16"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-addn/internal/addn"
	"github.com/23skdu/longbow-addn/internal/arrowio"
	"github.com/23skdu/longbow-addn/internal/client"
	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/reference"
	"github.com/23skdu/longbow-addn/internal/tolerance"
	"github.com/23skdu/longbow-addn/internal/variant"
)

var (
	listenAddr      = flag.String("listen", "", "Address to listen on for HTTP Server (e.g. :8080)")
	flightAddr      = flag.String("flight", "", "Address to listen on for Flight Server (e.g. :9090)")
	sinkAddr        = flag.String("sink", "", "Flight address that receives every result via DoPut (e.g. localhost:3000)")
	datasetName     = flag.String("dataset", "addn_results", "Target dataset name on the sink")
	enableOTel      = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	flagMaxInflight = flag.String("max-inflight", "64MB", "Input bytes admitted concurrently (e.g. 64MB, 1GB)")
	cpuProfile      = flag.String("cpuprofile", "", "Write cpu profile to file")

	kindName   = flag.String("kind", "float32", "Element kind for bench mode (int8..int64, float16, float32, float64, complex64, complex128, variant)")
	numInputs  = flag.Int("n", 9, "Number of inputs to sum in bench mode")
	shapeSpec  = flag.String("shape", "1024,1024", "Input shape for bench mode (e.g. 2,2 or 512x512)")
	iterations = flag.Int("iterations", 10, "Bench iterations")
	verify     = flag.Bool("verify", false, "Check the bench result against an independent summation")
	seed       = flag.Int64("seed", 12345, "Random seed for bench inputs")
)

func parseBytes(s string) int64 {
	// 4GB, 100MB, 1024
	if s == "" || s == "0" {
		return 0
	}
	var val int64
	var unit string
	fmt.Sscanf(s, "%d%s", &val, &unit)

	switch strings.ToUpper(unit) {
	case "GB", "G":
		return val * 1024 * 1024 * 1024
	case "MB", "M":
		return val * 1024 * 1024
	case "KB", "K":
		return val * 1024
	default:
		return val
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	registry := variant.NewDefaultRegistry()
	kernel := addn.New(device.NewCPUBackend(), registry)
	log.Info().Strs("variant_types", registry.Tags()).Int("group_size", addn.GroupSize).Msg("AddN kernel ready")

	var sink *client.FlightClient
	if *sinkAddr != "" {
		var err error
		sink, err = client.NewFlightClient(*sinkAddr, client.NewCircuitBreaker(5, 30*time.Second))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create flight client")
		}
		defer func() {
			if err := sink.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close flight client")
			}
		}()
		log.Info().Str("addr", *sinkAddr).Msg("Connected to Flight sink")
	}

	if *listenAddr != "" || *flightAddr != "" {
		serve(kernel, sink)
		return
	}

	if err := runBench(kernel, sink); err != nil {
		log.Fatal().Err(err).Msg("Bench failed")
	}
}

func serve(kernel *addn.Kernel, sink *client.FlightClient) {
	if *listenAddr != "" {
		var fc FlightClientInterface
		if sink != nil {
			fc = sink
		}
		maxInflight := parseBytes(*flagMaxInflight)
		if maxInflight <= 0 {
			log.Fatal().Str("max_inflight", *flagMaxInflight).Msg("Invalid admission budget")
		}
		log.Info().Str("max_inflight", *flagMaxInflight).Int64("bytes", maxInflight).Msg("Admission control")

		srv := NewServer(kernel, fc, *datasetName, maxInflight)
		if *flightAddr == "" {
			startServer(*listenAddr, srv)
			return
		}
		go startServer(*listenAddr, srv)
	}
	StartFlightServer(*flightAddr, kernel)
}

func runBench(kernel *addn.Kernel, sink *client.FlightClient) error {
	kind, err := device.ParseKind(*kindName)
	if err != nil {
		return err
	}
	shape, err := device.ParseShape(*shapeSpec)
	if err != nil {
		return err
	}
	if *numInputs < 1 {
		return fmt.Errorf("-n must be at least 1, got %d", *numInputs)
	}

	rng := rand.New(rand.NewSource(*seed))
	inputs := make([]*device.Buffer, *numInputs)
	for i := range inputs {
		if inputs[i], err = randomBuffer(rng, kind, shape); err != nil {
			return err
		}
	}

	var out *device.Buffer
	start := time.Now()
	for i := 0; i < *iterations; i++ {
		if out != nil {
			kernel.Backend().PutBuffer(out)
		}
		if out, err = kernel.AddN(inputs); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	elements := int64(*iterations) * int64(*numInputs) * int64(shape.NumElements())
	log.Info().
		Str("kind", kind.String()).
		Str("shape", shape.String()).
		Int("n", *numInputs).
		Int("iterations", *iterations).
		Dur("elapsed", elapsed).
		Msg("Bench complete")

	p := message.NewPrinter(language.English)
	p.Printf("%s x%d %v: %d iterations in %v, %.0f input elements/s\n",
		kind, *numInputs, shape, *iterations, elapsed.Round(time.Microsecond), float64(elements)/elapsed.Seconds())

	if *verify {
		if err := verifyResult(kernel, inputs, out); err != nil {
			return err
		}
		log.Info().Msg("Result matches reference summation")
	}

	if sink != nil {
		rec, err := arrowio.EncodeBuffer(memory.NewGoAllocator(), out)
		if err != nil {
			return err
		}
		defer rec.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := sink.DoPut(ctx, *datasetName, rec); err != nil {
			return fmt.Errorf("flight DoPut: %w", err)
		}
		log.Info().Str("dataset", *datasetName).Msg("Sent result to sink")
	}
	return nil
}

func verifyResult(kernel *addn.Kernel, inputs []*device.Buffer, got *device.Buffer) error {
	if got.Kind() == device.Variant {
		// Variants have no independent arithmetic; fold them one pair at a time.
		want := inputs[0]
		for _, in := range inputs[1:] {
			next, err := kernel.AddN([]*device.Buffer{want, in})
			if err != nil {
				return err
			}
			want = next
		}
		return tolerance.AllClose(got, want, tolerance.Exact)
	}
	want, err := reference.Sum(inputs)
	if err != nil {
		return err
	}
	return tolerance.AllClose(got, want, tolerance.For(got.Kind()))
}

func randomBuffer(rng *rand.Rand, kind device.Kind, shape device.Shape) (*device.Buffer, error) {
	n := shape.NumElements()
	switch kind {
	case device.Int8:
		return device.NewBuffer(shape, fill(n, func() int8 { return int8(rng.Intn(256) - 128) }))
	case device.Int16:
		return device.NewBuffer(shape, fill(n, func() int16 { return int16(rng.Intn(1<<16) - 1<<15) }))
	case device.Int32:
		return device.NewBuffer(shape, fill(n, func() int32 { return int32(rng.Uint32()) }))
	case device.Int64:
		return device.NewBuffer(shape, fill(n, func() int64 { return int64(rng.Uint64()) }))
	case device.Float16:
		return device.NewBuffer(shape, fill(n, func() float16.Float16 { return float16.Fromfloat32(float32(rng.NormFloat64())) }))
	case device.Float32:
		return device.NewBuffer(shape, fill(n, func() float32 { return float32(rng.NormFloat64()) }))
	case device.Float64:
		return device.NewBuffer(shape, fill(n, rng.NormFloat64))
	case device.Complex64:
		return device.NewBuffer(shape, fill(n, func() complex64 {
			r := float32(rng.NormFloat64())
			return complex(r, 10*r)
		}))
	case device.Complex128:
		return device.NewBuffer(shape, fill(n, func() complex128 {
			r := rng.NormFloat64()
			return complex(r, 10*r)
		}))
	case device.Variant:
		return device.NewBuffer(shape, fill(n, func() variant.Value { return variant.IntValue(rng.Int31n(100)) }))
	}
	return nil, fmt.Errorf("bench: unsupported kind %v", kind)
}

func fill[T any](n int, next func() T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = next()
	}
	return out
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("addn"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
