//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-addn/internal/arrowio"
	"github.com/23skdu/longbow-addn/internal/client"
	"github.com/23skdu/longbow-addn/internal/device"
	"github.com/23skdu/longbow-addn/internal/variant"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "localhost:9090"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	log.Info().Str("addr", addr).Msg("Connecting to AddN Flight Server")

	var c *client.FlightClient
	var err error
	for i := 0; i < 10; i++ {
		c, err = client.NewFlightClient(addr, nil)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("Connection failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect after retries")
	}
	defer c.Close()

	mem := memory.NewGoAllocator()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Cross the remainder/group boundary for a numeric kind.
	for n := 1; n <= 17; n++ {
		inputs := make([]*device.Buffer, n)
		for i := range inputs {
			inputs[i] = device.MustBuffer(device.Shape{2, 2}, []int32{1, 2, 3, 4})
		}
		rec, err := arrowio.EncodeInputs(mem, inputs)
		if err != nil {
			log.Fatal().Err(err).Msg("Encode failed")
		}
		start := time.Now()
		sum, err := c.Sum(ctx, rec)
		rec.Release()
		if err != nil {
			log.Fatal().Err(err).Int("n", n).Msg("Sum failed")
		}
		got := device.Values[int32](sum)
		want := []int32{int32(n), int32(2 * n), int32(3 * n), int32(4 * n)}
		for i := range want {
			if got[i] != want[i] {
				log.Fatal().Int("n", n).Ints32("got", got).Ints32("want", want).Msg("Sum mismatch")
			}
		}
		log.Info().Int("n", n).Dur("elapsed", time.Since(start)).Msg("Sum valid")
	}

	values := []*device.Buffer{
		device.Scalar(variant.IntValue(7)),
		device.Scalar(variant.IntValue(35)),
	}
	rec, err := arrowio.EncodeInputs(mem, values)
	if err != nil {
		log.Fatal().Err(err).Msg("Encode failed")
	}
	defer rec.Release()
	sum, err := c.Sum(ctx, rec)
	if err != nil {
		log.Fatal().Err(err).Msg("Variant sum failed")
	}
	total, err := variant.DecodeInt(device.Values[variant.Value](sum)[0])
	if err != nil || total != 42 {
		log.Fatal().Err(err).Int32("got", total).Msg("Variant sum mismatch")
	}

	fmt.Println("VERIFICATION PASSED")
}
