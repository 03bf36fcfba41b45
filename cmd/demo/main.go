package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/probe"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/session"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/sim"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

func main() {
	// runs discovery and streaming against simulated devices
	// and prints every reading as a JSON line
	frames := flag.Int("frames", 50, "frames before the simulated device unplugs")
	noise := flag.Int("noise", 7, "a noise byte precedes every n-th frame")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	factory := sim.NewTickerFactory(ctx).
		Add("/dev/ttyUSB0", sim.Device{Identity: "ESP32"}).
		Add("/dev/ttyACM0", sim.Device{
			Identity:   "Arduino UNO-R4 Minima",
			Period:     20 * time.Millisecond,
			NoiseEvery: *noise,
			FailAfter:  *frames,
		})

	cfg := probe.DefaultConfig()
	cfg.Window = 200 * time.Millisecond
	enc := json.NewEncoder(os.Stdout)
	sess := session.New(
		probe.New(factory, cfg, log, nil),
		stream.New(factory, stream.DefaultConfig(), log, nil),
		stream.SinkFunc(func(_ context.Context, r stream.Reading) {
			_ = enc.Encode(&r)
		}),
		log,
	)
	if err := sess.Run(ctx); err != nil {
		log.WithError(err).Info("demo finished")
	}
}
