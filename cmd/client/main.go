package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/server"
)

func main() {
	addr := "localhost:8081"
	flag.StringVar(&addr, "addr", addr, "gRPC Dial Address")
	status := flag.Bool("status", false, "print the bridge status and exit")
	limit := flag.Int("n", 0, "stop after n samples (0 streams forever)")
	flag.Parse()

	log := logrus.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cc, err := grpc.Dial(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to connect")
	}
	defer cc.Close()

	cl := &TelemetryClient{TelemetryClient: server.NewTelemetryClient(cc), Log: log}
	if *status {
		err = cl.PrintStatus(ctx)
	} else {
		err = cl.ListenForSamples(ctx, *limit)
	}
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Error("request failed")
	}
}
