package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/probe"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/serial"
)

func main() {
	// go.bug.st/serial demo: probe the real ports once
	// and report which one hosts the scope
	ports := flag.String("ports", "", "comma separated ports to probe instead of all")
	token := flag.String("token", "UNO-R4", "identity token to look for")
	window := flag.Duration("window", 2*time.Second, "reply window per port")
	flag.Parse()

	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	factory := &serial.SerialConnectionFactory{Log: log}
	if *ports != "" {
		factory.Ports = strings.Split(*ports, ",")
	}

	cfg := probe.DefaultConfig()
	cfg.Token = *token
	cfg.Window = *window
	port, err := probe.New(factory, cfg, log, nil).Discover(ctx)
	if err != nil {
		log.WithError(err).Fatal("discovery failed")
	}
	log.WithField("port", port).Info("scope found")
}
