package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/config"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/hub"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/metrics"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/probe"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/publish"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/serial"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/server"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/session"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/sim"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so that deferred cleanups complete.
func run() int {
	configFile := flag.String("config", "config.yaml", "path to the YAML config")
	showVersion := flag.Bool("version", false, "print version and exit")
	simulate := flag.Bool("simulate", false, "serve a simulated scope instead of real serial ports")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scope v%s (build: %s)\n", Version, BuildTime)
		return 0
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v, using defaults\n", err)
		cfg = config.GetDefaultConfig()
	}
	log := setupLogger(cfg.Log)
	log.Infof("scope v%s starting", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var factory serial.ConnectionFactory
	if *simulate {
		log.Warn("serving simulated device")
		factory = sim.NewTickerFactory(ctx).
			Add("/dev/ttyS0", sim.Device{}).
			Add("/dev/ttySIM0", sim.Device{
				Identity:   "Arduino " + cfg.Probe.Token,
				Period:     10 * time.Millisecond,
				NoiseEvery: 100,
			})
	} else {
		factory = &serial.SerialConnectionFactory{Ports: cfg.Serial.Ports, Log: log}
	}

	h := hub.New(ctx, log, m)
	sinks := []stream.Sink{h}
	if cfg.MQTT.Enabled {
		sink, disconnect, err := publish.DialMQTT(cfg.MQTT.URL, cfg.MQTT.Topic, cfg.MQTT.Timeout, log, m)
		if err != nil {
			log.WithError(err).Error("mqtt publishing disabled")
		} else {
			defer disconnect()
			sinks = append(sinks, sink)
		}
	}
	if cfg.Redis.Enabled {
		sink, closeRedis, err := publish.DialRedis(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, cfg.Redis.Channel, log, m)
		if err != nil {
			log.WithError(err).Error("redis publishing disabled")
		} else {
			defer closeRedis()
			sinks = append(sinks, sink)
		}
	}
	if log.IsLevelEnabled(logrus.TraceLevel) {
		sinks = append(sinks, stream.SinkFunc(func(_ context.Context, r stream.Reading) {
			log.WithField("port", r.Serial).Tracef("#%d %v", r.Counter, r.Channels)
		}))
	}

	sess := session.New(
		probe.New(factory, cfg.ProbeConfig(), log, m),
		stream.New(factory, cfg.StreamConfig(), log, m),
		stream.Tee(sinks...),
		log,
	)
	sess.Retry = cfg.Session.Retry
	sess.RetryInterval = cfg.Session.RetryInterval

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: newRouter(ctx, cfg.HTTP, h, factory, sess.Status, reg, log),
	}
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		listener, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			log.WithError(err).Error("failed to listen")
			return 1
		}
		grpcServer = grpc.NewServer()
		server.RegisterTelemetryServer(grpcServer, &server.TelemetryService{
			Hub:    h,
			Status: sess.Status,
			Buffer: cfg.HTTP.ClientBuffer,
			Log:    log,
		})
		go func() {
			log.WithField("addr", cfg.GRPC.Addr).Info("gRPC server starting")
			if err := grpcServer.Serve(listener); err != nil {
				log.WithError(err).Error("gRPC server failed")
			}
		}()
	}

	runErr := sess.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.WithError(runErr).Error("session ended")
	}

	// streams end once the hub releases its subscribers
	h.Close()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	log.Info("bye")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	return 0
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.WithError(err).Warn("failed to open log file, using stdout")
		}
	}
	return log
}
