// Package stream runs the decode loop on the port selected by discovery:
// it starts the device's data stream and delivers every valid frame to a Sink.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/frame"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/metrics"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/serial"
)

// ErrOpen wraps the failure to open the streaming port. It is terminal.
var ErrOpen = errors.New("stream: open failed")

type Config struct {
	Baudrate     int
	ReadTimeout  time.Duration
	StartCommand []byte
	// Settle is the pause between the start command and the first read.
	Settle     time.Duration
	ReadBuffer int
}

func DefaultConfig() Config {
	return Config{
		Baudrate:     115200,
		ReadTimeout:  3 * time.Second,
		StartCommand: []byte("START\r\n"),
		Settle:       4 * time.Millisecond,
		ReadBuffer:   1024,
	}
}

type Streamer struct {
	Factory serial.ConnectionFactory
	Config  Config
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	// Now stamps readings; time.Now when nil.
	Now func() time.Time
}

func New(factory serial.ConnectionFactory, cfg Config, log logrus.FieldLogger, m *metrics.Metrics) *Streamer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Streamer{Factory: factory, Config: cfg, Log: log, Metrics: m}
}

// Run opens port, sends the start command and decodes frames until a
// non-timeout read error. Cancelling ctx closes the port, which ends the
// loop with ctx.Err(). The port is owned by Run for its whole duration.
func (s *Streamer) Run(ctx context.Context, port string, sink Sink) error {
	log := s.Log.WithField("port", port)

	conn, err := s.Factory.Open(serial.Props{
		Name:        port,
		Baudrate:    s.Config.Baudrate,
		ReadTimeout: s.Config.ReadTimeout,
	})
	if err != nil {
		s.Metrics.StreamError("open")
		return fmt.Errorf("%w: %s: %v", ErrOpen, port, err)
	}
	log.Info("connected to device")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		// unblocks a pending read
		_ = conn.Close()
	}()

	if _, err := conn.Write(s.Config.StartCommand); err != nil {
		s.Metrics.StreamError("start")
		log.WithError(err).Warn("failed to send start command")
	}
	if s.Config.Settle > 0 {
		time.Sleep(s.Config.Settle)
	}

	size := s.Config.ReadBuffer
	if size <= 0 {
		size = 1024
	}
	buf := make([]byte, size)
	now := s.Now
	if now == nil {
		now = time.Now
	}

	var dec frame.Decoder
	var last frame.Stats
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.Metrics.Received(n)
			dec.Feed(buf[:n], func(smp frame.Sample) {
				sink.Deliver(ctx, Reading{Serial: port, Sample: smp, Iat: now()})
			})
			st := dec.Stats()
			s.Metrics.Decoded(st.Frames-last.Frames, st.Discarded-last.Discarded)
			last = st
		}
		if err == nil && n > 0 {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Info("stream stopped")
			return ctxErr
		}
		if serial.IsTimeout(n, err) {
			s.Metrics.Timeout()
			log.Debug("read timed out, retrying")
			continue
		}
		s.Metrics.StreamError("read")
		log.WithError(err).Error("error receiving data")
		return fmt.Errorf("stream: read %s: %w", port, err)
	}
}
