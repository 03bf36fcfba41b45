// Package probe finds the serial port hosting the scope device.
//
// Every accessible port is opened in turn, sent an identification request and
// polled for a reply containing the identity token. The first port to answer
// wins and no further ports are touched. Per-port failures (busy, permission
// denied, write or read errors) only skip that port.
//
// Replies are decoded permissively: invalid UTF-8 is replaced rather than
// rejected, so heterogeneous devices can still be matched. The flip side is
// that line noise may contain the token and produce a false match.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/metrics"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/serial"
)

// ErrNotFound is returned when no port answered with the identity token.
var ErrNotFound = errors.New("probe: device not found")

type Config struct {
	Baudrate int
	// Request is written once to every candidate.
	Request []byte
	// Token must appear in the accumulated reply.
	Token string
	// ReadTimeout bounds a single read.
	ReadTimeout time.Duration
	// Window bounds the whole wait for a reply on one port.
	Window     time.Duration
	ReadBuffer int
}

func DefaultConfig() Config {
	return Config{
		Baudrate:    115200,
		Request:     []byte("WHORU\n"),
		Token:       "UNO-R4",
		ReadTimeout: time.Second,
		Window:      2 * time.Second,
		ReadBuffer:  1024,
	}
}

type Prober struct {
	Factory serial.ConnectionFactory
	Config  Config
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

func New(factory serial.ConnectionFactory, cfg Config, log logrus.FieldLogger, m *metrics.Metrics) *Prober {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Prober{Factory: factory, Config: cfg, Log: log, Metrics: m}
}

// Discover makes one pass over the accessible ports in enumeration order and
// returns the first one whose reply contains the token.
func (p *Prober) Discover(ctx context.Context) (string, error) {
	ports, err := p.Factory.ListAccessible()
	if err != nil {
		return "", fmt.Errorf("probe: %w", err)
	}
	p.Log.WithField("ports", ports).Info("probing serial ports")

	for _, name := range ports {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		log := p.Log.WithField("port", name)
		result, err := p.probe(ctx, name)
		p.Metrics.Probe(result)
		switch result {
		case metrics.ProbeMatched:
			log.Info("valid device found")
			return name, nil
		case metrics.ProbeCanceled:
			return "", err
		case metrics.ProbeNoMatch:
			log.Info("no valid response")
		default:
			log.WithError(err).Warn("skipping port")
		}
	}
	p.Log.Warn("hardware not found")
	return "", ErrNotFound
}

// probe runs a single identification exchange. The returned error is
// informational unless the result is ProbeCanceled.
func (p *Prober) probe(ctx context.Context, name string) (string, error) {
	port, err := p.Factory.Open(serial.Props{
		Name:        name,
		Baudrate:    p.Config.Baudrate,
		ReadTimeout: p.Config.ReadTimeout,
	})
	if err != nil {
		return metrics.ProbeOpenFailed, err
	}
	defer port.Close()

	if _, err := port.Write(p.Config.Request); err != nil {
		return metrics.ProbeWriteFailed, err
	}

	size := p.Config.ReadBuffer
	if size <= 0 {
		size = 1024
	}
	buf := make([]byte, size)
	dec := unicode.UTF8.NewDecoder()
	var response strings.Builder

	deadline := time.Now().Add(p.Config.Window)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return metrics.ProbeCanceled, err
		}
		n, err := port.Read(buf)
		if n > 0 {
			text, _ := dec.Bytes(buf[:n])
			response.Write(text)
			p.Log.WithField("port", name).Debugf("partial response: %q", response.String())
			if strings.Contains(response.String(), p.Config.Token) {
				return metrics.ProbeMatched, nil
			}
		}
		if err != nil && !serial.IsTimeout(n, err) {
			return metrics.ProbeReadFailed, err
		}
	}
	p.Log.WithField("port", name).Debugf("final response: %q", response.String())
	return metrics.ProbeNoMatch, nil
}
