package stream

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/frame"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/metrics"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/serial"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/sim"
)

func nullLogger() logrus.FieldLogger {
	log, _ := logtest.NewNullLogger()
	return log
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 20 * time.Millisecond
	return cfg
}

type collector struct {
	mu       sync.Mutex
	readings []Reading
}

func (c *collector) Deliver(_ context.Context, r Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings = append(c.readings, r)
}

func (c *collector) counters() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint8, 0, len(c.readings))
	for _, r := range c.readings {
		out = append(out, r.Counter)
	}
	return out
}

func TestStreamer_SimulatedDevice(t *testing.T) {
	tf := sim.NewTickerFactory(context.Background()).
		Add("COM5", sim.Device{Period: time.Millisecond, NoiseEvery: 3, FailAfter: 10})
	m := metrics.New(prometheus.NewRegistry())
	sink := &collector{}

	err := New(tf, testConfig(), nullLogger(), m).Run(context.Background(), "COM5", sink)
	require.ErrorIs(t, err, sim.ErrDisconnected)

	require.Equal(t, []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sink.counters())
	for _, r := range sink.readings {
		require.Equal(t, "COM5", r.Serial)
		require.Equal(t, sim.Wave(r.Counter), r.Sample)
		require.False(t, r.Iat.IsZero())
	}
	require.Equal(t, 10.0, testutil.ToFloat64(m.FramesDecoded))
	// frames 2, 5, 8 are preceded by one noise byte
	require.Equal(t, 3.0, testutil.ToFloat64(m.BytesDiscarded))
	require.Equal(t, float64(10*frame.Size+3), testutil.ToFloat64(m.BytesReceived))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StreamErrors.WithLabelValues("read")))
}

func TestStreamer_OpenFailure(t *testing.T) {
	tf := sim.NewTickerFactory(context.Background()).
		Add("COM5", sim.Device{OpenErr: errors.New("permission denied")})
	err := New(tf, testConfig(), nullLogger(), nil).Run(context.Background(), "COM5", &collector{})
	require.ErrorIs(t, err, ErrOpen)
}

func TestStreamer_Cancel(t *testing.T) {
	tf := sim.NewTickerFactory(context.Background()).Add("COM5", sim.Device{Period: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	sink := SinkFunc(func(_ context.Context, r Reading) {
		if r.Counter == 4 {
			cancel()
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- New(tf, testConfig(), nullLogger(), nil).Run(ctx, "COM5", sink)
	}()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("streamer did not stop")
	}
}

func TestStreamer_StartCommandFailureIsNotTerminal(t *testing.T) {
	tf := sim.NewTickerFactory(context.Background()).
		Add("COM5", sim.Device{WriteErr: errors.New("write failed")})
	m := metrics.New(prometheus.NewRegistry())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := New(tf, testConfig(), nullLogger(), m).Run(ctx, "COM5", &collector{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1.0, testutil.ToFloat64(m.StreamErrors.WithLabelValues("start")))
	require.Positive(t, testutil.ToFloat64(m.ReadTimeouts))
}

// chunkPort hands out a fixed byte stream in chunks, then fails.
type chunkPort struct {
	data    []byte
	chunk   int
	written []byte
	err     error
}

func (p *chunkPort) Read(b []byte) (int, error) {
	if len(p.data) == 0 {
		return 0, p.err
	}
	n := p.chunk
	if n > len(p.data) {
		n = len(p.data)
	}
	n = copy(b, p.data[:n])
	p.data = p.data[n:]
	return n, nil
}

func (p *chunkPort) Write(b []byte) (int, error) {
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *chunkPort) SetReadTimeout(time.Duration) error { return nil }
func (p *chunkPort) Close() error                       { return nil }

type chunkFactory struct{ port *chunkPort }

func (f chunkFactory) Open(serial.Props) (serial.Port, error) { return f.port, nil }
func (f chunkFactory) ListAccessible() ([]string, error)     { return []string{"COM1"}, nil }

func TestStreamer_ChunkingDoesNotChangeOutput(t *testing.T) {
	var data []byte
	data = append(data, 0x00, frame.StartA)
	for i := uint8(0); i < 5; i++ {
		data = append(data, frame.Encode(sim.Wave(i))...)
		data = append(data, frame.StartA, frame.StartB)
	}
	eof := errors.New("unplugged")

	var want []uint8
	for _, chunk := range []int{len(data), 1, 3, 7, 16, 17} {
		port := &chunkPort{data: append([]byte(nil), data...), chunk: chunk, err: eof}
		sink := &collector{}
		err := New(chunkFactory{port}, testConfig(), nullLogger(), nil).Run(context.Background(), "COM1", sink)
		require.ErrorIs(t, err, eof)
		require.Equal(t, "START\r\n", string(port.written))
		if want == nil {
			want = sink.counters()
			require.Equal(t, []uint8{0, 1, 2, 3, 4}, want)
		}
		require.Equalf(t, want, sink.counters(), "chunk=%d", chunk)
	}
}

// stepPort replays one read result per call.
type stepPort struct {
	steps []step
}

type step struct {
	data []byte
	err  error
}

func (p *stepPort) Read(b []byte) (int, error) {
	s := p.steps[0]
	if len(p.steps) > 1 {
		p.steps = p.steps[1:]
	}
	return copy(b, s.data), s.err
}

func (p *stepPort) Write(b []byte) (int, error)         { return len(b), nil }
func (p *stepPort) SetReadTimeout(time.Duration) error { return nil }
func (p *stepPort) Close() error                       { return nil }

type stepFactory struct{ port *stepPort }

func (f stepFactory) Open(serial.Props) (serial.Port, error) { return f.port, nil }
func (f stepFactory) ListAccessible() ([]string, error)     { return []string{"COM1"}, nil }

func TestStreamer_DeadlineErrorsAreRetried(t *testing.T) {
	eof := errors.New("unplugged")
	port := &stepPort{steps: []step{
		{err: os.ErrDeadlineExceeded},
		{data: frame.Encode(sim.Wave(0))},
		{err: os.ErrDeadlineExceeded},
		{err: os.ErrDeadlineExceeded},
		{data: frame.Encode(sim.Wave(1))},
		{err: eof},
	}}
	m := metrics.New(prometheus.NewRegistry())
	sink := &collector{}

	err := New(stepFactory{port}, testConfig(), nullLogger(), m).Run(context.Background(), "COM1", sink)
	require.ErrorIs(t, err, eof)
	require.Equal(t, []uint8{0, 1}, sink.counters())
	require.Equal(t, 3.0, testutil.ToFloat64(m.ReadTimeouts))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StreamErrors.WithLabelValues("read")))
}

func TestTee(t *testing.T) {
	var order []string
	a := SinkFunc(func(context.Context, Reading) { order = append(order, "a") })
	b := SinkFunc(func(context.Context, Reading) { order = append(order, "b") })
	Tee(a, nil, b).Deliver(context.Background(), Reading{})
	require.Equal(t, []string{"a", "b"}, order)
}
