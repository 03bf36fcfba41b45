package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/probe"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/sim"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

func nullLogger() logrus.FieldLogger {
	log, _ := logtest.NewNullLogger()
	return log
}

func newSession(tf *sim.TickerFactory, sink stream.Sink) *Session {
	pcfg := probe.DefaultConfig()
	pcfg.ReadTimeout = 10 * time.Millisecond
	pcfg.Window = 50 * time.Millisecond
	scfg := stream.DefaultConfig()
	scfg.ReadTimeout = 20 * time.Millisecond

	log := nullLogger()
	return New(
		probe.New(tf, pcfg, log, nil),
		stream.New(tf, scfg, log, nil),
		sink,
		log,
	)
}

func TestSession_DiscoverThenStream(t *testing.T) {
	tf := sim.NewTickerFactory(context.Background()).
		Add("COM1", sim.Device{}).
		Add("COM2", sim.Device{Identity: "UNO-R4", Period: time.Millisecond, FailAfter: 5})

	var mu sync.Mutex
	var got []uint8
	sess := newSession(tf, stream.SinkFunc(func(_ context.Context, r stream.Reading) {
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, "COM2", r.Serial)
		got = append(got, r.Counter)
	}))
	require.Equal(t, StateIdle, sess.Status().State)

	err := sess.Run(context.Background())
	require.ErrorIs(t, err, sim.ErrDisconnected)
	require.Equal(t, []uint8{0, 1, 2, 3, 4}, got)
	// probe pass plus the streaming connection
	require.Equal(t, []string{"COM1", "COM2", "COM2"}, tf.Opened())

	st := sess.Status()
	require.Equal(t, StateStopped, st.State)
	require.Contains(t, st.LastError, sim.ErrDisconnected.Error())
}

func TestSession_NotFound(t *testing.T) {
	tf := sim.NewTickerFactory(context.Background()).Add("COM1", sim.Device{})
	sess := newSession(tf, stream.SinkFunc(func(context.Context, stream.Reading) {}))

	err := sess.Run(context.Background())
	require.ErrorIs(t, err, probe.ErrNotFound)
	require.Equal(t, []string{"COM1"}, tf.Opened())
	require.Equal(t, probe.ErrNotFound.Error(), sess.Status().LastError)
}

func TestSession_StatusWhileStreaming(t *testing.T) {
	tf := sim.NewTickerFactory(context.Background()).
		Add("COM7", sim.Device{Identity: "UNO-R4", Period: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan struct{})
	var once sync.Once
	sess := newSession(tf, stream.SinkFunc(func(context.Context, stream.Reading) {
		once.Do(func() { close(first) })
	}))

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(ctx) }()

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no reading delivered")
	}
	st := sess.Status()
	require.Equal(t, StateStreaming, st.State)
	require.Equal(t, "COM7", st.Port)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.Equal(t, StateStopped, sess.Status().State)
}

type flakyProber struct {
	mu    sync.Mutex
	calls int
	fails int
}

func (f *flakyProber) Discover(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return "", probe.ErrNotFound
	}
	return "COM3", nil
}

type stopStreamer struct {
	cancel context.CancelFunc
	ports  []string
}

func (s *stopStreamer) Run(ctx context.Context, port string, _ stream.Sink) error {
	s.ports = append(s.ports, port)
	s.cancel()
	<-ctx.Done()
	return ctx.Err()
}

func TestSession_RetryUntilFound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prober := &flakyProber{fails: 2}
	streamer := &stopStreamer{cancel: cancel}

	sess := New(prober, streamer, nil, nullLogger())
	sess.Retry = true
	sess.RetryInterval = 5 * time.Millisecond

	err := sess.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, prober.calls)
	require.Equal(t, []string{"COM3"}, streamer.ports)
}

func TestSession_RetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prober := &flakyProber{fails: 1000}
	sess := New(prober, &stopStreamer{cancel: cancel}, nil, nullLogger())
	sess.Retry = true
	sess.RetryInterval = time.Hour

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(ctx) }()

	require.Eventually(t, func() bool {
		return sess.Status().State == StateWaiting
	}, 5*time.Second, time.Millisecond)
	require.Equal(t, probe.ErrNotFound.Error(), sess.Status().LastError)

	cancel()
	require.True(t, errors.Is(<-errCh, context.Canceled))
}
