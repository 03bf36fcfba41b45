package sim

import (
	"bytes"
	"context"
	"math"
	"sync"
	"time"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/frame"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/serial"
)

// Commands understood by the simulated firmware.
const (
	CmdIdentify = "WHORU"
	CmdStart    = "START"
	CmdStop     = "STOP"
)

const noiseByte = 0x55

// Device describes the behaviour of one simulated port.
type Device struct {
	// Identity is sent back on WHORU. Empty means the device never answers.
	Identity string
	// Period between frames once START was received.
	Period time.Duration
	// A noise byte precedes every NoiseEvery-th frame. Zero disables noise.
	NoiseEvery int
	// After FailAfter frames reads fail with ErrDisconnected. Zero never fails.
	FailAfter int

	OpenErr  error
	WriteErr error
}

type port struct {
	dev    Device
	name   string
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	pending     []byte
	cmd         []byte
	readTimeout time.Duration
	streaming   bool
	failed      bool
	closed      bool
	notify      chan struct{}
}

func newPort(ctx context.Context, p serial.Props, dev Device) *port {
	portCtx, cancel := context.WithCancel(ctx)
	return &port{
		dev:         dev,
		name:        p.Name,
		ctx:         portCtx,
		cancel:      cancel,
		readTimeout: p.ReadTimeout,
		notify:      make(chan struct{}, 1),
	}
}

func (pt *port) SetReadTimeout(t time.Duration) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.readTimeout = t
	return nil
}

func (pt *port) Write(p []byte) (int, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.closed {
		return 0, ErrClosed
	}
	if pt.dev.WriteErr != nil {
		return 0, pt.dev.WriteErr
	}
	pt.cmd = append(pt.cmd, p...)
	for {
		i := bytes.IndexByte(pt.cmd, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(pt.cmd[:i], "\r"))
		pt.cmd = pt.cmd[i+1:]
		pt.handle(line)
	}
	return len(p), nil
}

// handle runs with pt.mu held.
func (pt *port) handle(line string) {
	switch line {
	case CmdIdentify:
		if pt.dev.Identity != "" {
			pt.push([]byte(pt.dev.Identity + "\r\n"))
		}
	case CmdStart:
		if !pt.streaming {
			pt.streaming = true
			go pt.tick()
		}
	case CmdStop:
		pt.streaming = false
	}
}

// push runs with pt.mu held.
func (pt *port) push(p []byte) {
	pt.pending = append(pt.pending, p...)
	select {
	case pt.notify <- struct{}{}:
	default:
	}
}

func (pt *port) tick() {
	period := pt.dev.Period
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var sent int
	for {
		select {
		case <-pt.ctx.Done():
			return
		case <-ticker.C:
		}
		pt.mu.Lock()
		if !pt.streaming || pt.closed {
			pt.mu.Unlock()
			return
		}
		if pt.dev.FailAfter > 0 && sent >= pt.dev.FailAfter {
			pt.failed = true
			pt.push(nil)
			pt.mu.Unlock()
			return
		}
		if pt.dev.NoiseEvery > 0 && sent%pt.dev.NoiseEvery == pt.dev.NoiseEvery-1 {
			pt.push([]byte{noiseByte})
		}
		pt.push(frame.Encode(Wave(uint8(sent))))
		sent++
		pt.mu.Unlock()
	}
}

func (pt *port) Read(p []byte) (int, error) {
	for {
		pt.mu.Lock()
		if pt.closed {
			pt.mu.Unlock()
			return 0, ErrClosed
		}
		if len(pt.pending) > 0 {
			n := copy(p, pt.pending)
			pt.pending = pt.pending[n:]
			pt.mu.Unlock()
			return n, nil
		}
		if pt.failed {
			pt.mu.Unlock()
			return 0, ErrDisconnected
		}
		timeout := pt.readTimeout
		pt.mu.Unlock()

		var timer *time.Timer
		var expired <-chan time.Time
		if timeout > 0 {
			timer = time.NewTimer(timeout)
			expired = timer.C
		}
		select {
		case <-pt.notify:
			if timer != nil {
				timer.Stop()
			}
		case <-pt.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return 0, ErrClosed
		case <-expired:
			return 0, nil
		}
	}
}

func (pt *port) Close() error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.closed {
		return ErrClosed
	}
	pt.closed = true
	pt.streaming = false
	pt.cancel()
	return nil
}

// Wave returns the sample the simulator emits for counter.
// Each channel is a phase shifted sine wave.
func Wave(counter uint8) frame.Sample {
	s := frame.Sample{Counter: counter}
	for i := range s.Channels {
		phase := 2 * math.Pi * (float64(counter) + float64(i)*10) / 64
		s.Channels[i] = int16(1000 * math.Sin(phase))
	}
	return s
}
