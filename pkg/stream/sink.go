package stream

import (
	"context"
	"time"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/frame"
)

// Reading is a Sample stamped with its source port and arrival time.
type Reading struct {
	Serial string `json:"serial"`
	frame.Sample
	Iat time.Time `json:"iat"`
}

// Sink receives every decoded Reading, in stream order, on the decode
// loop's goroutine. A slow Sink slows the loop down.
type Sink interface {
	Deliver(context.Context, Reading)
}

// SinkFunc is func type of Sink.
type SinkFunc func(context.Context, Reading)

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, r Reading) {
	f(ctx, r)
}

type tee []Sink

// Tee delivers to every non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	t := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			t = append(t, s)
		}
	}
	return t
}

func (t tee) Deliver(ctx context.Context, r Reading) {
	for _, s := range t {
		s.Deliver(ctx, r)
	}
}
