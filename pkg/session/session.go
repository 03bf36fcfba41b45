// Package session ties discovery and streaming together: it finds the scope,
// streams from it and, when configured to, starts over after a failure.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateStreaming   State = "streaming"
	StateWaiting     State = "waiting"
	StateStopped     State = "stopped"
)

// Status is a point-in-time view of a Session.
type Status struct {
	State     State     `json:"state"`
	Port      string    `json:"port,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
}

type Discoverer interface {
	Discover(ctx context.Context) (string, error)
}

type Streamer interface {
	Run(ctx context.Context, port string, sink stream.Sink) error
}

type Session struct {
	Prober   Discoverer
	Streamer Streamer
	Sink     stream.Sink
	// Retry restarts discovery RetryInterval after any failure.
	Retry         bool
	RetryInterval time.Duration
	Log           logrus.FieldLogger

	mu     sync.RWMutex
	status Status
}

func New(prober Discoverer, streamer Streamer, sink stream.Sink, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		Prober:   prober,
		Streamer: streamer,
		Sink:     sink,
		Log:      log,
		status:   Status{State: StateIdle, Since: time.Now()},
	}
}

// Status is safe to call from any goroutine.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) set(state State, port string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{State: state, Port: port, Since: time.Now()}
	if err != nil {
		s.status.LastError = err.Error()
	}
}

// Run discovers the device and streams from it. Without Retry the outcome
// of the first attempt is returned. With Retry it keeps going until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	for {
		err := s.attempt(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.set(StateStopped, "", nil)
			s.Log.Info("session stopped")
			return ctxErr
		}
		if !s.Retry {
			s.set(StateStopped, "", err)
			return err
		}

		s.set(StateWaiting, "", err)
		s.Log.WithError(err).WithField("retry_in", s.RetryInterval).Warn("session failed, retrying")
		timer := time.NewTimer(s.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.set(StateStopped, "", nil)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Session) attempt(ctx context.Context) error {
	s.set(StateDiscovering, "", nil)
	port, err := s.Prober.Discover(ctx)
	if err != nil {
		return err
	}
	s.set(StateStreaming, port, nil)
	s.Log.WithField("port", port).Info("streaming")
	err = s.Streamer.Run(ctx, port, s.Sink)
	if err == nil {
		err = errors.New("session: stream ended")
	}
	return err
}
