// Package hub fans the decoded stream out to any number of subscribers.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/metrics"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

var ErrAlreadyClosed = errors.New("subscription is closed")
var ErrTimedOut = errors.New("request timed out")

// Hub is a stream.Sink. Every Reading is offered to each subscriber
// without blocking: a subscriber whose buffer is full misses it.
type Hub struct {
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	mu     *sync.RWMutex
	peers  []*Subscription
}

func New(ctx context.Context, log logrus.FieldLogger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	hubCtx, cancel := context.WithCancel(ctx)
	h := &Hub{
		Log:     log,
		Metrics: m,
		ctx:     hubCtx,
		cancel:  cancel,
		mu:      &sync.RWMutex{},
	}
	// once parent context is done, subscribers are released too
	go func() {
		<-hubCtx.Done()
		h.Close()
	}()
	return h
}

// Deliver implements stream.Sink.
func (h *Hub) Deliver(_ context.Context, r stream.Reading) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i, peer := range h.peers {
		select {
		case peer.ch <- r:
		default:
			h.Metrics.DeliveryDropped()
			h.Log.WithField("peer", i).Debug("subscriber lagging, sample skipped")
		}
	}
}

// Subscribe registers a new subscriber with room for buffer pending readings.
func (h *Hub) Subscribe(buffer int) (*Subscription, error) {
	if buffer < 1 {
		buffer = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return nil, ErrAlreadyClosed
	}
	ctx, cancel := context.WithCancel(h.ctx)
	sub := &Subscription{
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		ch:     make(chan stream.Reading, buffer),
	}
	h.peers = append(h.peers, sub)
	h.Metrics.SubscriberAdded()
	h.Log.WithField("subscribers", len(h.peers)).Debug("subscriber added")
	return sub, nil
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close releases every subscriber. Later Subscribe calls fail.
func (h *Hub) Close() {
	h.cancel()
	h.mu.RLock()
	peers := append([]*Subscription(nil), h.peers...)
	h.mu.RUnlock()
	for _, peer := range peers {
		_ = peer.Close()
	}
}

// remove drops sub from the peer list and closes its channel.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, peer := range h.peers {
		if peer == sub {
			h.peers[i] = h.peers[len(h.peers)-1]
			h.peers = h.peers[:len(h.peers)-1]
			close(sub.ch)
			h.Metrics.SubscriberRemoved()
			return
		}
	}
}

// Subscription is one consumer's view of the stream.
type Subscription struct {
	hub    *Hub
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan stream.Reading

	mu   sync.Mutex
	done bool
}

// Recv waits up to t for the next reading.
func (s *Subscription) Recv(t time.Duration) (stream.Reading, error) {
	timer := time.NewTimer(t)
	defer timer.Stop()
	select {
	case r, open := <-s.ch:
		if !open {
			return stream.Reading{}, ErrAlreadyClosed
		}
		return r, nil
	case <-s.ctx.Done():
		return stream.Reading{}, ErrAlreadyClosed
	case <-timer.C:
	}
	return stream.Reading{}, ErrTimedOut
}

// C exposes the delivery channel. It is closed with the subscription.
func (s *Subscription) C() <-chan stream.Reading {
	return s.ch
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Close unsubscribes. Closing twice yields ErrAlreadyClosed.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrAlreadyClosed
	}
	s.done = true
	s.cancel()
	s.hub.remove(s)
	return nil
}
