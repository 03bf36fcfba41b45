package web

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/hub"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/session"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

const (
	MethodRead     = "read"
	MethodStop     = "stop"
	MethodDiscover = "discover"
	MethodStatus   = "status"
)

var (
	ErrConnectionClosed = errors.New("not reading")
	ErrAlreadyReading   = errors.New("already reading")
	ErrMethodInvalid    = errors.New("this method is not supported")
)

// PortLister enumerates serial ports for the discover method.
type PortLister interface {
	ListAccessible() ([]string, error)
}

// SockHandlerFactory implementation. Produces SampleSockClients
// subscribed to the shared hub.
type SampleSockClientFactory struct {
	Ctx    context.Context
	Hub    *hub.Hub
	Ports  PortLister
	Status func() session.Status
	// ReadTimeout bounds client silence and the default per-sample wait.
	ReadTimeout time.Duration
	// Buffer is the per-client subscription capacity.
	Buffer int
	Log    logrus.FieldLogger
}

func (f *SampleSockClientFactory) New(conn *websocket.Conn) SockHandler {
	select {
	case <-f.Ctx.Done():
		return nil
	default:
	}
	log := f.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SampleSockClient{
		Ctx:        f.Ctx,
		Conn:       conn,
		Wg:         &sync.WaitGroup{},
		Mu:         &sync.Mutex{},
		WriterChan: make(chan []byte, 10),
		Timeout:    f.ReadTimeout,
		Buffer:     f.Buffer,
		Hub:        f.Hub,
		Ports:      f.Ports,
		Status:     f.Status,
		Log:        log.WithField("remote", conn.RemoteAddr().String()),
	}
}

// SockHandler implementation. Dispatches websocket requests
// and streams samples from the hub.
type SampleSockClient struct {
	Ctx        context.Context
	Conn       *websocket.Conn
	Wg         *sync.WaitGroup
	Mu         *sync.Mutex
	WriterChan chan []byte
	Timeout    time.Duration
	Buffer     int
	Hub        *hub.Hub
	Ports      PortLister
	Status     func() session.Status
	Log        logrus.FieldLogger

	active *hub.Subscription
}

// Read blocks until the client disconnects or stays silent for longer
// than Timeout. Requests are handled in separate goroutines; the writer
// channel is closed once all of them finish.
func (cl *SampleSockClient) Read() {
	defer func() {
		cl.Wg.Wait()
		close(cl.WriterChan)
		cl.Log.Debug("cleaned up after client disconnected")
	}()

	peersContext, peersContextCancel := context.WithCancel(cl.Ctx)
	defer peersContextCancel()

	for {
		cl.Conn.SetReadDeadline(time.Now().Add(cl.Timeout))
		_, r, err := cl.Conn.NextReader()
		if err != nil {
			cl.Log.WithError(err).Debug("client gone")
			return
		}
		buf := SerialRequest{}
		if err = json.NewDecoder(r).Decode(&buf); err != nil {
			cl.Log.WithError(err).Warn("bad read from client")
			cl.send(peersContext, JsonifyError(err, ""))
			continue
		}
		cl.Wg.Add(1)
		go cl.Handle(peersContext, buf)
	}
}

// Write is launched next to Read and exits once the writer channel is closed.
func (cl *SampleSockClient) Write() {
	for msg := range cl.WriterChan {
		if err := cl.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			cl.Log.WithError(err).Debug("send failed")
			// keep draining so that handlers never block
			for range cl.WriterChan {
			}
			return
		}
	}
}

func (cl *SampleSockClient) send(ctx context.Context, msg []byte) bool {
	select {
	case cl.WriterChan <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// Handle dispatches on the request method. It holds the WaitGroup so that
// Read does not close the writer channel under it.
func (cl *SampleSockClient) Handle(ctx context.Context, r SerialRequest) {
	defer cl.Wg.Done()

	switch r.Method {
	case MethodRead:
		cl.handleRead(ctx, r)
	case MethodDiscover:
		cl.handleDiscover(ctx)
	case MethodStatus:
		cl.handleStatus(ctx)
	case MethodStop:
		cl.handleStop(ctx)
	default:
		cl.send(ctx, JsonifyError(ErrMethodInvalid, ""))
	}
}

func (cl *SampleSockClient) currentPort() string {
	if cl.Status == nil {
		return ""
	}
	return cl.Status().Port
}

func (cl *SampleSockClient) handleDiscover(ctx context.Context) {
	var serials []string
	if cl.Ports != nil {
		ports, err := cl.Ports.ListAccessible()
		if err != nil {
			cl.send(ctx, JsonifyError(err, ""))
			return
		}
		serials = ports
	}
	msg, err := json.Marshal(&DiscoverySerialMessage{
		Serials: serials,
		Active:  cl.currentPort(),
		Iat:     time.Now(),
	})
	if err != nil {
		cl.send(ctx, JsonifyError(err, ""))
		return
	}
	cl.send(ctx, msg)
}

func (cl *SampleSockClient) handleStatus(ctx context.Context) {
	st := StatusMessage{Status: session.Status{State: session.StateIdle}}
	if cl.Status != nil {
		st.Status = cl.Status()
	}
	if cl.Hub != nil {
		st.Subscribers = cl.Hub.Len()
	}
	msg, err := json.Marshal(&st)
	if err != nil {
		cl.send(ctx, JsonifyError(err, ""))
		return
	}
	cl.send(ctx, msg)
}

func (cl *SampleSockClient) handleStop(ctx context.Context) {
	cl.Mu.Lock()
	sub := cl.active
	cl.active = nil
	cl.Mu.Unlock()

	if sub == nil {
		cl.send(ctx, JsonifyError(ErrConnectionClosed, cl.currentPort()))
		return
	}
	cl.Log.Info("client asked to stop")
	if err := sub.Close(); err != nil {
		cl.send(ctx, JsonifyError(err, cl.currentPort()))
	}
}

// handleRead streams samples until the client stops it, disconnects
// or no sample arrives within the timeout.
func (cl *SampleSockClient) handleRead(ctx context.Context, r SerialRequest) {
	timeout := cl.Timeout
	if r.Timeout > 0 {
		timeout = time.Duration(r.Timeout) * time.Millisecond
	}

	cl.Mu.Lock()
	if cl.active != nil {
		cl.Mu.Unlock()
		cl.send(ctx, JsonifyError(ErrAlreadyReading, cl.currentPort()))
		return
	}
	sub, err := cl.Hub.Subscribe(cl.Buffer)
	if err != nil {
		cl.Mu.Unlock()
		cl.send(ctx, JsonifyError(err, cl.currentPort()))
		return
	}
	cl.active = sub
	cl.Mu.Unlock()
	defer sub.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			cl.endRead(ctx, sub, hub.ErrTimedOut)
			return
		case reading, open := <-sub.C():
			if !open {
				cl.endRead(ctx, sub, hub.ErrAlreadyClosed)
				return
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
			msg, err := json.Marshal(sampleMessage(reading))
			if err != nil {
				continue
			}
			if !cl.send(ctx, msg) {
				return
			}
		}
	}
}

// endRead reports why a read ended unless a stop request
// already released sub.
func (cl *SampleSockClient) endRead(ctx context.Context, sub *hub.Subscription, err error) {
	cl.Mu.Lock()
	owned := cl.active == sub
	if owned {
		cl.active = nil
	}
	cl.Mu.Unlock()
	if owned {
		cl.Log.WithError(err).Info("read ended")
		cl.send(ctx, JsonifyError(err, cl.currentPort()))
	}
}

func sampleMessage(r stream.Reading) *SampleMessage {
	return &SampleMessage{
		Serial:   r.Serial,
		Counter:  r.Counter,
		Channels: r.Channels,
		Iat:      r.Iat,
	}
}
