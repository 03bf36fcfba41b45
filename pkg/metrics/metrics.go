// Package metrics holds the prometheus collectors of the scope bridge.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe results.
const (
	ProbeMatched     = "matched"
	ProbeOpenFailed  = "open_failed"
	ProbeWriteFailed = "write_failed"
	ProbeReadFailed  = "read_failed"
	ProbeNoMatch     = "no_match"
	ProbeCanceled    = "canceled"
)

type Metrics struct {
	ProbeAttempts  *prometheus.CounterVec
	BytesReceived  prometheus.Counter
	BytesDiscarded prometheus.Counter
	FramesDecoded  prometheus.Counter
	ReadTimeouts   prometheus.Counter
	StreamErrors   *prometheus.CounterVec
	Subscribers    prometheus.Gauge
	Dropped        prometheus.Counter
	Published      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProbeAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scope_probe_attempts_total",
			Help: "Identification attempts per candidate port, by result.",
		}, []string{"result"}),
		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "scope_bytes_received_total",
			Help: "Bytes read from the streaming port.",
		}),
		BytesDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "scope_bytes_discarded_total",
			Help: "Bytes dropped while resynchronizing frame alignment.",
		}),
		FramesDecoded: f.NewCounter(prometheus.CounterOpts{
			Name: "scope_frames_decoded_total",
			Help: "Valid frames decoded and delivered.",
		}),
		ReadTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "scope_read_timeouts_total",
			Help: "Streaming reads that returned without data.",
		}),
		StreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scope_stream_errors_total",
			Help: "Stream failures by stage.",
		}, []string{"stage"}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "scope_subscribers",
			Help: "Active sample subscribers.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "scope_deliveries_dropped_total",
			Help: "Samples not delivered to a subscriber whose buffer was full.",
		}),
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scope_published_total",
			Help: "Samples handed to external brokers, by sink and result.",
		}, []string{"sink", "result"}),
	}
}

func (m *Metrics) Probe(result string) {
	if m == nil {
		return
	}
	m.ProbeAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Received(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesReceived.Add(float64(n))
}

// Decoded records the growth of the decoder counters since the last call.
func (m *Metrics) Decoded(frames, discarded uint64) {
	if m == nil {
		return
	}
	if frames > 0 {
		m.FramesDecoded.Add(float64(frames))
	}
	if discarded > 0 {
		m.BytesDiscarded.Add(float64(discarded))
	}
}

func (m *Metrics) Timeout() {
	if m == nil {
		return
	}
	m.ReadTimeouts.Inc()
}

func (m *Metrics) StreamError(stage string) {
	if m == nil {
		return
	}
	m.StreamErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.Subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.Subscribers.Dec()
}

func (m *Metrics) DeliveryDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) Publish(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Published.WithLabelValues(sink, result).Inc()
}
