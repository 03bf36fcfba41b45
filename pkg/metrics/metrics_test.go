package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Probe(ProbeOpenFailed)
	m.Probe(ProbeMatched)
	m.Probe(ProbeOpenFailed)
	require.Equal(t, 2.0, testutil.ToFloat64(m.ProbeAttempts.WithLabelValues(ProbeOpenFailed)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ProbeAttempts.WithLabelValues(ProbeMatched)))

	m.Received(32)
	m.Received(0)
	m.Decoded(2, 3)
	m.Decoded(0, 0)
	m.Timeout()
	require.Equal(t, 32.0, testutil.ToFloat64(m.BytesReceived))
	require.Equal(t, 2.0, testutil.ToFloat64(m.FramesDecoded))
	require.Equal(t, 3.0, testutil.ToFloat64(m.BytesDiscarded))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ReadTimeouts))

	m.SubscriberAdded()
	m.SubscriberAdded()
	m.SubscriberRemoved()
	m.DeliveryDropped()
	require.Equal(t, 1.0, testutil.ToFloat64(m.Subscribers))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Dropped))

	m.Publish("mqtt", nil)
	m.Publish("mqtt", errors.New("broker down"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Published.WithLabelValues("mqtt", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Published.WithLabelValues("mqtt", "error")))

	m.StreamError("read")
	require.Equal(t, 1.0, testutil.ToFloat64(m.StreamErrors.WithLabelValues("read")))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.Probe(ProbeMatched)
		m.Received(1)
		m.Decoded(1, 1)
		m.Timeout()
		m.StreamError("open")
		m.SubscriberAdded()
		m.SubscriberRemoved()
		m.DeliveryDropped()
		m.Publish("redis", nil)
	})
}
