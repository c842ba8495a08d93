package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClientMetrics_NilReceiver(t *testing.T) {
	var m *ClientMetrics
	assert.NotPanics(t, func() {
		m.FrameReceived("notification")
		m.DecodeError()
		m.EventEnqueued("follow")
		m.EventDiscarded("duplicate")
		m.Reconnect("keepalive_timeout")
		m.SubscriptionResult("confirmed")
		m.SetSessionState(3)
		m.SetQueueDepth(10, false)
	})
}

func TestClientMetrics_Counts(t *testing.T) {
	m := NewClientMetrics(prometheus.NewRegistry())

	m.FrameReceived("notification")
	m.FrameReceived("notification")
	m.EventEnqueued("follow")
	m.EventDiscarded("duplicate")
	m.Reconnect("close_4005")
	m.SubscriptionResult("failed")
	m.SetSessionState(3)
	m.SetQueueDepth(12001, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("notification")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsEnqueued.WithLabelValues("follow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDiscarded.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects.WithLabelValues("close_4005")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Subscriptions.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionState))
	assert.Equal(t, 12001.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueOverLimit))
}

func TestTransportMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTransportMetrics(reg)
	m.Dials.WithLabelValues("ok").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dials.WithLabelValues("ok")))
	assert.Panics(t, func() { NewTransportMetrics(reg) }, "registering twice on one registry is an error")
}
