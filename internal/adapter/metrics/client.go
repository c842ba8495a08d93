package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics holds Prometheus metrics for the EventSub session, normalizer and queue.
// Methods are safe to call on a nil receiver.
type ClientMetrics struct {
	FramesReceived  *prometheus.CounterVec
	DecodeErrors    prometheus.Counter
	EventsEnqueued  *prometheus.CounterVec
	EventsDiscarded *prometheus.CounterVec
	Reconnects      *prometheus.CounterVec
	Subscriptions   *prometheus.CounterVec
	SessionState    prometheus.Gauge
	QueueDepth      prometheus.Gauge
	QueueOverLimit  prometheus.Gauge
}

// NewClientMetrics creates and registers client metrics on the given registry.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventsub",
			Name:      "frames_received_total",
			Help:      "Total number of EventSub frames received, by message type.",
		}, []string{"type"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventsub",
			Name:      "decode_errors_total",
			Help:      "Total number of frames dropped because they could not be decoded.",
		}),
		EventsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "enqueued_total",
			Help:      "Total number of normalized events enqueued, by kind.",
		}, []string{"kind"}),
		EventsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "discarded_total",
			Help:      "Total number of notifications not enqueued, by reason.",
		}, []string{"reason"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventsub",
			Name:      "reconnects_total",
			Help:      "Total number of session restarts, by cause.",
		}, []string{"cause"}),
		Subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventsub",
			Name:      "subscriptions_total",
			Help:      "Total number of subscription outcomes, by status.",
		}, []string{"status"}),
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eventsub",
			Name:      "session_state",
			Help:      "Current session state (0 connecting, 1 welcomed, 2 subscribing, 3 live, 4 reconnecting, 5 closed, 6 faulted).",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of events waiting to be polled.",
		}),
		QueueOverLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "over_soft_limit",
			Help:      "1 while the queue depth is above its advisory limit.",
		}),
	}

	reg.MustRegister(m.FramesReceived, m.DecodeErrors, m.EventsEnqueued, m.EventsDiscarded,
		m.Reconnects, m.Subscriptions, m.SessionState, m.QueueDepth, m.QueueOverLimit)
	return m
}

func (m *ClientMetrics) FrameReceived(messageType string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(messageType).Inc()
}

func (m *ClientMetrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *ClientMetrics) EventEnqueued(kind string) {
	if m == nil {
		return
	}
	m.EventsEnqueued.WithLabelValues(kind).Inc()
}

func (m *ClientMetrics) EventDiscarded(reason string) {
	if m == nil {
		return
	}
	m.EventsDiscarded.WithLabelValues(reason).Inc()
}

func (m *ClientMetrics) Reconnect(cause string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(cause).Inc()
}

func (m *ClientMetrics) SubscriptionResult(status string) {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues(status).Inc()
}

func (m *ClientMetrics) SetSessionState(state int) {
	if m == nil {
		return
	}
	m.SessionState.Set(float64(state))
}

func (m *ClientMetrics) SetQueueDepth(depth int, overLimit bool) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
	if overLimit {
		m.QueueOverLimit.Set(1)
	} else {
		m.QueueOverLimit.Set(0)
	}
}
