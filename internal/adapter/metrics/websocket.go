package metrics

import "github.com/prometheus/client_golang/prometheus"

// TransportMetrics holds Prometheus metrics for the EventSub WebSocket transport.
type TransportMetrics struct {
	ActiveConnections prometheus.Gauge
	Dials             *prometheus.CounterVec
	BytesReceived     prometheus.Counter
}

// NewTransportMetrics creates and registers transport metrics on the given registry.
func NewTransportMetrics(reg prometheus.Registerer) *TransportMetrics {
	m := &TransportMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open EventSub WebSocket connections.",
		}),
		Dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "dials_total",
			Help:      "Total number of WebSocket dial attempts, by result.",
		}, []string{"result"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "received_bytes_total",
			Help:      "Total number of text frame bytes received.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.Dials, m.BytesReceived)
	return m
}
