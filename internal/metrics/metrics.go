// Package metrics exposes relay counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the relay collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connections   prometheus.Gauge
	sessions      prometheus.Gauge
	rooms         prometheus.Gauge
	events        *prometheus.CounterVec
	deliveries    prometheus.Counter
	droppedFrames prometheus.Counter
	reaped        prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pianochat",
			Name:      "connections",
			Help:      "Live relay connections.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pianochat",
			Name:      "sessions",
			Help:      "Identified connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pianochat",
			Name:      "rooms",
			Help:      "Rooms in the registry.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pianochat",
			Name:      "events_total",
			Help:      "Inbound events by kind.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pianochat",
			Name:      "fanout_deliveries_total",
			Help:      "Frames queued to room members by fan-out.",
		}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pianochat",
			Name:      "dropped_frames_total",
			Help:      "Outbound frames dropped because a send buffer was full.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pianochat",
			Name:      "heartbeat_reaped_total",
			Help:      "Connections closed by the heartbeat sweep.",
		}),
	}
	reg.MustRegister(m.connections, m.sessions, m.rooms, m.events, m.deliveries, m.droppedFrames, m.reaped)
	return m
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// SetConnections records the live connection count.
func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.connections.Set(float64(n))
	}
}

// SetSessions records the identified connection count.
func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}

// SetRooms records the registry size.
func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

// Event counts one inbound event. Unknown kinds share one label.
func (m *Metrics) Event(kind string) {
	if m != nil {
		m.events.WithLabelValues(kind).Inc()
	}
}

// Delivered counts frames queued by one fan-out.
func (m *Metrics) Delivered(n int) {
	if m != nil {
		m.deliveries.Add(float64(n))
	}
}

// Dropped counts one dropped outbound frame.
func (m *Metrics) Dropped() {
	if m != nil {
		m.droppedFrames.Inc()
	}
}

// Reaped counts one connection closed for missing heartbeats.
func (m *Metrics) Reaped() {
	if m != nil {
		m.reaped.Inc()
	}
}
