// Package metrics exposes Prometheus collectors for the collaboration server.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsync"

// Metrics holds every collector on a private registry so tests can create
// as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions    prometheus.Gauge
	activeConnections prometheus.Gauge
	participants      prometheus.Gauge

	messagesReceived  *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	joinRejections    *prometheus.CounterVec
	reapedTotal       prometheus.Counter
	droppedDeliveries prometheus.Counter
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "active_sessions",
			Help:      "Number of documents with at least one connected participant.",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "active_connections",
			Help:      "Number of open collaboration websocket connections.",
		}),
		participants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "participants",
			Help:      "Number of participants across all sessions.",
		}),
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "messages_received_total",
			Help:      "Inbound protocol messages by type.",
		}, []string{"type"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "messages_sent_total",
			Help:      "Outbound protocol messages queued for delivery by type.",
		}, []string{"type"}),
		joinRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "join_rejections_total",
			Help:      "Rejected join requests by reason.",
		}, []string{"reason"}),
		reapedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "reaped_participants_total",
			Help:      "Participants removed by the liveness reaper.",
		}),
		droppedDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "dropped_deliveries_total",
			Help:      "Messages dropped because a recipient's outbound buffer was full.",
		}),
	}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The recorders below are nil-safe so collaboration code can run without metrics.

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) SetParticipants(n int) {
	if m == nil {
		return
	}
	m.participants.Set(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) MessagesSent(msgType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.messagesSent.WithLabelValues(msgType).Add(float64(n))
}

func (m *Metrics) JoinRejected(reason string) {
	if m == nil {
		return
	}
	m.joinRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ParticipantsReaped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.reapedTotal.Add(float64(n))
}

func (m *Metrics) DeliveryDropped() {
	if m == nil {
		return
	}
	m.droppedDeliveries.Inc()
}
