package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks sync delivery health. Delivery failures are non-fatal,
// so counters are the only visibility into drops.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotsSent     prometheus.Counter
	SendsDropped      prometheus.Counter
	CommandsReceived  prometheus.Counter
	MalformedPayloads prometheus.Counter
}

// NewMetrics creates a self-registered metrics set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		SnapshotsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchpoint",
			Subsystem: "relay",
			Name:      "snapshots_sent_total",
			Help:      "Snapshots pushed to connected peers.",
		}),
		SendsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchpoint",
			Subsystem: "relay",
			Name:      "sends_dropped_total",
			Help:      "Instant sends dropped because a peer was slow or gone.",
		}),
		CommandsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchpoint",
			Subsystem: "relay",
			Name:      "commands_received_total",
			Help:      "Remote commands received from peers.",
		}),
		MalformedPayloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchpoint",
			Subsystem: "relay",
			Name:      "malformed_payloads_total",
			Help:      "Inbound payloads discarded as malformed.",
		}),
	}

	reg.MustRegister(m.SnapshotsSent, m.SendsDropped, m.CommandsReceived, m.MalformedPayloads)
	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
