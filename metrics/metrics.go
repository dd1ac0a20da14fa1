// Package metrics holds the Prometheus collectors updated by the server
// transport. Collectors are created unregistered; call Register to expose
// them.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Admission results used as the "result" label.
const (
	ResultAccepted     = "accepted"
	ResultRejected     = "rejected"
	ResultAcceptFailed = "accept_failed"
)

// Error kinds used as the "kind" label.
const (
	ErrorReceive       = "receive"
	ErrorProcessPacket = "process_packet"
	ErrorSetData       = "set_data"
	ErrorSend          = "send"
	ErrorMissingConn   = "missing_connection"
	ErrorPacketsToSend = "packets_to_send"
)

// Metrics groups the transport collectors.
type Metrics struct {
	Admissions       *prometheus.CounterVec
	ConnectedClients prometheus.Gauge
	PacketsReceived  prometheus.Counter
	BytesReceived    prometheus.Counter
	PacketsSent      prometheus.Counter
	BytesSent        prometheus.Counter
	Errors           *prometheus.CounterVec
}

// New creates the collectors under namespace. An empty namespace selects
// "renetsteam".
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "renetsteam"
	}

	return &Metrics{
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "admissions_total",
			Help:      "Connecting events handled, by result and reason.",
		}, []string{"result", "reason"}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connected_clients",
			Help:      "Entries in the connection table.",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "packets_received_total",
			Help:      "Inbound messages handed to the upstream server.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "bytes_received_total",
			Help:      "Inbound payload bytes handed to the upstream server.",
		}),
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "packets_sent_total",
			Help:      "Outbound messages accepted by the SDK.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "bytes_sent_total",
			Help:      "Outbound payload bytes accepted by the SDK.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "errors_total",
			Help:      "Transient failures, by kind.",
		}, []string{"kind"}),
	}
}

// Register adds every collector to reg. Collectors already registered with
// reg are ignored.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}

			return err
		}
	}

	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Admissions,
		m.ConnectedClients,
		m.PacketsReceived,
		m.BytesReceived,
		m.PacketsSent,
		m.BytesSent,
		m.Errors,
	}
}

// Admission counts one admission decision.
func (m *Metrics) Admission(result, reason string) {
	m.Admissions.WithLabelValues(result, reason).Inc()
}

// Error counts one transient failure.
func (m *Metrics) Error(kind string) {
	m.Errors.WithLabelValues(kind).Inc()
}

// Received counts one inbound payload.
func (m *Metrics) Received(n int) {
	m.PacketsReceived.Inc()
	m.BytesReceived.Add(float64(n))
}

// Sent counts one outbound payload.
func (m *Metrics) Sent(n int) {
	m.PacketsSent.Inc()
	m.BytesSent.Add(float64(n))
}
