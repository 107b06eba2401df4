package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	commandsTotal     *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	connectionsActive prometheus.Gauge
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hnsw_commands_total",
				Help: "Total number of commands processed by command and status",
			},
			[]string{"command", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hnsw_command_duration_seconds",
				Help:    "Duration of command execution in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 16), // 50us to ~1.6s
			},
			[]string{"command"},
		),
		connectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hnsw_connections_active",
				Help: "Number of currently open client connections",
			},
		),
	}
	m.Registry.MustRegister(m.commandsTotal, m.commandDuration, m.connectionsActive)
	return m
}

func (m *Metrics) observe(command, status string, seconds float64) {
	m.commandsTotal.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(seconds)
}
