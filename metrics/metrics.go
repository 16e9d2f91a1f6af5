// Package metrics instruments the proxy with prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Requests          *prometheus.CounterVec
	Rejected          prometheus.Counter
	ActiveConnections prometheus.Gauge
	BodyBytes         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "janus",
			Name:      "requests_total",
			Help:      "Proxied requests by response status and upstream address.",
		}, []string{"status", "upstream"}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "janus",
			Name:      "rejected_total",
			Help:      "Connections rejected at the client admission limit.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "janus",
			Name:      "active_connections",
			Help:      "Client connections currently being handled.",
		}),
		BodyBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "janus",
			Name:      "body_bytes_total",
			Help:      "Body bytes forwarded, by direction (in: client to upstream, out: upstream to client).",
		}, []string{"direction"}),
	}
	m.registry.MustRegister(m.Requests, m.Rejected, m.ActiveConnections, m.BodyBytes)
	return m
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
