package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "cipherrelay"

// metrics holds the server's instruments. Each Server has its own registry so
// several servers can run in one process.
type metrics struct {
	registry        *prometheus.Registry
	accepted        prometheus.Counter
	handled         *prometheus.CounterVec
	inFlight        prometheus.Gauge
	bytesEncrypted  prometheus.Counter
	keyCacheLookups *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_accepted_total",
			Help:      "Connections accepted by the listener.",
		}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_handled_total",
			Help:      "Connections whose handler has finished, by result.",
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_in_flight",
			Help:      "Connections accepted but not yet reaped.",
		}),
		bytesEncrypted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "encrypted_bytes_total",
			Help:      "Ciphertext bytes sent to clients.",
		}),
		keyCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "key_cache_lookups_total",
			Help:      "Key schedule cache lookups, by hit or miss.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.accepted, m.handled, m.inFlight, m.bytesEncrypted, m.keyCacheLookups)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
