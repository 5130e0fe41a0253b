package server

import (
	"net/http"

	"market-feed/src/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "market_feed"

// feedMetrics uses a registry per server so tests can run several servers in
// one process.
type feedMetrics struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	heldTicks       prometheus.Counter
	serializeErrors prometheus.Counter
	delivered       prometheus.Counter
	skipped         prometheus.Counter
	connections     prometheus.Gauge
	payloadBytes    prometheus.Gauge
	price           *prometheus.GaugeVec
}

func newFeedMetrics() *feedMetrics {
	m := &feedMetrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Ticks broadcast.",
		}),
		heldTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "held_ticks_total",
			Help:      "Ticks broadcast while the trading session was closed.",
		}),
		serializeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "serialize_errors_total",
			Help:      "Ticks skipped because the snapshot could not be encoded.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_delivered_total",
			Help:      "Snapshots queued to subscribers.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_skipped_total",
			Help:      "Snapshots not queued because a subscriber was not ready or its buffer was full.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Registered subscribers.",
		}),
		payloadBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "snapshot_bytes",
			Help:      "Size of the latest encoded snapshot.",
		}),
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "commodity_price",
			Help:      "Latest simulated price per commodity.",
		}, []string{"commodity"}),
	}

	m.registry.MustRegister(
		m.ticks, m.heldTicks, m.serializeErrors,
		m.delivered, m.skipped,
		m.connections, m.payloadBytes, m.price,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// -----------------------------------------------------------------------------

func (m *feedMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// -----------------------------------------------------------------------------

func (m *feedMetrics) observeTick(moved bool, sent, skipped int) {
	m.ticks.Inc()
	if !moved {
		m.heldTicks.Inc()
	}
	m.delivered.Add(float64(sent))
	m.skipped.Add(float64(skipped))
}

// -----------------------------------------------------------------------------

func (m *feedMetrics) observeSnapshot(state *models.MMarketState, size int) {
	m.payloadBytes.Set(float64(size))
	for _, c := range state.Commodities {
		m.price.WithLabelValues(c.Name).Set(c.Price)
	}
}
