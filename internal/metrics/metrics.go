package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors updated while tracking one book
type Metrics struct {
	UpdatesApplied prometheus.Counter
	UpdatesDropped prometheus.Counter
	BookLevels     *prometheus.GaugeVec
	BestPrice      *prometheus.GaugeVec
	Spread         prometheus.Gauge
	PegOutcomes    *prometheus.CounterVec
	FeedClients    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers the collectors on a fresh registry
func New(symbol string) *Metrics {
	labels := prometheus.Labels{"symbol": symbol}

	m := &Metrics{
		UpdatesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pegbook_updates_applied_total", Help: "Depth updates merged into the book", ConstLabels: labels,
		}),
		UpdatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pegbook_updates_dropped_total", Help: "Depth updates older than the snapshot", ConstLabels: labels,
		}),
		BookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pegbook_book_levels", Help: "Price levels per side", ConstLabels: labels,
		}, []string{"side"}),
		BestPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pegbook_best_price", Help: "Best price per side", ConstLabels: labels,
		}, []string{"side"}),
		Spread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pegbook_spread", Help: "Best ask minus best bid", ConstLabels: labels,
		}),
		PegOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pegbook_peg_outcomes_total", Help: "Pegged price computations by side and outcome", ConstLabels: labels,
		}, []string{"side", "outcome"}),
		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pegbook_feed_clients", Help: "Connected feed clients",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.UpdatesApplied, m.UpdatesDropped, m.BookLevels, m.BestPrice, m.Spread, m.PegOutcomes, m.FeedClients,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
