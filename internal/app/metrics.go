package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks generation and price-fetch outcomes.
type Metrics struct {
	generationsTotal   *prometheus.CounterVec
	generationDuration prometheus.Histogram
	priceFetchesTotal  *prometheus.CounterVec
}

// NewMetrics registers the application metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		generationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_generations_total",
			Help: "Listing generation calls by marketplace and outcome.",
		}, []string{"marketplace", "outcome"}),
		generationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "listing_generation_duration_seconds",
			Help:    "Wall time of listing generation calls.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		priceFetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "price_fetches_total",
			Help: "Price history fetches by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) observeGeneration(marketplace, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generationsTotal.WithLabelValues(marketplace, outcome).Inc()
	m.generationDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observePriceFetch(result string) {
	if m == nil {
		return
	}
	m.priceFetchesTotal.WithLabelValues(result).Inc()
}
