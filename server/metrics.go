package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the adapter's latency recorders and request counters.
type metrics struct {
	searchLatency prometheus.Histogram
	insertLatency prometheus.Histogram
	requests      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		searchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vex",
			Name:      "search_latency_seconds",
			Help:      "Search request latency.",
			Buckets:   prometheus.ExponentialBuckets(10e-6, 2, 16),
		}),
		insertLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vex",
			Name:      "insert_latency_seconds",
			Help:      "Insert request latency.",
			Buckets:   prometheus.ExponentialBuckets(10e-6, 2, 16),
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vex",
			Name:      "requests_total",
			Help:      "Requests by operation and outcome.",
		}, []string{"op", "outcome"}),
	}
}
