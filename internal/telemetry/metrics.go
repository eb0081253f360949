package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the product cache core. Registered on the
// default registry; cmd/server exposes them on /metrics.
var (
	// FetchesTotal counts resolved fetches by outcome
	// (available, not_found, failed, mismatch).
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scan_service",
		Name:      "fetches_total",
		Help:      "Product fetches resolved, by outcome",
	}, []string{"outcome"})

	// PrefetchesTotal counts fetches triggered by the range prefetch.
	PrefetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scan_service",
		Name:      "prefetches_total",
		Help:      "Fetches triggered by range prefetch",
	})

	// RecordsTracked is the current size of the product collection.
	RecordsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scan_service",
		Name:      "records_tracked",
		Help:      "Product records currently held in the collection",
	})

	// EventsDropped counts events dropped on full subscriber channels.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scan_service",
		Name:      "events_dropped_total",
		Help:      "Change events dropped because a subscriber was slow",
	})
)
