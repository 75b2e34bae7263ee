// Package metrics holds the Prometheus collectors of the trust engine.
package metrics

import (
	"errors"

	"peertrust/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peertrust_opinion_cache_lookups_total",
			Help: "Network opinion cache lookups by result",
		},
		[]string{"result"},
	)

	Aggregations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peertrust_aggregations_total",
			Help: "Opinion aggregations by outcome",
		},
		[]string{"outcome"},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peertrust_aggregation_duration_seconds",
			Help:    "Time spent aggregating peer reports, store lookups included",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	ReportsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peertrust_reports_dropped_total",
			Help: "Reports ignored during aggregation because the peer has no trust record",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peertrust_store_errors_total",
			Help: "Trust store failures by operation and kind",
		},
		[]string{"op", "kind"},
	)

	UnitsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peertrust_harness_units_in_flight",
			Help: "Harness units currently running",
		},
	)

	UnitResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peertrust_harness_unit_results_total",
			Help: "Finished harness units by module and outcome",
		},
		[]string{"module", "outcome"},
	)

	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peertrust_ingest_messages_total",
			Help: "Messages received from the transport layer by subject kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// ErrorKind maps an error onto a low-cardinality label value
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrDataCorruption):
		return "data_corruption"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "other"
	}
}

// ObserveStoreError counts err against op when it is a store-layer failure
func ObserveStoreError(op string, err error) {
	if domain.IsOperational(err) {
		StoreErrors.WithLabelValues(op, ErrorKind(err)).Inc()
	}
}
