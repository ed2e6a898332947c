package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeClean labels validations where every declared bound held.
	OutcomeClean = "clean"
	// OutcomeAnomalous labels validations that produced descriptions.
	OutcomeAnomalous = "anomalous"
	// OutcomeError labels validations that failed before the comparator ran.
	OutcomeError = "error"
)

var (
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftgate",
			Name:      "validations_total",
			Help:      "Total number of dataset validations handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	validationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "driftgate",
			Name:      "validation_seconds",
			Help:      "Validation latency in seconds.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	thresholdAdjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftgate",
			Name:      "threshold_adjustments_total",
			Help:      "Comparator bounds loosened during validation, partitioned by kind and bound.",
		},
		[]string{"kind", "bound"},
	)

	snapshotsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "driftgate",
			Name:      "snapshots_ingested_total",
			Help:      "Statistics snapshots accepted into the store.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftgate",
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, partitioned by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driftgate",
			Name:      "http_request_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "method"},
	)
)

// Register attaches driftgate collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		validationsTotal,
		validationDurationSeconds,
		thresholdAdjustmentsTotal,
		snapshotsIngestedTotal,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveValidation records a validation duration and outcome label.
func ObserveValidation(duration time.Duration, outcome string) {
	label := outcome
	switch label {
	case OutcomeClean, OutcomeAnomalous, OutcomeError:
	default:
		label = OutcomeClean
	}
	validationsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	validationDurationSeconds.Observe(duration.Seconds())
}

// ObserveAdjustment counts one loosened bound for a comparator kind.
func ObserveAdjustment(kind, bound string) {
	thresholdAdjustmentsTotal.WithLabelValues(kind, bound).Inc()
}

// ObserveSnapshotIngested counts one accepted snapshot.
func ObserveSnapshotIngested() {
	snapshotsIngestedTotal.Inc()
}

// ObserveHTTPRequest records one handled HTTP request.
func ObserveHTTPRequest(route, method, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, status).Inc()
	if duration < 0 {
		duration = 0
	}
	httpRequestDurationSeconds.WithLabelValues(route, method).Observe(duration.Seconds())
}
