package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Invocation metrics
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_invocations_total",
			Help: "Total number of forwarding invocations",
		},
		[]string{"transport", "status"},
	)

	RecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forwarder_records_total",
			Help: "Total number of event records received",
		},
	)

	// Normalization metrics
	NormalizationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forwarder_normalization_errors_total",
			Help: "Total number of records that failed normalization",
		},
	)

	// Dispatch metrics
	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_publishes_total",
			Help: "Total number of per-destination delivery attempts",
		},
		[]string{"kind", "result"},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forwarder_dispatch_duration_seconds",
			Help:    "Duration of one envelope fan-out in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Configuration metrics
	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_config_reloads_total",
			Help: "Total number of destination config loads",
		},
		[]string{"status"},
	)
)
