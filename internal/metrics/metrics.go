// Package metrics provides Prometheus instrumentation for evaluation runs.
// It counts iterations and configurations by outcome, times each iteration
// and records the distribution of metric values, so a long batch can be
// monitored through the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "holdoutbench"

// Metrics holds all Prometheus collectors for the harness.
type Metrics struct {
	// Iteration metrics
	IterationsTotal   *prometheus.CounterVec // Iterations by stage, model and outcome
	IterationDuration prometheus.Histogram   // Wall time of one resample, fit and score cycle
	UnscoredTotal     *prometheus.CounterVec // Metrics left unscored by metric name

	// Metric distributions
	MetricValue *prometheus.HistogramVec // Per-iteration metric values

	// Configuration metrics
	ConfigurationsTotal  *prometheus.CounterVec // Terminal configurations by status
	ActiveConfigurations prometheus.Gauge       // Configurations currently running
	SummaryMean          *prometheus.GaugeVec   // Reduced mean per stage, model and metric
	SummaryHalfWidth     *prometheus.GaugeVec   // Confidence interval half-width per stage, model and metric
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		IterationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Total number of evaluation iterations by outcome",
		}, []string{"stage", "model", "status"}),
		IterationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Duration of a single resample, fit and score iteration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		UnscoredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unscored_metrics_total",
			Help:      "Total number of metrics that could not be scored on a holdout partition",
		}, []string{"metric"}),
		MetricValue: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Distribution of per-iteration metric values",
			Buckets:   prometheus.LinearBuckets(0.05, 0.05, 20),
		}, []string{"metric"}),
		ConfigurationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configurations_total",
			Help:      "Total number of configurations that reached a terminal state",
		}, []string{"status"}),
		ActiveConfigurations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_configurations",
			Help:      "Number of configurations currently being evaluated",
		}),
		SummaryMean: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "summary_mean",
			Help:      "Mean metric value across iterations",
		}, []string{"stage", "model", "metric"}),
		SummaryHalfWidth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "summary_ci_half_width",
			Help:      "Half-width of the metric's confidence interval",
		}, []string{"stage", "model", "metric"}),
	}
}
