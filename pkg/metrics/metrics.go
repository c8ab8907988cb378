package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by the indexer.
	MetricsSubsystem = "indexer"
	// ProcessorLabel labels per-processor series with the processor name.
	ProcessorLabel = "name"
)

// Metrics contains the process-wide counters mutated by the tailer, processors and pool.
// All fields are safe for concurrent use.
type Metrics struct {
	// Number of ProcessWithStatus invocations, per processor.
	ProcessorInvocations metrics.Counter
	// Number of ranges committed successfully, per processor.
	ProcessorSuccesses metrics.Counter
	// Number of ranges that failed processing, per processor.
	ProcessorErrors metrics.Counter
	// Number of pooled connections handed out.
	GotConnection metrics.Counter
	// Number of failed attempts to obtain a pooled connection.
	UnableToGetConnection metrics.Counter
	// Highest version with a status row, per processor.
	LatestVersion metrics.Gauge
	// Number of versions currently recorded as failed, per processor.
	ErrorVersions metrics.Gauge
}

// PrometheusMetrics returns Metrics registered with the default Prometheus registry.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		ProcessorInvocations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "processor_invocation_count",
			Help:      "Number of times a processor was invoked on a range of versions.",
		}, []string{ProcessorLabel}),
		ProcessorSuccesses: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "processor_success_count",
			Help:      "Number of ranges a processor committed successfully.",
		}, []string{ProcessorLabel}),
		ProcessorErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "processor_error_count",
			Help:      "Number of ranges a processor failed to process.",
		}, []string{ProcessorLabel}),
		GotConnection: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "got_connection",
			Help:      "Number of times a database connection was obtained from the pool.",
		}, []string{}),
		UnableToGetConnection: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "unable_to_get_connection",
			Help:      "Number of failed attempts to obtain a database connection from the pool.",
		}, []string{}),
		LatestVersion: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "processor_latest_version",
			Help:      "Highest version with a status row for the processor.",
		}, []string{ProcessorLabel}),
		ErrorVersions: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "processor_error_versions",
			Help:      "Number of versions recorded as failed for the processor.",
		}, []string{ProcessorLabel}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		ProcessorInvocations:  discard.NewCounter(),
		ProcessorSuccesses:    discard.NewCounter(),
		ProcessorErrors:       discard.NewCounter(),
		GotConnection:         discard.NewCounter(),
		UnableToGetConnection: discard.NewCounter(),
		LatestVersion:         discard.NewGauge(),
		ErrorVersions:         discard.NewGauge(),
	}
}
