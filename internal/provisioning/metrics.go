package provisioning

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Deployment metrics
	deploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hubspoke",
			Subsystem: "deployment",
			Name:      "total",
			Help:      "Total number of forward workflows by result",
		},
		[]string{"result"},
	)

	deploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hubspoke",
			Subsystem: "deployment",
			Name:      "duration_seconds",
			Help:      "Duration of forward workflows in seconds",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~85min
		},
	)

	deploymentsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hubspoke",
			Subsystem: "deployment",
			Name:      "in_flight",
			Help:      "Number of forward workflows currently running",
		},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hubspoke",
			Subsystem: "deployment",
			Name:      "step_duration_seconds",
			Help:      "Duration of workflow steps in seconds by step and result",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27min
		},
		[]string{"step", "result"},
	)

	// Rollback metrics
	rollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hubspoke",
			Subsystem: "rollback",
			Name:      "total",
			Help:      "Total number of teardowns by result",
		},
		[]string{"result"},
	)

	rollbackStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hubspoke",
			Subsystem: "rollback",
			Name:      "step_failures_total",
			Help:      "Total number of failed teardown steps by step",
		},
		[]string{"step"},
	)

	nicDeleteRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hubspoke",
			Subsystem: "rollback",
			Name:      "nic_delete_retries_total",
			Help:      "Total number of NIC deletions retried because the NIC was still reserved",
		},
	)

	orphanedResources = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hubspoke",
			Subsystem: "rollback",
			Name:      "orphaned_resources_total",
			Help:      "Total number of resources found during teardown that no completed step created",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		deploymentsTotal,
		deploymentDuration,
		deploymentsInFlight,
		stepDuration,
		rollbacksTotal,
		rollbackStepFailures,
		nicDeleteRetries,
		orphanedResources,
	)
}

func recordDeployment(result string, seconds float64) {
	deploymentsTotal.WithLabelValues(result).Inc()
	deploymentDuration.Observe(seconds)
}

func recordStep(step, result string, seconds float64) {
	stepDuration.WithLabelValues(step, result).Observe(seconds)
}

// RecordRollback records a finished teardown.
func RecordRollback(result string) {
	rollbacksTotal.WithLabelValues(result).Inc()
}

// RecordRollbackStepFailure records a failed teardown step.
func RecordRollbackStepFailure(step string) {
	rollbackStepFailures.WithLabelValues(step).Inc()
}

// RecordNICRetry records one retried NIC deletion.
func RecordNICRetry() {
	nicDeleteRetries.Inc()
}

// RecordOrphan records a resource found without a completed creating step.
func RecordOrphan(kind string) {
	orphanedResources.WithLabelValues(kind).Inc()
}
