package telemetry

import "github.com/prometheus/client_golang/prometheus"

var ProvisioningOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sparkpilot",
		Subsystem: "provisioning",
		Name:      "operations_total",
		Help:      "Total number of provisioning operations processed, by terminal state.",
	},
	[]string{"state"},
)

var ProvisioningStepDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sparkpilot",
		Subsystem: "provisioning",
		Name:      "step_duration_seconds",
		Help:      "Duration of a single provisioning step.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"step"},
)

var RunsDispatchedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sparkpilot",
		Subsystem: "runs",
		Name:      "dispatched_total",
		Help:      "Total number of runs dispatched to the engine adapter.",
	},
	[]string{"outcome"},
)

var RunsReconciledTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sparkpilot",
		Subsystem: "runs",
		Name:      "reconciled_total",
		Help:      "Total number of runs observed by the reconciler, by resulting state.",
	},
	[]string{"state"},
)

var QuotaRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sparkpilot",
		Subsystem: "admission",
		Name:      "quota_rejections_total",
		Help:      "Total number of run submissions rejected by the quota guard, by reason.",
	},
	[]string{"reason"},
)

var IdempotentReplaysTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sparkpilot",
		Subsystem: "idempotency",
		Name:      "replays_total",
		Help:      "Total number of requests served from an existing idempotency record.",
	},
)

// All returns all SparkPilot-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		ProvisioningOperationsTotal,
		ProvisioningStepDuration,
		RunsDispatchedTotal,
		RunsReconciledTotal,
		QuotaRejectionsTotal,
		IdempotentReplaysTotal,
	}
}

// NewMetricsRegistry builds a Prometheus registry seeded with Go/process
// collectors plus the given domain collectors.
func NewMetricsRegistry(domain ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range domain {
		reg.MustRegister(c)
	}
	return reg
}
