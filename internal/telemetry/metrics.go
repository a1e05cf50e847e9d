package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// PagesProcessedTotal counts backfill pages processed per kind.
var PagesProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stripe_sync",
		Subsystem: "backfill",
		Name:      "pages_processed_total",
		Help:      "Total number of backfill pages processed, by object kind.",
	},
	[]string{"kind"},
)

// ObjectsProjectedTotal counts individual objects upserted by projectors.
var ObjectsProjectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stripe_sync",
		Subsystem: "projector",
		Name:      "objects_projected_total",
		Help:      "Total number of objects projected into mirror tables, by kind and source.",
	},
	[]string{"kind", "source"},
)

// WebhookEventsTotal counts webhook events processed by type and outcome.
var WebhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stripe_sync",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Total number of webhook events processed, by event type and outcome.",
	},
	[]string{"event_type", "outcome"},
)

// ProviderCallDuration tracks provider API call latency.
var ProviderCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "stripe_sync",
		Subsystem: "provider",
		Name:      "call_duration_seconds",
		Help:      "Provider API call duration in seconds, by operation.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// ProviderRetriesTotal counts retry attempts made against the provider API.
var ProviderRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stripe_sync",
		Subsystem: "provider",
		Name:      "retries_total",
		Help:      "Total number of provider API retries, by reason.",
	},
	[]string{"reason"},
)

// OpenRunsGauge tracks how many accounts currently have an open sync run.
var OpenRunsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "stripe_sync",
		Subsystem: "run",
		Name:      "open_runs",
		Help:      "Number of accounts with a currently open sync run.",
	},
)

// ManagedWebhookActionsTotal counts managed-webhook lifecycle reconciliation
// actions (create, orphan-delete, legacy-delete, cross-orphan-delete).
var ManagedWebhookActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stripe_sync",
		Subsystem: "managed_webhook",
		Name:      "actions_total",
		Help:      "Total number of managed webhook lifecycle actions, by action.",
	},
	[]string{"action"},
)

// HTTPRequestDuration tracks admin HTTP surface request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "stripe_sync",
		Subsystem: "admin_api",
		Name:      "request_duration_seconds",
		Help:      "Admin HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// All returns every engine-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PagesProcessedTotal,
		ObjectsProjectedTotal,
		WebhookEventsTotal,
		ProviderCallDuration,
		ProviderRetriesTotal,
		OpenRunsGauge,
		ManagedWebhookActionsTotal,
		HTTPRequestDuration,
	}
}

// NewRegistry creates a Prometheus registry with Go/process collectors and
// every engine metric registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
