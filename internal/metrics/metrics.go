package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all subjectboard metrics
const namespace = "subjectboard"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Content metrics
var (
	// ContentMutationsTotal counts successful content mutations by operation and content type
	ContentMutationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_mutations_total",
			Help:      "Total number of successful content mutations",
		},
		[]string{"operation", "type"},
	)

	// AuditWriteFailures counts audit entries that could not be handed to the audit sink
	AuditWriteFailures = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Total number of audit entries that failed to persist",
		},
	)
)

// Idempotency metrics
var (
	// IdempotentReplays counts keyed creates answered from an earlier result
	IdempotentReplays = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotent_replays_total",
			Help:      "Total number of creates replayed for a repeated Idempotency-Key",
		},
	)

	// IdempotencyKeysDeleted tracks the total number of expired idempotency keys deleted
	IdempotencyKeysDeleted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_keys_deleted_total",
			Help:      "Total number of expired idempotency keys deleted by the sweeper",
		},
	)
)

// Realtime metrics
var (
	// RealtimeSubscribers tracks currently connected stream viewers
	RealtimeSubscribers = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscribers",
			Help:      "Current number of connected realtime viewers",
		},
	)

	// RealtimeEventsPublished counts events handed to the broadcaster
	RealtimeEventsPublished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_published_total",
			Help:      "Total number of realtime events published",
		},
		[]string{"event"},
	)

	// RealtimeEventsDropped counts per-viewer deliveries skipped because the viewer buffer was full
	RealtimeEventsDropped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_dropped_total",
			Help:      "Total number of realtime deliveries dropped for slow viewers",
		},
		[]string{"event"},
	)
)

// Init registers runtime collectors and sets version information
func Init(version, commit, buildDate string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	_ = Registry.Register(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	_ = Registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
