package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsync",
			Name:      "sync_attempts_total",
			Help:      "Orchestrated sync attempts by entity type and outcome.",
		},
		[]string{"entity_type", "outcome"},
	)

	drainOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsync",
			Name:      "drain_outcomes_total",
			Help:      "Drain worker item outcomes by entity type.",
		},
		[]string{"entity_type", "outcome"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "shopsync",
			Name:      "queue_depth",
			Help:      "Retry queue depth by tenant and status.",
		},
		[]string{"tenant_id", "status"},
	)

	drainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shopsync",
			Name:      "drain_pass_duration_seconds",
			Help:      "Duration of full drain passes.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncAttempts, drainOutcomes, queueDepth, drainDuration)
	})
}

// IncSync counts one orchestrator attempt: outcome is synced or queued.
// Fatal rejections never reach storage and are surfaced as errors, not
// counted here.
func IncSync(entityType, outcome string) {
	syncAttempts.WithLabelValues(entityType, outcome).Inc()
}

// IncDrainOutcome counts one drain item outcome: success, retry, or abandoned.
func IncDrainOutcome(entityType, outcome string) {
	drainOutcomes.WithLabelValues(entityType, outcome).Inc()
}

// SetQueueDepth records the queue depth for a tenant and status.
func SetQueueDepth(tenantID, status string, n int) {
	queueDepth.WithLabelValues(tenantID, status).Set(float64(n))
}

// ObserveDrain records a full drain pass duration.
func ObserveDrain(d time.Duration) {
	drainDuration.Observe(d.Seconds())
}
