package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// emailsTotal counts finalized delivery outcomes.
	// Labels:
	// - status: "sent" or "failed"
	// - mode:   "live" or "dry_run"
	emailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "delivery",
			Name:      "emails_total",
			Help:      "Emails finalized by the dispatcher.",
		},
		[]string{"status", "mode"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailer",
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Time spent handing one message to the relay.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// generationFallbacks counts AI generations replaced by the rendered draft.
	// Labels:
	// - reason: "error", "timeout" or "empty"
	generationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "personalization",
			Name:      "fallbacks_total",
			Help:      "AI generations that fell back to the deterministic draft.",
		},
		[]string{"reason"},
	)

	// dispatchRuns counts dispatch loop exits.
	// Labels:
	// - outcome: "completed", "failed", "paused", "stale" or "error"
	dispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailer",
			Subsystem: "dispatch",
			Name:      "runs_total",
			Help:      "Dispatch runs by how they ended.",
		},
		[]string{"outcome"},
	)
)

func ObserveEmail(status string, dryRun bool) {
	mode := "live"
	if dryRun {
		mode = "dry_run"
	}
	emailsTotal.WithLabelValues(status, mode).Inc()
}

func ObserveDelivery(status string, took time.Duration) {
	deliveryDuration.WithLabelValues(status).Observe(took.Seconds())
}

func ObserveFallback(reason string) {
	generationFallbacks.WithLabelValues(reason).Inc()
}

func ObserveDispatch(outcome string) {
	dispatchRuns.WithLabelValues(outcome).Inc()
}
