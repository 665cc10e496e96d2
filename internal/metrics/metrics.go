// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fellowship",
		Subsystem: "gateway",
		Name:      "connections",
		Help:      "Open gateway WebSocket connections.",
	})

	ChangesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fellowship",
		Subsystem: "gateway",
		Name:      "changes_published_total",
		Help:      "Row change events published, by table and type.",
	}, []string{"table", "type"})

	PresenceSyncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fellowship",
		Subsystem: "gateway",
		Name:      "presence_syncs_total",
		Help:      "Presence state snapshots broadcast to channel members.",
	})

	DroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fellowship",
		Subsystem: "gateway",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped by the gateway, by reason.",
	}, []string{"reason"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fellowship",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by a rate limit, by bucket.",
	}, []string{"bucket"})

	DonationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fellowship",
		Subsystem: "donations",
		Name:      "transitions_total",
		Help:      "Donation status transitions applied.",
	}, []string{"status"})

	DonatedAmount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fellowship",
		Subsystem: "donations",
		Name:      "completed_amount_cents_total",
		Help:      "Sum of completed donation amounts in minor units.",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fellowship",
		Subsystem: "notify",
		Name:      "pushes_total",
		Help:      "Push notification attempts, by outcome.",
	}, []string{"outcome"})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fellowship",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions, by job and outcome.",
	}, []string{"job", "outcome"})
)
