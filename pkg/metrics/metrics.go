package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoriesCharged counts story-credit charges by budget (allowance|extra_credit).
	StoriesCharged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyboom_stories_charged_total",
			Help: "Total number of story credits charged",
		},
		[]string{"budget"},
	)

	// WebhookEvents counts payment webhook deliveries by type and result
	// (processed|duplicate|error).
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyboom_webhook_events_total",
			Help: "Total number of payment webhook events received",
		},
		[]string{"type", "result"},
	)

	// SubscriptionsCancelled counts duplicate subscriptions cancelled during
	// webhook reconciliation.
	SubscriptionsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyboom_subscriptions_cancelled_total",
			Help: "Duplicate subscriptions cancelled by the reconciler",
		},
	)

	// OAuthStateResults counts state validations by outcome
	// (consumed|not_found|expired|used|mismatch).
	OAuthStateResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyboom_oauth_state_validations_total",
			Help: "OAuth state validation outcomes",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyboom_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
