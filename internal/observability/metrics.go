// Package observability registers the service's Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncPassCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedsync",
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Reconciliation passes run, labeled by provider and outcome.",
	}, []string{"provider", "outcome"})

	pulledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedsync",
		Subsystem: "sync",
		Name:      "events_pulled_total",
		Help:      "Remote events seen during pull passes, labeled by provider.",
	}, []string{"provider"})

	materializedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedsync",
		Subsystem: "sync",
		Name:      "activities_materialized_total",
		Help:      "Local activities created from pulled remote events.",
	}, []string{"provider"})

	pushedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedsync",
		Subsystem: "sync",
		Name:      "events_pushed_total",
		Help:      "Remote events created or updated from local activities.",
	}, []string{"provider", "op"})

	lastSyncGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "schedsync",
		Subsystem: "sync",
		Name:      "last_pass_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed pass per provider.",
	}, []string{"provider"})

	refreshAttemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedsync",
		Subsystem: "oauth",
		Name:      "token_refresh_attempts_total",
		Help:      "Refresh-grant round trips attempted, labeled by provider.",
	}, []string{"provider"})

	refreshFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedsync",
		Subsystem: "oauth",
		Name:      "token_refresh_failures_total",
		Help:      "Refresh-grant round trips rejected by the provider.",
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(
		syncPassCounter,
		pulledCounter,
		materializedCounter,
		pushedCounter,
		lastSyncGauge,
		refreshAttemptCounter,
		refreshFailureCounter,
	)
}

// RecordSyncPass counts one completed or failed reconciliation pass.
func RecordSyncPass(provider, outcome string, finished time.Time) {
	syncPassCounter.WithLabelValues(provider, outcome).Inc()
	if outcome == "ok" && !finished.IsZero() {
		lastSyncGauge.WithLabelValues(provider).Set(float64(finished.Unix()))
	}
}

// RecordPulled counts remote events seen in a pull pass.
func RecordPulled(provider string, n int) {
	if n > 0 {
		pulledCounter.WithLabelValues(provider).Add(float64(n))
	}
}

// RecordMaterialized counts activities created from remote events.
func RecordMaterialized(provider string, n int) {
	if n > 0 {
		materializedCounter.WithLabelValues(provider).Add(float64(n))
	}
}

// RecordPushed counts one push-direction remote mutation.
func RecordPushed(provider, op string) {
	pushedCounter.WithLabelValues(provider, op).Inc()
}

// RecordTokenRefreshAttempt counts one refresh-grant attempt.
func RecordTokenRefreshAttempt(provider string) {
	refreshAttemptCounter.WithLabelValues(provider).Inc()
}

// RecordTokenRefreshFailure counts one rejected refresh grant.
func RecordTokenRefreshFailure(provider string) {
	refreshFailureCounter.WithLabelValues(provider).Inc()
}
