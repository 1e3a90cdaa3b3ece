// Package observability defines the Prometheus metrics exported on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReconcileDuration measures BuildView wall time, fetch fan-out included.
var ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "creditpanel_reconcile_duration_seconds",
	Help:    "Time to build a credit view from ledger events and per-token fetches.",
	Buckets: prometheus.DefBuckets,
})

// ReconcileOutcomes counts BuildView results by outcome
// (complete, partial, empty, aggregate_failure, duplicate_issuance).
var ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "creditpanel_reconcile_outcomes_total",
	Help: "Credit view builds by outcome.",
}, []string{"outcome"})

// FetchFailures counts failed per-token ledger reads by operation.
var FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "creditpanel_fetch_failures_total",
	Help: "Per-token ledger fetch failures.",
}, []string{"op"})

// StaleViewsDiscarded counts refresh results dropped because a newer refresh
// had already been applied.
var StaleViewsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "creditpanel_stale_views_discarded_total",
	Help: "Refresh results discarded because a newer view was already applied.",
})

// CreditsByStatus reports the size of the applied view per derived status.
var CreditsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "creditpanel_credits",
	Help: "Credits in the applied view by derived status.",
}, []string{"status"})

// ActionTransitions counts action FSM transitions by kind and target state.
var ActionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "creditpanel_action_transitions_total",
	Help: "Buy/retire state machine transitions.",
}, []string{"kind", "to"})

// HTTPRequests counts API requests by method, route pattern, and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "creditpanel_http_requests_total",
	Help: "HTTP requests served.",
}, []string{"method", "route", "status"})
