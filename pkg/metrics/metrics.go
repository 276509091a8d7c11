// Package metrics holds the Prometheus collectors for reviewer assignment.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
	OutcomeAssigned    = "assigned"
	OutcomeNone        = "none"
)

var (
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auto_assign_gateway_requests_total",
		Help: "Total number of remote data gateway requests",
	}, []string{"operation", "outcome"})

	GatewayRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auto_assign_gateway_retries_total",
		Help: "Total number of retried gateway requests",
	}, []string{"operation"})

	RateLimitPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auto_assign_rate_limit_pauses_total",
		Help: "Total number of shared pauses waiting for a quota reset",
	})

	SelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auto_assign_selections_total",
		Help: "Total number of reviewer selection runs by outcome",
	}, []string{"outcome"})

	SelectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auto_assign_selection_duration_seconds",
		Help:    "Duration of reviewer selection runs",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
