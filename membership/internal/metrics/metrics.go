// Package metrics exposes Prometheus collectors for the membership service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohort_membership_requests_total",
			Help: "Total number of requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cohort_membership_request_duration_seconds",
			Help:    "Duration of request pipelines in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	MutationsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cohort_membership_mutations_applied_total",
			Help: "Total number of membership mutations sent to the store",
		},
	)

	// Audit metrics
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohort_membership_audit_events_total",
			Help: "Total number of audit events emitted by type",
		},
		[]string{"event_type"},
	)

	AuditSinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohort_membership_audit_sink_errors_total",
			Help: "Total number of audit events a sink failed to accept",
		},
		[]string{"sink"},
	)

	// Cache metrics
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cohort_membership_cache_invalidations_total",
			Help: "Total number of cache key invalidations by result",
		},
		[]string{"result"},
	)
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeDenied  = "denied"
	OutcomeFailed  = "failed"
)
