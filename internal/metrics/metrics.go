// Package metrics defines the Prometheus instruments shared across the
// service. Instruments are registered with the default registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache metrics
var (
	// CacheOpsTotal tracks cache operations by operation and status
	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total cache operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// CacheHitsTotal tracks cache reads that found a usable value
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache reads served from the cache tier",
		},
	)

	// CacheMissesTotal tracks cache reads that fell through to the store
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache reads that missed or failed",
		},
	)
)

// Circuit breaker metrics
var (
	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Session lifecycle metrics
var (
	// SessionOpsTotal tracks session operations by operation and outcome
	SessionOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_operations_total",
			Help: "Total session lifecycle operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// SessionsExpiredTotal tracks sessions expired by the background sweep
	SessionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_expired_total",
			Help: "Total sessions transitioned to expired by the sweeper",
		},
	)
)

// Audit metrics
var (
	// AuditEventsTotal tracks audit entries by risk level
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Total audit entries recorded by risk level",
		},
		[]string{"risk"},
	)

	// AuditRotationsTotal tracks audit log file rotations
	AuditRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_rotations_total",
			Help: "Total audit log file rotations",
		},
	)

	// AuditWriteFailuresTotal tracks swallowed audit write failures
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total audit write failures (swallowed, never fatal)",
		},
	)
)
