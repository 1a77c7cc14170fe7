// Package resilience wraps calls to a single fallible dependency with a
// per-call timeout, bounded retries for idempotent operations, and a
// process-local circuit breaker. Each guarded dependency owns its own Guard.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/formpulse/formpulse/internal/metrics"
	"github.com/formpulse/formpulse/internal/platform/retry"
)

// ErrOpen is returned when the breaker rejects the call without invoking
// the dependency.
var ErrOpen = circuitbreaker.ErrOpen

// ErrTimeout is returned when an attempt exceeds the configured deadline.
// The underlying call may still be running; its result is discarded.
var ErrTimeout = errors.New("operation timed out")

// Config holds the per-dependency resilience settings.
type Config struct {
	// Name identifies the dependency in logs and metrics.
	Name string
	// Timeout is the per-attempt deadline.
	Timeout time.Duration
	// MaxAttempts bounds retries for idempotent operations. Non-idempotent
	// operations always run exactly once.
	MaxAttempts int
	// BaseBackoff is the wait before the second attempt; it doubles on
	// every further attempt.
	BaseBackoff time.Duration
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold uint
	// Cooldown is how long the breaker stays open before permitting a
	// single trial call.
	Cooldown time.Duration
}

// Guard guards one dependency. Breaker state is shared by all callers in
// the process and updated atomically by the breaker itself.
type Guard struct {
	name    string
	timeout time.Duration
	policy  retry.Policy
	cb      circuitbreaker.CircuitBreaker[any]
}

// New creates a Guard with a closed breaker.
func New(cfg Config) *Guard {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(cfg.FailureThreshold).
		WithDelay(cfg.Cooldown).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", cfg.Name,
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues(cfg.Name, e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(stateToFloat(e.NewState))
		}).
		Build()

	return &Guard{
		name:    cfg.Name,
		timeout: cfg.Timeout,
		policy: retry.Policy{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.BaseBackoff,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("Retrying guarded operation",
					"component", cfg.Name,
					"attempt", attempt,
					"backoff", backoff,
					"error", err,
				)
			},
		},
		cb: cb,
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// State returns the current breaker state name.
func (g *Guard) State() string {
	return g.cb.State().String()
}

// Reset forces the breaker closed and clears its failure count.
func (g *Guard) Reset() {
	g.cb.Close()
}

// Run executes op under the guard. Only idempotent operations are retried.
func (g *Guard) Run(ctx context.Context, idempotent bool, op func(context.Context) error) error {
	_, err := Execute(ctx, g, idempotent, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

type attemptResult[T any] struct {
	val T
	err error
}

// Execute executes op under guard g and returns its value. Each attempt
// gets its own deadline; a late result from a timed-out attempt is
// discarded, never observed.
func Execute[T any](ctx context.Context, g *Guard, idempotent bool, op func(context.Context) (T, error)) (T, error) {
	policy := g.policy
	policy.MaxAttempts = max(policy.MaxAttempts, 1)
	if !idempotent {
		policy.MaxAttempts = 1
	}

	classify := func(err error) retry.Action {
		if errors.Is(err, ErrOpen) || ctx.Err() != nil {
			return retry.Stop
		}
		return retry.Retry
	}

	return retry.Do(ctx, policy, classify, func() (T, error) {
		return attempt(ctx, g, op)
	})
}

func attempt[T any](ctx context.Context, g *Guard, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if !g.cb.TryAcquirePermit() {
		return zero, fmt.Errorf("%s: circuit breaker rejected call: %w", g.name, ErrOpen)
	}

	opCtx, cancel := context.WithTimeout(ctx, g.timeout)
	done := make(chan attemptResult[T], 1)
	go func() {
		val, err := op(opCtx)
		done <- attemptResult[T]{val: val, err: err}
	}()

	select {
	case res := <-done:
		cancel()
		if res.err != nil {
			if ctx.Err() != nil {
				// the caller went away; not a verdict on the dependency
				return zero, res.err
			}
			g.cb.RecordError(res.err)
			return zero, res.err
		}
		g.cb.RecordSuccess()
		return res.val, nil

	case <-opCtx.Done():
		// cancel the in-flight call as a courtesy, but do not wait for it
		cancel()
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", g.name, ctx.Err())
		}
		err := fmt.Errorf("%s: %w after %s", g.name, ErrTimeout, g.timeout)
		g.cb.RecordError(err)
		return zero, err
	}
}
