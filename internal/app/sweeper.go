package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/formpulse/formpulse/internal/audit"
	"github.com/formpulse/formpulse/internal/domain"
	"github.com/formpulse/formpulse/internal/metrics"
	"github.com/formpulse/formpulse/internal/platform/correlation"
	"github.com/formpulse/formpulse/internal/resilience"
)

// Sweeper expires sessions whose last activity is older than the idle
// window. The store-side transition is idempotent: terminal sessions are
// skipped, never re-transitioned, so overlapping sweeps are harmless.
type Sweeper struct {
	store     domain.SessionStore
	cache     domain.SessionCache
	guard     *resilience.Guard
	trail     Auditor
	clock     clockwork.Clock
	idleAfter time.Duration
	interval  time.Duration
}

func NewSweeper(store domain.SessionStore, cache domain.SessionCache, guard *resilience.Guard, trail Auditor, clock clockwork.Clock, idleAfter, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		cache:     cache,
		guard:     guard,
		trail:     trail,
		clock:     clock,
		idleAfter: idleAfter,
		interval:  interval,
	}
}

// Run starts the periodic sweep loop. It blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("Session sweeper started", "interval", s.interval, "idle_after", s.idleAfter)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session sweeper stopped")
			return
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	sweepCtx := correlation.WithID(ctx, correlation.NewID())

	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.idleAfter)

	ids, err := resilience.Execute(sweepCtx, s.guard, true, func(ctx context.Context) ([]uuid.UUID, error) {
		return s.store.ExpireInactive(ctx, cutoff, now)
	})
	if err != nil {
		slog.WarnContext(sweepCtx, "Expiry sweep failed", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	// the store rows just changed under any cached snapshots
	for _, id := range ids {
		s.cache.InvalidateSession(sweepCtx, id)
	}

	expired := int64(len(ids))
	metrics.SessionsExpiredTotal.Add(float64(expired))
	s.trail.LogEvent(audit.Entry{
		Category: "session",
		Action:   "expire_sweep",
		Resource: "sessions",
		Actor:    "sweeper",
		Outcome:  "success",
		Risk:     audit.RiskLow,
		Details:  map[string]any{"expired": expired, "cutoff": cutoff},
	})
	slog.InfoContext(sweepCtx, "Expired inactive sessions", "count", expired, "cutoff", cutoff)
}
