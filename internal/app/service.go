package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/formpulse/formpulse/internal/audit"
	"github.com/formpulse/formpulse/internal/domain"
	apperrors "github.com/formpulse/formpulse/internal/errors"
	"github.com/formpulse/formpulse/internal/metrics"
	"github.com/formpulse/formpulse/internal/resilience"
)

// saveRetries bounds internal re-read/re-write cycles when a concurrent
// writer invalidates the version we read.
const saveRetries = 3

// Auditor receives audit entries. Satisfied by *audit.Trail.
type Auditor interface {
	LogEvent(audit.Entry)
}

// Service is the application layer. It orchestrates the session lifecycle
// over the durable store (authoritative, guarded) and the cache tier
// (best-effort), and records every mutation in the audit trail.
type Service struct {
	store       domain.SessionStore
	submissions domain.SubmissionStore
	cache       domain.SessionCache
	guard       *resilience.Guard
	trail       Auditor
	clock       clockwork.Clock
}

// NewService creates the application layer service. guard protects every
// durable store call; the cache carries its own guard internally.
func NewService(store domain.SessionStore, submissions domain.SubmissionStore, cache domain.SessionCache, guard *resilience.Guard, trail Auditor, clock clockwork.Clock) *Service {
	return &Service{
		store:       store,
		submissions: submissions,
		cache:       cache,
		guard:       guard,
		trail:       trail,
		clock:       clock,
	}
}

// CreateSession allocates a new active session on page zero, persists it,
// and best-effort populates the cache.
func (s *Service) CreateSession(ctx context.Context, totalPages int, meta domain.ClientMeta) (*domain.Session, error) {
	if totalPages < 1 {
		return nil, apperrors.InvalidInput("totalPages must be at least 1").WithContext("total_pages", totalPages)
	}

	session := domain.NewSession(totalPages, meta, s.clock.Now().UTC())
	err := s.guard.Run(ctx, false, func(ctx context.Context) error {
		return s.store.Insert(ctx, session)
	})
	if err != nil {
		metrics.SessionOpsTotal.WithLabelValues("create", "failure").Inc()
		return nil, s.storeError("create session", err)
	}

	s.cache.SetSession(ctx, session)
	metrics.SessionOpsTotal.WithLabelValues("create", "success").Inc()
	s.audit("create", session, audit.RiskLow, map[string]any{"total_pages": totalPages})
	return session, nil
}

// SaveProgress merges partial answers into the session and advances its
// page. The write is compare-and-swap on the session version; a concurrent
// writer triggers a fresh read from the store and another attempt.
func (s *Service) SaveProgress(ctx context.Context, id uuid.UUID, page int, partial domain.Answers) (*domain.Session, error) {
	for tries := 0; tries < saveRetries; tries++ {
		var session *domain.Session
		var err error
		if tries == 0 {
			session, err = s.readSession(ctx, id)
		} else {
			// the cached copy was stale; go straight to the store
			session, err = s.readStore(ctx, id)
		}
		if err != nil {
			metrics.SessionOpsTotal.WithLabelValues("save_progress", "failure").Inc()
			return nil, err
		}

		if err := session.ApplyProgress(page, partial, s.clock.Now().UTC()); err != nil {
			metrics.SessionOpsTotal.WithLabelValues("save_progress", "rejected").Inc()
			return nil, progressError(err)
		}

		err = s.updateSession(ctx, session)
		if errors.Is(err, domain.ErrVersionConflict) {
			slog.DebugContext(ctx, "Concurrent session write, retrying", "session_id", id.String(), "tries", tries+1)
			s.cache.InvalidateSession(ctx, id)
			continue
		}
		if err != nil {
			metrics.SessionOpsTotal.WithLabelValues("save_progress", "failure").Inc()
			return nil, s.storeError("save progress", err)
		}

		s.cache.InvalidateSession(ctx, id)
		metrics.SessionOpsTotal.WithLabelValues("save_progress", "success").Inc()
		s.audit("save_progress", session, audit.RiskLow, map[string]any{"page": page, "fields": len(partial)})
		return session, nil
	}

	metrics.SessionOpsTotal.WithLabelValues("save_progress", "contention").Inc()
	return nil, apperrors.Unavailable("session update contention", domain.ErrVersionConflict).
		WithContext("session_id", id.String())
}

// GetStatus returns a snapshot of the session, cache-aside.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	session, err := s.readSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Submit finalizes an active session into a permanent record, then deletes
// the session from store and cache. Finalization is destructive: a replay
// sees no active session and gets NotFound, never a duplicate record.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*domain.FinalizedSubmission, error) {
	session, err := s.readStore(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.StatusActive {
		metrics.SessionOpsTotal.WithLabelValues("submit", "rejected").Inc()
		return nil, apperrors.NotFound("session not found")
	}

	now := s.clock.Now().UTC()
	submission := session.Finalize(now)

	// SessionID is unique on the finalized table, so a crash between this
	// write and the delete below still cannot yield a second record.
	err = s.guard.Run(ctx, true, func(ctx context.Context) error {
		return s.submissions.Insert(ctx, submission)
	})
	if err != nil {
		metrics.SessionOpsTotal.WithLabelValues("submit", "failure").Inc()
		return nil, s.storeError("finalize submission", err)
	}

	if err := s.deleteSession(ctx, id); err != nil {
		// finalized record exists; the orphaned session falls to the sweeper
		slog.ErrorContext(ctx, "Session delete after finalization failed",
			"session_id", id.String(), "error", err)
	}
	s.cache.InvalidateSession(ctx, id)

	metrics.SessionOpsTotal.WithLabelValues("submit", "success").Inc()
	s.audit("submit", session, audit.RiskMedium, map[string]any{
		"finalized_id": submission.ID.String(),
		"fields":       len(submission.Answers),
	})
	return submission, nil
}

// Abandon transitions an active session to abandoned. Terminal or absent
// sessions surface as NotFound.
func (s *Service) Abandon(ctx context.Context, id uuid.UUID) error {
	for tries := 0; tries < saveRetries; tries++ {
		session, err := s.readStore(ctx, id)
		if err != nil {
			return err
		}
		if session.Status != domain.StatusActive {
			metrics.SessionOpsTotal.WithLabelValues("abandon", "rejected").Inc()
			return apperrors.NotFound("session not found")
		}

		if err := session.Transition(domain.StatusAbandoned, s.clock.Now().UTC()); err != nil {
			return apperrors.Internal("abandon transition failed", err)
		}

		err = s.updateSession(ctx, session)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			metrics.SessionOpsTotal.WithLabelValues("abandon", "failure").Inc()
			return s.storeError("abandon session", err)
		}

		s.cache.InvalidateSession(ctx, id)
		metrics.SessionOpsTotal.WithLabelValues("abandon", "success").Inc()
		s.audit("abandon", session, audit.RiskMedium, nil)
		return nil
	}

	metrics.SessionOpsTotal.WithLabelValues("abandon", "contention").Inc()
	return apperrors.Unavailable("session update contention", domain.ErrVersionConflict).
		WithContext("session_id", id.String())
}

// Stats summarises sessions by status plus the finalized record count.
func (s *Service) Stats(ctx context.Context) (*domain.SessionStats, error) {
	byStatus, err := resilience.Execute(ctx, s.guard, true, func(ctx context.Context) (map[domain.SessionStatus]int64, error) {
		return s.store.CountByStatus(ctx)
	})
	if err != nil {
		return nil, s.storeError("count sessions", err)
	}

	finalized, err := resilience.Execute(ctx, s.guard, true, func(ctx context.Context) (int64, error) {
		return s.submissions.Count(ctx)
	})
	if err != nil {
		return nil, s.storeError("count submissions", err)
	}

	return &domain.SessionStats{ByStatus: byStatus, Finalized: finalized}, nil
}

// readSession is the cache-aside read: try the cache, fall back to the
// store on miss and repopulate the cache with what the store returned.
func (s *Service) readSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if cached, ok := s.cache.GetSession(ctx, id); ok {
		return cached, nil
	}

	session, err := s.readStore(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetSession(ctx, session)
	return session, nil
}

// readStore reads the authoritative copy. Absence is a valid answer, not a
// dependency failure: it must neither trip the breaker nor be retried.
func (s *Service) readStore(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	session, err := resilience.Execute(ctx, s.guard, true, func(ctx context.Context) (*domain.Session, error) {
		session, err := s.store.Get(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil
		}
		return session, err
	})
	if err != nil {
		return nil, s.storeError("read session", err)
	}
	if session == nil {
		return nil, apperrors.NotFound("session not found")
	}
	return session, nil
}

// updateSession writes the session back under the guard. Version conflicts
// and vanished rows are domain verdicts the caller handles, so they bypass
// the breaker's failure accounting.
func (s *Service) updateSession(ctx context.Context, session *domain.Session) error {
	var verdict error
	err := s.guard.Run(ctx, false, func(ctx context.Context) error {
		err := s.store.Update(ctx, session)
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrSessionNotFound) {
			verdict = err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return verdict
}

// deleteSession removes the session row; an already-absent row counts as
// success so the delete stays retry-safe.
func (s *Service) deleteSession(ctx context.Context, id uuid.UUID) error {
	return s.guard.Run(ctx, true, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return err
		}
		return nil
	})
}

// storeError maps guard and store failures onto the error taxonomy.
func (s *Service) storeError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NotFound("session not found")
	case errors.Is(err, resilience.ErrOpen):
		return apperrors.Unavailable(op+" rejected, store unavailable", err)
	case errors.Is(err, resilience.ErrTimeout):
		return apperrors.Timeout(op+" timed out", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.Timeout(op+" cancelled", err)
	default:
		return apperrors.Unavailable(op+" failed", err)
	}
}

// progressError maps session mutation rejections onto the error taxonomy.
// Terminal sessions are indistinguishable from absent ones to the caller.
func progressError(err error) error {
	switch {
	case errors.Is(err, domain.ErrPageOutOfRange):
		return apperrors.InvalidInput(err.Error())
	case errors.Is(err, domain.ErrSessionNotActive):
		return apperrors.NotFound("session not found")
	default:
		return apperrors.Internal("progress rejected", err)
	}
}

func (s *Service) audit(action string, session *domain.Session, risk audit.Risk, details map[string]any) {
	s.trail.LogEvent(audit.Entry{
		Category:      "session",
		Action:        action,
		Resource:      session.ID.String(),
		Actor:         "respondent",
		NetworkOrigin: session.Meta.IP,
		Outcome:       "success",
		Risk:          risk,
		Details:       details,
	})
}
