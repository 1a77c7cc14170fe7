package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionStore is the authoritative store for in-progress sessions.
type SessionStore interface {
	// Insert persists a freshly created session.
	Insert(ctx context.Context, session *Session) error

	// Get returns the session or ErrSessionNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// Update writes the session back, guarded by its Version: the write
	// succeeds only against the version the caller read, and bumps it.
	// Returns ErrVersionConflict on a stale write, ErrSessionNotFound if
	// the row is gone.
	Update(ctx context.Context, session *Session) error

	// Delete removes the session row. Deleting an absent session returns
	// ErrSessionNotFound.
	Delete(ctx context.Context, id uuid.UUID) error

	// ExpireInactive transitions active sessions with LastActivity before
	// cutoff to expired, stamping expiredAt with now. Terminal sessions
	// are never touched. Returns the IDs of the sessions it expired so the
	// caller can invalidate their cached snapshots.
	ExpireInactive(ctx context.Context, cutoff, now time.Time) ([]uuid.UUID, error)

	// CountByStatus returns session counts grouped by status.
	CountByStatus(ctx context.Context) (map[SessionStatus]int64, error)
}

// SubmissionStore holds finalized submissions.
type SubmissionStore interface {
	// Insert persists a finalized record. Inserting a second record for
	// the same SessionID stores nothing and instead rewrites submission's
	// ID and FinalizedAt to the already-persisted record's values.
	Insert(ctx context.Context, submission *FinalizedSubmission) error

	// Count returns the total number of finalized submissions.
	Count(ctx context.Context) (int64, error)
}

// SessionCache is the best-effort cache tier for session snapshots. All
// methods absorb failures: a broken cache reads as a miss and writes as
// no-ops, never as errors.
type SessionCache interface {
	GetSession(ctx context.Context, id uuid.UUID) (*Session, bool)
	SetSession(ctx context.Context, session *Session)
	InvalidateSession(ctx context.Context, id uuid.UUID)
}
