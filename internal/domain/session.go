package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of an in-progress submission.
// Transitions are monotonic: active is the only non-terminal state and the
// only legal edges are active -> completed, active -> expired and
// active -> abandoned.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusExpired   SessionStatus = "expired"
	StatusAbandoned SessionStatus = "abandoned"
)

// Terminal reports whether the status permits no further mutation.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusAbandoned
}

// ClientMeta is the immutable client fingerprint captured at session
// creation: network address plus user-agent derived device hints.
type ClientMeta struct {
	IP         string `json:"ip"`
	UserAgent  string `json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"` // mobile, desktop, tablet, bot
}

// Session tracks a multi-page survey submission in progress. The durable
// store is authoritative; cached copies may be stale or absent at any time.
type Session struct {
	ID           uuid.UUID     `json:"id"`
	Status       SessionStatus `json:"status"`
	CurrentPage  int           `json:"current_page"`
	TotalPages   int           `json:"total_pages"`
	Answers      Answers       `json:"answers"`
	Meta         ClientMeta    `json:"meta"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ExpiredAt    *time.Time    `json:"expired_at,omitempty"`

	// Version is the optimistic concurrency counter; the store rejects
	// writes computed from a stale read.
	Version int64 `json:"version"`
}

// NewSession allocates an active session on page zero.
func NewSession(totalPages int, meta ClientMeta, now time.Time) *Session {
	return &Session{
		ID:           uuid.New(),
		Status:       StatusActive,
		CurrentPage:  0,
		TotalPages:   totalPages,
		Answers:      Answers{},
		Meta:         meta,
		CreatedAt:    now,
		LastActivity: now,
		Version:      1,
	}
}

// ApplyProgress merges partial answers into the session and advances
// CurrentPage to max(CurrentPage, page). The page must lie in
// [0, TotalPages) and the session must still be active.
func (s *Session) ApplyProgress(page int, partial Answers, now time.Time) error {
	if s.Status != StatusActive {
		return ErrSessionNotActive
	}
	if page < 0 || page >= s.TotalPages {
		return fmt.Errorf("%w: page %d not in [0, %d)", ErrPageOutOfRange, page, s.TotalPages)
	}

	s.Answers = s.Answers.Merge(partial)
	if page > s.CurrentPage {
		s.CurrentPage = page
	}
	s.touch(now)
	return nil
}

// Transition moves the session to a terminal status, stamping the
// corresponding timestamp. Only active sessions may transition.
func (s *Session) Transition(to SessionStatus, now time.Time) error {
	if s.Status != StatusActive || !to.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}

	s.Status = to
	switch to {
	case StatusCompleted:
		s.CompletedAt = &now
	case StatusExpired:
		s.ExpiredAt = &now
	}
	s.touch(now)
	return nil
}

// touch updates LastActivity, never letting it move backwards.
func (s *Session) touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// Clone returns a deep copy, so callers can hand out snapshots without
// exposing the mutable original.
func (s *Session) Clone() *Session {
	cloned := *s
	cloned.Answers = s.Answers.Clone()
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cloned.CompletedAt = &t
	}
	if s.ExpiredAt != nil {
		t := *s.ExpiredAt
		cloned.ExpiredAt = &t
	}
	return &cloned
}

// FinalizedSubmission is the permanent, immutable record produced when an
// active session is submitted. SessionID doubles as an idempotency key: at
// most one finalized record can ever exist per session.
type FinalizedSubmission struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   uuid.UUID  `json:"session_id"`
	Answers     Answers    `json:"answers"`
	Meta        ClientMeta `json:"meta"`
	FinalizedAt time.Time  `json:"finalized_at"`
}

// Finalize builds the permanent record for an active session.
func (s *Session) Finalize(now time.Time) *FinalizedSubmission {
	return &FinalizedSubmission{
		ID:          uuid.New(),
		SessionID:   s.ID,
		Answers:     s.Answers.Clone(),
		Meta:        s.Meta,
		FinalizedAt: now,
	}
}

// SessionStats summarises the store for the list-stats operation.
type SessionStats struct {
	ByStatus  map[SessionStatus]int64 `json:"by_status"`
	Finalized int64                   `json:"finalized"`
}
