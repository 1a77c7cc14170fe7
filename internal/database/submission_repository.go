package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/formpulse/formpulse/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubmissionRepo stores finalized submissions. The session_id UNIQUE
// constraint makes finalization idempotent: a retried submit after a crash
// between finalize-write and session-delete cannot create a second record.
type SubmissionRepo struct {
	pool *pgxpool.Pool
}

var _ domain.SubmissionStore = (*SubmissionRepo)(nil)

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

func (r *SubmissionRepo) Insert(ctx context.Context, submission *domain.FinalizedSubmission) error {
	answers, err := json.Marshal(submission.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	meta, err := json.Marshal(submission.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}

	query, args, err := psql.Insert("submissions").
		Columns("id", "session_id", "answers", "meta", "finalized_at").
		Values(submission.ID, submission.SessionID, answers, meta, submission.FinalizedAt).
		Suffix("ON CONFLICT (session_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// replay: adopt the record the first attempt persisted, so the
		// caller never hands out an ID that does not exist
		err := r.pool.QueryRow(ctx,
			"SELECT id, finalized_at FROM submissions WHERE session_id = $1",
			submission.SessionID).Scan(&submission.ID, &submission.FinalizedAt)
		if err != nil {
			return fmt.Errorf("failed to load existing submission: %w", err)
		}
	}
	return nil
}

func (r *SubmissionRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM submissions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return count, nil
}
