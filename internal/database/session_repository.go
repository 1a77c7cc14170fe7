package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/formpulse/formpulse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var sessionColumns = []string{
	"id", "status", "current_page", "total_pages", "answers", "meta",
	"created_at", "last_activity", "completed_at", "expired_at", "version",
}

// SessionRepo is the authoritative session store.
type SessionRepo struct {
	pool *pgxpool.Pool
}

var _ domain.SessionStore = (*SessionRepo)(nil)

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Insert(ctx context.Context, session *domain.Session) error {
	answers, meta, err := encodeSessionJSON(session)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert("sessions").
		Columns(sessionColumns...).
		Values(session.ID, session.Status, session.CurrentPage, session.TotalPages,
			answers, meta, session.CreatedAt, session.LastActivity,
			session.CompletedAt, session.ExpiredAt, session.Version).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query, args, err := psql.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	session, err := scanSession(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// Update writes the session back guarded by the version the caller read.
// The row's version is bumped on success; a stale write affects zero rows
// and surfaces as ErrVersionConflict (or ErrSessionNotFound if the row is
// gone entirely).
func (r *SessionRepo) Update(ctx context.Context, session *domain.Session) error {
	answers, meta, err := encodeSessionJSON(session)
	if err != nil {
		return err
	}

	query, args, err := psql.Update("sessions").
		Set("status", session.Status).
		Set("current_page", session.CurrentPage).
		Set("answers", answers).
		Set("last_activity", session.LastActivity).
		Set("completed_at", session.CompletedAt).
		Set("expired_at", session.ExpiredAt).
		Set("version", session.Version+1).
		Set("meta", meta).
		Where(sq.Eq{"id": session.ID, "version": session.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, session.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrSessionNotFound
		}
		return domain.ErrVersionConflict
	}

	session.Version++
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := psql.Delete("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ExpireInactive is a single idempotent statement: only active rows match,
// so already-terminal sessions are never re-transitioned. The expired IDs
// come back so the caller can drop their cached snapshots.
func (r *SessionRepo) ExpireInactive(ctx context.Context, cutoff, now time.Time) ([]uuid.UUID, error) {
	query, args, err := psql.Update("sessions").
		Set("status", domain.StatusExpired).
		Set("expired_at", now).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"status": domain.StatusActive}).
		Where(sq.Lt{"last_activity": cutoff}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build expire: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to expire sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read expired session ids: %w", err)
	}
	return ids, nil
}

func (r *SessionRepo) CountByStatus(ctx context.Context) (map[domain.SessionStatus]int64, error) {
	query, args, err := psql.Select("status", "COUNT(*)").
		From("sessions").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build count: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SessionStatus]int64)
	for rows.Next() {
		var status domain.SessionStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read count rows: %w", err)
	}
	return counts, nil
}

func (r *SessionRepo) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return exists, nil
}

func encodeSessionJSON(session *domain.Session) (answers, meta []byte, err error) {
	answers, err = json.Marshal(session.Answers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal answers: %w", err)
	}
	meta, err = json.Marshal(session.Meta)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal meta: %w", err)
	}
	return answers, meta, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session       domain.Session
		answers, meta []byte
	)
	err := row.Scan(&session.ID, &session.Status, &session.CurrentPage,
		&session.TotalPages, &answers, &meta, &session.CreatedAt,
		&session.LastActivity, &session.CompletedAt, &session.ExpiredAt,
		&session.Version)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(answers, &session.Answers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	if err := json.Unmarshal(meta, &session.Meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
	}
	return &session, nil
}
