package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/neuroboost/progress-engine/internal/domain/focus"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

// SessionRepository implements focus.Repository for PostgreSQL.
type SessionRepository struct {
	q Querier
}

const sessionColumns = `id, user_id, duration_minutes, notes, xp_awarded, started_at, ended_at, created_at, credited_at`

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *focus.Session) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO focus_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		s.ID, s.UserID, s.DurationMinutes, s.Notes, s.XPAwarded.Int(),
		s.StartedAt, s.EndedAt, s.CreatedAt, s.CreditedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("focus", "Create", shared.ErrAlreadyExists, "session already exists")
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID returns a session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*focus.Session, error) {
	row := r.q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM focus_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// MarkCredited persists credited_at.
func (r *SessionRepository) MarkCredited(ctx context.Context, s *focus.Session) error {
	tag, err := r.q.Exec(ctx, `UPDATE focus_sessions SET credited_at = $1 WHERE id = $2`, s.CreditedAt, s.ID)
	if err != nil {
		return fmt.Errorf("failed to mark session credited: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}
	return nil
}

// ListBetween returns the user's sessions with from <= created_at < to, oldest first.
func (r *SessionRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*focus.Session, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM focus_sessions
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*focus.Session, error) {
		return scanSession(row)
	})
}

func scanSession(row pgx.Row) (*focus.Session, error) {
	var (
		s  focus.Session
		xp int
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.DurationMinutes, &s.Notes, &xp,
		&s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.CreditedAt,
	)
	if err != nil {
		return nil, err
	}
	s.XPAwarded = progress.XP(xp)
	return &s, nil
}
