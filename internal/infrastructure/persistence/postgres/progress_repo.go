package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	q Querier
}

const progressColumns = `user_id, xp, current_streak, last_completion_date, total_focus_minutes, created_at, updated_at`

// GetOrCreate inserts the starting record if missing and returns the stored row.
func (r *ProgressRepository) GetOrCreate(ctx context.Context, userID string) (*progress.Progress, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO progress (user_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert progress: %w", err)
	}
	return r.Get(ctx, userID)
}

// Get returns the user's record.
func (r *ProgressRepository) Get(ctx context.Context, userID string) (*progress.Progress, error) {
	row := r.q.QueryRow(ctx, `SELECT `+progressColumns+` FROM progress WHERE user_id = $1`, userID)
	return scanProgress(row)
}

// Save overwrites the user's record.
func (r *ProgressRepository) Save(ctx context.Context, p *progress.Progress) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE progress SET
			xp = $1,
			current_streak = $2,
			last_completion_date = $3,
			total_focus_minutes = $4,
			updated_at = $5
		WHERE user_id = $6
	`,
		p.XP.Int(),
		p.CurrentStreak,
		dateParam(p.LastCompletionDate),
		p.TotalFocusMinutes,
		p.UpdatedAt,
		p.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProgressNotFound
	}
	return nil
}

func scanProgress(row pgx.Row) (*progress.Progress, error) {
	var (
		p        progress.Progress
		xp       int
		lastDate *time.Time
	)
	err := row.Scan(&p.UserID, &xp, &p.CurrentStreak, &lastDate, &p.TotalFocusMinutes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to scan progress: %w", err)
	}
	p.XP = progress.XP(xp)
	p.LastCompletionDate = dateFromColumn(lastDate)
	return &p, nil
}

func dateParam(d progress.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time()
	return &t
}

func dateFromColumn(t *time.Time) progress.Date {
	if t == nil {
		return progress.Date{}
	}
	return progress.NewDate(t.Year(), t.Month(), t.Day())
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements progress.LedgerRepository for PostgreSQL.
type LedgerRepository struct {
	q Querier
}

// Append inserts one entry.
func (r *LedgerRepository) Append(ctx context.Context, e progress.LedgerEntry) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO xp_ledger (id, user_id, amount, source, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.UserID, e.Amount.Int(), e.Source.String(), e.Description, e.CreatedAt)
	if err != nil {
		return appendLedgerError(err)
	}
	return nil
}

// appendLedgerError maps constraint violations of xp_ledger to domain errors.
func appendLedgerError(err error) error {
	switch {
	case IsUniqueViolation(err):
		return shared.NewDomainError("progress", "Append", shared.ErrAlreadyExists, "ledger entry already exists")
	case IsForeignKeyViolation(err):
		return shared.WrapError("progress", "Append", shared.ErrProgressNotFound, "ledger entry for unknown user", err)
	default:
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
}

// ListBetween returns entries with from <= created_at < to, oldest first.
func (r *LedgerRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]progress.LedgerEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, amount, source, description, created_at
		FROM xp_ledger
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	return collectLedger(rows)
}

// ListRecent returns up to limit entries, newest first.
func (r *LedgerRepository) ListRecent(ctx context.Context, userID string, limit int) ([]progress.LedgerEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, amount, source, description, created_at
		FROM xp_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	return collectLedger(rows)
}

func collectLedger(rows pgx.Rows) ([]progress.LedgerEntry, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (progress.LedgerEntry, error) {
		var (
			e      progress.LedgerEntry
			amount int
			source string
		)
		if err := row.Scan(&e.ID, &e.UserID, &amount, &source, &e.Description, &e.CreatedAt); err != nil {
			return e, err
		}
		e.Amount = progress.XP(amount)
		e.Source = progress.Source(source)
		return e, nil
	})
}
