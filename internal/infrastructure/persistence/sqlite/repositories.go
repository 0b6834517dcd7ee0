package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neuroboost/progress-engine/internal/domain/focus"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/domain/task"
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

type progressRepo struct{ q querier }

func (r progressRepo) GetOrCreate(ctx context.Context, userID string) (*progress.Progress, error) {
	now := millis(time.Now())
	_, err := r.q.ExecContext(ctx, `
INSERT INTO progress (user_id, created_at, updated_at) VALUES (?, ?, ?)
ON CONFLICT(user_id) DO NOTHING`, userID, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert progress: %w", err)
	}
	return r.Get(ctx, userID)
}

func (r progressRepo) Get(ctx context.Context, userID string) (*progress.Progress, error) {
	var (
		p                    progress.Progress
		xp                   int
		lastDate             string
		createdAt, updatedAt int64
	)
	err := r.q.QueryRowContext(ctx, `
SELECT user_id, xp, current_streak, last_completion_date, total_focus_minutes, created_at, updated_at
FROM progress WHERE user_id = ?`, userID).
		Scan(&p.UserID, &xp, &p.CurrentStreak, &lastDate, &p.TotalFocusMinutes, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}

	d, err := progress.ParseDate(lastDate)
	if err != nil {
		return nil, fmt.Errorf("parse last completion date %q: %w", lastDate, err)
	}
	p.XP = progress.XP(xp)
	p.LastCompletionDate = d
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func (r progressRepo) Save(ctx context.Context, p *progress.Progress) error {
	lastDate := ""
	if !p.LastCompletionDate.IsZero() {
		lastDate = p.LastCompletionDate.String()
	}
	res, err := r.q.ExecContext(ctx, `
UPDATE progress SET xp = ?, current_streak = ?, last_completion_date = ?, total_focus_minutes = ?, updated_at = ?
WHERE user_id = ?`,
		p.XP.Int(), p.CurrentStreak, lastDate, p.TotalFocusMinutes, millis(p.UpdatedAt), p.UserID)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return requireRow(res, shared.ErrProgressNotFound)
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Ledger
// ─────────────────────────────────────────────────────────────────────────────

type ledgerRepo struct{ q querier }

func (r ledgerRepo) Append(ctx context.Context, e progress.LedgerEntry) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO xp_ledger (id, user_id, amount, source, description, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount.Int(), e.Source.String(), e.Description, millis(e.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("progress", "Append", shared.ErrAlreadyExists, "ledger entry already exists")
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (r ledgerRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]progress.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT id, user_id, amount, source, description, created_at FROM xp_ledger
WHERE user_id = ? AND created_at >= ? AND created_at < ?
ORDER BY created_at ASC, rowid ASC`, userID, millis(from), millis(to))
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return scanLedger(rows)
}

func (r ledgerRepo) ListRecent(ctx context.Context, userID string, limit int) ([]progress.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT id, user_id, amount, source, description, created_at FROM xp_ledger
WHERE user_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return scanLedger(rows)
}

func scanLedger(rows *sql.Rows) ([]progress.LedgerEntry, error) {
	defer rows.Close()

	var out []progress.LedgerEntry
	for rows.Next() {
		var (
			e         progress.LedgerEntry
			amount    int
			source    string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &amount, &source, &e.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Amount = progress.XP(amount)
		e.Source = progress.Source(source)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Tasks
// ─────────────────────────────────────────────────────────────────────────────

type taskRepo struct{ q querier }

const taskColumns = `id, user_id, title, description, category, xp_value, completed,
	completed_at, rewarded_at, deadline, created_at, updated_at`

func (r taskRepo) Create(ctx context.Context, t *task.Task) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, string(t.Category), t.XPValue.Int(), t.Completed,
		nullMillis(t.CompletedAt), nullMillis(t.RewardedAt), nullMillis(t.Deadline),
		millis(t.CreatedAt), millis(t.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("task", "Create", shared.ErrAlreadyExists, "task already exists")
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r taskRepo) GetByID(ctx context.Context, id string) (*task.Task, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, shared.ErrTaskNotFound
	}
	return tasks[0], nil
}

func (r taskRepo) Update(ctx context.Context, t *task.Task) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE tasks SET title = ?, description = ?, category = ?, completed = ?,
	completed_at = ?, rewarded_at = ?, deadline = ?, updated_at = ?
WHERE id = ?`,
		t.Title, t.Description, string(t.Category), t.Completed,
		nullMillis(t.CompletedAt), nullMillis(t.RewardedAt), nullMillis(t.Deadline), millis(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(res, shared.ErrTaskNotFound)
}

func (r taskRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireRow(res, shared.ErrTaskNotFound)
}

func (r taskRepo) ListByUser(ctx context.Context, userID string) ([]*task.Task, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return scanTasks(rows)
}

func (r taskRepo) CountCompletedByCategory(ctx context.Context, userID string, from, to time.Time) (map[task.Category]int, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT category, COUNT(*) FROM tasks
WHERE user_id = ? AND completed = 1 AND completed_at >= ? AND completed_at < ?
GROUP BY category`, userID, millis(from), millis(to))
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[task.Category]int)
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[task.Category(category)] = n
	}
	return counts, rows.Err()
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		var (
			t                                 task.Task
			category                          string
			xpValue                           int
			completedAt, rewardedAt, deadline sql.NullInt64
			createdAt, updatedAt              int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &category, &xpValue, &t.Completed,
			&completedAt, &rewardedAt, &deadline, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Category = task.Category(category)
		t.XPValue = progress.XP(xpValue)
		t.CompletedAt = timePtr(completedAt)
		t.RewardedAt = timePtr(rewardedAt)
		t.Deadline = timePtr(deadline)
		t.CreatedAt = fromMillis(createdAt)
		t.UpdatedAt = fromMillis(updatedAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Focus sessions
// ─────────────────────────────────────────────────────────────────────────────

type sessionRepo struct{ q querier }

const sessionColumns = `id, user_id, duration_minutes, notes, xp_awarded, started_at, ended_at, created_at, credited_at`

func (r sessionRepo) Create(ctx context.Context, s *focus.Session) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO focus_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.DurationMinutes, s.Notes, s.XPAwarded.Int(),
		nullMillis(s.StartedAt), nullMillis(s.EndedAt), millis(s.CreatedAt), nullMillis(s.CreditedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("focus", "Create", shared.ErrAlreadyExists, "session already exists")
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r sessionRepo) GetByID(ctx context.Context, id string) (*focus.Session, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+sessionColumns+` FROM focus_sessions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, shared.ErrSessionNotFound
	}
	return sessions[0], nil
}

func (r sessionRepo) MarkCredited(ctx context.Context, s *focus.Session) error {
	res, err := r.q.ExecContext(ctx, `UPDATE focus_sessions SET credited_at = ? WHERE id = ?`, nullMillis(s.CreditedAt), s.ID)
	if err != nil {
		return fmt.Errorf("mark session credited: %w", err)
	}
	return requireRow(res, shared.ErrSessionNotFound)
}

func (r sessionRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*focus.Session, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+sessionColumns+` FROM focus_sessions
WHERE user_id = ? AND created_at >= ? AND created_at < ?
ORDER BY created_at ASC, rowid ASC`, userID, millis(from), millis(to))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]*focus.Session, error) {
	defer rows.Close()

	var out []*focus.Session
	for rows.Next() {
		var (
			s                            focus.Session
			xp                           int
			startedAt, endedAt, credited sql.NullInt64
			createdAt                    int64
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.DurationMinutes, &s.Notes, &xp,
			&startedAt, &endedAt, &createdAt, &credited); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.XPAwarded = progress.XP(xp)
		s.StartedAt = timePtr(startedAt)
		s.EndedAt = timePtr(endedAt)
		s.CreatedAt = fromMillis(createdAt)
		s.CreditedAt = timePtr(credited)
		out = append(out, &s)
	}
	return out, rows.Err()
}
