package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/domain/task"
)

// TaskRepository implements task.Repository for PostgreSQL.
type TaskRepository struct {
	q Querier
}

const taskColumns = `id, user_id, title, description, category, xp_value, completed,
	completed_at, rewarded_at, deadline, created_at, updated_at`

// Create inserts a new task.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		t.ID, t.UserID, t.Title, t.Description, string(t.Category), t.XPValue.Int(), t.Completed,
		t.CompletedAt, t.RewardedAt, t.Deadline, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("task", "Create", shared.ErrAlreadyExists, "task already exists")
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID returns a task.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*task.Task, error) {
	row := r.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// Update overwrites a task. xp_value is immutable and not written.
func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE tasks SET
			title = $1,
			description = $2,
			category = $3,
			completed = $4,
			completed_at = $5,
			rewarded_at = $6,
			deadline = $7,
			updated_at = $8
		WHERE id = $9
	`,
		t.Title, t.Description, string(t.Category), t.Completed,
		t.CompletedAt, t.RewardedAt, t.Deadline, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTaskNotFound
	}
	return nil
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTaskNotFound
	}
	return nil
}

// ListByUser returns the user's tasks, newest first.
func (r *TaskRepository) ListByUser(ctx context.Context, userID string) ([]*task.Task, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*task.Task, error) {
		return scanTask(row)
	})
}

// CountCompletedByCategory counts tasks completed within [from, to) per category.
func (r *TaskRepository) CountCompletedByCategory(ctx context.Context, userID string, from, to time.Time) (map[task.Category]int, error) {
	rows, err := r.q.Query(ctx, `
		SELECT category, COUNT(*)
		FROM tasks
		WHERE user_id = $1 AND completed AND completed_at >= $2 AND completed_at < $3
		GROUP BY category
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[task.Category]int)
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[task.Category(category)] = n
	}
	return counts, rows.Err()
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t        task.Task
		category string
		xpValue  int
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &category, &xpValue, &t.Completed,
		&t.CompletedAt, &t.RewardedAt, &t.Deadline, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Category = task.Category(category)
	t.XPValue = progress.XP(xpValue)
	return &t, nil
}
