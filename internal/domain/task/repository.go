package task

import (
	"context"
	"time"
)

// Repository stores tasks.
type Repository interface {
	// Create inserts a new task.
	Create(ctx context.Context, t *Task) error

	// GetByID returns a task.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id string) (*Task, error)

	// Update overwrites a task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, t *Task) error

	// Delete removes a task.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id string) error

	// ListByUser returns the user's tasks, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Task, error)

	// CountCompletedByCategory counts tasks completed within [from, to) per category.
	CountCompletedByCategory(ctx context.Context, userID string, from, to time.Time) (map[Category]int, error)
}
