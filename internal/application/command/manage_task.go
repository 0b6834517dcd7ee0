package command

import (
	"context"
	"time"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE / RECATEGORIZE / DELETE TASK
// ══════════════════════════════════════════════════════════════════════════════

// CreateTaskCommand creates a pending task.
type CreateTaskCommand struct {
	UserID      string
	Title       string
	Category    string
	Description string
	Deadline    *time.Time
}

// TaskView is the outward representation of a task.
type TaskView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category"`
	XPValue     int        `json:"xp_value"`
	Completed   bool       `json:"completed"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewTaskView converts a task for output.
func NewTaskView(t *task.Task) TaskView {
	return TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Category:    string(t.Category),
		XPValue:     t.XPValue.Int(),
		Completed:   t.Completed,
		Deadline:    t.Deadline,
		CreatedAt:   t.CreatedAt,
	}
}

// TaskHandler handles task creation, re-categorization and deletion.
type TaskHandler struct {
	engine *gamification.Engine
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(engine *gamification.Engine) *TaskHandler {
	return &TaskHandler{engine: engine}
}

// Create stores a new task; its XP value is fixed here from the category.
func (h *TaskHandler) Create(ctx context.Context, cmd CreateTaskCommand) (*TaskView, error) {
	var view TaskView
	err := h.engine.Execute(ctx, cmd.UserID, "CreateTask", func(tx *gamification.Tx) error {
		t, err := task.NewTask(task.NewTaskParams{
			ID:          h.engine.NewID(),
			UserID:      tx.UserID(),
			Title:       cmd.Title,
			Description: cmd.Description,
			Category:    task.ParseCategory(cmd.Category),
			Deadline:    cmd.Deadline,
			Now:         tx.Now(),
		})
		if err != nil {
			return err
		}
		if err := tx.Scope().Tasks().Create(tx.Context(), t); err != nil {
			return shared.StorageError("task", "Create", err)
		}
		view = NewTaskView(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// RecategorizeTaskCommand changes a task's category.
type RecategorizeTaskCommand struct {
	UserID   string
	TaskID   string
	Category string
}

// Recategorize changes the category; the XP value fixed at creation is kept.
func (h *TaskHandler) Recategorize(ctx context.Context, cmd RecategorizeTaskCommand) (*TaskView, error) {
	taskID, err := shared.ParseID(cmd.TaskID, shared.ErrInvalidTaskID)
	if err != nil {
		return nil, err
	}

	var view TaskView
	err = h.engine.Execute(ctx, cmd.UserID, "RecategorizeTask", func(tx *gamification.Tx) error {
		t, err := tx.Scope().Tasks().GetByID(tx.Context(), taskID)
		if err != nil {
			return shared.StorageError("task", "GetByID", err)
		}
		if !t.BelongsTo(tx.UserID()) {
			return shared.ErrTaskNotFound
		}
		t.Recategorize(task.ParseCategory(cmd.Category), tx.Now())
		if err := tx.Scope().Tasks().Update(tx.Context(), t); err != nil {
			return shared.StorageError("task", "Update", err)
		}
		view = NewTaskView(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// DeleteTaskCommand removes a task.
type DeleteTaskCommand struct {
	UserID string
	TaskID string
}

// Delete removes the task. XP already earned from it, the level and the
// streak are left as they are.
func (h *TaskHandler) Delete(ctx context.Context, cmd DeleteTaskCommand) error {
	taskID, err := shared.ParseID(cmd.TaskID, shared.ErrInvalidTaskID)
	if err != nil {
		return err
	}

	return h.engine.Execute(ctx, cmd.UserID, "DeleteTask", func(tx *gamification.Tx) error {
		t, err := tx.Scope().Tasks().GetByID(tx.Context(), taskID)
		if err != nil {
			return shared.StorageError("task", "GetByID", err)
		}
		if !t.BelongsTo(tx.UserID()) {
			return shared.ErrTaskNotFound
		}
		if err := tx.Scope().Tasks().Delete(tx.Context(), taskID); err != nil {
			return shared.StorageError("task", "Delete", err)
		}
		return nil
	})
}
