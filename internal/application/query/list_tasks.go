package query

import (
	"context"
	"time"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

// ListTasksQuery lists a user's tasks.
type ListTasksQuery struct {
	UserID string
	// OnlyPending hides completed tasks.
	OnlyPending bool
}

// TaskItem is one listed task.
type TaskItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	XPValue     int        `json:"xp_value"`
	Completed   bool       `json:"completed"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ListTasksHandler handles the ListTasksQuery.
type ListTasksHandler struct {
	repos gamification.Scope
}

// NewListTasksHandler creates a new handler.
func NewListTasksHandler(repos gamification.Scope) *ListTasksHandler {
	return &ListTasksHandler{repos: repos}
}

// Handle executes the query. Tasks are newest first.
func (h *ListTasksHandler) Handle(ctx context.Context, q ListTasksQuery) ([]TaskItem, error) {
	uid, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}
	tasks, err := h.repos.Tasks().ListByUser(ctx, uid.String())
	if err != nil {
		return nil, shared.StorageError("task", "ListByUser", err)
	}

	out := make([]TaskItem, 0, len(tasks))
	for _, t := range tasks {
		if q.OnlyPending && t.Completed {
			continue
		}
		out = append(out, TaskItem{
			ID:          t.ID,
			Title:       t.Title,
			Category:    string(t.Category),
			XPValue:     t.XPValue.Int(),
			Completed:   t.Completed,
			Deadline:    t.Deadline,
			CompletedAt: t.CompletedAt,
			CreatedAt:   t.CreatedAt,
		})
	}
	return out, nil
}
