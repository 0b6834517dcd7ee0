// Package task contains the task entity and the category-based XP valuation.
// The completion flag is a two-state machine: Pending and Completed.
package task

import (
	"strings"
	"time"

	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

// Category groups tasks; it decides the XP a task is worth at creation.
type Category string

const (
	CategoryStudy   Category = "Study"
	CategoryGeneral Category = "General"
)

const (
	// StudyXP - value of a Study task.
	StudyXP progress.XP = 10
	// DefaultXP - value of any other task.
	DefaultXP progress.XP = 5
)

// ParseCategory normalizes a category name. Empty input means General.
// Unknown names are kept as-is: they are valued like General.
func ParseCategory(raw string) Category {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CategoryGeneral
	}
	if strings.EqualFold(raw, string(CategoryStudy)) {
		return CategoryStudy
	}
	if strings.EqualFold(raw, string(CategoryGeneral)) {
		return CategoryGeneral
	}
	return Category(raw)
}

// XPValueFor returns the XP a new task of category c is worth.
func XPValueFor(c Category) progress.XP {
	if c == CategoryStudy {
		return StudyXP
	}
	return DefaultXP
}

// Task is a unit of work a user can complete for XP.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Category    Category

	// XPValue is fixed at creation and never recomputed.
	XPValue progress.XP

	Completed   bool
	CompletedAt *time.Time

	// RewardedAt is set the first time a completion paid out XP.
	RewardedAt *time.Time

	Deadline  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTaskParams holds the input for NewTask.
type NewTaskParams struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Category    Category
	Deadline    *time.Time
	Now         time.Time
}

// NewTask creates a pending task and fixes its XP value from the category.
func NewTask(p NewTaskParams) (*Task, error) {
	if _, err := shared.NewUserID(p.UserID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, shared.ErrTaskTitleEmpty
	}
	category := p.Category
	if category == "" {
		category = CategoryGeneral
	}

	return &Task{
		ID:          p.ID,
		UserID:      p.UserID,
		Title:       title,
		Description: p.Description,
		Category:    category,
		XPValue:     XPValueFor(category),
		Deadline:    p.Deadline,
		CreatedAt:   p.Now,
		UpdatedAt:   p.Now,
	}, nil
}

// Transition is the result of flipping the completion flag.
type Transition int

const (
	// TransitionCompleted - Pending to Completed.
	TransitionCompleted Transition = iota + 1
	// TransitionReopened - Completed to Pending (undo).
	TransitionReopened
)

// Toggle flips the completion flag. Reopening keeps RewardedAt.
func (t *Task) Toggle(now time.Time) Transition {
	t.UpdatedAt = now
	if t.Completed {
		t.Completed = false
		t.CompletedAt = nil
		return TransitionReopened
	}
	t.Completed = true
	t.CompletedAt = &now
	return TransitionCompleted
}

// MarkRewarded records that a completion of this task paid out XP.
func (t *Task) MarkRewarded(now time.Time) {
	if t.RewardedAt == nil {
		t.RewardedAt = &now
	}
}

// WasRewarded reports whether any completion of this task paid out XP.
func (t *Task) WasRewarded() bool {
	return t.RewardedAt != nil
}

// Recategorize changes the category. XPValue stays as fixed at creation.
func (t *Task) Recategorize(c Category, now time.Time) {
	if c == "" {
		c = CategoryGeneral
	}
	t.Category = c
	t.UpdatedAt = now
}

// BelongsTo reports whether the task is owned by userID.
func (t *Task) BelongsTo(userID string) bool {
	return t.UserID == userID
}
