// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/domain/task"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE TASK COMMAND
// Pending → Completed pays the task's XP and registers the day for the streak.
// Completed → Pending only flips the flag: earned XP, level and streak stay.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleTaskCommand flips a task's completion flag.
type ToggleTaskCommand struct {
	UserID string
	TaskID string
}

// Validate validates the command.
func (c ToggleTaskCommand) Validate() error {
	if c.UserID == "" {
		return shared.ErrInvalidUserID
	}
	if c.TaskID == "" {
		return shared.ErrInvalidTaskID
	}
	return nil
}

// ToggleTaskResult is relayed to the caller after a toggle.
type ToggleTaskResult struct {
	TaskID                 string `json:"task_id"`
	Completed              bool   `json:"completed"`
	XPGained               int    `json:"xp_gained"`
	StreakBonusXP          int    `json:"streak_bonus_xp"`
	TotalXP                int    `json:"total_xp"`
	Level                  int    `json:"level"`
	LeveledUp              bool   `json:"leveled_up"`
	Streak                 int    `json:"streak"`
	StreakMilestoneReached bool   `json:"streak_milestone_reached"`
}

// ToggleTaskHandler handles the ToggleTaskCommand.
type ToggleTaskHandler struct {
	engine *gamification.Engine
}

// NewToggleTaskHandler creates a new ToggleTaskHandler.
func NewToggleTaskHandler(engine *gamification.Engine) *ToggleTaskHandler {
	return &ToggleTaskHandler{engine: engine}
}

// Handle executes the toggle inside one unit of work.
func (h *ToggleTaskHandler) Handle(ctx context.Context, cmd ToggleTaskCommand) (*ToggleTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	taskID, err := shared.ParseID(cmd.TaskID, shared.ErrInvalidTaskID)
	if err != nil {
		return nil, err
	}

	result := &ToggleTaskResult{TaskID: taskID}
	err = h.engine.Execute(ctx, cmd.UserID, "ToggleTask", func(tx *gamification.Tx) error {
		t, err := tx.Scope().Tasks().GetByID(tx.Context(), taskID)
		if err != nil {
			return shared.StorageError("task", "GetByID", err)
		}
		if !t.BelongsTo(tx.UserID()) {
			return shared.ErrTaskNotFound
		}

		transition := t.Toggle(tx.Now())
		result.Completed = t.Completed

		if transition == task.TransitionCompleted {
			if err := h.complete(tx, t, result); err != nil {
				return err
			}
		}

		if err := tx.Scope().Tasks().Update(tx.Context(), t); err != nil {
			return shared.StorageError("task", "Update", err)
		}
		tx.Emit(shared.NewTaskToggledEvent(tx.UserID(), t.ID, t.Completed, result.XPGained, tx.Now()))

		p := tx.Progress()
		result.TotalXP = p.XP.Int()
		result.Level = p.Level().Int()
		result.Streak = p.CurrentStreak
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// complete runs the completion sequence: task XP first, then the streak and its bonus.
func (h *ToggleTaskHandler) complete(tx *gamification.Tx, t *task.Task, result *ToggleTaskResult) error {
	payOut := t.XPValue.IsPositive() && !(h.engine.Config().RewardOncePerTask && t.WasRewarded())
	if payOut {
		award, err := tx.AwardXP(t.XPValue, progress.SourceTaskCompletion, fmt.Sprintf("Completed task: %s", t.Title))
		if err != nil {
			return fmt.Errorf("toggle_task: award xp: %w", err)
		}
		t.MarkRewarded(tx.Now())
		result.XPGained = award.Amount.Int()
		result.LeveledUp = award.LeveledUp
	}

	streak, err := tx.RegisterCompletionForStreak(tx.Today())
	if err != nil {
		return fmt.Errorf("toggle_task: register streak: %w", err)
	}
	result.StreakBonusXP = streak.BonusXP.Int()
	result.StreakMilestoneReached = streak.MilestoneReached
	result.LeveledUp = result.LeveledUp || streak.BonusLeveledUp
	return nil
}
