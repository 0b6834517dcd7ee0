package command

import (
	"context"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE & MANUAL AWARD
// EnsureProfile is called by user registration; AwardXP is the operator path
// used by the CLI.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileView is the outward representation of a progress record.
type ProfileView struct {
	UserID             string `json:"user_id"`
	XP                 int    `json:"xp"`
	Level              int    `json:"level"`
	CurrentStreak      int    `json:"current_streak"`
	LastCompletionDate string `json:"last_completion_date,omitempty"`
	TotalFocusMinutes  int    `json:"total_focus_minutes"`
}

// NewProfileView converts a progress record for output.
func NewProfileView(p progress.Progress) ProfileView {
	return ProfileView{
		UserID:             p.UserID,
		XP:                 p.XP.Int(),
		Level:              p.Level().Int(),
		CurrentStreak:      p.CurrentStreak,
		LastCompletionDate: p.LastCompletionDate.String(),
		TotalFocusMinutes:  p.TotalFocusMinutes,
	}
}

// ProfileHandler handles profile creation and manual awards.
type ProfileHandler struct {
	engine *gamification.Engine
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(engine *gamification.Engine) *ProfileHandler {
	return &ProfileHandler{engine: engine}
}

// Ensure creates the user's starting record if it does not exist yet.
func (h *ProfileHandler) Ensure(ctx context.Context, userID string) (*ProfileView, error) {
	p, err := h.engine.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := NewProfileView(p)
	return &view, nil
}

// AwardXPCommand grants XP outside the task and focus workflows.
type AwardXPCommand struct {
	UserID      string
	Amount      int
	Source      string
	Description string
}

// AwardXPResult describes a manual award.
type AwardXPResult struct {
	UserID    string `json:"user_id"`
	XPGained  int    `json:"xp_gained"`
	TotalXP   int    `json:"total_xp"`
	Level     int    `json:"level"`
	LeveledUp bool   `json:"leveled_up"`
}

// Award validates the source and delegates to the engine.
func (h *ProfileHandler) Award(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	source, err := progress.ParseSource(cmd.Source)
	if err != nil {
		return nil, err
	}
	res, err := h.engine.AwardXP(ctx, cmd.UserID, progress.XP(cmd.Amount), source, cmd.Description)
	if err != nil {
		return nil, err
	}
	return &AwardXPResult{
		UserID:    cmd.UserID,
		XPGained:  res.Amount.Int(),
		TotalXP:   res.NewXP.Int(),
		Level:     res.NewLevel.Int(),
		LeveledUp: res.LeveledUp,
	}, nil
}
