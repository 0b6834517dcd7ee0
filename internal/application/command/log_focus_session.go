package command

import (
	"context"
	"time"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOG FOCUS SESSION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// LogFocusSessionCommand records a finished focus session.
// DurationMinutes may be zero when both StartedAt and EndedAt are given.
type LogFocusSessionCommand struct {
	UserID          string
	DurationMinutes int
	Notes           string
	StartedAt       *time.Time
	EndedAt         *time.Time
}

// Validate validates the command.
func (c LogFocusSessionCommand) Validate() error {
	if c.UserID == "" {
		return shared.ErrInvalidUserID
	}
	if c.DurationMinutes < 0 {
		return shared.ErrNonPositiveDuration
	}
	if c.DurationMinutes == 0 && (c.StartedAt == nil || c.EndedAt == nil) {
		return shared.ErrNonPositiveDuration
	}
	return nil
}

// FocusSessionResult is relayed to the caller after a session is logged.
type FocusSessionResult struct {
	SessionID         string `json:"session_id"`
	DurationMinutes   int    `json:"duration_minutes"`
	XPGained          int    `json:"xp_gained"`
	LeveledUp         bool   `json:"leveled_up"`
	TotalFocusMinutes int    `json:"total_focus_minutes"`
	AlreadyCredited   bool   `json:"already_credited,omitempty"`
}

func newFocusSessionResult(r gamification.FocusResult) *FocusSessionResult {
	return &FocusSessionResult{
		SessionID:         r.SessionID,
		DurationMinutes:   r.DurationMinutes,
		XPGained:          r.XPGained.Int(),
		LeveledUp:         r.LeveledUp,
		TotalFocusMinutes: r.TotalFocusMinutes,
		AlreadyCredited:   r.AlreadyCredited,
	}
}

// LogFocusSessionHandler handles the LogFocusSessionCommand.
type LogFocusSessionHandler struct {
	engine *gamification.Engine
}

// NewLogFocusSessionHandler creates a new LogFocusSessionHandler.
func NewLogFocusSessionHandler(engine *gamification.Engine) *LogFocusSessionHandler {
	return &LogFocusSessionHandler{engine: engine}
}

// Handle validates the duration and delegates to the engine.
func (h *LogFocusSessionHandler) Handle(ctx context.Context, cmd LogFocusSessionCommand) (*FocusSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	res, err := h.engine.LogFocusSession(ctx, gamification.LogFocusSessionInput{
		UserID:          cmd.UserID,
		DurationMinutes: cmd.DurationMinutes,
		Notes:           cmd.Notes,
		StartedAt:       cmd.StartedAt,
		EndedAt:         cmd.EndedAt,
	})
	if err != nil {
		return nil, err
	}
	return newFocusSessionResult(res), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDIT FOCUS SESSION COMMAND
// Re-applies a stored session. A session is credited at most once.
// ══════════════════════════════════════════════════════════════════════════════

// CreditFocusSessionCommand re-processes a stored session.
type CreditFocusSessionCommand struct {
	UserID    string
	SessionID string
}

// CreditFocusSessionHandler handles the CreditFocusSessionCommand.
type CreditFocusSessionHandler struct {
	engine *gamification.Engine
}

// NewCreditFocusSessionHandler creates a new CreditFocusSessionHandler.
func NewCreditFocusSessionHandler(engine *gamification.Engine) *CreditFocusSessionHandler {
	return &CreditFocusSessionHandler{engine: engine}
}

// Handle executes the command.
func (h *CreditFocusSessionHandler) Handle(ctx context.Context, cmd CreditFocusSessionCommand) (*FocusSessionResult, error) {
	if cmd.SessionID == "" {
		return nil, shared.ErrInvalidSessionID
	}
	res, err := h.engine.CreditFocusSession(ctx, cmd.UserID, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	return newFocusSessionResult(res), nil
}
