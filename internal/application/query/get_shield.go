package query

import (
	"context"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/motivation"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SHIELD QUERY
// Data for the distraction shield shown during a focus session.
// ══════════════════════════════════════════════════════════════════════════════

// GetShieldQuery contains the parameters of the query.
type GetShieldQuery struct {
	UserID string
}

// Shield is the result of the query.
type Shield struct {
	Streak              int    `json:"streak"`
	StreakActive        bool   `json:"streak_active"`
	XPThisWeek          int    `json:"xp_this_week"`
	TasksCompletedToday int    `json:"tasks_completed_today"`
	FocusMinutesToday   int    `json:"focus_minutes_today"`
	Quote               string `json:"quote"`
	Author              string `json:"author"`
}

// GetShieldHandler handles the GetShieldQuery.
type GetShieldHandler struct {
	repos  gamification.Scope
	weekly *GetWeeklyProgressHandler
	clock  timeutil.Clock
	picker *motivation.Picker
}

// NewGetShieldHandler creates a new handler.
func NewGetShieldHandler(repos gamification.Scope, clock timeutil.Clock, picker *motivation.Picker) *GetShieldHandler {
	return &GetShieldHandler{
		repos:  repos,
		weekly: NewGetWeeklyProgressHandler(repos, clock),
		clock:  clock,
		picker: picker,
	}
}

// Handle executes the query.
func (h *GetShieldHandler) Handle(ctx context.Context, q GetShieldQuery) (*Shield, error) {
	uid, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}

	p, err := loadProgress(ctx, h.repos, uid.String())
	if err != nil {
		return nil, err
	}
	week, err := h.weekly.Handle(ctx, GetWeeklyProgressQuery{UserID: uid.String(), Days: defaultWindowDays})
	if err != nil {
		return nil, err
	}

	loc := h.clock.Location()
	day := today(h.clock)
	tasksToday, err := h.repos.Tasks().CountCompletedByCategory(ctx, uid.String(), day.StartIn(loc), day.AddDays(1).StartIn(loc))
	if err != nil {
		return nil, shared.StorageError("task", "CountCompleted", err)
	}

	shield := &Shield{
		Streak:            p.CurrentStreak,
		StreakActive:      NewProgressSummary(p).StreakActive(day),
		XPThisWeek:        week.TotalXP,
		FocusMinutesToday: week.Days[len(week.Days)-1].FocusMinutes,
		Quote:             "Stay focused on your goals!",
		Author:            "NeuroBoost",
	}
	for _, n := range tasksToday {
		shield.TasksCompletedToday += n
	}
	if h.picker != nil {
		if c, ok := h.picker.PickKind(motivation.KindQuote); ok {
			shield.Quote, shield.Author = c.Text, c.Author
		}
	}
	return shield, nil
}
