package query

import (
	"context"
	"fmt"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/focus"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET WEEKLY PROGRESS QUERY
// Per-day XP (from the ledger) and focus minutes (from sessions) for the last
// N calendar days, oldest first, ending today.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultWindowDays = 7
	maxWindowDays     = 90
)

// GetWeeklyProgressQuery contains the parameters of the query.
type GetWeeklyProgressQuery struct {
	UserID string
	// Days - window length, 7 if zero.
	Days int
}

// DayProgress is one day of the window.
type DayProgress struct {
	Date         string `json:"date"`
	XP           int    `json:"xp"`
	FocusMinutes int    `json:"focus_minutes"`
}

// WeeklyProgress is the result of the query.
type WeeklyProgress struct {
	UserID              string         `json:"user_id"`
	Days                []DayProgress  `json:"days"`
	TotalXP             int            `json:"total_xp"`
	TotalFocusMinutes   int            `json:"total_focus_minutes"`
	CompletedByCategory map[string]int `json:"completed_by_category"`
}

// GetWeeklyProgressHandler handles the GetWeeklyProgressQuery.
type GetWeeklyProgressHandler struct {
	repos gamification.Scope
	clock timeutil.Clock
}

// NewGetWeeklyProgressHandler creates a new handler.
func NewGetWeeklyProgressHandler(repos gamification.Scope, clock timeutil.Clock) *GetWeeklyProgressHandler {
	return &GetWeeklyProgressHandler{repos: repos, clock: clock}
}

// Handle executes the query.
func (h *GetWeeklyProgressHandler) Handle(ctx context.Context, q GetWeeklyProgressQuery) (*WeeklyProgress, error) {
	uid, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}
	days := q.Days
	if days <= 0 {
		days = defaultWindowDays
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}

	loc := h.clock.Location()
	first := today(h.clock).AddDays(-(days - 1))
	from := first.StartIn(loc)
	to := first.AddDays(days).StartIn(loc)

	entries, err := h.repos.Ledger().ListBetween(ctx, uid.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("get_weekly_progress: ledger: %w", shared.StorageError("progress", "ListLedger", err))
	}
	sessions, err := h.repos.Sessions().ListBetween(ctx, uid.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("get_weekly_progress: sessions: %w", shared.StorageError("focus", "ListBetween", err))
	}
	counts, err := h.repos.Tasks().CountCompletedByCategory(ctx, uid.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("get_weekly_progress: tasks: %w", shared.StorageError("task", "CountCompleted", err))
	}

	xpPerDay := progress.DailyXP(entries, first, days, loc)
	minutesPerDay := focus.DailyMinutes(sessions, first, days, loc)

	result := &WeeklyProgress{
		UserID:              uid.String(),
		Days:                make([]DayProgress, days),
		CompletedByCategory: make(map[string]int, len(counts)),
	}
	for i := 0; i < days; i++ {
		result.Days[i] = DayProgress{
			Date:         first.AddDays(i).String(),
			XP:           xpPerDay[i].Int(),
			FocusMinutes: minutesPerDay[i],
		}
		result.TotalXP += xpPerDay[i].Int()
		result.TotalFocusMinutes += minutesPerDay[i]
	}
	for category, n := range counts {
		result.CompletedByCategory[string(category)] = n
	}
	return result, nil
}
