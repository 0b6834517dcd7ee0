// Package query contains read operations (CQRS - Queries).
// Queries never create or mutate progress records.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/pkg/logger"
	"github.com/neuroboost/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS SUMMARY QUERY
// XP, level band position and streak state of one user. Served from the
// summary cache when one is configured.
// ══════════════════════════════════════════════════════════════════════════════

// SummaryCache stores computed summaries. Implementations must tolerate
// concurrent use; a miss is reported with found == false.
//
// Every invalidation advances the user's generation. SetSummary must drop a
// summary whose generation is no longer current, so a reader that loaded
// before a write cannot cache what it read.
type SummaryCache interface {
	GetSummary(ctx context.Context, userID string) (summary *ProgressSummary, found bool, err error)
	Generation(ctx context.Context, userID string) (int64, error)
	SetSummary(ctx context.Context, summary *ProgressSummary, generation int64) error
	InvalidateSummary(ctx context.Context, userID string) error
}

// GetProgressSummaryQuery contains the parameters of the query.
type GetProgressSummaryQuery struct {
	UserID string
}

// ProgressSummary is the read model of a user's progress.
type ProgressSummary struct {
	UserID             string `json:"user_id"`
	XP                 int    `json:"xp"`
	Level              int    `json:"level"`
	XPIntoLevel        int    `json:"xp_into_level"`
	XPToNextLevel      int    `json:"xp_to_next_level"`
	ProgressPercent    int    `json:"progress_percent"`
	CurrentStreak      int    `json:"current_streak"`
	LastCompletionDate string `json:"last_completion_date,omitempty"`
	TotalFocusMinutes  int    `json:"total_focus_minutes"`
}

// StreakActive reports whether the streak can still be continued, i.e. the last
// completion was today or yesterday relative to today.
func (s ProgressSummary) StreakActive(today progress.Date) bool {
	last, err := progress.ParseDate(s.LastCompletionDate)
	if err != nil || last.IsZero() {
		return false
	}
	diff := today.DaysSince(last)
	return diff == 0 || diff == 1
}

// NewProgressSummary builds the read model from a progress record.
func NewProgressSummary(p progress.Progress) *ProgressSummary {
	into := p.XPIntoLevel().Int()
	return &ProgressSummary{
		UserID:             p.UserID,
		XP:                 p.XP.Int(),
		Level:              p.Level().Int(),
		XPIntoLevel:        into,
		XPToNextLevel:      p.XPToNextLevel().Int(),
		ProgressPercent:    into * 100 / progress.XPPerLevel,
		CurrentStreak:      p.CurrentStreak,
		LastCompletionDate: p.LastCompletionDate.String(),
		TotalFocusMinutes:  p.TotalFocusMinutes,
	}
}

// GetProgressSummaryHandler handles the GetProgressSummaryQuery.
type GetProgressSummaryHandler struct {
	repos  gamification.Scope
	cache  SummaryCache
	logger *logger.Logger
}

// NewGetProgressSummaryHandler creates a new handler. cache may be nil.
func NewGetProgressSummaryHandler(repos gamification.Scope, cache SummaryCache, log *logger.Logger) *GetProgressSummaryHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetProgressSummaryHandler{repos: repos, cache: cache, logger: log}
}

// Handle executes the query. Users without a record get the starting values.
func (h *GetProgressSummaryHandler) Handle(ctx context.Context, q GetProgressSummaryQuery) (*ProgressSummary, error) {
	uid, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}
	userID := uid.String()

	cacheable := false
	var generation int64
	if h.cache != nil {
		cached, found, err := h.cache.GetSummary(ctx, userID)
		if err != nil {
			h.logger.Warn("summary cache read failed", logger.UserID(userID), logger.Err(err))
		} else if found {
			return cached, nil
		}
		// Read before the store so a concurrent write is detected on SetSummary.
		generation, err = h.cache.Generation(ctx, userID)
		cacheable = err == nil
		if err != nil {
			h.logger.Debug("summary generation unavailable", logger.UserID(userID), logger.Err(err))
		}
	}

	p, err := loadProgress(ctx, h.repos, userID)
	if err != nil {
		return nil, fmt.Errorf("get_progress_summary: %w", err)
	}
	summary := NewProgressSummary(p)

	if cacheable {
		if err := h.cache.SetSummary(ctx, summary, generation); err != nil {
			h.logger.Warn("summary cache write failed", logger.UserID(userID), logger.Err(err))
		}
	}
	return summary, nil
}

// loadProgress reads the record without creating it.
func loadProgress(ctx context.Context, repos gamification.Scope, userID string) (progress.Progress, error) {
	p, err := repos.Progress().Get(ctx, userID)
	if shared.IsNotFound(err) {
		return *progress.NewProgress(userID, time.Time{}), nil
	}
	if err != nil {
		return progress.Progress{}, shared.StorageError("progress", "Get", err)
	}
	return *p, nil
}

// today is a small helper shared by the calendar queries.
func today(clock timeutil.Clock) progress.Date {
	return progress.DateOf(clock.Now(), clock.Location())
}
