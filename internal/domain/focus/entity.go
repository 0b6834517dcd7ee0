// Package focus contains focus sessions and their XP eligibility rule.
package focus

import (
	"time"

	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

const (
	// MinEligibleMinutes - shortest session that earns XP.
	MinEligibleMinutes = 25

	// RewardXP - fixed reward of an eligible session.
	RewardXP progress.XP = 15
)

// EligibleXP returns the XP a session of the given length earns.
func EligibleXP(durationMinutes int) progress.XP {
	if durationMinutes >= MinEligibleMinutes {
		return RewardXP
	}
	return 0
}

// DurationBetween returns the whole minutes between start and end.
func DurationBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// Session is one logged block of focused work.
type Session struct {
	ID              string
	UserID          string
	DurationMinutes int
	Notes           string

	// XPAwarded is fixed at creation from the eligibility rule.
	XPAwarded progress.XP

	StartedAt *time.Time
	EndedAt   *time.Time
	CreatedAt time.Time

	// CreditedAt is set once the session has been applied to the user's progress.
	CreditedAt *time.Time
}

// NewSessionParams holds the input for NewSession.
// When DurationMinutes is zero it is derived from StartedAt and EndedAt.
type NewSessionParams struct {
	ID              string
	UserID          string
	DurationMinutes int
	Notes           string
	StartedAt       *time.Time
	EndedAt         *time.Time
	Now             time.Time
}

// NewSession validates the input and fixes the session's XP award.
func NewSession(p NewSessionParams) (*Session, error) {
	if _, err := shared.NewUserID(p.UserID); err != nil {
		return nil, err
	}
	duration := p.DurationMinutes
	if duration == 0 && p.StartedAt != nil && p.EndedAt != nil {
		duration = DurationBetween(*p.StartedAt, *p.EndedAt)
	}
	if duration <= 0 {
		return nil, shared.ErrNonPositiveDuration
	}

	return &Session{
		ID:              p.ID,
		UserID:          p.UserID,
		DurationMinutes: duration,
		Notes:           p.Notes,
		XPAwarded:       EligibleXP(duration),
		StartedAt:       p.StartedAt,
		EndedAt:         p.EndedAt,
		CreatedAt:       p.Now,
	}, nil
}

// IsCredited reports whether the session was already applied to progress.
func (s *Session) IsCredited() bool {
	return s.CreditedAt != nil
}

// MarkCredited records that the session has been applied.
func (s *Session) MarkCredited(now time.Time) {
	if s.CreditedAt == nil {
		s.CreditedAt = &now
	}
}

// DailyMinutes sums session minutes per calendar day in loc for [from, from+days).
func DailyMinutes(sessions []*Session, from progress.Date, days int, loc *time.Location) []int {
	totals := make([]int, days)
	for _, s := range sessions {
		idx := progress.DateOf(s.CreatedAt, loc).DaysSince(from)
		if idx < 0 || idx >= days {
			continue
		}
		totals[idx] += s.DurationMinutes
	}
	return totals
}
