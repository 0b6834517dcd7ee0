// Package progress contains the per-user progress aggregate and the pure
// rules that govern it: leveling, streaks and the XP ledger.
package progress

import (
	"time"

	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP & LEVEL
// ══════════════════════════════════════════════════════════════════════════════

// XPPerLevel is the width of every level band.
const XPPerLevel = 100

// XP represents experience points.
type XP int

// Int returns the underlying int value.
func (x XP) Int() int {
	return int(x)
}

// IsPositive reports whether x can be awarded.
func (x XP) IsPositive() bool {
	return x > 0
}

// Level represents a user's level. Levels start at 1.
type Level int

// Int returns the underlying int value.
func (l Level) Int() int {
	return int(l)
}

// MinXP returns the XP at which this level starts.
func (l Level) MinXP() XP {
	return XP((int(l) - 1) * XPPerLevel)
}

// NextLevelXP returns the XP at which the next level starts.
func (l Level) NextLevelXP() XP {
	return XP(int(l) * XPPerLevel)
}

// LevelFor maps XP to a level: floor(xp/100) + 1.
// Negative input is treated as zero.
func LevelFor(xp XP) Level {
	if xp < 0 {
		return 1
	}
	return Level(int(xp)/XPPerLevel + 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Progress is the single gamification record of a user.
// Level is never stored: it is always derived from XP.
type Progress struct {
	// UserID - owner of the record.
	UserID string

	// XP - total experience, never decreases.
	XP XP

	// CurrentStreak - consecutive calendar days with a completion.
	CurrentStreak int

	// LastCompletionDate - day of the latest streak-qualifying event, zero if none.
	LastCompletionDate Date

	// TotalFocusMinutes - sum of all credited focus sessions.
	TotalFocusMinutes int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProgress returns the starting record for a user seen for the first time.
func NewProgress(userID string, now time.Time) *Progress {
	return &Progress{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Level returns the level derived from XP.
func (p *Progress) Level() Level {
	return LevelFor(p.XP)
}

// XPIntoLevel returns how far into the current level band the user is.
func (p *Progress) XPIntoLevel() XP {
	return p.XP - p.Level().MinXP()
}

// XPToNextLevel returns the XP still missing for the next level.
func (p *Progress) XPToNextLevel() XP {
	return p.Level().NextLevelXP() - p.XP
}

// LevelChange describes the effect of a single XP gain.
type LevelChange struct {
	OldLevel Level
	NewLevel Level
	NewXP    XP
}

// LeveledUp reports whether the gain crossed at least one level boundary.
func (c LevelChange) LeveledUp() bool {
	return c.NewLevel > c.OldLevel
}

// GainXP adds a positive amount and reports the level transition.
// Non-positive amounts are rejected without touching the record.
func (p *Progress) GainXP(amount XP, now time.Time) (LevelChange, error) {
	if !amount.IsPositive() {
		return LevelChange{}, shared.ErrNonPositiveXP
	}
	old := p.Level()
	p.XP += amount
	p.UpdatedAt = now
	return LevelChange{OldLevel: old, NewLevel: p.Level(), NewXP: p.XP}, nil
}

// RecordCompletion applies the streak policy for a completion on today.
// LastCompletionDate always advances to today.
func (p *Progress) RecordCompletion(today Date, now time.Time) StreakUpdate {
	update := UpdateStreak(p.LastCompletionDate, p.CurrentStreak, today)
	p.CurrentStreak = update.Streak
	p.LastCompletionDate = today
	p.UpdatedAt = now
	return update
}

// AddFocusMinutes accumulates focus time.
func (p *Progress) AddFocusMinutes(minutes int, now time.Time) error {
	if minutes <= 0 {
		return shared.ErrNonPositiveDuration
	}
	p.TotalFocusMinutes += minutes
	p.UpdatedAt = now
	return nil
}

// Clone returns a copy safe to hand out of a store.
func (p *Progress) Clone() *Progress {
	c := *p
	return &c
}
