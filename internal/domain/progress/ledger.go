package progress

import (
	"time"

	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

// Source tells where an XP award came from.
type Source string

const (
	SourceTaskCompletion Source = "task_completion"
	SourceFocusSession   Source = "focus_session"
	SourceStreakBonus    Source = "streak_bonus"
)

// IsValid checks the source against the known set.
func (s Source) IsValid() bool {
	switch s {
	case SourceTaskCompletion, SourceFocusSession, SourceStreakBonus:
		return true
	}
	return false
}

// String returns the string representation.
func (s Source) String() string {
	return string(s)
}

// ParseSource validates a raw source name.
func ParseSource(raw string) (Source, error) {
	s := Source(raw)
	if !s.IsValid() {
		return "", shared.ErrUnknownSource
	}
	return s, nil
}

// LedgerEntry is one append-only line of XP history.
// Entries are for history and analytics; Progress.XP stays authoritative.
type LedgerEntry struct {
	ID          string
	UserID      string
	Amount      XP
	Source      Source
	Description string
	CreatedAt   time.Time
}

// NewLedgerEntry validates and builds an entry.
func NewLedgerEntry(id, userID string, amount XP, source Source, description string, at time.Time) (LedgerEntry, error) {
	if !amount.IsPositive() {
		return LedgerEntry{}, shared.ErrNonPositiveXP
	}
	if !source.IsValid() {
		return LedgerEntry{}, shared.ErrUnknownSource
	}
	return LedgerEntry{
		ID:          id,
		UserID:      userID,
		Amount:      amount,
		Source:      source,
		Description: description,
		CreatedAt:   at,
	}, nil
}

// DailyXP groups ledger entries by calendar day in loc, for days [from, from+days).
// Entries outside the window are ignored.
func DailyXP(entries []LedgerEntry, from Date, days int, loc *time.Location) []XP {
	totals := make([]XP, days)
	for _, e := range entries {
		idx := DateOf(e.CreatedAt, loc).DaysSince(from)
		if idx < 0 || idx >= days {
			continue
		}
		totals[idx] += e.Amount
	}
	return totals
}
