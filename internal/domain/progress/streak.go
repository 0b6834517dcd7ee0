package progress

// ══════════════════════════════════════════════════════════════════════════════
// STREAK POLICY
// ══════════════════════════════════════════════════════════════════════════════

const (
	// StreakMilestoneInterval - every multiple of this streak length is a milestone.
	StreakMilestoneInterval = 5

	// StreakBonusXP - extra XP granted when a milestone is reached.
	StreakBonusXP XP = 20
)

// StreakOutcome classifies how a completion affected the streak.
type StreakOutcome int

const (
	// StreakStarted - first ever qualifying completion.
	StreakStarted StreakOutcome = iota + 1
	// StreakContinued - completion on the day after the previous one.
	StreakContinued
	// StreakReset - one or more days were missed, or the stored date is ahead of today.
	StreakReset
	// StreakUnchanged - another completion on the same day.
	StreakUnchanged
)

// String returns a stable name for logs.
func (o StreakOutcome) String() string {
	switch o {
	case StreakStarted:
		return "started"
	case StreakContinued:
		return "continued"
	case StreakReset:
		return "reset"
	case StreakUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// StreakUpdate is the result of applying the streak policy.
type StreakUpdate struct {
	Previous int
	Streak   int
	Changed  bool
	Outcome  StreakOutcome
}

// MilestoneReached reports whether this transition produced a milestone streak.
// Same-day repeats never count, even when the streak already sits on a milestone.
func (u StreakUpdate) MilestoneReached() bool {
	return u.Changed && u.Streak > 0 && u.Streak%StreakMilestoneInterval == 0
}

// UpdateStreak computes the streak after a completion on today.
// last is the zero Date when the user never completed anything.
func UpdateStreak(last Date, current int, today Date) StreakUpdate {
	if last.IsZero() {
		return StreakUpdate{Previous: current, Streak: 1, Changed: true, Outcome: StreakStarted}
	}

	switch today.DaysSince(last) {
	case 0:
		return StreakUpdate{Previous: current, Streak: current, Changed: false, Outcome: StreakUnchanged}
	case 1:
		return StreakUpdate{Previous: current, Streak: current + 1, Changed: true, Outcome: StreakContinued}
	default:
		// Missed days, or a last date in the future after clock skew.
		return StreakUpdate{Previous: current, Streak: 1, Changed: true, Outcome: StreakReset}
	}
}
