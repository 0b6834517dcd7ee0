package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

var now = time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		xp   XP
		want Level
	}{
		{-5, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{199, 2},
		{250, 3},
		{1000, 11},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.xp), "xp=%d", tt.xp)
	}
}

func TestProgress_GainXP_LevelUp(t *testing.T) {
	p := NewProgress("u1", now)
	p.XP = 95

	change, err := p.GainXP(10, now)

	require.NoError(t, err)
	assert.True(t, change.LeveledUp())
	assert.Equal(t, Level(1), change.OldLevel)
	assert.Equal(t, Level(2), change.NewLevel)
	assert.Equal(t, XP(105), p.XP)
	assert.Equal(t, XP(5), p.XPIntoLevel())
	assert.Equal(t, XP(95), p.XPToNextLevel())
}

func TestProgress_GainXP_RejectsNonPositive(t *testing.T) {
	p := NewProgress("u1", now)
	p.XP = 40

	for _, amount := range []XP{0, -10} {
		_, err := p.GainXP(amount, now.Add(time.Hour))
		assert.ErrorIs(t, err, shared.ErrNonPositiveXP)
		assert.True(t, shared.IsInvalidInput(err))
	}
	assert.Equal(t, XP(40), p.XP)
	assert.Equal(t, now, p.UpdatedAt)
}

func TestProgress_GainXP_WithinLevel(t *testing.T) {
	p := NewProgress("u1", now)

	change, err := p.GainXP(15, now)

	require.NoError(t, err)
	assert.False(t, change.LeveledUp())
	assert.Equal(t, Level(1), p.Level())
}

func TestProgress_RecordCompletion(t *testing.T) {
	p := NewProgress("u1", now)
	day := NewDate(2024, 3, 11)

	first := p.RecordCompletion(day, now)
	assert.Equal(t, StreakStarted, first.Outcome)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.True(t, p.LastCompletionDate.Equal(day))

	again := p.RecordCompletion(day, now)
	assert.Equal(t, StreakUnchanged, again.Outcome)
	assert.Equal(t, 1, p.CurrentStreak)

	next := p.RecordCompletion(day.AddDays(1), now)
	assert.Equal(t, StreakContinued, next.Outcome)
	assert.Equal(t, 2, p.CurrentStreak)
	assert.True(t, p.LastCompletionDate.Equal(day.AddDays(1)))
}

func TestProgress_AddFocusMinutes(t *testing.T) {
	p := NewProgress("u1", now)

	require.NoError(t, p.AddFocusMinutes(25, now))
	assert.ErrorIs(t, p.AddFocusMinutes(0, now), shared.ErrNonPositiveDuration)
	assert.Equal(t, 25, p.TotalFocusMinutes)
}

func TestProgress_Clone(t *testing.T) {
	p := NewProgress("u1", now)
	c := p.Clone()
	c.XP = 50

	assert.Equal(t, XP(0), p.XP)
}
