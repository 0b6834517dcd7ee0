package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

const userID = "0b8f8a52-3c2e-4d59-9a57-2f8e4c1d7b10"

var now = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		raw  string
		want Category
	}{
		{"", CategoryGeneral},
		{"  ", CategoryGeneral},
		{"study", CategoryStudy},
		{"STUDY", CategoryStudy},
		{"general", CategoryGeneral},
		{"Fitness", Category("Fitness")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCategory(tt.raw), "raw=%q", tt.raw)
	}
}

func TestNewTask_XPValueFromCategory(t *testing.T) {
	tests := []struct {
		category Category
		want     progress.XP
	}{
		{CategoryStudy, 10},
		{CategoryGeneral, 5},
		{Category("Fitness"), 5},
		{"", 5},
	}
	for _, tt := range tests {
		tk, err := NewTask(NewTaskParams{ID: "t1", UserID: userID, Title: "Read", Category: tt.category, Now: now})
		require.NoError(t, err)
		assert.Equal(t, tt.want, tk.XPValue, "category=%q", tt.category)
		assert.False(t, tk.Completed)
	}
}

func TestNewTask_Validation(t *testing.T) {
	_, err := NewTask(NewTaskParams{UserID: userID, Title: "   ", Now: now})
	assert.ErrorIs(t, err, shared.ErrTaskTitleEmpty)
	assert.True(t, shared.IsInvalidInput(err))

	_, err = NewTask(NewTaskParams{UserID: "not-a-uuid", Title: "Read", Now: now})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestTask_Toggle(t *testing.T) {
	tk, err := NewTask(NewTaskParams{ID: "t1", UserID: userID, Title: "Read", Category: CategoryStudy, Now: now})
	require.NoError(t, err)

	later := now.Add(time.Hour)
	assert.Equal(t, TransitionCompleted, tk.Toggle(later))
	assert.True(t, tk.Completed)
	require.NotNil(t, tk.CompletedAt)
	assert.Equal(t, later, *tk.CompletedAt)

	tk.MarkRewarded(later)
	assert.Equal(t, TransitionReopened, tk.Toggle(later.Add(time.Minute)))
	assert.False(t, tk.Completed)
	assert.Nil(t, tk.CompletedAt)
	assert.True(t, tk.WasRewarded())
}

func TestTask_MarkRewardedKeepsFirstTime(t *testing.T) {
	tk := &Task{}
	tk.MarkRewarded(now)
	tk.MarkRewarded(now.Add(time.Hour))

	assert.Equal(t, now, *tk.RewardedAt)
}

func TestTask_RecategorizeKeepsXPValue(t *testing.T) {
	tk, err := NewTask(NewTaskParams{ID: "t1", UserID: userID, Title: "Read", Category: CategoryGeneral, Now: now})
	require.NoError(t, err)

	tk.Recategorize(CategoryStudy, now)

	assert.Equal(t, CategoryStudy, tk.Category)
	assert.Equal(t, DefaultXP, tk.XPValue)
}

func TestTask_BelongsTo(t *testing.T) {
	tk := &Task{UserID: userID}
	assert.True(t, tk.BelongsTo(userID))
	assert.False(t, tk.BelongsTo("someone-else"))
}
