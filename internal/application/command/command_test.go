package command_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroboost/progress-engine/internal/application/command"
	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/neuroboost/progress-engine/pkg/timeutil"
)

const (
	userID  = "6f1c2c8e-9a4b-4c1e-8d2a-3b5e7f9a1c0d"
	otherID = "1d3e5f70-8a9b-4c0d-9e1f-2a3b4c5d6e7f"
)

type fixture struct {
	store   *memory.Store
	clock   *timeutil.FixedClock
	engine  *gamification.Engine
	tasks   *command.TaskHandler
	toggle  *command.ToggleTaskHandler
	focus   *command.LogFocusSessionHandler
	credit  *command.CreditFocusSessionHandler
	profile *command.ProfileHandler
}

func newFixture(t *testing.T, cfg gamification.Config) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), time.UTC)
	engine, err := gamification.NewEngine(gamification.Dependencies{UnitOfWork: store, Clock: clock}, cfg)
	require.NoError(t, err)
	return &fixture{
		store:   store,
		clock:   clock,
		engine:  engine,
		tasks:   command.NewTaskHandler(engine),
		toggle:  command.NewToggleTaskHandler(engine),
		focus:   command.NewLogFocusSessionHandler(engine),
		credit:  command.NewCreditFocusSessionHandler(engine),
		profile: command.NewProfileHandler(engine),
	}
}

func (f *fixture) createTask(t *testing.T, category string) string {
	t.Helper()
	view, err := f.tasks.Create(context.Background(), command.CreateTaskCommand{
		UserID:   userID,
		Title:    "Read chapter 3",
		Category: category,
	})
	require.NoError(t, err)
	return view.ID
}

func (f *fixture) progress(t *testing.T) *progress.Progress {
	t.Helper()
	p, err := f.store.Repositories().Progress().Get(context.Background(), userID)
	require.NoError(t, err)
	return p
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())

	view, err := f.tasks.Create(context.Background(), command.CreateTaskCommand{
		UserID:   userID,
		Title:    "  Flashcards ",
		Category: "study",
	})
	require.NoError(t, err)

	assert.Equal(t, "Flashcards", view.Title)
	assert.Equal(t, "Study", view.Category)
	assert.Equal(t, 10, view.XPValue)
	assert.False(t, view.Completed)
}

func TestCreateTask_EmptyTitle(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())

	_, err := f.tasks.Create(context.Background(), command.CreateTaskCommand{UserID: userID, Title: " "})
	assert.ErrorIs(t, err, shared.ErrTaskTitleEmpty)
}

func TestToggleTask_CompleteStudyTask(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	taskID := f.createTask(t, "Study")

	res, err := f.toggle.Handle(context.Background(), command.ToggleTaskCommand{UserID: userID, TaskID: taskID})
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, 10, res.XPGained)
	assert.Equal(t, 10, res.TotalXP)
	assert.Equal(t, 1, res.Level)
	assert.Equal(t, 1, res.Streak)
	assert.False(t, res.LeveledUp)
}

func TestToggleTask_LevelUpAt100(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()
	_, err := f.engine.AwardXP(ctx, userID, 95, progress.SourceTaskCompletion, "seed")
	require.NoError(t, err)
	taskID := f.createTask(t, "Study")

	res, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: taskID})
	require.NoError(t, err)

	assert.True(t, res.LeveledUp)
	assert.Equal(t, 105, res.TotalXP)
	assert.Equal(t, 2, res.Level)
}

func TestToggleTask_UndoKeepsXPAndStreak(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()
	taskID := f.createTask(t, "General")
	cmd := command.ToggleTaskCommand{UserID: userID, TaskID: taskID}

	_, err := f.toggle.Handle(ctx, cmd)
	require.NoError(t, err)

	undo, err := f.toggle.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, undo.Completed)
	assert.Equal(t, 0, undo.XPGained)
	assert.Equal(t, 5, undo.TotalXP)
	assert.Equal(t, 1, undo.Streak)

	redo, err := f.toggle.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, redo.Completed)
	assert.Equal(t, 5, redo.XPGained)
	assert.Equal(t, 10, redo.TotalXP, "re-completing pays again by default")
	assert.Equal(t, 1, redo.Streak, "same-day completion leaves the streak alone")
}

func TestToggleTask_RewardOncePerTask(t *testing.T) {
	f := newFixture(t, gamification.Config{RewardOncePerTask: true})
	ctx := context.Background()
	taskID := f.createTask(t, "Study")
	cmd := command.ToggleTaskCommand{UserID: userID, TaskID: taskID}

	for i := 0; i < 3; i++ {
		_, err := f.toggle.Handle(ctx, cmd)
		require.NoError(t, err)
	}

	assert.Equal(t, progress.XP(10), f.progress(t).XP)
}

func TestToggleTask_StreakMilestoneOnFifthDay(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()

	var last *command.ToggleTaskResult
	for day := 0; day < 5; day++ {
		taskID := f.createTask(t, "General")
		res, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: taskID})
		require.NoError(t, err)
		last = res
		f.clock.Advance(24 * time.Hour)
	}

	assert.Equal(t, 5, last.Streak)
	assert.True(t, last.StreakMilestoneReached)
	assert.Equal(t, 20, last.StreakBonusXP)
	assert.Equal(t, 5*5+20, last.TotalXP)
}

func TestToggleTask_StreakBonusCrossesLevel(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()

	for day := 0; day < 4; day++ {
		taskID := f.createTask(t, "General")
		_, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: taskID})
		require.NoError(t, err)
		f.clock.Advance(24 * time.Hour)
	}
	_, err := f.engine.AwardXP(ctx, userID, 65, progress.SourceFocusSession, "top-up")
	require.NoError(t, err)
	require.Equal(t, progress.XP(85), f.progress(t).XP)

	taskID := f.createTask(t, "Study")
	res, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: taskID})
	require.NoError(t, err)

	assert.Equal(t, 10, res.XPGained, "95 XP alone stays on level 1")
	assert.Equal(t, 20, res.StreakBonusXP)
	assert.Equal(t, 115, res.TotalXP)
	assert.Equal(t, 2, res.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 5, res.Streak)
	assert.True(t, res.StreakMilestoneReached)
}

func TestToggleTask_MissedDayResetsStreak(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()

	for _, gap := range []time.Duration{24 * time.Hour, 48 * time.Hour} {
		taskID := f.createTask(t, "General")
		_, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: taskID})
		require.NoError(t, err)
		f.clock.Advance(gap)
	}
	taskID := f.createTask(t, "General")
	res, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: taskID})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Streak)
}

func TestToggleTask_OtherUsersTask(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	taskID := f.createTask(t, "Study")

	_, err := f.toggle.Handle(context.Background(), command.ToggleTaskCommand{UserID: otherID, TaskID: taskID})
	assert.ErrorIs(t, err, shared.ErrTaskNotFound)
}

func TestToggleTask_Validation(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()

	_, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID})
	assert.ErrorIs(t, err, shared.ErrInvalidTaskID)

	_, err = f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: "7"})
	assert.ErrorIs(t, err, shared.ErrInvalidTaskID)

	_, err = f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: shared.NewID()})
	assert.True(t, shared.IsNotFound(err))
}

func TestToggleTask_ConcurrentTogglesOfDifferentTasks(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()
	const n = 20

	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.createTask(t, "Study")
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: id})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	p := f.progress(t)
	assert.Equal(t, progress.XP(n*10), p.XP)
	assert.Equal(t, 1, p.CurrentStreak)
}

func TestRecategorizeTask_KeepsXPValue(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()
	taskID := f.createTask(t, "General")

	view, err := f.tasks.Recategorize(ctx, command.RecategorizeTaskCommand{UserID: userID, TaskID: taskID, Category: "Study"})
	require.NoError(t, err)
	assert.Equal(t, "Study", view.Category)
	assert.Equal(t, 5, view.XPValue)

	res, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: taskID})
	require.NoError(t, err)
	assert.Equal(t, 5, res.XPGained)
}

func TestDeleteTask_KeepsEarnedProgress(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()
	taskID := f.createTask(t, "Study")
	_, err := f.toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: taskID})
	require.NoError(t, err)
	before := f.progress(t)

	require.NoError(t, f.tasks.Delete(ctx, command.DeleteTaskCommand{UserID: userID, TaskID: taskID}))

	after := f.progress(t)
	assert.Equal(t, before.XP, after.XP)
	assert.Equal(t, before.Level(), after.Level())
	assert.Equal(t, before.CurrentStreak, after.CurrentStreak)
	assert.Equal(t, before.LastCompletionDate, after.LastCompletionDate)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	_, err = f.store.Repositories().Tasks().GetByID(ctx, taskID)
	assert.ErrorIs(t, err, shared.ErrTaskNotFound)
	entries, err := f.store.Repositories().Ledger().ListRecent(ctx, userID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the ledger keeps the completion")
}

func TestDeleteTask_Errors(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()
	taskID := f.createTask(t, "General")

	err := f.tasks.Delete(ctx, command.DeleteTaskCommand{UserID: otherID, TaskID: taskID})
	assert.ErrorIs(t, err, shared.ErrTaskNotFound)
	err = f.tasks.Delete(ctx, command.DeleteTaskCommand{UserID: userID, TaskID: "7"})
	assert.ErrorIs(t, err, shared.ErrInvalidTaskID)

	require.NoError(t, f.tasks.Delete(ctx, command.DeleteTaskCommand{UserID: userID, TaskID: taskID}))
	err = f.tasks.Delete(ctx, command.DeleteTaskCommand{UserID: userID, TaskID: taskID})
	assert.True(t, shared.IsNotFound(err))
}

func TestLogFocusSession(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()

	short, err := f.focus.Handle(ctx, command.LogFocusSessionCommand{UserID: userID, DurationMinutes: 24})
	require.NoError(t, err)
	assert.Equal(t, 0, short.XPGained)

	long, err := f.focus.Handle(ctx, command.LogFocusSessionCommand{UserID: userID, DurationMinutes: 25, Notes: "essay"})
	require.NoError(t, err)
	assert.Equal(t, 15, long.XPGained)
	assert.Equal(t, 49, long.TotalFocusMinutes)

	again, err := f.credit.Handle(ctx, command.CreditFocusSessionCommand{UserID: userID, SessionID: long.SessionID})
	require.NoError(t, err)
	assert.True(t, again.AlreadyCredited)
	assert.Equal(t, 0, again.XPGained)
	assert.Equal(t, progress.XP(15), f.progress(t).XP)
}

func TestLogFocusSession_Validation(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  command.LogFocusSessionCommand
	}{
		{"zero without times", command.LogFocusSessionCommand{UserID: userID}},
		{"negative", command.LogFocusSessionCommand{UserID: userID, DurationMinutes: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.focus.Handle(ctx, tt.cmd)
			assert.ErrorIs(t, err, shared.ErrNonPositiveDuration)
		})
	}

	_, err := f.focus.Handle(ctx, command.LogFocusSessionCommand{DurationMinutes: 30})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = f.credit.Handle(ctx, command.CreditFocusSessionCommand{UserID: userID})
	assert.ErrorIs(t, err, shared.ErrInvalidSessionID)
}

func TestProfile_EnsureAndAward(t *testing.T) {
	f := newFixture(t, gamification.DefaultConfig())
	ctx := context.Background()

	view, err := f.profile.Ensure(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Level)
	assert.Equal(t, "", view.LastCompletionDate)

	res, err := f.profile.Award(ctx, command.AwardXPCommand{UserID: userID, Amount: 120, Source: "streak_bonus"})
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.Level)

	_, err = f.profile.Award(ctx, command.AwardXPCommand{UserID: userID, Amount: 10, Source: "bribe"})
	assert.ErrorIs(t, err, shared.ErrUnknownSource)

	_, err = f.profile.Award(ctx, command.AwardXPCommand{UserID: userID, Amount: 0, Source: "task_completion"})
	assert.ErrorIs(t, err, shared.ErrNonPositiveXP)
}
