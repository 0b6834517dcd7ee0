// Package storetest holds the behaviour every storage backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/domain/task"
	"github.com/neuroboost/progress-engine/pkg/timeutil"
)

// Store is what a backend under test provides.
type Store interface {
	gamification.UnitOfWork
	Repositories() gamification.Scope
}

// Start is the instant every scenario begins at. Whole seconds survive
// every backend's timestamp precision.
var Start = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

type harness struct {
	store  Store
	clock  *timeutil.FixedClock
	engine *gamification.Engine
	userID string
}

func newHarness(t *testing.T, store Store) *harness {
	t.Helper()
	clock := timeutil.NewFixedClock(Start, time.UTC)
	engine, err := gamification.NewEngine(gamification.Dependencies{UnitOfWork: store, Clock: clock}, gamification.DefaultConfig())
	require.NoError(t, err)
	return &harness{store: store, clock: clock, engine: engine, userID: shared.NewID()}
}

func (h *harness) progress(t *testing.T) *progress.Progress {
	t.Helper()
	p, err := h.store.Repositories().Progress().Get(context.Background(), h.userID)
	require.NoError(t, err)
	return p
}

// Run executes the shared scenarios against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	scenarios := []struct {
		name string
		fn   func(t *testing.T, h *harness)
	}{
		{"AwardAndLevelUp", testAwardAndLevelUp},
		{"StreakMilestone", testStreakMilestone},
		{"FocusCreditedOnce", testFocusCreditedOnce},
		{"RollbackOnError", testRollbackOnError},
		{"Tasks", testTasks},
		{"DeleteTask", testDeleteTask},
		{"LedgerWindow", testLedgerWindow},
		{"ConcurrentAwards", testConcurrentAwards},
		{"MissingRecords", testMissingRecords},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			sc.fn(t, newHarness(t, newStore(t)))
		})
	}
}

func testAwardAndLevelUp(t *testing.T, h *harness) {
	ctx := context.Background()

	p, err := h.engine.EnsureProfile(ctx, h.userID)
	require.NoError(t, err)
	assert.Equal(t, progress.XP(0), p.XP)

	_, err = h.engine.AwardXP(ctx, h.userID, 95, progress.SourceTaskCompletion, "backfill")
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	res, err := h.engine.AwardXP(ctx, h.userID, 10, progress.SourceTaskCompletion, "Completed task: Read")
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)

	stored := h.progress(t)
	assert.Equal(t, progress.XP(105), stored.XP)
	assert.Equal(t, progress.Level(2), stored.Level())

	entries, err := h.store.Repositories().Ledger().ListRecent(ctx, h.userID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, progress.XP(10), entries[0].Amount)
	assert.Equal(t, "Completed task: Read", entries[0].Description)
	assert.Equal(t, progress.SourceTaskCompletion, entries[0].Source)
	assert.True(t, entries[0].CreatedAt.Equal(Start.Add(time.Second)))
}

func testStreakMilestone(t *testing.T, h *harness) {
	ctx := context.Background()

	var last gamification.StreakResult
	for i := 0; i < 5; i++ {
		var err error
		last, err = h.engine.RegisterCompletionForStreak(ctx, h.userID, h.engine.Today())
		require.NoError(t, err)
		h.clock.Advance(24 * time.Hour)
	}
	assert.True(t, last.MilestoneReached)

	stored := h.progress(t)
	assert.Equal(t, 5, stored.CurrentStreak)
	assert.Equal(t, progress.XP(20), stored.XP)
	assert.Equal(t, "2024-03-15", stored.LastCompletionDate.String())
}

func testFocusCreditedOnce(t *testing.T, h *harness) {
	ctx := context.Background()

	res, err := h.engine.LogFocusSession(ctx, gamification.LogFocusSessionInput{UserID: h.userID, DurationMinutes: 25, Notes: "essay"})
	require.NoError(t, err)
	assert.Equal(t, progress.XP(15), res.XPGained)

	again, err := h.engine.CreditFocusSession(ctx, h.userID, res.SessionID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCredited)

	stored := h.progress(t)
	assert.Equal(t, progress.XP(15), stored.XP)
	assert.Equal(t, 25, stored.TotalFocusMinutes)

	s, err := h.store.Repositories().Sessions().GetByID(ctx, res.SessionID)
	require.NoError(t, err)
	assert.True(t, s.IsCredited())
	assert.Equal(t, "essay", s.Notes)
	assert.Equal(t, progress.XP(15), s.XPAwarded)

	sessions, err := h.store.Repositories().Sessions().ListBetween(ctx, h.userID, Start.Add(-time.Hour), Start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func testRollbackOnError(t *testing.T, h *harness) {
	ctx := context.Background()
	boom := errors.New("abort")

	err := h.store.WithinUser(ctx, h.userID, func(ctx context.Context, s gamification.Scope) error {
		p, err := s.Progress().GetOrCreate(ctx, h.userID)
		require.NoError(t, err)
		p.XP = 50
		require.NoError(t, s.Progress().Save(ctx, p))

		entry, err := progress.NewLedgerEntry(shared.NewID(), h.userID, 50, progress.SourceTaskCompletion, "", Start)
		require.NoError(t, err)
		require.NoError(t, s.Ledger().Append(ctx, entry))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = h.store.Repositories().Progress().Get(ctx, h.userID)
	assert.True(t, shared.IsNotFound(err))
	entries, err := h.store.Repositories().Ledger().ListRecent(ctx, h.userID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testTasks(t *testing.T, h *harness) {
	ctx := context.Background()
	repo := h.store.Repositories().Tasks()

	deadline := Start.Add(48 * time.Hour)
	study, err := task.NewTask(task.NewTaskParams{
		ID: shared.NewID(), UserID: h.userID, Title: "Flashcards", Category: task.CategoryStudy, Deadline: &deadline, Now: Start,
	})
	require.NoError(t, err)
	general, err := task.NewTask(task.NewTaskParams{
		ID: shared.NewID(), UserID: h.userID, Title: "Laundry", Now: Start.Add(time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, study))
	require.NoError(t, repo.Create(ctx, general))
	assert.Error(t, repo.Create(ctx, study), "ids are unique")

	got, err := repo.GetByID(ctx, study.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.XP(10), got.XPValue)
	require.NotNil(t, got.Deadline)
	assert.True(t, got.Deadline.Equal(deadline))

	completedAt := Start.Add(time.Hour)
	got.Toggle(completedAt)
	got.MarkRewarded(completedAt)
	got.Recategorize(task.CategoryGeneral, completedAt)
	require.NoError(t, repo.Update(ctx, got))

	reloaded, err := repo.GetByID(ctx, study.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Completed)
	assert.True(t, reloaded.WasRewarded())
	assert.Equal(t, task.CategoryGeneral, reloaded.Category)
	assert.Equal(t, progress.XP(10), reloaded.XPValue)

	list, err := repo.ListByUser(ctx, h.userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, general.ID, list[0].ID)

	counts, err := repo.CountCompletedByCategory(ctx, h.userID, Start, Start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[task.Category]int{task.CategoryGeneral: 1}, counts)
}

func testDeleteTask(t *testing.T, h *harness) {
	ctx := context.Background()
	repo := h.store.Repositories().Tasks()

	kept, err := task.NewTask(task.NewTaskParams{ID: shared.NewID(), UserID: h.userID, Title: "Essay", Category: task.CategoryStudy, Now: Start})
	require.NoError(t, err)
	gone, err := task.NewTask(task.NewTaskParams{ID: shared.NewID(), UserID: h.userID, Title: "Dishes", Now: Start})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, kept))
	require.NoError(t, repo.Create(ctx, gone))

	err = h.store.WithinUser(ctx, h.userID, func(ctx context.Context, s gamification.Scope) error {
		require.NoError(t, s.Tasks().Delete(ctx, kept.ID))
		_, err := s.Tasks().GetByID(ctx, kept.ID)
		assert.ErrorIs(t, err, shared.ErrTaskNotFound, "deletes are visible inside the unit of work")
		return errors.New("abort")
	})
	require.Error(t, err)
	_, err = repo.GetByID(ctx, kept.ID)
	require.NoError(t, err, "a rolled back delete leaves the task in place")

	require.NoError(t, repo.Delete(ctx, gone.ID))
	_, err = repo.GetByID(ctx, gone.ID)
	assert.ErrorIs(t, err, shared.ErrTaskNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, gone.ID), shared.ErrTaskNotFound)

	list, err := repo.ListByUser(ctx, h.userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)
}

func testLedgerWindow(t *testing.T, h *harness) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.engine.AwardXP(ctx, h.userID, progress.XP(i+1), progress.SourceTaskCompletion, "")
		require.NoError(t, err)
		h.clock.Advance(time.Hour)
	}

	entries, err := h.store.Repositories().Ledger().ListBetween(ctx, h.userID, Start, Start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2, "the upper bound is exclusive")
	assert.Equal(t, progress.XP(1), entries[0].Amount)
	assert.Equal(t, progress.XP(2), entries[1].Amount)

	recent, err := h.store.Repositories().Ledger().ListRecent(ctx, h.userID, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, progress.XP(3), recent[0].Amount)
}

func testConcurrentAwards(t *testing.T, h *harness) {
	ctx := context.Background()
	const workers = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.AwardXP(ctx, h.userID, 1, progress.SourceTaskCompletion, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, progress.XP(workers), h.progress(t).XP)
	entries, err := h.store.Repositories().Ledger().ListRecent(ctx, h.userID, 100)
	require.NoError(t, err)
	assert.Len(t, entries, workers)
}

func testMissingRecords(t *testing.T, h *harness) {
	ctx := context.Background()
	repos := h.store.Repositories()

	_, err := repos.Progress().Get(ctx, h.userID)
	assert.ErrorIs(t, err, shared.ErrProgressNotFound)
	assert.ErrorIs(t, repos.Progress().Save(ctx, progress.NewProgress(h.userID, Start)), shared.ErrProgressNotFound)

	_, err = repos.Tasks().GetByID(ctx, shared.NewID())
	assert.ErrorIs(t, err, shared.ErrTaskNotFound)
	_, err = repos.Sessions().GetByID(ctx, shared.NewID())
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}
