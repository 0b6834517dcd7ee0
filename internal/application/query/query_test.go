package query_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroboost/progress-engine/internal/application/command"
	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/application/query"
	"github.com/neuroboost/progress-engine/internal/domain/motivation"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/neuroboost/progress-engine/pkg/logger"
	"github.com/neuroboost/progress-engine/pkg/timeutil"
)

const userID = "6f1c2c8e-9a4b-4c1e-8d2a-3b5e7f9a1c0d"

type fixture struct {
	store  *memory.Store
	clock  *timeutil.FixedClock
	engine *gamification.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), time.UTC)
	engine, err := gamification.NewEngine(gamification.Dependencies{UnitOfWork: store, Clock: clock}, gamification.DefaultConfig())
	require.NoError(t, err)
	return &fixture{store: store, clock: clock, engine: engine}
}

func (f *fixture) completeTask(t *testing.T, category string) {
	t.Helper()
	ctx := context.Background()
	view, err := command.NewTaskHandler(f.engine).Create(ctx, command.CreateTaskCommand{UserID: userID, Title: "Task", Category: category})
	require.NoError(t, err)
	_, err = command.NewToggleTaskHandler(f.engine).Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: view.ID})
	require.NoError(t, err)
}

type mapCache struct {
	mu          sync.Mutex
	entries     map[string]query.ProgressSummary
	generations map[string]int64
	reads       int
	getErr      error
}

func newMapCache() *mapCache {
	return &mapCache{
		entries:     make(map[string]query.ProgressSummary),
		generations: make(map[string]int64),
	}
}

func (c *mapCache) GetSummary(_ context.Context, userID string) (*query.ProgressSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	s, ok := c.entries[userID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *mapCache) Generation(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID], nil
}

func (c *mapCache) SetSummary(_ context.Context, s *query.ProgressSummary, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[s.UserID] != generation {
		return nil
	}
	c.entries[s.UserID] = *s
	return nil
}

func (c *mapCache) InvalidateSummary(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++
	delete(c.entries, userID)
	return nil
}

func (c *mapCache) cached(userID string) (query.ProgressSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[userID]
	return s, ok
}

// loadHookScope runs onLoad right after the summary query reads the progress record.
type loadHookScope struct {
	gamification.Scope
	onLoad func()
}

func (s loadHookScope) Progress() progress.Repository {
	return loadHookProgress{Repository: s.Scope.Progress(), onLoad: s.onLoad}
}

type loadHookProgress struct {
	progress.Repository
	onLoad func()
}

func (r loadHookProgress) Get(ctx context.Context, userID string) (*progress.Progress, error) {
	p, err := r.Repository.Get(ctx, userID)
	r.onLoad()
	return p, err
}

func TestGetProgressSummary_UnknownUserGetsStartingValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := query.NewGetProgressSummaryHandler(f.store.Repositories(), nil, logger.Nop())

	s, err := h.Handle(ctx, query.GetProgressSummaryQuery{UserID: userID})
	require.NoError(t, err)

	assert.Equal(t, 0, s.XP)
	assert.Equal(t, 1, s.Level)
	assert.Equal(t, 100, s.XPToNextLevel)
	assert.Equal(t, "", s.LastCompletionDate)

	_, err = f.store.Repositories().Progress().Get(ctx, userID)
	assert.True(t, shared.IsNotFound(err), "reads never create records")
}

func TestGetProgressSummary_LevelBand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.AwardXP(ctx, userID, 250, progress.SourceTaskCompletion, "")
	require.NoError(t, err)

	s, err := query.NewGetProgressSummaryHandler(f.store.Repositories(), nil, logger.Nop()).
		Handle(ctx, query.GetProgressSummaryQuery{UserID: userID})
	require.NoError(t, err)

	assert.Equal(t, 3, s.Level)
	assert.Equal(t, 50, s.XPIntoLevel)
	assert.Equal(t, 50, s.XPToNextLevel)
	assert.Equal(t, 50, s.ProgressPercent)
}

func TestGetProgressSummary_UsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := newMapCache()
	h := query.NewGetProgressSummaryHandler(f.store.Repositories(), cache, logger.Nop())

	_, err := f.engine.AwardXP(ctx, userID, 10, progress.SourceTaskCompletion, "")
	require.NoError(t, err)
	first, err := h.Handle(ctx, query.GetProgressSummaryQuery{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 10, first.XP)

	_, err = f.engine.AwardXP(ctx, userID, 10, progress.SourceTaskCompletion, "")
	require.NoError(t, err)
	stale, err := h.Handle(ctx, query.GetProgressSummaryQuery{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 10, stale.XP, "served from cache until invalidated")

	require.NoError(t, cache.InvalidateSummary(ctx, userID))
	fresh, err := h.Handle(ctx, query.GetProgressSummaryQuery{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 20, fresh.XP)
}

func TestGetProgressSummary_FreshRightAfterToggle(t *testing.T) {
	store := memory.NewStore()
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), time.UTC)
	cache := newMapCache()
	engine, err := gamification.NewEngine(gamification.Dependencies{
		UnitOfWork:  store,
		Clock:       clock,
		Invalidator: cache,
	}, gamification.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	h := query.NewGetProgressSummaryHandler(store.Repositories(), cache, logger.Nop())
	tasks := command.NewTaskHandler(engine)
	toggle := command.NewToggleTaskHandler(engine)

	warm, err := h.Handle(ctx, query.GetProgressSummaryQuery{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 0, warm.XP)
	_, cached := cache.cached(userID)
	require.True(t, cached)

	for i := 1; i <= 3; i++ {
		view, err := tasks.Create(ctx, command.CreateTaskCommand{UserID: userID, Title: "Read", Category: "study"})
		require.NoError(t, err)
		_, err = toggle.Handle(ctx, command.ToggleTaskCommand{UserID: userID, TaskID: view.ID})
		require.NoError(t, err)

		s, err := h.Handle(ctx, query.GetProgressSummaryQuery{UserID: userID})
		require.NoError(t, err)
		assert.Equal(t, 10*i, s.XP)
		assert.Equal(t, 1, s.CurrentStreak)
	}
}

func TestGetProgressSummary_WriteDuringLoadIsNotCached(t *testing.T) {
	store := memory.NewStore()
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), time.UTC)
	cache := newMapCache()
	engine, err := gamification.NewEngine(gamification.Dependencies{
		UnitOfWork:  store,
		Clock:       clock,
		Invalidator: cache,
	}, gamification.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = engine.AwardXP(ctx, userID, 10, progress.SourceTaskCompletion, "")
	require.NoError(t, err)

	wrote := false
	repos := loadHookScope{Scope: store.Repositories(), onLoad: func() {
		if wrote {
			return
		}
		wrote = true
		_, err := engine.AwardXP(ctx, userID, 10, progress.SourceTaskCompletion, "")
		require.NoError(t, err)
	}}
	h := query.NewGetProgressSummaryHandler(repos, cache, logger.Nop())

	loaded, err := h.Handle(ctx, query.GetProgressSummaryQuery{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.XP)
	_, cached := cache.cached(userID)
	assert.False(t, cached, "a summary loaded before a committed write is not cached")

	fresh, err := h.Handle(ctx, query.GetProgressSummaryQuery{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 20, fresh.XP)
	s, cached := cache.cached(userID)
	require.True(t, cached)
	assert.Equal(t, 20, s.XP)
}

func TestGetProgressSummary_CacheErrorFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	cache := newMapCache()
	cache.getErr = errors.New("redis down")
	h := query.NewGetProgressSummaryHandler(f.store.Repositories(), cache, logger.Nop())

	s, err := h.Handle(context.Background(), query.GetProgressSummaryQuery{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Level)
}

func TestGetProgressSummary_InvalidUser(t *testing.T) {
	f := newFixture(t)
	h := query.NewGetProgressSummaryHandler(f.store.Repositories(), nil, logger.Nop())

	_, err := h.Handle(context.Background(), query.GetProgressSummaryQuery{UserID: "nope"})
	assert.True(t, shared.IsInvalidInput(err))
}

func TestProgressSummary_StreakActive(t *testing.T) {
	today := progress.NewDate(2024, 3, 11)

	assert.True(t, query.ProgressSummary{LastCompletionDate: "2024-03-11"}.StreakActive(today))
	assert.True(t, query.ProgressSummary{LastCompletionDate: "2024-03-10"}.StreakActive(today))
	assert.False(t, query.ProgressSummary{LastCompletionDate: "2024-03-09"}.StreakActive(today))
	assert.False(t, query.ProgressSummary{}.StreakActive(today))
}

func TestGetWeeklyProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completeTask(t, "Study")
	f.clock.Advance(24 * time.Hour)
	f.completeTask(t, "General")
	_, err := f.engine.LogFocusSession(ctx, gamification.LogFocusSessionInput{UserID: userID, DurationMinutes: 30})
	require.NoError(t, err)

	week, err := query.NewGetWeeklyProgressHandler(f.store.Repositories(), f.clock).
		Handle(ctx, query.GetWeeklyProgressQuery{UserID: userID})
	require.NoError(t, err)

	require.Len(t, week.Days, 7)
	assert.Equal(t, "2024-03-06", week.Days[0].Date)
	assert.Equal(t, "2024-03-12", week.Days[6].Date)
	assert.Equal(t, 10, week.Days[5].XP)
	assert.Equal(t, 5+15, week.Days[6].XP)
	assert.Equal(t, 30, week.Days[6].FocusMinutes)
	assert.Equal(t, 30, week.TotalXP)
	assert.Equal(t, 30, week.TotalFocusMinutes)
	assert.Equal(t, map[string]int{"Study": 1, "General": 1}, week.CompletedByCategory)
}

func TestGetWeeklyProgress_ClampsWindow(t *testing.T) {
	f := newFixture(t)
	h := query.NewGetWeeklyProgressHandler(f.store.Repositories(), f.clock)

	week, err := h.Handle(context.Background(), query.GetWeeklyProgressQuery{UserID: userID, Days: 1000})
	require.NoError(t, err)
	assert.Len(t, week.Days, 90)
}

func TestGetXPHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := f.engine.AwardXP(ctx, userID, progress.XP(i), progress.SourceTaskCompletion, "")
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	h := query.NewGetXPHistoryHandler(f.store.Repositories())
	entries, err := h.Handle(ctx, query.GetXPHistoryQuery{UserID: userID, Limit: 2})
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].Amount)
	assert.Equal(t, 2, entries[1].Amount)
	assert.Equal(t, "task_completion", entries[0].Source)
}

func TestGetShield(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completeTask(t, "Study")
	_, err := f.engine.LogFocusSession(ctx, gamification.LogFocusSessionInput{UserID: userID, DurationMinutes: 25})
	require.NoError(t, err)

	h := query.NewGetShieldHandler(f.store.Repositories(), f.clock, motivation.NewSeededPicker(1))
	shield, err := h.Handle(ctx, query.GetShieldQuery{UserID: userID})
	require.NoError(t, err)

	assert.Equal(t, 1, shield.Streak)
	assert.True(t, shield.StreakActive)
	assert.Equal(t, 25, shield.XPThisWeek)
	assert.Equal(t, 1, shield.TasksCompletedToday)
	assert.Equal(t, 25, shield.FocusMinutesToday)
	assert.NotEmpty(t, shield.Quote)
	assert.NotEqual(t, "NeuroBoost", shield.Author)
}

func TestGetShield_WithoutPicker(t *testing.T) {
	f := newFixture(t)

	shield, err := query.NewGetShieldHandler(f.store.Repositories(), f.clock, nil).
		Handle(context.Background(), query.GetShieldQuery{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, "Stay focused on your goals!", shield.Quote)
	assert.False(t, shield.StreakActive)
}

func TestListTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completeTask(t, "Study")
	f.clock.Advance(time.Minute)
	_, err := command.NewTaskHandler(f.engine).Create(ctx, command.CreateTaskCommand{UserID: userID, Title: "Pending"})
	require.NoError(t, err)

	h := query.NewListTasksHandler(f.store.Repositories())
	all, err := h.Handle(ctx, query.ListTasksQuery{UserID: userID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Pending", all[0].Title)

	pending, err := h.Handle(ctx, query.ListTasksQuery{UserID: userID, OnlyPending: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].Completed)
}
