package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/application/query"
	"github.com/neuroboost/progress-engine/internal/domain/progress"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/neuroboost/progress-engine/pkg/circuitbreaker"
	"github.com/neuroboost/progress-engine/pkg/logger"
	"github.com/neuroboost/progress-engine/pkg/timeutil"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFrom(rdb), mr
}

func TestNewClient_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()

	c, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))

	mr.Close()
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxRetries = -1
	_, err = NewClient(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestClient_JSON(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "ada"}, time.Minute))

	var got payload
	require.NoError(t, c.GetJSON(ctx, "k", &got))
	assert.Equal(t, "ada", got.Name)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.GetJSON(ctx, "k", &got), ErrCacheMiss)
	assert.ErrorIs(t, c.SetJSON(ctx, "", got, time.Minute), ErrCacheKeyEmpty)

	require.NoError(t, mr.Set("bad", "{"))
	assert.ErrorIs(t, c.GetJSON(ctx, "bad", &got), ErrCacheSerialization)
}

func TestSummaryCache_RoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	cache := NewSummaryCache(c, time.Minute)

	_, found, err := cache.GetSummary(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.SetSummary(ctx, &query.ProgressSummary{UserID: "u1", XP: 140, Level: 2}, 0))
	s, found, err := cache.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 140, s.XP)

	require.NoError(t, cache.InvalidateSummary(ctx, "u1"))
	_, found, err = cache.GetSummary(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSummaryCache_StaleGenerationIsNotStored(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	cache := NewSummaryCache(c, time.Minute)

	gen, err := cache.Generation(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	// A write lands between the reader's generation read and its store load.
	require.NoError(t, cache.InvalidateSummary(ctx, "u1"))
	require.NoError(t, cache.SetSummary(ctx, &query.ProgressSummary{UserID: "u1", XP: 10}, gen))

	_, found, err := cache.GetSummary(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found, "a summary read before the write must not be cached")

	gen, err = cache.Generation(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	require.NoError(t, cache.SetSummary(ctx, &query.ProgressSummary{UserID: "u1", XP: 20}, gen))

	s, found, err := cache.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 20, s.XP)
	assert.Equal(t, time.Minute, mr.TTL(SummaryKey("u1")))
	assert.Equal(t, generationTTL, mr.TTL(SummaryGenerationKey("u1")))
}

func TestSummaryCache_BreakerTurnsOutageIntoMisses(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	cb := circuitbreaker.New("summary-cache",
		circuitbreaker.WithFailureThreshold(3),
		circuitbreaker.WithSuccessThreshold(1),
		circuitbreaker.WithTimeout(15*time.Second),
		circuitbreaker.WithClock(clock),
	)
	cache := NewSummaryCache(c, time.Minute).WithBreaker(cb)
	require.NoError(t, cache.SetSummary(ctx, &query.ProgressSummary{UserID: "u1", XP: 5, Level: 1}, 0))

	mr.SetError("ERR injected outage")
	for i := 0; i < 3; i++ {
		_, _, err := cache.GetSummary(ctx, "u1")
		assert.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	_, found, err := cache.GetSummary(ctx, "u1")
	assert.NoError(t, err, "an open circuit reports a miss")
	assert.False(t, found)
	assert.NoError(t, cache.SetSummary(ctx, &query.ProgressSummary{UserID: "u1"}, 0))
	assert.Error(t, cache.InvalidateSummary(ctx, "u1"), "invalidation is never skipped")

	mr.SetError("")
	mu.Lock()
	now = now.Add(16 * time.Second)
	mu.Unlock()

	s, found, err := cache.GetSummary(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 5, s.XP)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestUserLock(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	lock := NewUserLock(c, time.Second, 100*time.Millisecond)

	unlock, err := lock.Lock(ctx, "progress:u1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(LockKey("progress:u1")))

	_, err = lock.Lock(ctx, "progress:u1")
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := lock.Lock(ctx, "progress:u2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists(LockKey("progress:u1")))

	again, err := lock.Lock(ctx, "progress:u1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestUserLock_ExpiredLockIsFree(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	lock := NewUserLock(c, time.Second, 50*time.Millisecond)

	stale, err := lock.Lock(ctx, "progress:u1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	fresh, err := lock.Lock(ctx, "progress:u1")
	require.NoError(t, err)

	require.NoError(t, stale(ctx), "a stale owner cannot release the new holder's lock")
	assert.True(t, mr.Exists(LockKey("progress:u1")))
	require.NoError(t, fresh(ctx))
}

func TestUserLock_WaitsForRelease(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	lock := NewUserLock(c, 5*time.Second, time.Second)

	unlock, err := lock.Lock(ctx, "progress:u1")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = unlock(context.Background())
	}()

	second, err := lock.Lock(ctx, "progress:u1")
	require.NoError(t, err)
	assert.NoError(t, second(ctx))
}

func TestUserLock_ContextCancelled(t *testing.T) {
	c, _ := newTestClient(t)
	lock := NewUserLock(c, 5*time.Second, time.Second)

	_, err := lock.Lock(context.Background(), "progress:u1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lock.Lock(ctx, "progress:u1")
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrLockHeld))
}

func TestUserLock_RedisDownIsStorageUnavailable(t *testing.T) {
	c, mr := newTestClient(t)
	lock := NewUserLock(c, time.Second, 100*time.Millisecond)
	mr.Close()

	_, err := lock.Lock(context.Background(), "progress:u1")
	assert.True(t, shared.IsStorageUnavailable(err))
	assert.False(t, shared.IsConflict(err))
}

func TestEngine_LockStoreOutagePropagates(t *testing.T) {
	c, mr := newTestClient(t)
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), time.UTC)
	engine, err := gamification.NewEngine(gamification.Dependencies{
		UnitOfWork: memory.NewStore(),
		Clock:      clock,
		Locker:     NewUserLock(c, time.Second, 100*time.Millisecond),
		Logger:     logger.Nop(),
	}, gamification.DefaultConfig())
	require.NoError(t, err)

	const userID = "6f1c2c8e-9a4b-4c1e-8d2a-3b5e7f9a1c0d"
	ctx := context.Background()
	_, err = engine.AwardXP(ctx, userID, 10, progress.SourceTaskCompletion, "")
	require.NoError(t, err)

	mr.Close()
	_, err = engine.AwardXP(ctx, userID, 10, progress.SourceTaskCompletion, "")
	assert.True(t, shared.IsStorageUnavailable(err), "got %v", err)
	assert.False(t, shared.IsConflict(err))
}

func TestEngine_HeldLockIsConflict(t *testing.T) {
	c, _ := newTestClient(t)
	lock := NewUserLock(c, 5*time.Second, 50*time.Millisecond)
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), time.UTC)
	engine, err := gamification.NewEngine(gamification.Dependencies{
		UnitOfWork: memory.NewStore(),
		Clock:      clock,
		Locker:     lock,
		Logger:     logger.Nop(),
	}, gamification.DefaultConfig())
	require.NoError(t, err)

	const userID = "6f1c2c8e-9a4b-4c1e-8d2a-3b5e7f9a1c0d"
	ctx := context.Background()
	unlock, err := lock.Lock(ctx, gamification.LockKeyPrefix+userID)
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	_, err = engine.AwardXP(ctx, userID, 10, progress.SourceTaskCompletion, "")
	assert.True(t, shared.IsConflict(err))
	assert.False(t, shared.IsStorageUnavailable(err))
}
