package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/pkg/logger"
)

const userID = "6f1c2c8e-9a4b-4c1e-8d2a-3b5e7f9a1c0d"

func xpEvent() shared.Event {
	return shared.NewXPGainedEvent(userID, 10, 10, "task_completion", "Completed task: Read", time.Now())
}

func TestInMemoryEventBus_SyncDispatch(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop()})

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(xpEvent()))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent(userID, 1, 2, 105, time.Now())))

	assert.Equal(t, []shared.EventType{shared.EventXPGained}, typed)
	assert.Equal(t, []shared.EventType{shared.EventXPGained, shared.EventLevelUp}, all)
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop()})

	var after int
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error { panic("bad handler") }))
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error {
		after++
		return nil
	}))

	assert.NoError(t, bus.Publish(xpEvent()))
	assert.Equal(t, 1, after)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Published[shared.EventXPGained])
	assert.Equal(t, int64(3), snap.HandlerRuns)
	assert.Equal(t, int64(2), snap.HandlerFailures)
}

func TestInMemoryEventBus_Async(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: logger.Nop()})

	var count atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count.Add(1)
		return nil
	}))
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(xpEvent()))
	}
	bus.Wait()

	assert.Equal(t, int32(10), count.Load())
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop()})
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(xpEvent()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.Error(t, bus.Publish(nil))
}

func newRedisBus(t *testing.T, mr *miniredis.Miniredis) *RedisEventBus {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus, err := NewRedisEventBus(context.Background(), RedisEventBusConfig{
		Client: client,
		Local:  InMemoryEventBusConfig{Logger: logger.Nop()},
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

type collector struct {
	mu     sync.Mutex
	events []shared.Event
}

func (c *collector) handle(e shared.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) first() shared.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[0]
}

func TestRedisEventBus_RelaysBetweenInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newRedisBus(t, mr)
	b := newRedisBus(t, mr)

	onA, onB := &collector{}, &collector{}
	require.NoError(t, a.Subscribe(shared.EventXPGained, onA.handle))
	require.NoError(t, b.Subscribe(shared.EventXPGained, onB.handle))

	require.NoError(t, a.Publish(xpEvent()))

	require.Eventually(t, func() bool { return onB.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	remote := onB.first()
	assert.Equal(t, shared.EventXPGained, remote.EventType())
	assert.Equal(t, userID, remote.AggregateID())
	assert.Equal(t, "task_completion", remote.Payload()["source"])

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, onA.len(), "the publishing instance does not see its own echo")
}

func TestRedisEventBus_IgnoresMalformedMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newRedisBus(t, mr)
	got := &collector{}
	require.NoError(t, bus.SubscribeAll(got.handle))

	mr.Publish(DefaultChannel, "not json")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, got.len())
}

func TestRedisEventBus_PublishAfterClose(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newRedisBus(t, mr)
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(xpEvent()), ErrEventBusClosed)
}

func TestNewRedisEventBus_RequiresClient(t *testing.T) {
	_, err := NewRedisEventBus(context.Background(), RedisEventBusConfig{})
	assert.Error(t, err)
}
