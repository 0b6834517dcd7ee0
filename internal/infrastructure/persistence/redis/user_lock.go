package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/neuroboost/progress-engine/internal/domain/shared"
	"github.com/neuroboost/progress-engine/pkg/retry"
)

// ErrLockHeld is returned while another holder owns the lock.
var ErrLockHeld = errors.New("lock: held by another owner")

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLock is a SET NX PX lock. Each holder writes a random token and only
// the token owner can release it; an expired lock is free for the next holder.
type UserLock struct {
	client  *Client
	ttl     time.Duration
	retrier *retry.Retrier
}

// NewUserLock creates a lock that expires after ttl and waits up to maxWait.
func NewUserLock(client *Client, ttl, maxWait time.Duration) *UserLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &UserLock{
		client:  client,
		ttl:     ttl,
		retrier: retry.LockRetrier(maxWait),
	}
}

// Lock blocks until the key is held, the wait budget is spent, or ctx is done.
// A spent budget returns ErrLockHeld. Redis failures are ErrStorageUnavailable.
func (l *UserLock) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	redisKey := LockKey(key)
	token := uuid.NewString()

	err := l.retrier.Do(ctx, func(ctx context.Context) error {
		ok, err := l.client.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.Retryable(ErrLockHeld)
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrLockHeld), ctx.Err() != nil:
		return nil, fmt.Errorf("acquire %s: %w", redisKey, err)
	default:
		return nil, shared.WrapError("progress", "Lock", shared.ErrStorageUnavailable, "lock store unavailable", err)
	}

	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.rdb, []string{redisKey}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", redisKey, err)
		}
		return nil
	}
	return unlock, nil
}
