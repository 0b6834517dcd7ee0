package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neuroboost/progress-engine/internal/application/query"
	"github.com/neuroboost/progress-engine/pkg/circuitbreaker"
)

// generationTTL outlives any summary so a counter never resets under a reader.
const generationTTL = 24 * time.Hour

// setIfGenerationScript stores the summary only while the user's generation
// still equals the one the reader saw before loading from the store.
var setIfGenerationScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// SummaryCache implements query.SummaryCache.
type SummaryCache struct {
	client  *Client
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewSummaryCache creates a cache whose entries expire after ttl.
func NewSummaryCache(client *Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

// WithBreaker guards reads and writes with cb. While the circuit is open,
// reads report a miss and writes are dropped. Invalidation is never skipped.
func (c *SummaryCache) WithBreaker(cb *circuitbreaker.CircuitBreaker) *SummaryCache {
	c.breaker = cb
	return c
}

func (c *SummaryCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

// GetSummary returns the cached summary, found is false on a miss.
func (c *SummaryCache) GetSummary(ctx context.Context, userID string) (*query.ProgressSummary, bool, error) {
	var s query.ProgressSummary
	err := c.guard(ctx, func(ctx context.Context) error {
		err := c.client.GetJSON(ctx, SummaryKey(userID), &s)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return err
	})
	switch {
	case circuitbreaker.Rejected(err):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	case s.UserID == "":
		return nil, false, nil
	}
	return &s, true, nil
}

// Generation returns the user's invalidation counter, 0 before the first one.
// While the circuit is open the rejection is returned and nothing gets cached.
func (c *SummaryCache) Generation(ctx context.Context, userID string) (int64, error) {
	var gen int64
	err := c.guard(ctx, func(ctx context.Context) error {
		v, err := c.client.rdb.Get(ctx, SummaryGenerationKey(userID)).Int64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		gen = v
		return err
	})
	return gen, err
}

// SetSummary stores a summary unless the user was invalidated after generation was read.
func (c *SummaryCache) SetSummary(ctx context.Context, s *query.ProgressSummary, generation int64) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	err = c.guard(ctx, func(ctx context.Context) error {
		keys := []string{SummaryGenerationKey(s.UserID), SummaryKey(s.UserID)}
		return setIfGenerationScript.Run(ctx, c.client.rdb, keys,
			generation, data, c.ttl.Milliseconds()).Err()
	})
	if circuitbreaker.Rejected(err) {
		return nil
	}
	return err
}

// InvalidateSummary drops the user's summary and bumps its generation, so a
// reader that loaded before the change cannot write its copy back.
func (c *SummaryCache) InvalidateSummary(ctx context.Context, userID string) error {
	genKey := SummaryGenerationKey(userID)
	_, err := c.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, SummaryKey(userID))
		return nil
	})
	return err
}
