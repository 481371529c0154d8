package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// StoreLimiter is a fixed-window limiter over a ulule/limiter store.
type StoreLimiter struct {
	limiter *limiter.Limiter
}

var _ Limiter = (*StoreLimiter)(nil)

// NewStoreLimiter admits max events per window for each key in store.
func NewStoreLimiter(store limiter.Store, window time.Duration, max int) *StoreLimiter {
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	return &StoreLimiter{limiter: limiter.New(store, rate)}
}

// NewMemoryStore keeps counters in process. Suitable for a single replica only.
func NewMemoryStore(prefix string) limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute})
}

// NewRedisStore shares counters across replicas through Redis.
func NewRedisStore(client redis.UniversalClient, prefix string) (limiter.Store, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("redis limiter store: %w", err)
	}
	return store, nil
}

func (l *StoreLimiter) Allow(ctx context.Context, key string) (Result, error) {
	lctx, err := l.limiter.Get(ctx, key)
	if err != nil {
		return Result{Allowed: true}, fmt.Errorf("limiter store %s: %w", key, err)
	}
	return Result{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}

// New picks the limiter for strategy. Without a Redis client the fixed window falls back
// to the in-process store and the sliding window is unavailable.
func New(strategy string, client redis.UniversalClient, window time.Duration, max int) (Limiter, error) {
	const prefix = "payment-relay:ratelimit:"
	switch strategy {
	case "", StrategySliding:
		if client == nil {
			return NewStoreLimiter(NewMemoryStore(prefix), window, max), nil
		}
		return &SlidingWindow{Client: client, Prefix: prefix, Window: window, Max: max}, nil
	case StrategyFixed:
		if client == nil {
			return NewStoreLimiter(NewMemoryStore(prefix), window, max), nil
		}
		store, err := NewRedisStore(client, prefix)
		if err != nil {
			return nil, err
		}
		return NewStoreLimiter(store, window, max), nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", strategy)
	}
}
