package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlidingWindow counts events per key in a Redis sorted set scored by arrival time.
type SlidingWindow struct {
	Client redis.UniversalClient
	Prefix string
	Window time.Duration
	Max    int
	now    func() time.Time
}

var _ Limiter = (*SlidingWindow)(nil)

func (l *SlidingWindow) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

// Allow records the event and reports whether the window still has room. Rejected
// events are recorded too, so a caller hammering the endpoint stays limited.
func (l *SlidingWindow) Allow(ctx context.Context, key string) (Result, error) {
	now := l.clock()
	res := Result{Allowed: true, Limit: l.Max, Remaining: l.Max, ResetAt: now.Add(l.Window)}
	if l.Client == nil || l.Max <= 0 || l.Window <= 0 {
		return res, nil
	}

	redisKey := l.Prefix + key
	cutoff := strconv.FormatInt(now.Add(-l.Window).UnixNano(), 10)

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return res, fmt.Errorf("sliding window %s: %w", key, err)
	}

	current := int(count.Val())
	res.Allowed = current <= l.Max
	res.Remaining = max(l.Max-current, 0)
	if first := oldest.Val(); len(first) > 0 {
		res.ResetAt = time.Unix(0, int64(first[0].Score)).Add(l.Window)
	}
	return res, nil
}
