// Package ratelimit implements fixed-window abuse counters in Redis.
//
// A fixed window admits up to 2*max actions across a window boundary; that is acceptable
// for abuse control and keeps each check to one atomic script call.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Actions limited by the gateway.
const (
	ActionChat     = "chat"
	ActionReaction = "reaction"
	ActionSignal   = "signal"
)

// KEYS: counter. ARGV: window seconds.
// The expiry is set on the first increment of a window only.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Limiter is the shared RateLimiter.
type Limiter struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewLimiter creates a limiter on the given Redis client.
func NewLimiter(rdb *redis.Client, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{rdb: rdb, logger: logger}
}

func counterKey(subjectID, action string) string {
	return "ratelimit:" + action + ":" + subjectID
}

// Allow increments the (subject, action) counter and reports whether the post-increment
// count is within maxCount. Store failures fail open.
func (l *Limiter) Allow(ctx context.Context, subjectID, action string, maxCount int, window time.Duration) bool {
	if maxCount <= 0 {
		return true
	}
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	n, err := incrScript.Run(ctx, l.rdb, []string{counterKey(subjectID, action)}, secs).Int64()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing",
			zap.String("subject_id", subjectID),
			zap.String("action", action),
			zap.Error(err),
		)
		return true
	}
	return n <= int64(maxCount)
}
