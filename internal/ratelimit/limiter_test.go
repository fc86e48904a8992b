package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLimiter(rdb, nil), mr
}

func TestAllowDeniesAfterMax(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(ctx, "u1", ActionChat, 10, time.Minute), "action %d", i+1)
	}
	assert.False(t, l.Allow(ctx, "u1", ActionChat, 10, time.Minute))

	// other subjects and actions keep their own counters
	assert.True(t, l.Allow(ctx, "u2", ActionChat, 10, time.Minute))
	assert.True(t, l.Allow(ctx, "u1", ActionReaction, 10, time.Minute))

	mr.FastForward(61 * time.Second)
	assert.True(t, l.Allow(ctx, "u1", ActionChat, 10, time.Minute))
}

func TestExpirySetOnFirstIncrementOnly(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "u1", ActionChat, 3, time.Minute))
	mr.FastForward(40 * time.Second)
	assert.True(t, l.Allow(ctx, "u1", ActionChat, 3, time.Minute))

	// the window was not extended by the second increment
	assert.InDelta(t, 20*time.Second, mr.TTL("ratelimit:chat:u1"), float64(time.Second))
}

func TestAllowFailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(context.Background(), "u1", ActionChat, 1, time.Minute))
	}
}
