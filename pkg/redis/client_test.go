package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClientAndHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewClient(ctx, Options{Addr: mr.Addr(), PoolSize: 4}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.NoError(t, c.Healthy(ctx))

	mr.Close()
	assert.Error(t, c.Healthy(ctx))
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), Options{Addr: "127.0.0.1:1"}, zap.NewNop())
	assert.Error(t, err)
}
