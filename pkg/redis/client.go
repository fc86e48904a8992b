package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options configures the shared client. Presence scripts, pub/sub subscriptions and the
// BLPOP job consumer all draw connections from one pool, so PoolSize bounds them together.
type Options struct {
	Addr     string
	Password string
	DB       int
	// PoolSize <= 0 keeps the go-redis default (10 per CPU).
	PoolSize int
	// Name is sent with CLIENT SETNAME so instances are visible in CLIENT LIST.
	Name string
}

// Client wraps go-redis client with optional logger.
type Client struct {
	*redis.Client
	logger *zap.Logger
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		PoolSize:   opts.PoolSize,
		ClientName: opts.Name,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Redis client connected", zap.String("addr", opts.Addr), zap.String("client_name", opts.Name))
	return &Client{Client: rdb, logger: logger}, nil
}

// Healthy pings Redis with a short deadline, for readiness checks.
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.logger.Warn("redis health check failed", zap.Error(err))
		return err
	}
	return nil
}
