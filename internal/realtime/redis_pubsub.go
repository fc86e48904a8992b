package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	roomChannelPrefix     = "room:"
	instanceChannelPrefix = "instance:"
	publishTimeout        = 5 * time.Second
	subscribeTimeout      = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance delivery.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	// ConnID addresses one connection on the receiving instance; empty for room fan-out.
	ConnID string `json:"connId,omitempty"`
	// Except is a connection that must not receive a room fan-out.
	Except string `json:"except,omitempty"`
	At     int64  `json:"at"`
}

// RedisPubSub bridges room broadcasts and direct deliveries across instances.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

func (r *RedisPubSub) publish(ctx context.Context, channel string, p redisPayload) error {
	p.At = time.Now().UnixMilli()
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channel, body).Err()
}

// PublishRoomEvent publishes an event to every instance subscribed to the room.
func (r *RedisPubSub) PublishRoomEvent(ctx context.Context, roomID, exceptConnID, event string, data []byte) error {
	return r.publish(ctx, roomChannelPrefix+roomID, redisPayload{Event: event, Data: data, Except: exceptConnID})
}

// PublishDirect publishes an event for one connection owned by instance.
func (r *RedisPubSub) PublishDirect(ctx context.Context, instance, connID, event string, data []byte) error {
	return r.publish(ctx, instanceChannelPrefix+instance, redisPayload{Event: event, Data: data, ConnID: connID})
}

// SubscribeRoom subscribes to a room's channel and calls handler for each message.
// Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeRoom(roomID string, handler func(exceptConnID, event string, data []byte)) (func(), error) {
	return r.subscribe(roomChannelPrefix+roomID, func(p redisPayload) {
		handler(p.Except, p.Event, p.Data)
	})
}

// SubscribeInstance subscribes to this instance's direct-delivery channel.
func (r *RedisPubSub) SubscribeInstance(instance string, handler func(connID, event string, data []byte)) (func(), error) {
	return r.subscribe(instanceChannelPrefix+instance, func(p redisPayload) {
		handler(p.ConnID, p.Event, p.Data)
	})
}

func (r *RedisPubSub) subscribe(channel string, handler func(redisPayload)) (func(), error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	recvCtx, cancelRecv := context.WithTimeout(ctx, subscribeTimeout)
	_, err := pubsub.Receive(recvCtx)
	cancelRecv()
	if err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Debug("dropping malformed pubsub message", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(p)
			}
		}
	}()
	return cancelCtx, nil
}
