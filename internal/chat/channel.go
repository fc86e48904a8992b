// Package chat is the per-room ordered chat log with fan-out broadcast.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/internal/ratelimit"
)

// EventNewMessage is broadcast to the room for every accepted message.
const EventNewMessage = "new-message"

// Broadcaster fans a payload out to every connection in a room, on every process.
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, roomID, event string, payload interface{})
}

// RoomLookup returns the webinar record that owns a room's settings.
type RoomLookup interface {
	Webinar(ctx context.Context, roomID string) (*models.Webinar, error)
}

// Limiter is the subset of ratelimit.Limiter the channel uses.
type Limiter interface {
	Allow(ctx context.Context, subjectID, action string, maxCount int, window time.Duration) bool
}

// Config bounds chat traffic per room.
type Config struct {
	RateLimit  int           // messages per sender per window
	RateWindow time.Duration // window length
	Retention  int           // messages kept per room
	MaxLength  int           // max body length in runes
}

// Channel is the ChatChannel service.
type Channel struct {
	rdb     *redis.Client
	rooms   RoomLookup
	limiter Limiter
	bc      Broadcaster
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
}

// NewChannel creates a chat channel.
func NewChannel(rdb *redis.Client, rooms RoomLookup, limiter Limiter, bc Broadcaster, cfg Config, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 1000
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &Channel{rdb: rdb, rooms: rooms, limiter: limiter, bc: bc, cfg: cfg, now: time.Now, logger: logger}
}

func logKey(roomID string) string { return "chat:{" + roomID + "}:log" }
func seqKey(roomID string) string { return "chat:{" + roomID + "}:seq" }

// Post validates, rate-limits, persists (best effort) and broadcasts a message.
// The sender receives the broadcast like every other participant.
func (c *Channel) Post(ctx context.Context, roomID string, sender models.Identity, body string) (*models.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errs.ErrEmptyMessage
	}
	if c.cfg.MaxLength > 0 && utf8.RuneCountInString(body) > c.cfg.MaxLength {
		return nil, errs.ErrMessageTooLong
	}
	w, err := c.rooms.Webinar(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("chat settings: %w", err)
	}
	if !w.Settings.ChatAllowed {
		return nil, errs.ErrChatDisabled
	}
	if !c.limiter.Allow(ctx, sender.ParticipantID, ratelimit.ActionChat, c.cfg.RateLimit, c.cfg.RateWindow) {
		return nil, errs.ErrRateLimited
	}

	msg := &models.ChatMessage{
		ID:         uuid.New().String(),
		RoomID:     roomID,
		SenderID:   sender.ParticipantID,
		SenderName: sender.DisplayName,
		SenderRole: sender.Role,
		Body:       body,
		Timestamp:  c.now().UTC(),
	}
	c.persist(ctx, msg)
	c.bc.BroadcastToRoom(ctx, roomID, EventNewMessage, msg)
	return msg, nil
}

// persist assigns the room sequence and appends to the bounded log in one script, so log
// order always matches sequence order. Failures are logged only.
func (c *Channel) persist(ctx context.Context, msg *models.ChatMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		c.logger.Warn("chat marshal failed", zap.String("room_id", msg.RoomID), zap.Error(err))
		return
	}
	keys := []string{seqKey(msg.RoomID), logKey(msg.RoomID)}
	seq, err := appendScript.Run(ctx, c.rdb, keys, string(raw), c.cfg.Retention).Int64()
	if err != nil {
		c.logger.Warn("chat persist failed",
			zap.String("room_id", msg.RoomID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}
	msg.Seq = seq
}

// History returns up to limit most recent messages, oldest first.
func (c *Channel) History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > c.cfg.Retention {
		limit = c.cfg.Retention
	}
	rows, err := c.rdb.LRange(ctx, logKey(roomID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("chat history: %w: %w", errs.ErrStoreUnavailable, err)
	}
	out := make([]models.ChatMessage, 0, len(rows))
	for _, row := range rows {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			c.logger.Warn("invalid chat row", zap.String("room_id", roomID), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Expire schedules the room's log for deletion, used once a webinar has ended and been archived.
func (c *Channel) Expire(ctx context.Context, roomID string, ttl time.Duration) error {
	pipe := c.rdb.Pipeline()
	pipe.Expire(ctx, logKey(roomID), ttl)
	pipe.Expire(ctx, seqKey(roomID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("chat expire: %w", err)
	}
	return nil
}
