// Package signaling forwards WebRTC negotiation envelopes between participants by logical id.
package signaling

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/internal/ratelimit"
)

// Locator resolves a participant's presence record in a room.
type Locator interface {
	Get(ctx context.Context, roomID, participantID string) (*models.PresenceRecord, error)
}

// Deliverer sends an event to one connection, local or on another process.
type Deliverer interface {
	DeliverToConn(ctx context.Context, ref models.ConnRef, event string, payload interface{}) error
}

// Limiter is the subset of ratelimit.Limiter the relay uses.
type Limiter interface {
	Allow(ctx context.Context, subjectID, action string, maxCount int, window time.Duration) bool
}

// Relay is the stateless SignalingRelay. It neither queues nor retries.
type Relay struct {
	presence Locator
	out      Deliverer
	limiter  Limiter
	limit    int
	window   time.Duration
	logger   *zap.Logger
}

// NewRelay creates a relay. limit <= 0 disables per-sender rate limiting.
func NewRelay(presence Locator, out Deliverer, limiter Limiter, limit int, window time.Duration, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{presence: presence, out: out, limiter: limiter, limit: limit, window: window, logger: logger}
}

// Relay forwards env to its target within roomID. The sender id is always taken from the
// authenticated identity, never from the client. Absent targets fail with errs.ErrTargetNotFound.
func (r *Relay) Relay(ctx context.Context, roomID string, sender models.Identity, env models.SignalingEnvelope) error {
	if !env.Type.Valid() || env.ToParticipantID == "" || len(env.Payload) == 0 {
		return errs.ErrBadPayload
	}
	if env.ToParticipantID == sender.ParticipantID {
		return errs.ErrBadPayload
	}
	if r.limiter != nil && r.limit > 0 &&
		!r.limiter.Allow(ctx, sender.ParticipantID, ratelimit.ActionSignal, r.limit, r.window) {
		return errs.ErrRateLimited
	}

	target, err := r.presence.Get(ctx, roomID, env.ToParticipantID)
	if err != nil {
		return err
	}
	if target == nil {
		return errs.ErrTargetNotFound
	}
	ref, ok := models.ParseConnRef(target.ConnectionRef)
	if !ok {
		r.logger.Warn("presence record without connection ref",
			zap.String("room_id", roomID),
			zap.String("participant_id", target.ParticipantID),
		)
		return errs.ErrTargetNotFound
	}

	env.FromParticipantID = sender.ParticipantID
	return r.out.DeliverToConn(ctx, ref, string(env.Type), env)
}
