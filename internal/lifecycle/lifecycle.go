// Package lifecycle drives the scheduled → live → ended state machine of a webinar room
// and authorizes host-only commands.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/models"
)

// Events broadcast to the room on transitions.
const (
	EventWebinarStarted = "webinar-started"
	EventWebinarEnded   = "webinar-ended"
)

// Host-only actions checked by Authorize.
const (
	ActionMute   = "mute-participant"
	ActionRemove = "remove-participant"
	ActionStart  = "start-webinar"
	ActionEnd    = "end-webinar"
)

// Repository is the authoritative webinar store. TransitionState must be a compare-and-set:
// it reports false when the row was not in state from.
type Repository interface {
	GetWebinar(ctx context.Context, roomID string) (*models.Webinar, error)
	TransitionState(ctx context.Context, roomID string, from, to models.State, at time.Time) (bool, error)
}

// Roster is the presence view the end cascade closes out.
type Roster interface {
	List(ctx context.Context, roomID string) ([]models.PresenceRecord, error)
	Leave(ctx context.Context, roomID, participantID string) (*models.PresenceRecord, error)
}

// AttendanceRecorder receives the close-out of each participant session.
type AttendanceRecorder interface {
	RecordAttendance(ctx context.Context, a models.Attendance) error
}

// Broadcaster fans a payload out to the room.
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, roomID, event string, payload interface{})
}

// EndedHook runs after a room has ended and its presence was closed out.
type EndedHook func(ctx context.Context, roomID string)

// TransitionPayload is broadcast with webinar-started and webinar-ended.
type TransitionPayload struct {
	RoomID string       `json:"roomId"`
	State  models.State `json:"state"`
	At     time.Time    `json:"at"`
}

// Lifecycle is the WebinarLifecycle service.
type Lifecycle struct {
	repo       Repository
	roster     Roster
	attendance AttendanceRecorder
	bc         Broadcaster
	onEnded    EndedHook
	now        func() time.Time
	logger     *zap.Logger
}

// New creates a lifecycle service.
func New(repo Repository, roster Roster, attendance AttendanceRecorder, bc Broadcaster, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{repo: repo, roster: roster, attendance: attendance, bc: bc, now: time.Now, logger: logger}
}

// SetEndedHook sets the callback run after End's cascade (e.g. transcript export).
func (l *Lifecycle) SetEndedHook(fn EndedHook) {
	l.onEnded = fn
}

// Webinar returns the room's authoritative record.
func (l *Lifecycle) Webinar(ctx context.Context, roomID string) (*models.Webinar, error) {
	w, err := l.repo.GetWebinar(ctx, roomID)
	if err != nil {
		if errors.Is(err, errs.ErrRoomNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get webinar: %w: %w", errs.ErrStoreUnavailable, err)
	}
	return w, nil
}

// Start moves the room from scheduled to live. Only the host may start it.
func (l *Lifecycle) Start(ctx context.Context, roomID, requesterID string) (*models.Webinar, error) {
	w, err := l.transition(ctx, roomID, requesterID, models.StateScheduled, models.StateLive)
	if err != nil {
		return nil, err
	}
	l.bc.BroadcastToRoom(ctx, roomID, EventWebinarStarted, TransitionPayload{RoomID: roomID, State: w.State, At: *w.StartedAt})
	l.logger.Info("webinar started", zap.String("room_id", roomID), zap.String("host_id", requesterID))
	return w, nil
}

// End moves the room from live to ended, closes out every active presence to attendance
// and broadcasts webinar-ended. Cascade failures are logged; the transition stands.
func (l *Lifecycle) End(ctx context.Context, roomID, requesterID string) (*models.Webinar, error) {
	w, err := l.transition(ctx, roomID, requesterID, models.StateLive, models.StateEnded)
	if err != nil {
		return nil, err
	}
	endedAt := *w.EndedAt

	records, err := l.roster.List(ctx, roomID)
	if err != nil {
		l.logger.Warn("end cascade list failed", zap.String("room_id", roomID), zap.Error(err))
	}
	for _, rec := range records {
		removed, err := l.roster.Leave(ctx, roomID, rec.ParticipantID)
		if err != nil {
			l.logger.Warn("end cascade leave failed",
				zap.String("room_id", roomID),
				zap.String("participant_id", rec.ParticipantID),
				zap.Error(err),
			)
			continue
		}
		if removed == nil {
			continue
		}
		a := models.Attendance{ParticipantID: removed.ParticipantID, RoomID: roomID, JoinedAt: removed.JoinedAt, LeftAt: endedAt}
		if err := l.attendance.RecordAttendance(ctx, a); err != nil {
			l.logger.Warn("end cascade attendance failed",
				zap.String("room_id", roomID),
				zap.String("participant_id", rec.ParticipantID),
				zap.Error(err),
			)
		}
	}

	l.bc.BroadcastToRoom(ctx, roomID, EventWebinarEnded, TransitionPayload{RoomID: roomID, State: w.State, At: endedAt})
	if l.onEnded != nil {
		l.onEnded(ctx, roomID)
	}
	l.logger.Info("webinar ended", zap.String("room_id", roomID), zap.Int("closed_out", len(records)))
	return w, nil
}

func (l *Lifecycle) transition(ctx context.Context, roomID, requesterID string, from, to models.State) (*models.Webinar, error) {
	w, err := l.Webinar(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !w.IsHost(requesterID) {
		return nil, errs.ErrForbidden
	}
	if w.State != from || from.Next() != to {
		return nil, errs.ErrInvalidState
	}
	at := l.now().UTC()
	ok, err := l.repo.TransitionState(ctx, roomID, from, to, at)
	if err != nil {
		return nil, fmt.Errorf("transition %s->%s: %w: %w", from, to, errs.ErrStoreUnavailable, err)
	}
	if !ok {
		// another process transitioned first
		return nil, errs.ErrInvalidState
	}
	w.State = to
	switch to {
	case models.StateLive:
		w.StartedAt = &at
	case models.StateEnded:
		w.EndedAt = &at
	}
	return w, nil
}

// JoinCheck reports why participantID may not join w, or nil. The host may join a scheduled
// room to prepare; others need it live, or scheduled with public pre-live settings.
func JoinCheck(w *models.Webinar, participantID string) error {
	switch w.State {
	case models.StateEnded:
		return errs.ErrInvalidState
	case models.StateLive:
		return nil
	case models.StateScheduled:
		if w.IsHost(participantID) || w.Settings.PublicPreLive {
			return nil
		}
		return errs.ErrForbidden
	}
	return errs.ErrInvalidState
}

// CanJoin reports whether participantID may join the room now.
func (l *Lifecycle) CanJoin(ctx context.Context, roomID, participantID string) (bool, error) {
	w, err := l.Webinar(ctx, roomID)
	if err != nil {
		return false, err
	}
	return JoinCheck(w, participantID) == nil, nil
}

// Authorize reports whether requesterID may perform a host-only action in the room.
// Store failures deny.
func (l *Lifecycle) Authorize(ctx context.Context, roomID, requesterID, action string) (bool, error) {
	w, err := l.Webinar(ctx, roomID)
	if err != nil {
		return false, err
	}
	switch action {
	case ActionMute, ActionRemove, ActionStart, ActionEnd:
		return w.IsHost(requesterID), nil
	}
	return false, nil
}
