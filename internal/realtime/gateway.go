// Package realtime is the WebSocket gateway: it authenticates connections, runs one session
// loop per connection and dispatches named events to the room services.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/auth"
	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/lifecycle"
	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/internal/presence"
	"github.com/aura-webinar/live/internal/ratelimit"
	"github.com/aura-webinar/live/pkg/response"
)

const disconnectTimeout = 5 * time.Second

// Authenticator resolves a handshake token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// Presence is the room presence store.
type Presence interface {
	Join(ctx context.Context, roomID string, capacity int, rec models.PresenceRecord) (presence.JoinResult, error)
	Leave(ctx context.Context, roomID, participantID string) (*models.PresenceRecord, error)
	LeaveIfOwner(ctx context.Context, roomID, participantID, connRef string) (*models.PresenceRecord, error)
	Update(ctx context.Context, roomID, participantID, connRef string, patch models.PresencePatch) (bool, error)
	Touch(ctx context.Context, roomID, participantID string) error
	Get(ctx context.Context, roomID, participantID string) (*models.PresenceRecord, error)
	List(ctx context.Context, roomID string) ([]models.PresenceRecord, error)
}

// Chat is the room chat channel.
type Chat interface {
	Post(ctx context.Context, roomID string, sender models.Identity, body string) (*models.ChatMessage, error)
	History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
}

// Signaling relays WebRTC negotiation envelopes.
type Signaling interface {
	Relay(ctx context.Context, roomID string, sender models.Identity, env models.SignalingEnvelope) error
}

// Lifecycle is the webinar state machine.
type Lifecycle interface {
	Webinar(ctx context.Context, roomID string) (*models.Webinar, error)
	Start(ctx context.Context, roomID, requesterID string) (*models.Webinar, error)
	End(ctx context.Context, roomID, requesterID string) (*models.Webinar, error)
	Authorize(ctx context.Context, roomID, requesterID, action string) (bool, error)
}

// Limiter rate-limits reactions.
type Limiter interface {
	Allow(ctx context.Context, subjectID, action string, maxCount int, window time.Duration) bool
}

// AttendanceRecorder receives session close-outs.
type AttendanceRecorder interface {
	RecordAttendance(ctx context.Context, a models.Attendance) error
}

// Config tunes the gateway.
type Config struct {
	DefaultCapacity    int
	HistoryLimit       int
	ReactionRateLimit  int
	ReactionRateWindow time.Duration
	// TouchInterval is how often a joined connection refreshes its presence liveness.
	TouchInterval time.Duration
	ICEServers    []webrtc.ICEServer
	// CheckOrigin overrides the upgrader's origin check; nil allows all origins.
	CheckOrigin func(r *http.Request) bool
}

// Deps are the services the gateway dispatches to.
type Deps struct {
	Auth       Authenticator
	Hub        *Hub
	Presence   Presence
	Chat       Chat
	Relay      Signaling
	Lifecycle  Lifecycle
	Limiter    Limiter
	Attendance AttendanceRecorder
}

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) error

// Gateway is the ConnectionGateway.
type Gateway struct {
	auth       Authenticator
	hub        *Hub
	presence   Presence
	chat       Chat
	relay      Signaling
	lifecycle  Lifecycle
	limiter    Limiter
	attendance AttendanceRecorder
	cfg        Config
	upgrader   websocket.Upgrader
	handlers   map[string]handlerFunc
	now        func() time.Time
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// NewGateway wires a gateway.
func NewGateway(d Deps, cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TouchInterval <= 0 {
		cfg.TouchInterval = 20 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	g := &Gateway{
		auth:       d.Auth,
		hub:        d.Hub,
		presence:   d.Presence,
		chat:       d.Chat,
		relay:      d.Relay,
		lifecycle:  d.Lifecycle,
		limiter:    d.Limiter,
		attendance: d.Attendance,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		now:    time.Now,
		logger: logger,
	}
	g.handlers = map[string]handlerFunc{
		EventJoinRoom:                     g.handleJoin,
		EventLeaveRoom:                    g.handleLeave,
		EventToggleAudio:                  g.handleToggleAudio,
		EventToggleVideo:                  g.handleToggleVideo,
		EventStartScreenShare:             g.handleStartScreenShare,
		EventStopScreenShare:              g.handleStopScreenShare,
		EventRaiseHand:                    g.handleRaiseHand,
		EventLowerHand:                    g.handleLowerHand,
		EventSendMessage:                  g.handleSendMessage,
		EventSendReaction:                 g.handleReaction,
		string(models.SignalOffer):        g.signalHandler(models.SignalOffer),
		string(models.SignalAnswer):       g.signalHandler(models.SignalAnswer),
		string(models.SignalICECandidate): g.signalHandler(models.SignalICECandidate),
		EventMuteParticipant:              g.handleMute,
		EventRemoveParticipant:            g.handleRemove,
		EventStartWebinar:                 g.handleStartWebinar,
		EventEndWebinar:                   g.handleEndWebinar,
	}
	return g
}

// ServeWs authenticates the handshake, upgrades and runs the connection until it closes.
// Authentication failures are answered before the upgrade, so no connection state exists.
func (g *Gateway) ServeWs(c *gin.Context) {
	id, err := g.auth.Authenticate(c.Request.Context(), auth.TokenFromRequest(c.Request))
	if err != nil {
		if errors.Is(err, errs.ErrStoreUnavailable) {
			g.logger.Warn("handshake user check failed", zap.Error(err))
			response.ServiceUnavailable(c, "try again later")
			return
		}
		response.Unauthorized(c, "invalid or missing token")
		return
	}
	c.Set(auth.ContextIdentity, id)

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	g.wg.Add(1)
	defer g.wg.Done()

	client := newClient(g, conn, id)
	g.hub.Register(client)
	client.logger.Debug("connection authenticated", zap.String("role", string(id.Role)))
	go client.writePump()
	go client.readPump()
	client.run()
}

// Shutdown closes every local connection and waits for their disconnect handling.
func (g *Gateway) Shutdown(ctx context.Context) error {
	n := g.hub.CloseAll()
	g.logger.Info("closing connections", zap.Int("count", n))
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnReap closes out a record the presence reaper removed.
func (g *Gateway) OnReap(ctx context.Context, roomID string, rec models.PresenceRecord) {
	g.recordAttendance(ctx, models.Attendance{
		ParticipantID: rec.ParticipantID,
		RoomID:        roomID,
		JoinedAt:      rec.JoinedAt,
		LeftAt:        g.now().UTC(),
	})
	g.hub.BroadcastToRoom(ctx, roomID, EventParticipantLeft, ParticipantLeftPayload{
		RoomID: roomID, ParticipantID: rec.ParticipantID, Reason: ReasonExpired,
	})
	if ref, ok := models.ParseConnRef(rec.ConnectionRef); ok {
		_ = g.hub.DeliverToConn(ctx, ref, EventRemovedFromRoom, RemovedPayload{RoomID: roomID, Reason: ReasonExpired})
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, in inbound) {
	if in.err != nil {
		g.sendError(c, "", fmt.Errorf("%w: %v", errs.ErrBadPayload, in.err))
		return
	}
	h, ok := g.handlers[in.msg.Event]
	if !ok {
		g.sendError(c, in.msg.Event, errs.ErrUnknownEvent)
		return
	}
	if err := h(ctx, c, in.msg.Data); err != nil {
		g.sendError(c, in.msg.Event, err)
	}
}

func (g *Gateway) sendError(c *Client, event string, err error) {
	code := errs.Code(err)
	msg := err.Error()
	switch code {
	case "internal", "store_unavailable":
		c.logger.Warn("event failed", zap.String("event", event), zap.Error(err))
		msg = "temporarily unavailable"
	default:
		c.logger.Debug("event rejected", zap.String("event", event), zap.String("code", code), zap.Error(err))
	}
	c.emit(EventError, ErrorPayload{Code: code, Message: msg, Event: event})
}

// decode unmarshals data into v and runs its binding rules.
func decode(data json.RawMessage, v interface{}) error {
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrBadPayload, err)
		}
	}
	if err := binding.Validator.ValidateStruct(v); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBadPayload, err)
	}
	return nil
}

func (g *Gateway) recordAttendance(ctx context.Context, a models.Attendance) {
	if g.attendance == nil {
		return
	}
	if err := g.attendance.RecordAttendance(ctx, a); err != nil {
		g.logger.Warn("record attendance failed",
			zap.String("room_id", a.RoomID),
			zap.String("participant_id", a.ParticipantID),
			zap.Error(err),
		)
	}
}

func (g *Gateway) handleJoin(ctx context.Context, c *Client, data json.RawMessage) error {
	var p JoinRoomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	s := c.session
	if s.InRoom() {
		if s.RoomID == p.RoomID {
			return errs.ErrAlreadyInRoom
		}
		g.leaveRoom(ctx, c, ReasonLeft)
	}

	w, err := g.lifecycle.Webinar(ctx, p.RoomID)
	if err != nil {
		return err
	}
	if err := lifecycle.JoinCheck(w, s.Identity.ParticipantID); err != nil {
		return err
	}
	capacity := w.Capacity
	if capacity <= 0 {
		capacity = g.cfg.DefaultCapacity
	}

	// subscribe first so no broadcast between the join and the subscription is missed
	if err := g.hub.JoinRoom(c, p.RoomID); err != nil {
		return fmt.Errorf("room subscription: %w: %w", errs.ErrStoreUnavailable, err)
	}
	now := g.now().UTC()
	s.enter(p.RoomID, now)
	rec := s.record()
	res, err := g.presence.Join(ctx, p.RoomID, capacity, rec)
	if err != nil {
		g.hub.LeaveRoom(c, p.RoomID)
		s.exit()
		return err
	}
	if res.Replaced && res.Previous != nil {
		g.closeOutReplaced(ctx, p.RoomID, res.Previous, now)
	}
	if g.endedDuringJoin(ctx, c, p.RoomID) {
		return errs.ErrInvalidState
	}

	roster, err := g.presence.List(ctx, p.RoomID)
	if err != nil {
		c.logger.Warn("roster read failed", zap.String("room_id", p.RoomID), zap.Error(err))
		roster = []models.PresenceRecord{rec}
	}
	history, err := g.chat.History(ctx, p.RoomID, g.cfg.HistoryLimit)
	if err != nil {
		c.logger.Warn("chat history read failed", zap.String("room_id", p.RoomID), zap.Error(err))
		history = []models.ChatMessage{}
	}

	c.emit(EventRoomJoined, RoomJoinedPayload{
		RoomID:       p.RoomID,
		Self:         rec,
		Participants: roster,
		State:        w.State,
		Capacity:     capacity,
		Settings:     w.Settings,
		ICEServers:   g.cfg.ICEServers,
	})
	c.emit(EventChatHistory, ChatHistoryPayload{RoomID: p.RoomID, Messages: history})
	// the joiner has itself in room-joined
	g.hub.BroadcastExcept(ctx, p.RoomID, c.ID, EventParticipantJoined, ParticipantJoinedPayload{RoomID: p.RoomID, Participant: rec})
	c.logger.Info("joined room", zap.String("room_id", p.RoomID), zap.Bool("replaced", res.Replaced))
	return nil
}

// endedDuringJoin re-reads the room after the presence write. An end that committed in
// between has already listed the roster, so the new record is withdrawn here.
func (g *Gateway) endedDuringJoin(ctx context.Context, c *Client, roomID string) bool {
	w, err := g.lifecycle.Webinar(ctx, roomID)
	if err != nil {
		c.logger.Warn("join state recheck failed", zap.String("room_id", roomID), zap.Error(err))
		return false
	}
	if w.State != models.StateEnded {
		return false
	}
	s := c.session
	if _, err := g.presence.LeaveIfOwner(ctx, roomID, s.Identity.ParticipantID, s.Ref.String()); err != nil {
		c.logger.Warn("presence leave failed", zap.String("room_id", roomID), zap.Error(err))
	}
	g.hub.LeaveRoom(c, roomID)
	s.exit()
	return true
}

// closeOutReplaced ends the session a reconnect replaced. The old connection is told to
// drop the room without touching the new record.
func (g *Gateway) closeOutReplaced(ctx context.Context, roomID string, prev *models.PresenceRecord, at time.Time) {
	g.recordAttendance(ctx, models.Attendance{
		ParticipantID: prev.ParticipantID,
		RoomID:        roomID,
		JoinedAt:      prev.JoinedAt,
		LeftAt:        at,
	})
	ref, ok := models.ParseConnRef(prev.ConnectionRef)
	if !ok {
		return
	}
	err := g.hub.DeliverToConn(ctx, ref, EventRemovedFromRoom, RemovedPayload{RoomID: roomID, Reason: ReasonReplaced})
	if err != nil && !errors.Is(err, errs.ErrTargetNotFound) {
		g.logger.Warn("replace notice failed", zap.String("room_id", roomID), zap.String("participant_id", prev.ParticipantID), zap.Error(err))
	}
}

func (g *Gateway) handleLeave(ctx context.Context, c *Client, _ json.RawMessage) error {
	if !c.session.InRoom() {
		return errs.ErrNotInRoom
	}
	roomID := c.session.RoomID
	g.leaveRoom(ctx, c, ReasonLeft)
	c.emit(EventRoomLeft, RoomLeftPayload{RoomID: roomID})
	return nil
}

// leaveRoom removes the connection's own record and always completes locally, even
// when the store is unreachable.
func (g *Gateway) leaveRoom(ctx context.Context, c *Client, reason string) {
	s := c.session
	roomID := s.RoomID
	a := s.attendance(g.now().UTC())

	removed, err := g.presence.LeaveIfOwner(ctx, roomID, s.Identity.ParticipantID, s.Ref.String())
	if err != nil {
		c.logger.Warn("presence leave failed", zap.String("room_id", roomID), zap.Error(err))
	}
	g.hub.LeaveRoom(c, roomID)
	s.exit()

	// nil without error: the reaper or a reconnect already closed this session out
	if removed == nil && err == nil {
		return
	}
	g.recordAttendance(ctx, a)
	g.hub.BroadcastToRoom(ctx, roomID, EventParticipantLeft, ParticipantLeftPayload{
		RoomID: roomID, ParticipantID: a.ParticipantID, Reason: reason,
	})
	c.logger.Info("left room", zap.String("room_id", roomID), zap.String("reason", reason))
}

// updateSelf mirrors a local flag change into presence. It reports false when the record
// is gone, in which case nothing is broadcast.
func (g *Gateway) updateSelf(ctx context.Context, c *Client, patch models.PresencePatch) bool {
	s := c.session
	ok, err := g.presence.Update(ctx, s.RoomID, s.Identity.ParticipantID, s.Ref.String(), patch)
	if err != nil {
		// the local flag stays authoritative; peers reconcile on the broadcast
		c.logger.Warn("presence update failed", zap.String("room_id", s.RoomID), zap.Error(err))
		return true
	}
	return ok
}

func (g *Gateway) handleToggleAudio(ctx context.Context, c *Client, data json.RawMessage) error {
	return g.toggleMedia(ctx, c, data, true)
}

func (g *Gateway) handleToggleVideo(ctx context.Context, c *Client, data json.RawMessage) error {
	return g.toggleMedia(ctx, c, data, false)
}

func (g *Gateway) toggleMedia(ctx context.Context, c *Client, data json.RawMessage, audio bool) error {
	var p TogglePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	s := c.session
	if !s.InRoom() {
		return errs.ErrNotInRoom
	}
	enabled := *p.Enabled
	var patch models.PresencePatch
	event := EventVideoChanged
	if audio {
		s.Audio = enabled
		patch.AudioEnabled = models.Bool(enabled)
		event = EventAudioChanged
	} else {
		s.Video = enabled
		patch.VideoEnabled = models.Bool(enabled)
	}
	if g.updateSelf(ctx, c, patch) {
		g.hub.BroadcastToRoom(ctx, s.RoomID, event, MediaChangedPayload{
			RoomID: s.RoomID, ParticipantID: s.Identity.ParticipantID, Enabled: enabled,
		})
	}
	return nil
}

func canShareScreen(w *models.Webinar, id models.Identity) bool {
	if w.IsHost(id.ParticipantID) {
		return true
	}
	switch w.Settings.ScreenShare {
	case models.ScreenShareEveryone:
		return true
	case models.ScreenSharePresenters:
		return id.Role.Presenter()
	}
	return false
}

func (g *Gateway) handleStartScreenShare(ctx context.Context, c *Client, _ json.RawMessage) error {
	s := c.session
	if !s.InRoom() {
		return errs.ErrNotInRoom
	}
	w, err := g.lifecycle.Webinar(ctx, s.RoomID)
	if err != nil {
		return err
	}
	if !canShareScreen(w, s.Identity) {
		return errs.ErrScreenShareDenied
	}
	return g.setFlag(ctx, c, func(s *Session) { s.Screen = true },
		models.PresencePatch{ScreenSharing: models.Bool(true)}, EventScreenShareStarted)
}

func (g *Gateway) handleStopScreenShare(ctx context.Context, c *Client, _ json.RawMessage) error {
	return g.setFlag(ctx, c, func(s *Session) { s.Screen = false },
		models.PresencePatch{ScreenSharing: models.Bool(false)}, EventScreenShareStopped)
}

func (g *Gateway) handleRaiseHand(ctx context.Context, c *Client, _ json.RawMessage) error {
	return g.setFlag(ctx, c, func(s *Session) { s.Hand = true },
		models.PresencePatch{HandRaised: models.Bool(true)}, EventHandRaised)
}

func (g *Gateway) handleLowerHand(ctx context.Context, c *Client, _ json.RawMessage) error {
	return g.setFlag(ctx, c, func(s *Session) { s.Hand = false },
		models.PresencePatch{HandRaised: models.Bool(false)}, EventHandLowered)
}

func (g *Gateway) setFlag(ctx context.Context, c *Client, apply func(*Session), patch models.PresencePatch, event string) error {
	s := c.session
	if !s.InRoom() {
		return errs.ErrNotInRoom
	}
	apply(s)
	if g.updateSelf(ctx, c, patch) {
		g.hub.BroadcastToRoom(ctx, s.RoomID, event, ParticipantEventPayload{
			RoomID: s.RoomID, ParticipantID: s.Identity.ParticipantID,
		})
	}
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var p SendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	s := c.session
	if !s.InRoom() {
		return errs.ErrNotInRoom
	}
	_, err := g.chat.Post(ctx, s.RoomID, s.Identity, p.Message)
	return err
}

func (g *Gateway) handleReaction(ctx context.Context, c *Client, data json.RawMessage) error {
	var p ReactionPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	s := c.session
	if !s.InRoom() {
		return errs.ErrNotInRoom
	}
	w, err := g.lifecycle.Webinar(ctx, s.RoomID)
	if err != nil {
		return err
	}
	if !w.Settings.ReactionsAllowed {
		return errs.ErrReactionsDisabled
	}
	if g.limiter != nil && !g.limiter.Allow(ctx, s.Identity.ParticipantID, ratelimit.ActionReaction, g.cfg.ReactionRateLimit, g.cfg.ReactionRateWindow) {
		return errs.ErrRateLimited
	}
	g.hub.BroadcastToRoom(ctx, s.RoomID, EventReaction, ReactionBroadcast{
		RoomID:        s.RoomID,
		ParticipantID: s.Identity.ParticipantID,
		DisplayName:   s.Identity.DisplayName,
		Emoji:         p.Emoji,
		At:            g.now().UTC(),
	})
	return nil
}

func (g *Gateway) signalHandler(t models.SignalType) handlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) error {
		var p SignalPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		s := c.session
		if !s.InRoom() {
			return errs.ErrNotInRoom
		}
		return g.relay.Relay(ctx, s.RoomID, s.Identity, models.SignalingEnvelope{
			Type:            t,
			ToParticipantID: p.TargetParticipantID,
			Payload:         p.Payload,
			CorrelationID:   p.CorrelationID,
		})
	}
}

// hostTarget authorizes a host-only action and resolves its target's live record.
func (g *Gateway) hostTarget(ctx context.Context, c *Client, data json.RawMessage, action string) (*models.PresenceRecord, error) {
	var p ParticipantPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	s := c.session
	if !s.InRoom() {
		return nil, errs.ErrNotInRoom
	}
	ok, err := g.lifecycle.Authorize(ctx, s.RoomID, s.Identity.ParticipantID, action)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrForbidden
	}
	if p.ParticipantID == s.Identity.ParticipantID {
		return nil, errs.ErrBadPayload
	}
	rec, err := g.presence.Get(ctx, s.RoomID, p.ParticipantID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errs.ErrTargetNotFound
	}
	return rec, nil
}

func (g *Gateway) handleMute(ctx context.Context, c *Client, data json.RawMessage) error {
	rec, err := g.hostTarget(ctx, c, data, lifecycle.ActionMute)
	if err != nil {
		return err
	}
	s := c.session
	if _, err := g.presence.Update(ctx, s.RoomID, rec.ParticipantID, "", models.PresencePatch{AudioEnabled: models.Bool(false)}); err != nil {
		return err
	}
	if ref, ok := models.ParseConnRef(rec.ConnectionRef); ok {
		if err := g.hub.DeliverToConn(ctx, ref, EventForceMute, ForceMutePayload{RoomID: s.RoomID, By: s.Identity.ParticipantID}); err != nil {
			c.logger.Debug("force-mute delivery failed", zap.String("target", rec.ParticipantID), zap.Error(err))
		}
	}
	g.hub.BroadcastToRoom(ctx, s.RoomID, EventAudioChanged, MediaChangedPayload{
		RoomID: s.RoomID, ParticipantID: rec.ParticipantID, Enabled: false,
	})
	return nil
}

func (g *Gateway) handleRemove(ctx context.Context, c *Client, data json.RawMessage) error {
	rec, err := g.hostTarget(ctx, c, data, lifecycle.ActionRemove)
	if err != nil {
		return err
	}
	s := c.session
	removed, err := g.presence.Leave(ctx, s.RoomID, rec.ParticipantID)
	if err != nil {
		return err
	}
	if removed == nil {
		return errs.ErrTargetNotFound
	}
	if ref, ok := models.ParseConnRef(removed.ConnectionRef); ok {
		if err := g.hub.DeliverToConn(ctx, ref, EventRemovedFromRoom, RemovedPayload{RoomID: s.RoomID, Reason: ReasonRemoved}); err != nil {
			c.logger.Debug("removal notice failed", zap.String("target", rec.ParticipantID), zap.Error(err))
		}
	}
	g.recordAttendance(ctx, models.Attendance{
		ParticipantID: removed.ParticipantID,
		RoomID:        s.RoomID,
		JoinedAt:      removed.JoinedAt,
		LeftAt:        g.now().UTC(),
	})
	g.hub.BroadcastToRoom(ctx, s.RoomID, EventParticipantLeft, ParticipantLeftPayload{
		RoomID: s.RoomID, ParticipantID: removed.ParticipantID, Reason: ReasonRemoved,
	})
	c.logger.Info("participant removed", zap.String("room_id", s.RoomID), zap.String("target", removed.ParticipantID))
	return nil
}

// lifecycleRoom resolves the room a start/end command targets.
func lifecycleRoom(c *Client, data json.RawMessage) (string, error) {
	var p RoomPayload
	if err := decode(data, &p); err != nil {
		return "", err
	}
	if p.RoomID != "" {
		return p.RoomID, nil
	}
	if !c.session.InRoom() {
		return "", errs.ErrNotInRoom
	}
	return c.session.RoomID, nil
}

func (g *Gateway) handleStartWebinar(ctx context.Context, c *Client, data json.RawMessage) error {
	roomID, err := lifecycleRoom(c, data)
	if err != nil {
		return err
	}
	w, err := g.lifecycle.Start(ctx, roomID, c.session.Identity.ParticipantID)
	if err != nil {
		return err
	}
	if c.session.RoomID != roomID {
		// the room broadcast does not reach a host outside the room
		c.emit(lifecycle.EventWebinarStarted, lifecycle.TransitionPayload{RoomID: roomID, State: w.State, At: *w.StartedAt})
	}
	return nil
}

func (g *Gateway) handleEndWebinar(ctx context.Context, c *Client, data json.RawMessage) error {
	roomID, err := lifecycleRoom(c, data)
	if err != nil {
		return err
	}
	w, err := g.lifecycle.End(ctx, roomID, c.session.Identity.ParticipantID)
	if err != nil {
		return err
	}
	if c.session.RoomID != roomID {
		c.emit(lifecycle.EventWebinarEnded, lifecycle.TransitionPayload{RoomID: roomID, State: w.State, At: *w.EndedAt})
	}
	return nil
}
