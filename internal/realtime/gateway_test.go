package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/live/internal/auth"
	"github.com/aura-webinar/live/internal/chat"
	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/lifecycle"
	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/internal/presence"
	"github.com/aura-webinar/live/internal/ratelimit"
	"github.com/aura-webinar/live/internal/signaling"
)

type webinarRepo struct {
	mu       sync.Mutex
	webinars map[string]*models.Webinar
	// afterRead, when set, runs once on the stored record after a read returns its copy
	afterRead func(w *models.Webinar)
}

func (r *webinarRepo) GetWebinar(_ context.Context, roomID string) (*models.Webinar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.webinars[roomID]
	if !ok {
		return nil, errs.ErrRoomNotFound
	}
	cp := *w
	if r.afterRead != nil {
		r.afterRead(w)
		r.afterRead = nil
	}
	return &cp, nil
}

func (r *webinarRepo) TransitionState(_ context.Context, roomID string, from, to models.State, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.webinars[roomID]
	if !ok || w.State != from {
		return false, nil
	}
	w.State = to
	if to == models.StateLive {
		w.StartedAt = &at
	} else {
		w.EndedAt = &at
	}
	return true, nil
}

type attendanceSink struct {
	mu  sync.Mutex
	out []models.Attendance
}

func (s *attendanceSink) RecordAttendance(_ context.Context, a models.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, a)
	return nil
}

func (s *attendanceSink) forParticipant(id string) []models.Attendance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var got []models.Attendance
	for _, a := range s.out {
		if a.ParticipantID == id {
			got = append(got, a)
		}
	}
	return got
}

type harness struct {
	t          *testing.T
	srv        *httptest.Server
	gw         *Gateway
	store      *presence.Store
	rdb        *redis.Client
	jwt        *auth.JWTService
	repo       *webinarRepo
	attendance *attendanceSink
	hostID     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hostID := uuid.New().String()
	repo := &webinarRepo{webinars: map[string]*models.Webinar{
		"r1": {
			ID:       "r1",
			HostID:   hostID,
			Capacity: 5,
			State:    models.StateScheduled,
			Settings: models.DefaultRoomSettings(),
		},
	}}

	hub := NewHub("test-1", nil, nil, nil)
	store := presence.NewStore(rdb, nil)
	limiter := ratelimit.NewLimiter(rdb, nil)
	sink := &attendanceSink{}
	life := lifecycle.New(repo, store, sink, hub, nil)
	jwt := auth.NewJWTService("test-secret", 1)

	gw := NewGateway(Deps{
		Auth:       auth.NewAuthenticator(jwt, nil),
		Hub:        hub,
		Presence:   store,
		Chat:       chat.NewChannel(rdb, life, limiter, hub, chat.Config{RateLimit: 10, RateWindow: time.Minute, Retention: 100, MaxLength: 200}, nil),
		Relay:      signaling.NewRelay(store, hub, limiter, 100, time.Minute, nil),
		Lifecycle:  life,
		Limiter:    limiter,
		Attendance: sink,
	}, Config{
		DefaultCapacity:    10,
		HistoryLimit:       50,
		ReactionRateLimit:  2,
		ReactionRateWindow: time.Minute,
		TouchInterval:      time.Second,
		ICEServers:         []webrtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}},
	}, nil)

	r := gin.New()
	r.GET("/ws", gw.ServeWs)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &harness{t: t, srv: srv, gw: gw, store: store, rdb: rdb, jwt: jwt, repo: repo, attendance: sink, hostID: hostID}
}

func (h *harness) token(userID, name string, role models.Role) string {
	h.t.Helper()
	tok, err := h.jwt.Generate(uuid.MustParse(userID), name+"@example.org", name, string(role))
	require.NoError(h.t, err)
	return tok
}

func (h *harness) dial(token string) *websocket.Conn {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(WSMessage{Event: event, Data: raw}))
}

// readUntil skips frames until one named event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) WSMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if msg.Event == event {
			return msg
		}
	}
}

func readError(t *testing.T, conn *websocket.Conn) ErrorPayload {
	t.Helper()
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, conn, EventError).Data, &p))
	return p
}

func (h *harness) join(conn *websocket.Conn, roomID string) RoomJoinedPayload {
	h.t.Helper()
	send(h.t, conn, EventJoinRoom, JoinRoomPayload{RoomID: roomID})
	var p RoomJoinedPayload
	require.NoError(h.t, json.Unmarshal(readUntil(h.t, conn, EventRoomJoined).Data, &p))
	readUntil(h.t, conn, EventChatHistory)
	return p
}

func (h *harness) startLive() (*websocket.Conn, string) {
	h.t.Helper()
	host := h.dial(h.token(h.hostID, "Host", models.RoleSpeaker))
	send(h.t, host, EventStartWebinar, RoomPayload{RoomID: "r1"})
	readUntil(h.t, host, lifecycle.EventWebinarStarted)
	h.join(host, "r1")
	return host, h.hostID
}

func waitCount(t *testing.T, store *presence.Store, roomID string, want int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		n, err := store.Count(context.Background(), roomID)
		return err == nil && n == want
	}, 3*time.Second, 20*time.Millisecond)
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScheduledRoomIsHostOnly(t *testing.T) {
	h := newHarness(t)
	aID := uuid.New().String()
	a := h.dial(h.token(aID, "Ann", models.RoleAudience))

	send(t, a, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})
	assert.Equal(t, "forbidden", readError(t, a).Code)

	send(t, a, EventJoinRoom, JoinRoomPayload{RoomID: "missing"})
	assert.Equal(t, "room_not_found", readError(t, a).Code)

	send(t, a, EventStartWebinar, RoomPayload{RoomID: "r1"})
	assert.Equal(t, "forbidden", readError(t, a).Code)
}

func TestRoomSessionFlow(t *testing.T) {
	h := newHarness(t)
	host, hostID := h.startLive()

	aID := uuid.New().String()
	a := h.dial(h.token(aID, "Ann", models.RoleAudience))
	joined := h.join(a, "r1")
	assert.Equal(t, models.StateLive, joined.State)
	assert.Equal(t, 5, joined.Capacity)
	assert.Len(t, joined.Participants, 2)
	assert.Equal(t, aID, joined.Self.ParticipantID)
	assert.Len(t, joined.ICEServers, 1)

	var pj ParticipantJoinedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, EventParticipantJoined).Data, &pj))
	assert.Equal(t, aID, pj.Participant.ParticipantID)

	// chat reaches everyone, sender included
	send(t, a, EventSendMessage, SendMessagePayload{Message: "hello"})
	for _, conn := range []*websocket.Conn{host, a} {
		var msg models.ChatMessage
		require.NoError(t, json.Unmarshal(readUntil(t, conn, chat.EventNewMessage).Data, &msg))
		assert.Equal(t, "hello", msg.Body)
		assert.Equal(t, aID, msg.SenderID)
	}

	send(t, a, EventToggleVideo, map[string]bool{"enabled": true})
	var mc MediaChangedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, EventVideoChanged).Data, &mc))
	assert.Equal(t, aID, mc.ParticipantID)
	assert.True(t, mc.Enabled)
	rec, err := h.store.Get(context.Background(), "r1", aID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.VideoEnabled)

	// toggles need the enabled field
	send(t, a, EventToggleAudio, map[string]string{})
	assert.Equal(t, "bad_payload", readError(t, a).Code)

	send(t, a, string(models.SignalOffer), map[string]interface{}{
		"targetParticipantId": hostID,
		"payload":             map[string]string{"sdp": "v=0"},
	})
	var env models.SignalingEnvelope
	require.NoError(t, json.Unmarshal(readUntil(t, host, string(models.SignalOffer)).Data, &env))
	assert.Equal(t, aID, env.FromParticipantID)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(env.Payload))

	send(t, a, EventStartScreenShare, nil)
	assert.Equal(t, "screen_share_denied", readError(t, a).Code)

	send(t, a, EventSendReaction, ReactionPayload{Emoji: "+1"})
	var rb ReactionBroadcast
	require.NoError(t, json.Unmarshal(readUntil(t, host, EventReaction).Data, &rb))
	assert.Equal(t, "+1", rb.Emoji)
	assert.Equal(t, "Ann", rb.DisplayName)
	send(t, a, EventSendReaction, ReactionPayload{Emoji: "+1"})
	send(t, a, EventSendReaction, ReactionPayload{Emoji: "+1"})
	assert.Equal(t, "rate_limited", readError(t, a).Code)

	send(t, a, "dance", nil)
	e := readError(t, a)
	assert.Equal(t, "unknown_event", e.Code)
	assert.Equal(t, "dance", e.Event)

	send(t, host, EventMuteParticipant, ParticipantPayload{ParticipantID: aID})
	readUntil(t, a, EventForceMute)
	require.NoError(t, json.Unmarshal(readUntil(t, host, EventAudioChanged).Data, &mc))
	assert.Equal(t, aID, mc.ParticipantID)
	assert.False(t, mc.Enabled)

	send(t, a, EventMuteParticipant, ParticipantPayload{ParticipantID: hostID})
	assert.Equal(t, "forbidden", readError(t, a).Code)

	// disconnect closes the session out exactly once
	require.NoError(t, a.Close())
	var pl ParticipantLeftPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, EventParticipantLeft).Data, &pl))
	assert.Equal(t, aID, pl.ParticipantID)
	assert.Equal(t, ReasonDisconnected, pl.Reason)
	waitCount(t, h.store, "r1", 1)
	assert.Eventually(t, func() bool { return len(h.attendance.forParticipant(aID)) == 1 }, 3*time.Second, 20*time.Millisecond)

	send(t, host, EventEndWebinar, nil)
	readUntil(t, host, lifecycle.EventWebinarEnded)
	waitCount(t, h.store, "r1", 0)
	assert.Len(t, h.attendance.forParticipant(hostID), 1)

	send(t, host, EventSendMessage, SendMessagePayload{Message: "anyone?"})
	assert.Equal(t, "not_in_room", readError(t, host).Code)
}

func TestJoinerIsNotAnnouncedToItself(t *testing.T) {
	h := newHarness(t)
	host, _ := h.startLive()

	// the next frame after chat-history is the reply to this, not a participant-joined
	send(t, host, "dance", nil)
	require.NoError(t, host.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg WSMessage
	require.NoError(t, host.ReadJSON(&msg))
	assert.Equal(t, EventError, msg.Event)
}

func TestJoinRacingEndIsWithdrawn(t *testing.T) {
	h := newHarness(t)
	_, hostID := h.startLive()

	// the end commits between the join's state check and its presence write
	h.repo.mu.Lock()
	h.repo.afterRead = func(w *models.Webinar) {
		at := time.Now().UTC()
		w.State = models.StateEnded
		w.EndedAt = &at
	}
	h.repo.mu.Unlock()

	aID := uuid.New().String()
	a := h.dial(h.token(aID, "Ann", models.RoleAudience))
	send(t, a, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})
	assert.Equal(t, "invalid_state", readError(t, a).Code)

	rec, err := h.store.Get(context.Background(), "r1", aID)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, h.attendance.forParticipant(aID))

	send(t, a, EventSendMessage, SendMessagePayload{Message: "hi"})
	assert.Equal(t, "not_in_room", readError(t, a).Code)

	rec, err = h.store.Get(context.Background(), "r1", hostID)
	require.NoError(t, err)
	assert.NotNil(t, rec, "only the racing join is withdrawn")
}

func TestRemoveParticipant(t *testing.T) {
	h := newHarness(t)
	host, _ := h.startLive()

	aID := uuid.New().String()
	a := h.dial(h.token(aID, "Ann", models.RoleAudience))
	h.join(a, "r1")

	send(t, host, EventRemoveParticipant, ParticipantPayload{ParticipantID: aID})
	var rp RemovedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, a, EventRemovedFromRoom).Data, &rp))
	assert.Equal(t, ReasonRemoved, rp.Reason)

	var pl ParticipantLeftPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, EventParticipantLeft).Data, &pl))
	assert.Equal(t, ReasonRemoved, pl.Reason)
	waitCount(t, h.store, "r1", 1)

	send(t, a, EventSendMessage, SendMessagePayload{Message: "still here?"})
	assert.Equal(t, "not_in_room", readError(t, a).Code)

	send(t, host, EventRemoveParticipant, ParticipantPayload{ParticipantID: aID})
	assert.Equal(t, "target_not_found", readError(t, host).Code)

	// the removed participant may come back
	h.join(a, "r1")
	waitCount(t, h.store, "r1", 2)
}

func TestReconnectReplacesSession(t *testing.T) {
	h := newHarness(t)
	h.startLive()

	aID := uuid.New().String()
	tok := h.token(aID, "Ann", models.RoleAudience)
	first := h.dial(tok)
	h.join(first, "r1")

	second := h.dial(tok)
	h.join(second, "r1")

	var rp RemovedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, first, EventRemovedFromRoom).Data, &rp))
	assert.Equal(t, ReasonReplaced, rp.Reason)
	waitCount(t, h.store, "r1", 2)

	// the stale connection closing must not remove the new record
	require.NoError(t, first.Close())
	time.Sleep(100 * time.Millisecond)
	rec, err := h.store.Get(context.Background(), "r1", aID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, h.attendance.forParticipant(aID), 1)

	send(t, second, EventSendMessage, SendMessagePayload{Message: "back"})
	readUntil(t, second, chat.EventNewMessage)
}

func TestReapedRecordIsAnnounced(t *testing.T) {
	h := newHarness(t)
	host, _ := h.startLive()

	// a participant whose instance died an hour ago
	stale := presence.NewStore(h.rdb, nil)
	past := time.Now().Add(-time.Hour)
	stale.SetClock(func() time.Time { return past })
	_, err := stale.Join(context.Background(), "r1", 0, models.PresenceRecord{
		ParticipantID: "ghost",
		ConnectionRef: "dead-instance/c1",
		DisplayName:   "Ghost",
		Role:          models.RoleAudience,
	})
	require.NoError(t, err)

	reaper := presence.NewReaper(h.store, time.Minute, time.Minute, h.gw.OnReap, nil)
	assert.Equal(t, 1, reaper.Sweep(context.Background()))

	var pl ParticipantLeftPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, EventParticipantLeft).Data, &pl))
	assert.Equal(t, "ghost", pl.ParticipantID)
	assert.Equal(t, ReasonExpired, pl.Reason)
	assert.Len(t, h.attendance.forParticipant("ghost"), 1)
}

func TestShutdownClosesConnections(t *testing.T) {
	h := newHarness(t)
	host, hostID := h.startLive()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, h.gw.Shutdown(ctx))

	require.NoError(t, host.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := host.ReadMessage(); err != nil {
			break
		}
	}
	rec, err := h.store.Get(context.Background(), "r1", hostID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
