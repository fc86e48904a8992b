package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/lifecycle"
	"github.com/aura-webinar/live/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval   = 30 * time.Second
	PongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	bufferSize     = 256
)

// inbound is one frame read from the socket, or a decode failure reported back to the sender.
type inbound struct {
	msg WSMessage
	err error
}

// Client is a single WebSocket connection. Its session goroutine (run) is the only
// goroutine that touches the Session or writes to send.
type Client struct {
	ID      string
	gw      *Gateway
	conn    *websocket.Conn
	session *Session
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	frames chan inbound
	// inbox receives room broadcasts and direct deliveries from any goroutine.
	inbox chan WSMessage
	pongs chan struct{}
	send  chan WSMessage
	done  chan struct{}

	closeOnce sync.Once
}

func newClient(gw *Gateway, conn *websocket.Conn, id models.Identity) *Client {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:   connID,
		gw:   gw,
		conn: conn,
		session: &Session{
			Identity: id,
			Ref:      models.ConnRef{Instance: gw.hub.Instance(), ConnID: connID},
		},
		logger: gw.logger.With(zap.String("conn_id", connID), zap.String("participant_id", id.ParticipantID)),
		ctx:    ctx,
		cancel: cancel,
		frames: make(chan inbound),
		inbox:  make(chan WSMessage, bufferSize),
		pongs:  make(chan struct{}, 1),
		send:   make(chan WSMessage, bufferSize),
		done:   make(chan struct{}),
	}
}

// deliver queues a frame from another goroutine. Drops when the connection is not keeping up.
func (c *Client) deliver(msg WSMessage) {
	select {
	case c.inbox <- msg:
	default:
		c.logger.Warn("inbox full, dropping frame", zap.String("event", msg.Event))
	}
}

// emit marshals and queues a frame for the socket. Session goroutine only.
func (c *Client) emit(event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		c.logger.Error("marshal frame", zap.String("event", event), zap.Error(err))
		return
	}
	c.write(WSMessage{Event: event, Data: data})
}

func (c *Client) write(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping frame", zap.String("event", msg.Event))
	}
}

// closeConn forces the socket closed; the session goroutine then disconnects.
func (c *Client) closeConn() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeWait))
	_ = c.conn.Close()
}

func (c *Client) readPump() {
	defer close(c.frames)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		select {
		case c.pongs <- struct{}{}:
		default:
		}
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))

		var in inbound
		in.err = json.Unmarshal(raw, &in.msg)
		select {
		case c.frames <- in:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// run is the session loop: inbound frames, deliveries from other connections and liveness
// refresh are handled one at a time, in order.
func (c *Client) run() {
	defer c.disconnect()

	touch := time.NewTicker(c.gw.cfg.TouchInterval)
	defer touch.Stop()

	for {
		select {
		case in, ok := <-c.frames:
			if !ok {
				return
			}
			c.gw.dispatch(c.ctx, c, in)
		case msg := <-c.inbox:
			c.handleDelivery(msg)
		case <-c.pongs:
			c.touch()
		case <-touch.C:
			c.touch()
		}
	}
}

func (c *Client) touch() {
	s := c.session
	if !s.InRoom() {
		return
	}
	if err := c.gw.presence.Touch(c.ctx, s.RoomID, s.Identity.ParticipantID); err != nil {
		c.logger.Debug("presence touch failed", zap.String("room_id", s.RoomID), zap.Error(err))
	}
}

// handleDelivery applies server-driven effects to the session before forwarding the frame.
func (c *Client) handleDelivery(msg WSMessage) {
	s := c.session
	switch msg.Event {
	case EventForceMute:
		var p ForceMutePayload
		if json.Unmarshal(msg.Data, &p) == nil && p.RoomID == s.RoomID {
			s.Audio = false
		}
	case EventRemovedFromRoom:
		var p RemovedPayload
		if json.Unmarshal(msg.Data, &p) == nil && s.InRoom() && p.RoomID == s.RoomID {
			c.detach()
		}
	case lifecycle.EventWebinarEnded:
		var p lifecycle.TransitionPayload
		if json.Unmarshal(msg.Data, &p) == nil && s.InRoom() && p.RoomID == s.RoomID {
			c.detach()
		}
	}
	c.write(msg)
}

// detach drops the room locally; presence and attendance were handled by whoever removed us.
func (c *Client) detach() {
	c.gw.hub.LeaveRoom(c, c.session.RoomID)
	c.session.exit()
}

// disconnect runs exactly once per connection, however the connection ended.
func (c *Client) disconnect() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if c.session.InRoom() {
			c.gw.leaveRoom(ctx, c, ReasonDisconnected)
		}
		c.gw.hub.Unregister(c)
		close(c.send)
		c.logger.Debug("connection closed")
	})
}
