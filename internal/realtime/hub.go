package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/models"
)

// Publisher sends frames to other instances.
type Publisher interface {
	PublishRoomEvent(ctx context.Context, roomID, exceptConnID, event string, data []byte) error
	PublishDirect(ctx context.Context, instance, connID, event string, data []byte) error
}

// Subscriber receives frames from other instances.
type Subscriber interface {
	SubscribeRoom(roomID string, handler func(exceptConnID, event string, data []byte)) (cancel func(), err error)
	SubscribeInstance(instance string, handler func(connID, event string, data []byte)) (cancel func(), err error)
}

// Hub tracks this instance's connections and which rooms they have joined.
// With Redis configured, room broadcasts are published only; the room subscription
// delivers them to local members, including on the publishing instance.
type Hub struct {
	instance string
	clients  map[string]*Client
	// roomID -> connID -> client
	rooms   map[string]map[string]*Client
	subs    map[string]func() // cancel Redis subscription per room
	// closed when a room's in-flight subscription settles
	pending map[string]chan struct{}
	instSub func()
	mu      sync.RWMutex
	pub     Publisher
	sub     Subscriber
	logger  *zap.Logger
}

// NewHub creates a hub for instance. pub and sub may be nil for a single-process deployment.
func NewHub(instance string, pub Publisher, sub Subscriber, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		instance: instance,
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		pending:  make(map[string]chan struct{}),
		pub:      pub,
		sub:      sub,
		logger:   logger,
	}
}

// Instance returns the id other instances use to address this one.
func (h *Hub) Instance() string { return h.instance }

// Start subscribes to this instance's direct-delivery channel.
func (h *Hub) Start() error {
	if h.sub == nil {
		return nil
	}
	cancel, err := h.sub.SubscribeInstance(h.instance, func(connID, event string, data []byte) {
		if !h.deliverLocal(connID, WSMessage{Event: event, Data: data}) {
			h.logger.Debug("direct delivery target gone", zap.String("conn_id", connID), zap.String("event", event))
		}
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.instSub = cancel
	h.mu.Unlock()
	return nil
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("conn_id", c.ID))
}

// Unregister removes a connection and any room membership it still holds.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	for roomID := range h.rooms {
		h.leaveLocked(c, roomID)
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("conn_id", c.ID))
}

// JoinRoom adds a connection to a room's local fan-out set. Starts the Redis subscription
// for this room if it is the first local member; the hub lock is not held while subscribing.
func (h *Hub) JoinRoom(c *Client, roomID string) error {
	h.mu.Lock()
	for h.rooms[roomID] == nil && h.sub != nil {
		wait, ok := h.pending[roomID]
		if !ok {
			break
		}
		h.mu.Unlock()
		<-wait
		h.mu.Lock()
	}
	if h.rooms[roomID] != nil || h.sub == nil {
		h.addLocked(c, roomID)
		h.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	h.pending[roomID] = done
	h.mu.Unlock()

	cancel, err := h.sub.SubscribeRoom(roomID, func(except, event string, data []byte) {
		h.broadcastLocal(roomID, except, WSMessage{Event: event, Data: data})
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, roomID)
	close(done)
	if err != nil {
		return err
	}
	h.subs[roomID] = cancel
	h.addLocked(c, roomID)
	return nil
}

func (h *Hub) addLocked(c *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.ID] = c
	h.logger.Debug("client joined room", zap.String("conn_id", c.ID), zap.String("room_id", roomID))
}

// LeaveRoom removes a connection from a room. Cancels the Redis subscription when the last
// local member leaves.
func (h *Hub) LeaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	h.leaveLocked(c, roomID)
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(c *Client, roomID string) {
	m, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := m[c.ID]; !ok {
		return
	}
	delete(m, c.ID)
	if len(m) == 0 {
		delete(h.rooms, roomID)
		if cancel, ok := h.subs[roomID]; ok {
			cancel()
			delete(h.subs, roomID)
		}
	}
	h.logger.Debug("client left room", zap.String("conn_id", c.ID), zap.String("room_id", roomID))
}

func encode(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	return json.Marshal(payload)
}

// BroadcastToRoom sends an event to every connection in the room on every instance.
func (h *Hub) BroadcastToRoom(ctx context.Context, roomID, event string, payload interface{}) {
	h.BroadcastExcept(ctx, roomID, "", event, payload)
}

// BroadcastExcept is BroadcastToRoom without the connection exceptConnID.
func (h *Hub) BroadcastExcept(ctx context.Context, roomID, exceptConnID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Error("marshal broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	if h.pub != nil {
		err := h.pub.PublishRoomEvent(ctx, roomID, exceptConnID, event, data)
		if err == nil {
			return
		}
		// local members still get it
		h.logger.Warn("room publish failed", zap.String("room_id", roomID), zap.String("event", event), zap.Error(err))
	}
	h.broadcastLocal(roomID, exceptConnID, WSMessage{Event: event, Data: data})
}

// broadcastLocal sends to this instance's members of the room (local only).
func (h *Hub) broadcastLocal(roomID, exceptConnID string, msg WSMessage) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for id, c := range h.rooms[roomID] {
		if id != exceptConnID {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range members {
		c.deliver(msg)
	}
}

// DeliverToConn sends an event to one connection, locally or through its owning instance.
// An unknown local connection is errs.ErrTargetNotFound; remote delivery cannot be confirmed.
func (h *Hub) DeliverToConn(ctx context.Context, ref models.ConnRef, event string, payload interface{}) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	if ref.Instance == h.instance {
		if !h.deliverLocal(ref.ConnID, WSMessage{Event: event, Data: data}) {
			return errs.ErrTargetNotFound
		}
		return nil
	}
	if h.pub == nil {
		return errs.ErrTargetNotFound
	}
	if err := h.pub.PublishDirect(ctx, ref.Instance, ref.ConnID, event, data); err != nil {
		return fmt.Errorf("direct publish: %w: %w", errs.ErrStoreUnavailable, err)
	}
	return nil
}

func (h *Hub) deliverLocal(connID string, msg WSMessage) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	c.deliver(msg)
	return true
}

// CloseAll closes every local connection; each runs its own disconnect handling.
func (h *Hub) CloseAll() int {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	if h.instSub != nil {
		h.instSub()
		h.instSub = nil
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.closeConn()
	}
	return len(clients)
}
