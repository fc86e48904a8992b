package realtime

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/aura-webinar/live/internal/models"
)

// Client to server events.
const (
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventToggleAudio       = "toggle-audio"
	EventToggleVideo       = "toggle-video"
	EventStartScreenShare  = "start-screen-share"
	EventStopScreenShare   = "stop-screen-share"
	EventRaiseHand         = "raise-hand"
	EventLowerHand         = "lower-hand"
	EventSendMessage       = "send-message"
	EventSendReaction      = "send-reaction"
	EventMuteParticipant   = "mute-participant"
	EventRemoveParticipant = "remove-participant"
	EventStartWebinar      = "start-webinar"
	EventEndWebinar        = "end-webinar"
)

// Server to client events. offer, answer and ice-candidate are forwarded under their own
// names; new-message and webinar-started/ended are emitted by the chat and lifecycle packages.
const (
	EventRoomJoined         = "room-joined"
	EventRoomLeft           = "room-left"
	EventChatHistory        = "chat-history"
	EventParticipantJoined  = "participant-joined"
	EventParticipantLeft    = "participant-left"
	EventAudioChanged       = "participant-audio-changed"
	EventVideoChanged       = "participant-video-changed"
	EventScreenShareStarted = "screen-share-started"
	EventScreenShareStopped = "screen-share-stopped"
	EventHandRaised         = "hand-raised"
	EventHandLowered        = "hand-lowered"
	EventReaction           = "reaction"
	EventForceMute          = "force-mute"
	EventRemovedFromRoom    = "removed-from-room"
	EventError              = "error"
)

// Reasons carried by participant-left and removed-from-room.
const (
	ReasonLeft         = "left"
	ReasonDisconnected = "disconnected"
	ReasonRemoved      = "removed"
	ReasonReplaced     = "replaced"
	ReasonExpired      = "expired"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is the body of join-room.
type JoinRoomPayload struct {
	RoomID string `json:"roomId" binding:"required,max=128"`
}

// RoomPayload is the optional body of start-webinar and end-webinar; the session's room is
// used when RoomID is empty.
type RoomPayload struct {
	RoomID string `json:"roomId" binding:"omitempty,max=128"`
}

// TogglePayload is the body of toggle-audio and toggle-video.
type TogglePayload struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SendMessagePayload is the body of send-message.
type SendMessagePayload struct {
	Message string `json:"message"`
}

// ReactionPayload is the body of send-reaction.
type ReactionPayload struct {
	Emoji string `json:"emoji" binding:"required,max=32"`
}

// SignalPayload is the body of offer, answer and ice-candidate.
type SignalPayload struct {
	TargetParticipantID string          `json:"targetParticipantId" binding:"required"`
	Payload             json.RawMessage `json:"payload" binding:"required"`
	CorrelationID       string          `json:"correlationId" binding:"omitempty,max=128"`
}

// ParticipantPayload is the body of mute-participant and remove-participant.
type ParticipantPayload struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

// RoomJoinedPayload answers a successful join-room.
type RoomJoinedPayload struct {
	RoomID       string                  `json:"roomId"`
	Self         models.PresenceRecord   `json:"self"`
	Participants []models.PresenceRecord `json:"participants"`
	State        models.State            `json:"state"`
	Capacity     int                     `json:"capacity"`
	Settings     models.RoomSettings     `json:"settings"`
	ICEServers   []webrtc.ICEServer      `json:"iceServers"`
}

// RoomLeftPayload acknowledges leave-room.
type RoomLeftPayload struct {
	RoomID string `json:"roomId"`
}

// ChatHistoryPayload carries the backlog sent to a joiner, oldest first.
type ChatHistoryPayload struct {
	RoomID   string               `json:"roomId"`
	Messages []models.ChatMessage `json:"messages"`
}

// ParticipantJoinedPayload is broadcast when a participant joins.
type ParticipantJoinedPayload struct {
	RoomID      string                `json:"roomId"`
	Participant models.PresenceRecord `json:"participant"`
}

// ParticipantLeftPayload is broadcast when a participant leaves for any reason.
type ParticipantLeftPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	Reason        string `json:"reason"`
}

// MediaChangedPayload is broadcast for audio and video toggles.
type MediaChangedPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	Enabled       bool   `json:"enabled"`
}

// ParticipantEventPayload is broadcast for screen-share and hand events.
type ParticipantEventPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

// ReactionBroadcast is broadcast for an accepted reaction.
type ReactionBroadcast struct {
	RoomID        string    `json:"roomId"`
	ParticipantID string    `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	Emoji         string    `json:"emoji"`
	At            time.Time `json:"at"`
}

// ForceMutePayload tells a participant the host muted them.
type ForceMutePayload struct {
	RoomID string `json:"roomId"`
	By     string `json:"by"`
}

// RemovedPayload tells a connection it no longer belongs to the room.
type RemovedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// ErrorPayload reports a rejected event to its sender.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}
