package models

import "time"

// State is the lifecycle state of a webinar room.
type State string

const (
	StateScheduled State = "scheduled"
	StateLive      State = "live"
	StateEnded     State = "ended"
)

// Next returns the only state reachable from s, or "" when s is terminal.
func (s State) Next() State {
	switch s {
	case StateScheduled:
		return StateLive
	case StateLive:
		return StateEnded
	}
	return ""
}

// ScreenSharePolicy decides who may share their screen in a room.
type ScreenSharePolicy string

const (
	ScreenShareHost       ScreenSharePolicy = "host"
	ScreenSharePresenters ScreenSharePolicy = "presenters"
	ScreenShareEveryone   ScreenSharePolicy = "everyone"
)

// RoomSettings are the per-room permissions stored with the webinar.
type RoomSettings struct {
	ChatAllowed      bool              `json:"chatAllowed"`
	ReactionsAllowed bool              `json:"reactionsAllowed"`
	ScreenShare      ScreenSharePolicy `json:"screenShare"`
	// PublicPreLive lets non-host participants wait in the room before it goes live.
	PublicPreLive bool `json:"publicPreLive"`
}

// DefaultRoomSettings is applied when a webinar row carries no settings.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{ChatAllowed: true, ReactionsAllowed: true, ScreenShare: ScreenShareHost}
}

// Webinar is the authoritative lifecycle record of a room.
type Webinar struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	HostID    string       `json:"hostId"`
	Capacity  int          `json:"capacity"`
	Settings  RoomSettings `json:"settings"`
	State     State        `json:"state"`
	StartedAt *time.Time   `json:"startedAt,omitempty"`
	EndedAt   *time.Time   `json:"endedAt,omitempty"`
}

// IsHost reports whether userID is the recorded host of the webinar.
func (w *Webinar) IsHost(userID string) bool {
	return w != nil && w.HostID != "" && w.HostID == userID
}
