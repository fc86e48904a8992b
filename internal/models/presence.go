package models

import (
	"strings"
	"time"
)

// ConnRef addresses one physical connection: the server instance that owns it and its id there.
type ConnRef struct {
	Instance string
	ConnID   string
}

// String encodes the ref as "instance/conn".
func (r ConnRef) String() string {
	return r.Instance + "/" + r.ConnID
}

// ParseConnRef decodes a ref produced by ConnRef.String.
func ParseConnRef(s string) (ConnRef, bool) {
	inst, conn, ok := strings.Cut(s, "/")
	if !ok || inst == "" || conn == "" {
		return ConnRef{}, false
	}
	return ConnRef{Instance: inst, ConnID: conn}, true
}

// PresenceRecord is the shared-store projection of a connection joined to a room.
type PresenceRecord struct {
	ParticipantID string    `json:"participantId"`
	ConnectionRef string    `json:"-"`
	DisplayName   string    `json:"displayName"`
	Role          Role      `json:"role"`
	JoinedAt      time.Time `json:"joinedAt"`
	AudioEnabled  bool      `json:"audioEnabled"`
	VideoEnabled  bool      `json:"videoEnabled"`
	ScreenSharing bool      `json:"screenSharing"`
	HandRaised    bool      `json:"handRaised"`
}

// PresencePatch carries the fields a toggle event changes; nil fields are left alone.
type PresencePatch struct {
	AudioEnabled  *bool
	VideoEnabled  *bool
	ScreenSharing *bool
	HandRaised    *bool
}

// Empty reports whether the patch changes nothing.
func (p PresencePatch) Empty() bool {
	return p.AudioEnabled == nil && p.VideoEnabled == nil && p.ScreenSharing == nil && p.HandRaised == nil
}

// Bool returns a pointer to v, for building patches.
func Bool(v bool) *bool { return &v }
