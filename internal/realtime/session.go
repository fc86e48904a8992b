package realtime

import (
	"time"

	"github.com/aura-webinar/live/internal/models"
)

// Session is the per-connection state every handler receives. It is owned by the
// connection's session goroutine and never shared.
type Session struct {
	Identity models.Identity
	Ref      models.ConnRef
	RoomID   string
	JoinedAt time.Time

	Audio  bool
	Video  bool
	Screen bool
	Hand   bool
}

// InRoom reports whether the connection currently holds a room.
func (s *Session) InRoom() bool { return s.RoomID != "" }

func (s *Session) enter(roomID string, at time.Time) {
	s.RoomID = roomID
	s.JoinedAt = at
	s.Audio, s.Video, s.Screen, s.Hand = false, false, false, false
}

func (s *Session) exit() {
	s.RoomID = ""
	s.JoinedAt = time.Time{}
	s.Audio, s.Video, s.Screen, s.Hand = false, false, false, false
}

// record is the presence projection of the session.
func (s *Session) record() models.PresenceRecord {
	return models.PresenceRecord{
		ParticipantID: s.Identity.ParticipantID,
		ConnectionRef: s.Ref.String(),
		DisplayName:   s.Identity.DisplayName,
		Role:          s.Identity.Role,
		JoinedAt:      s.JoinedAt,
		AudioEnabled:  s.Audio,
		VideoEnabled:  s.Video,
		ScreenSharing: s.Screen,
		HandRaised:    s.Hand,
	}
}

// attendance closes out the session at leftAt.
func (s *Session) attendance(leftAt time.Time) models.Attendance {
	return models.Attendance{
		ParticipantID: s.Identity.ParticipantID,
		RoomID:        s.RoomID,
		JoinedAt:      s.JoinedAt,
		LeftAt:        leftAt,
	}
}
