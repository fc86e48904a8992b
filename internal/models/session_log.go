package models

import "time"

// Attendance is the close-out of one participant session in a room.
type Attendance struct {
	ParticipantID string    `json:"participant_id"`
	RoomID        string    `json:"room_id"`
	JoinedAt      time.Time `json:"joined_at"`
	LeftAt        time.Time `json:"left_at"`
}

// WatchSeconds is the whole-second duration of the session, never negative.
func (a Attendance) WatchSeconds() int64 {
	d := a.LeftAt.Sub(a.JoinedAt)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
