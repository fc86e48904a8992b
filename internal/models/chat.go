package models

import "time"

// ChatMessage is one immutable entry of a room's chat log.
type ChatMessage struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	Seq        int64     `json:"seq"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	SenderRole Role      `json:"senderRole"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
}
