package models

import "encoding/json"

// SignalType is the kind of WebRTC negotiation message being relayed.
type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

// Valid reports whether t is a relayable signal type.
func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	}
	return false
}

// SignalingEnvelope is relayed verbatim between two participants; Payload is never inspected.
type SignalingEnvelope struct {
	Type              SignalType      `json:"type"`
	FromParticipantID string          `json:"fromParticipantId"`
	ToParticipantID   string          `json:"toParticipantId"`
	Payload           json.RawMessage `json:"payload"`
	CorrelationID     string          `json:"correlationId,omitempty"`
}
