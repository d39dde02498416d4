package models

import "time"

// EventType names a session lifecycle transition
type EventType string

const (
	EventParticipantJoined EventType = "participant-joined"
	EventParticipantLeft   EventType = "participant-left"
	EventSessionActive     EventType = "session-active"
	EventSessionEnded      EventType = "session-ended"
	EventSessionMissed     EventType = "session-missed"
)

// Event describes a lifecycle change for observers such as dashboards.
// It carries identities only, never signaling payloads.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	RoomID string    `json:"room_id"`
	UserID string    `json:"user_id,omitempty"`
	Role   Role      `json:"role,omitempty"`
	At     time.Time `json:"at"`
}
