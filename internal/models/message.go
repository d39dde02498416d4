package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// MessageKind identifies a signaling message on the wire
type MessageKind string

// Client to server
const (
	KindJoinRoom    MessageKind = "join-room"
	KindLeaveRoom   MessageKind = "leave-room"
	KindSendMessage MessageKind = "send-message"
	KindEndSession  MessageKind = "end-session"
)

// Relayed in both directions
const (
	KindOffer        MessageKind = "offer"
	KindAnswer       MessageKind = "answer"
	KindICECandidate MessageKind = "ice-candidate"
)

// Server to client
const (
	KindRoomJoined       MessageKind = "room-joined"
	KindUserConnected    MessageKind = "user-connected"
	KindUserDisconnected MessageKind = "user-disconnected"
	KindReceiveMessage   MessageKind = "receive-message"
	KindSessionEnded     MessageKind = "session-ended"
	KindError            MessageKind = "error"
)

// IsSignal reports whether the kind is an opaque negotiation message
func (k MessageKind) IsSignal() bool {
	return k == KindOffer || k == KindAnswer || k == KindICECandidate
}

// Envelope is the JSON frame exchanged over the signaling connection.
// Payload is never interpreted by the server.
type Envelope struct {
	Type      MessageKind     `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Role      Role            `json:"role,omitempty"`
	Peers     []string        `json:"peers,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	EndedAt   *time.Time      `json:"endedAt,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
}

var errInvalidPayload = errors.New("payload is not valid JSON")

// Encode renders the frame for the wire. Payload bytes are written exactly as
// they were received; json.Marshal would compact and HTML-escape them.
func (e Envelope) Encode() ([]byte, error) {
	payload := e.Payload
	e.Payload = nil

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	head := bytes.TrimRight(buf.Bytes(), "\n")
	if len(payload) == 0 {
		return head, nil
	}
	if !json.Valid(payload) {
		return nil, errInvalidPayload
	}

	// head always ends with the object's closing brace
	frame := make([]byte, 0, len(head)+len(payload)+len(`,"payload":`))
	frame = append(frame, head[:len(head)-1]...)
	frame = append(frame, `,"payload":`...)
	frame = append(frame, payload...)
	return append(frame, '}'), nil
}
