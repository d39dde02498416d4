package service

import (
	"errors"

	"github.com/navikt/telecoord/internal/models"
)

// Errors surfaced to the originating connection
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTooEarly         = errors.New("session window has not opened yet")
	ErrTooLate          = errors.New("session window has closed")
	ErrRoomFull         = errors.New("room is full")
	ErrSessionClosed    = errors.New("session is closed")
	ErrNotJoined        = errors.New("connection has not joined the room")
	ErrAlreadyJoined    = errors.New("connection has already joined a room")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrRateLimited      = errors.New("too many messages")
	ErrStoreUnavailable = errors.New("appointment store unavailable")
)

// Wire codes carried in error envelopes
const (
	CodeRoomNotFound   = "room-not-found"
	CodeUnauthorized   = "unauthorized"
	CodeTooEarly       = "too-early"
	CodeTooLate        = "too-late"
	CodeRoomFull       = "room-full"
	CodeSessionClosed  = "session-closed"
	CodeInvalidState   = "invalid-state"
	CodeInvalidMessage = "invalid-message"
	CodeRateLimited    = "rate-limited"
	CodeRetry          = "retry"
)

// ErrorCode maps err to the stable code sent to clients.
// Anything unrecognized is reported as a transient failure.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, models.ErrAppointmentNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrTooEarly):
		return CodeTooEarly
	case errors.Is(err, ErrTooLate):
		return CodeTooLate
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrSessionClosed), errors.Is(err, models.ErrInvalidTransition):
		return CodeSessionClosed
	case errors.Is(err, ErrNotJoined), errors.Is(err, ErrAlreadyJoined):
		return CodeInvalidState
	case errors.Is(err, ErrInvalidMessage):
		return CodeInvalidMessage
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	}
	return CodeRetry
}

// Retryable reports whether the client may repeat the request later
func Retryable(err error) bool {
	code := ErrorCode(err)
	return code == CodeTooEarly || code == CodeRetry
}

// ErrorEnvelope builds the error frame for err
func ErrorEnvelope(roomID string, err error) models.Envelope {
	return models.Envelope{
		Type:      models.KindError,
		RoomID:    roomID,
		Code:      ErrorCode(err),
		Message:   err.Error(),
		Retryable: Retryable(err),
	}
}
