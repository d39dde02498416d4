package api

import (
	"net/http"

	"github.com/navikt/telecoord/internal/models"
)

// RoomLister returns the live membership of every occupied room
type RoomLister interface {
	Snapshots() []models.RoomSnapshot
}

// RoomStatus is one entry of GET /api/rooms
type RoomStatus struct {
	RoomID  string              `json:"room_id"`
	Members []models.RoomMember `json:"members"`
	Active  bool                `json:"active"`
}

// RoomHandler exposes live room state for operators
type RoomHandler struct {
	rooms RoomLister
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms RoomLister) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// List handles GET /api/rooms
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	snapshots := h.rooms.Snapshots()

	out := make([]RoomStatus, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, RoomStatus{RoomID: s.RoomID, Members: s.Members, Active: s.IsActive()})
	}
	writeJSON(w, http.StatusOK, out)
}
