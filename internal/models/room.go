package models

// RoomMember is a read-only view of an admitted connection
type RoomMember struct {
	UserID       string `json:"user_id"`
	Role         Role   `json:"role"`
	ConnectionID string `json:"connection_id"`
}

// RoomSnapshot is the live membership of a room at a point in time
type RoomSnapshot struct {
	RoomID  string       `json:"room_id"`
	Members []RoomMember `json:"members"`
}

// IsActive returns true when both parties are connected
func (r RoomSnapshot) IsActive() bool {
	return len(r.Members) == 2
}
