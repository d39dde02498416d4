package service

import (
	"sort"
	"sync"

	"github.com/navikt/telecoord/internal/models"
)

// MaxMembers is the number of distinct identities a room admits
const MaxMembers = 2

// Conn is the transport handle the coordinator talks to.
// Send must not block; Close must be safe to call more than once.
type Conn interface {
	ID() string
	Send(env models.Envelope) error
	Close()
}

// Member is a connection admitted to a room
type Member struct {
	Conn   Conn
	RoomID string
	UserID string
	Role   models.Role
}

// Registry maps rooms to their live connections. It owns no persistent state.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[string]*Member // room ID -> user ID -> member
	conns map[string]*Member            // connection ID -> member
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]*Member),
		conns: make(map[string]*Member),
	}
}

// Admit adds m to its room. A member with the same identity is replaced and
// returned as evicted; peers are the other members after admission.
func (r *Registry) Admit(m *Member) (evicted *Member, peers []*Member, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, joined := r.conns[m.Conn.ID()]; joined {
		return nil, nil, ErrAlreadyJoined
	}

	members := r.rooms[m.RoomID]
	if members == nil {
		members = make(map[string]*Member, MaxMembers)
		r.rooms[m.RoomID] = members
	}

	if prev, ok := members[m.UserID]; ok {
		evicted = prev
		delete(r.conns, prev.Conn.ID())
	} else if len(members) >= MaxMembers {
		return nil, nil, ErrRoomFull
	}

	members[m.UserID] = m
	r.conns[m.Conn.ID()] = m

	for _, p := range members {
		if p != m {
			peers = append(peers, p)
		}
	}
	return evicted, peers, nil
}

// Lookup returns the member registered for a connection
func (r *Registry) Lookup(connID string) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[connID]
	return m, ok
}

// MembersOf returns the room's members except the given connection
func (r *Registry) MembersOf(roomID, excludeConnID string) []*Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Member
	for _, m := range r.rooms[roomID] {
		if m.Conn.ID() != excludeConnID {
			out = append(out, m)
		}
	}
	return out
}

// Remove deregisters a connection. It is a no-op for unknown or evicted connections.
func (r *Registry) Remove(connID string) (removed *Member, remaining []*Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[connID]
	if !ok {
		return nil, nil
	}
	delete(r.conns, connID)

	members := r.rooms[m.RoomID]
	delete(members, m.UserID)
	if len(members) == 0 {
		delete(r.rooms, m.RoomID)
	}
	for _, p := range members {
		remaining = append(remaining, p)
	}
	return m, remaining
}

// Clear removes every member of a room and returns them
func (r *Registry) Clear(roomID string) []*Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Member
	for _, m := range r.rooms[roomID] {
		delete(r.conns, m.Conn.ID())
		out = append(out, m)
	}
	delete(r.rooms, roomID)
	return out
}

// Size returns the number of members in a room
func (r *Registry) Size(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// Snapshots returns the current membership of every non-empty room, ordered by room ID
func (r *Registry) Snapshots() []models.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.RoomSnapshot, 0, len(r.rooms))
	for roomID, members := range r.rooms {
		snap := models.RoomSnapshot{RoomID: roomID}
		for _, m := range members {
			snap.Members = append(snap.Members, models.RoomMember{
				UserID:       m.UserID,
				Role:         m.Role,
				ConnectionID: m.Conn.ID(),
			})
		}
		sort.Slice(snap.Members, func(i, j int) bool { return snap.Members[i].UserID < snap.Members[j].UserID })
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
