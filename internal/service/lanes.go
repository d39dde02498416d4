package service

import "sync"

// lanes hands out one mutex per room so that join, end and expiry for the
// same room never interleave. Entries are dropped once no caller holds them.
type lanes struct {
	mu    sync.Mutex
	rooms map[string]*lane
}

type lane struct {
	mu   sync.Mutex
	refs int
}

func newLanes() *lanes {
	return &lanes{rooms: make(map[string]*lane)}
}

// lock blocks until the room's lane is free and returns its release func
func (l *lanes) lock(roomID string) func() {
	l.mu.Lock()
	ln, ok := l.rooms[roomID]
	if !ok {
		ln = &lane{}
		l.rooms[roomID] = ln
	}
	ln.refs++
	l.mu.Unlock()

	ln.mu.Lock()

	return func() {
		ln.mu.Unlock()

		l.mu.Lock()
		ln.refs--
		if ln.refs == 0 {
			delete(l.rooms, roomID)
		}
		l.mu.Unlock()
	}
}
