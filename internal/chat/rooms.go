package chat

import "sync"

// RoomRegistry tracks which connections are joined to which rooms at the
// broadcast level. This is transport-scoped state, distinct from any
// persisted room-participant records: it exists only so broadcasts can be
// scoped without a database round-trip.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]struct{} // roomID -> connIDs
	byConn map[string]map[string]struct{} // connID -> roomIDs
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

func (r *RoomRegistry) Join(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][connID] = struct{}{}

	if r.byConn[connID] == nil {
		r.byConn[connID] = make(map[string]struct{})
	}
	r.byConn[connID][roomID] = struct{}{}
}

func (r *RoomRegistry) Leave(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(connID, roomID)
}

// LeaveAll removes the connection from every room it had joined and returns
// the rooms it left, so the caller can notify remaining members.
func (r *RoomRegistry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for roomID := range r.byConn[connID] {
		left = append(left, roomID)
		r.remove(connID, roomID)
	}
	return left
}

// Members returns the connections currently joined to roomID.
func (r *RoomRegistry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.rooms[roomID]
	out := make([]string, 0, len(conns))
	for connID := range conns {
		out = append(out, connID)
	}
	return out
}

// InRoom reports whether connID is joined to roomID.
func (r *RoomRegistry) InRoom(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][connID]
	return ok
}

// remove expects r.mu held.
func (r *RoomRegistry) remove(connID, roomID string) {
	if set, ok := r.rooms[roomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if set, ok := r.byConn[connID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(r.byConn, connID)
		}
	}
}
