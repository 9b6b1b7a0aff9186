package session

import (
	"sync"

	"github.com/example/trip-tracking/internal/models"
)

// Rooms indexes this instance's sessions by trip id so that "is a driver
// already here" and fan-out target lookups are O(1)/O(members) instead of a
// scan over every socket. Only local membership is tracked; the union across
// instances is never materialized anywhere.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	members map[string]*Session
	drivers int
	users   int
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*room)}
}

// Join adds an admitted session to its trip's room.
func (r *Rooms) Join(s *Session) {
	role, tripID := s.Binding()
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[tripID]
	if !ok {
		rm = &room{members: make(map[string]*Session)}
		r.rooms[tripID] = rm
	}
	if _, ok := rm.members[s.ConnID]; ok {
		return
	}
	rm.members[s.ConnID] = s
	switch role {
	case models.RoleDriver:
		rm.drivers++
	case models.RoleUser:
		rm.users++
	}
}

// Leave removes a session from its trip's room and reports how many sessions
// of the same role remain locally for that trip. Call it before the binding is
// cleared; it needs the trip and role to find the room.
func (r *Rooms) Leave(s *Session) (remainingSameRole int) {
	role, tripID := s.Binding()
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[tripID]
	if !ok {
		return 0
	}
	if _, ok := rm.members[s.ConnID]; !ok {
		return r.countLocked(rm, role)
	}
	delete(rm.members, s.ConnID)
	switch role {
	case models.RoleDriver:
		rm.drivers--
	case models.RoleUser:
		rm.users--
	}
	remaining := r.countLocked(rm, role)
	if len(rm.members) == 0 {
		delete(r.rooms, tripID)
	}
	return remaining
}

func (r *Rooms) countLocked(rm *room, role models.Role) int {
	switch role {
	case models.RoleDriver:
		return rm.drivers
	case models.RoleUser:
		return rm.users
	}
	return 0
}

// HasDriver reports whether a driver-role session is locally present for the
// trip. This only sees this instance's sockets; a driver connected through
// another instance is invisible here.
func (r *Rooms) HasDriver(tripID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[tripID]
	return ok && rm.drivers > 0
}

// Members returns a snapshot of the local sessions in the trip's room.
func (r *Rooms) Members(tripID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[tripID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(rm.members))
	for _, s := range rm.members {
		out = append(out, s)
	}
	return out
}
