// Package session holds per-connection ephemeral state and the per-instance
// room index. Nothing here is shared across processes; cross-instance
// visibility comes from the relay, not from this package.
package session

import (
	"sync"

	"github.com/example/trip-tracking/internal/events"
	"github.com/example/trip-tracking/internal/models"
)

// Session is the ephemeral state of one live connection. The role/trip binding
// is written by the connection's own handler at admission and cleared again on
// detach, while the relay listener goroutine reads it during fan-out, so the
// binding lives behind the session's own mutex.
type Session struct {
	ConnID string

	mu     sync.Mutex
	role   models.Role
	tripID string

	sender events.Sender
}

// Send emits an outbound event on this session's connection.
func (s *Session) Send(event string, data any) error {
	return s.sender.Send(event, data)
}

// Binding returns the session's role and trip as one consistent pair.
func (s *Session) Binding() (models.Role, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role, s.tripID
}

// Role returns the role set at admission, or the empty role before it.
func (s *Session) Role() models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// TripID returns the trip the session is admitted to, or "".
func (s *Session) TripID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripID
}

// Joined reports whether the session has been admitted into a room.
func (s *Session) Joined() bool { return s.TripID() != "" }

// Registry is the per-instance store of live sessions, keyed by connection id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a session for a new connection with role and trip unset.
func (r *Registry) Create(connID string, sender events.Sender) *Session {
	s := &Session{ConnID: connID, sender: sender}
	r.mu.Lock()
	r.sessions[connID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session for a connection id, or nil.
func (r *Registry) Get(connID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[connID]
}

// Bind sets the role/trip binding established at room admission.
func (r *Registry) Bind(s *Session, role models.Role, tripID string) {
	s.mu.Lock()
	s.role = role
	s.tripID = tripID
	s.mu.Unlock()
}

// Destroy drops the session for a connection id.
func (r *Registry) Destroy(connID string) {
	r.mu.Lock()
	delete(r.sessions, connID)
	r.mu.Unlock()
}

// Len returns the number of live sessions on this instance.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
