package gateway

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Session is a live channel to one client
type Session interface {
	ID() string
	Identity() string
	Send(payload []byte) error
	Close() error
}

// SessionRegistry maps each identity to its latest live session. It is
// safe for concurrent use by connection handlers and the scheduler.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]Session),
	}
}

// Put registers s under its identity and returns the session it replaced,
// if any. The replaced session is not closed.
func (r *SessionRegistry) Put(s Session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[s.Identity()]
	r.sessions[s.Identity()] = s

	log.Debug().
		Str("identity", s.Identity()).
		Str("connection_id", s.ID()).
		Int("sessions", len(r.sessions)).
		Msg("session registered")

	return prev
}

// Remove drops whatever session is registered for identity
func (r *SessionRegistry) Remove(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[identity]; !ok {
		return false
	}
	delete(r.sessions, identity)
	return true
}

// RemoveSession drops s only if it is still the registered session for its
// identity, so a replaced connection cannot evict its successor.
func (r *SessionRegistry) RemoveSession(s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.Identity()]
	if !ok || current.ID() != s.ID() {
		return false
	}
	delete(r.sessions, s.Identity())

	log.Debug().
		Str("identity", s.Identity()).
		Str("connection_id", s.ID()).
		Int("sessions", len(r.sessions)).
		Msg("session removed")

	return true
}

// Get returns the session registered for identity
func (r *SessionRegistry) Get(identity string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// Snapshot copies the current sessions so fan-out runs without the lock
func (r *SessionRegistry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of registered identities
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Broadcast sends payload to every registered session
func (r *SessionRegistry) Broadcast(payload []byte) (delivered, failed int) {
	return r.Deliver(r.Snapshot(), payload)
}

// Deliver sends payload to each of sessions. A session that fails is removed
// and closed; delivery to the rest continues.
func (r *SessionRegistry) Deliver(sessions []Session, payload []byte) (delivered, failed int) {
	for _, s := range sessions {
		if err := s.Send(payload); err != nil {
			failed++
			log.Warn().
				Err(err).
				Str("identity", s.Identity()).
				Str("connection_id", s.ID()).
				Msg("delivery failed, dropping session")
			r.RemoveSession(s)
			_ = s.Close()
			continue
		}
		delivered++
	}
	return delivered, failed
}

// CloseAll closes and forgets every session
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
