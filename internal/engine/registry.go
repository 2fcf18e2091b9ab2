package engine

import (
	"sync"

	"github.com/versefold/corpse/internal/game"
)

// Registry is the in-memory view of all live sessions: by id, and by
// participant for the "my active session" lookup. It enforces the global
// invariant that a participant belongs to at most one non-terminal session
// at a time. A participant's index entry survives their session turning
// terminal so a status query can still report Completed or Abandoned; the
// entry is replaced the next time they start or join a game.
type Registry struct {
	mu            sync.RWMutex
	sessions      map[string]*game.Session
	byParticipant map[string]string // participant id -> session id
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:      make(map[string]*game.Session),
		byParticipant: make(map[string]string),
	}
}

// Put adds a session to the registry.
func (r *Registry) Put(s *game.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// FindByID returns the session or nil.
func (r *Registry) FindByID(id string) *game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// FindActiveFor returns the session currently indexed for the participant,
// which may already be terminal. ErrNotInGame when there is none.
func (r *Registry) FindActiveFor(p string) (*game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byParticipant[p]
	if !ok {
		return nil, game.ErrNotInGame
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, game.ErrNotInGame
	}
	return s, nil
}

// Attach marks the participant as playing in the given session. It fails
// with ErrAlreadyInGame when the participant is already indexed to a
// different session that is still non-terminal.
func (r *Registry) Attach(p, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byParticipant[p]; ok && prev != sessionID {
		if s, ok := r.sessions[prev]; ok && !s.State().Terminal() {
			return game.ErrAlreadyInGame
		}
	}
	r.byParticipant[p] = sessionID
	return nil
}

// Detach drops the participant's index entry if it points at sessionID.
func (r *Registry) Detach(p, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byParticipant[p] == sessionID {
		delete(r.byParticipant, p)
	}
}

// Remove drops a session and every index entry pointing at it.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	for p, id := range r.byParticipant {
		if id == sessionID {
			delete(r.byParticipant, p)
		}
	}
}

// Sessions returns all registered sessions in no particular order.
func (r *Registry) Sessions() []*game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*game.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
