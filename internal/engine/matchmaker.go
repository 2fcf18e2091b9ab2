package engine

import (
	"sync"

	"github.com/versefold/corpse/internal/game"
)

// Matchmaker keeps the FIFO pool of open sessions. Oldest-created first,
// so early creators are not starved. The engine serializes admission and
// registry attach around PickFor, making the two one atomic step.
type Matchmaker struct {
	mu   sync.Mutex
	open []string // session ids, oldest first
}

func NewMatchmaker() *Matchmaker {
	return &Matchmaker{}
}

// Add queues an open session for matchmaking.
func (m *Matchmaker) Add(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.open {
		if id == sessionID {
			return
		}
	}
	m.open = append(m.open, sessionID)
}

// Remove drops a session from the pool, typically because it filled up or
// was abandoned while still open.
func (m *Matchmaker) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range m.open {
		if id == sessionID {
			m.open = append(m.open[:i], m.open[i+1:]...)
			return
		}
	}
}

// PickFor returns the oldest open session with room that p does not already
// belong to. Stale entries (sessions that are no longer open) are pruned as
// they are encountered. ErrNoOpenSession when nothing is available.
func (m *Matchmaker) PickFor(p string, lookup func(id string) *game.Session) (*game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.open[:0]
	var picked *game.Session
	for _, id := range m.open {
		s := lookup(id)
		if s == nil || !s.HasRoom() {
			continue
		}
		kept = append(kept, id)
		if picked != nil {
			continue
		}
		member := false
		for _, rid := range s.Roster() {
			if rid == p {
				member = true
				break
			}
		}
		if !member {
			picked = s
		}
	}
	m.open = kept
	if picked == nil {
		return nil, game.ErrNoOpenSession
	}
	return picked, nil
}
