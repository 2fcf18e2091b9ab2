package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PersistFunc commits a session snapshot to durable storage. Session
// operations call it while still holding the session lock, so the durable
// write and the in-memory transition form one atomic step: if the write
// fails, the in-memory mutation is rolled back and the operation errors.
type PersistFunc func(Snapshot) error

// Session is the state machine for one poem. All mutation happens under
// the session's own lock, so two near-simultaneous actions serialize and
// the loser observes the post-mutation state.
type Session struct {
	id        string
	createdAt time.Time
	updatedAt time.Time
	config    Config

	roster []string
	state  State
	active string // set iff state == StateAwaiting
	poem   Poem

	mu sync.Mutex
}

// NewSession creates an Open session with the creator as the first roster
// member. When opening words are given they are validated and recorded as
// contribution 0, so the first turn after the roster fills belongs to the
// next participant in join order.
func NewSession(cfg Config, creator string, opening string) (*Session, error) {
	cfg = cfg.WithDefaults()
	now := time.Now().UTC()
	s := &Session{
		id:        uuid.NewString(),
		createdAt: now,
		updatedAt: now,
		config:    cfg,
		roster:    []string{creator},
		state:     StateOpen,
	}
	if opening != "" {
		words, err := ParseWords(opening, cfg.WordsPerTurn)
		if err != nil {
			return nil, err
		}
		s.poem.append(Contribution{Author: creator, Words: words, Index: 0, CreatedAt: now})
	}
	return s, nil
}

// FromSnapshot rebuilds a session loaded from durable storage.
func FromSnapshot(snap Snapshot) *Session {
	s := &Session{
		id:        snap.ID,
		createdAt: snap.CreatedAt,
		updatedAt: snap.UpdatedAt,
		config:    snap.Config.WithDefaults(),
		roster:    append([]string(nil), snap.Roster...),
		state:     snap.State,
		active:    snap.ActiveWriter,
	}
	for _, c := range snap.Contributions {
		s.poem.append(c)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Roster returns the join-ordered participant ids.
func (s *Session) Roster() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.roster...)
}

func (s *Session) Config() Config { return s.config }

// HasRoom reports whether the session is still open for joiners.
func (s *Session) HasRoom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen && len(s.roster) < s.config.Players
}

// Snapshot captures the durable state under the lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:            s.id,
		Config:        s.config,
		Roster:        append([]string(nil), s.roster...),
		State:         s.state,
		ActiveWriter:  s.active,
		Contributions: s.poem.Contributions(),
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
}

func (s *Session) restoreLocked(snap Snapshot) {
	s.config = snap.Config
	s.roster = append([]string(nil), snap.Roster...)
	s.state = snap.State
	s.active = snap.ActiveWriter
	s.updatedAt = snap.UpdatedAt
	s.poem = Poem{}
	for _, c := range snap.Contributions {
		s.poem.append(c)
	}
}

// commit persists the mutated session, rolling back to prev on failure.
func (s *Session) commit(prev Snapshot, persist PersistFunc) error {
	if persist == nil {
		return nil
	}
	if err := persist(s.snapshotLocked()); err != nil {
		s.restoreLocked(prev)
		return err
	}
	return nil
}

func (s *Session) member(p string) bool {
	for _, id := range s.roster {
		if id == p {
			return true
		}
	}
	return false
}

// turnOwner is the participant whose turn the contribution at index turn
// is: strict round-robin over the roster in join order.
func (s *Session) turnOwner(turn int) string {
	return s.roster[turn%len(s.roster)]
}

// Join appends a participant to the roster. Once the roster reaches the
// configured size the session leaves Open and the first turn is prompted.
func (s *Session) Join(p string, persist PersistFunc) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return nil, ErrSessionFinished
	}
	if s.member(p) {
		return nil, ErrAlreadyJoined
	}
	if s.state != StateOpen || len(s.roster) >= s.config.Players {
		return nil, ErrSessionFull
	}

	prev := s.snapshotLocked()
	s.roster = append(s.roster, p)
	s.updatedAt = time.Now().UTC()
	if len(s.roster) == s.config.Players {
		s.state = StateAwaiting
		s.active = s.turnOwner(s.poem.Len())
	}
	if err := s.commit(prev, persist); err != nil {
		return nil, err
	}

	var notes []Notification
	if s.state == StateAwaiting {
		notes = append(notes, Notification{
			To:        s.active,
			Kind:      NoteYourTurn,
			SessionID: s.id,
			Context:   s.poem.Window(s.config.WindowSize),
			Turn:      s.poem.Len(),
			MaxTurns:  s.config.MaxTurns,
		})
	}
	return notes, nil
}

// Submit validates and records one turn's words from p, then either prompts
// the next writer or completes the poem at the turn limit.
func (s *Session) Submit(p string, raw string, persist PersistFunc) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return nil, ErrSessionFinished
	}
	if !s.member(p) {
		return nil, ErrNotInGame
	}
	if s.state != StateAwaiting || s.active != p {
		return nil, ErrNotYourTurn
	}

	words, err := ParseWords(raw, s.config.WordsPerTurn)
	if err != nil {
		return nil, err
	}

	prev := s.snapshotLocked()
	now := time.Now().UTC()
	s.poem.append(Contribution{Author: p, Words: words, Index: s.poem.Len(), CreatedAt: now})
	s.updatedAt = now
	if s.config.MaxTurns > 0 && s.poem.Len() >= s.config.MaxTurns {
		s.state = StateCompleted
		s.active = ""
	} else {
		s.active = s.turnOwner(s.poem.Len())
	}
	if err := s.commit(prev, persist); err != nil {
		return nil, err
	}

	notes := []Notification{{
		To:        p,
		Kind:      NoteTurnAccepted,
		SessionID: s.id,
		Echo:      words,
		Turn:      s.poem.Len(),
		MaxTurns:  s.config.MaxTurns,
	}}
	if s.state == StateCompleted {
		full := s.poem.Render()
		credits := s.poem.Authors()
		for _, member := range s.roster {
			notes = append(notes, Notification{
				To:        member,
				Kind:      NoteGameCompleted,
				SessionID: s.id,
				FullText:  full,
				Credits:   credits,
			})
		}
	} else {
		notes = append(notes, Notification{
			To:        s.active,
			Kind:      NoteYourTurn,
			SessionID: s.id,
			Context:   s.poem.Window(s.config.WindowSize),
			Turn:      s.poem.Len(),
			MaxTurns:  s.config.MaxTurns,
		})
	}
	return notes, nil
}

// Abandon ends the game for everyone. Any roster member may abandon from
// any non-terminal state.
func (s *Session) Abandon(p string, persist PersistFunc) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.member(p) {
		return nil, ErrNotInGame
	}
	if s.state.Terminal() {
		return nil, ErrSessionFinished
	}

	prev := s.snapshotLocked()
	s.state = StateAbandoned
	s.active = ""
	s.updatedAt = time.Now().UTC()
	if err := s.commit(prev, persist); err != nil {
		return nil, err
	}

	var notes []Notification
	for _, member := range s.roster {
		if member == p {
			continue
		}
		notes = append(notes, Notification{To: member, Kind: NoteGameAbandoned, SessionID: s.id})
	}
	return notes, nil
}

// Status is a read-only view for one roster member. It never reveals more
// of the poem than the participant's visibility window, except for the full
// text of a completed poem, which is no longer hidden from anyone.
func (s *Session) Status(p string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.member(p) {
		return Status{}, ErrNotInGame
	}
	st := Status{
		SessionID:    s.id,
		State:        s.state,
		Turn:         s.poem.Len(),
		MaxTurns:     s.config.MaxTurns,
		ActiveWriter: s.active,
		YourTurn:     s.state == StateAwaiting && s.active == p,
		Window:       s.poem.Window(s.config.WindowSize),
	}
	if s.state == StateCompleted {
		st.FullText = s.poem.Render()
	}
	return st, nil
}

// ExpireIfIdle abandons the session when it has been awaiting a turn for
// longer than maxIdle. Idle expiry is an opt-in policy layered on top of
// the engine, not part of its correctness contract.
func (s *Session) ExpireIfIdle(maxIdle time.Duration, now time.Time, persist PersistFunc) ([]Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() || now.Sub(s.updatedAt) <= maxIdle {
		return nil, false, nil
	}

	prev := s.snapshotLocked()
	s.state = StateAbandoned
	s.active = ""
	s.updatedAt = now
	if err := s.commit(prev, persist); err != nil {
		return nil, false, err
	}

	notes := make([]Notification, 0, len(s.roster))
	for _, member := range s.roster {
		notes = append(notes, Notification{To: member, Kind: NoteGameAbandoned, SessionID: s.id})
	}
	return notes, true, nil
}
