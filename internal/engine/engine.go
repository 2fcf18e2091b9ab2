// Package engine dispatches inbound participant actions to game sessions
// and fans the resulting notifications out to the messaging layer.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/versefold/corpse/internal/game"
	"github.com/versefold/corpse/internal/storage"
)

// Engine owns the registry, the matchmaking pool, and the durable store.
// Every inbound action is a short-lived synchronous unit of work; between
// actions a session simply sits in AwaitingTurn as passive state, however
// long the humans take.
type Engine struct {
	// mu serializes matchmaking and registry attachment so that admitting
	// a participant to a session and indexing them as "in that game" is
	// one atomic step.
	mu sync.Mutex

	reg      *Registry
	mm       *Matchmaker
	store    storage.Store
	notifier game.Notifier
	defaults game.Config
}

func New(store storage.Store, notifier game.Notifier, defaults game.Config) *Engine {
	return &Engine{
		reg:      NewRegistry(),
		mm:       NewMatchmaker(),
		store:    store,
		notifier: notifier,
		defaults: defaults.WithDefaults(),
	}
}

// Load rebuilds the registry and matchmaking pool from durable storage.
// Called once at startup before any action is accepted.
func (e *Engine) Load(ctx context.Context) (int, error) {
	snaps, err := e.store.LoadActive(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load sessions")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, snap := range snaps {
		s := game.FromSnapshot(snap)
		e.reg.Put(s)
		for _, p := range s.Roster() {
			if err := e.reg.Attach(p, s.ID()); err != nil {
				log.Warn().Str("session", s.ID()).Str("participant", p).Err(err).Msg("skipping stale participant index")
			}
		}
		if s.HasRoom() {
			e.mm.Add(s.ID())
		}
	}
	return len(snaps), nil
}

// Start creates a new open session with the creator as first roster member.
// Opening words are optional; when given they become contribution 0.
func (e *Engine) Start(ctx context.Context, creator string, cfg game.Config, opening string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, err := e.reg.FindActiveFor(creator); err == nil && !s.State().Terminal() {
		return "", e.reject(creator, s.ID(), game.ErrAlreadyInGame)
	}

	if cfg == (game.Config{}) {
		cfg = e.defaults
	}
	s, err := game.NewSession(cfg, creator, opening)
	if err != nil {
		return "", e.reject(creator, "", err)
	}
	if err := e.store.SaveSession(ctx, s.Snapshot()); err != nil {
		return "", errors.Wrap(err, "persist new session")
	}

	e.reg.Put(s)
	if err := e.reg.Attach(creator, s.ID()); err != nil {
		return "", err
	}
	e.mm.Add(s.ID())
	log.Info().Str("session", s.ID()).Str("creator", creator).Msg("session started")
	return s.ID(), nil
}

// Join assigns the participant to the oldest open session with room.
func (e *Engine) Join(ctx context.Context, p string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, err := e.reg.FindActiveFor(p); err == nil && !s.State().Terminal() {
		return "", e.reject(p, s.ID(), game.ErrAlreadyInGame)
	}

	for {
		s, err := e.mm.PickFor(p, e.reg.FindByID)
		if err != nil {
			return "", e.reject(p, "", err)
		}

		notes, err := s.Join(p, e.persist(ctx))
		switch {
		case err == nil:
			if err := e.reg.Attach(p, s.ID()); err != nil {
				return "", err
			}
			if !s.HasRoom() {
				e.mm.Remove(s.ID())
			}
			log.Info().Str("session", s.ID()).Str("participant", p).Msg("participant joined")
			e.dispatch(notes)
			return s.ID(), nil
		case errors.Is(err, game.ErrSessionFull) || errors.Is(err, game.ErrSessionFinished):
			// lost a race with an abandon or a fill; drop it and try the
			// next open session
			e.mm.Remove(s.ID())
		default:
			if kind := game.Kind(err); kind != "" {
				return "", e.reject(p, s.ID(), err)
			}
			return "", errors.Wrap(err, "join session")
		}
	}
}

// Submit records the participant's turn in their active session.
func (e *Engine) Submit(ctx context.Context, p string, raw string) error {
	s, err := e.reg.FindActiveFor(p)
	if err != nil {
		return e.reject(p, "", err)
	}

	notes, err := s.Submit(p, raw, e.persist(ctx))
	if err != nil {
		if kind := game.Kind(err); kind != "" {
			return e.reject(p, s.ID(), err)
		}
		return errors.Wrap(err, "submit turn")
	}

	if s.State() == game.StateCompleted {
		log.Info().Str("session", s.ID()).Msg("poem completed")
	}
	e.dispatch(notes)
	return nil
}

// Abandon ends the participant's active session for everyone in it.
func (e *Engine) Abandon(ctx context.Context, p string) error {
	s, err := e.reg.FindActiveFor(p)
	if err != nil {
		return e.reject(p, "", err)
	}

	notes, err := s.Abandon(p, e.persist(ctx))
	if err != nil {
		if kind := game.Kind(err); kind != "" {
			return e.reject(p, s.ID(), err)
		}
		return errors.Wrap(err, "abandon session")
	}

	e.mm.Remove(s.ID())
	log.Info().Str("session", s.ID()).Str("participant", p).Msg("session abandoned")
	e.dispatch(notes)
	return nil
}

// Status returns the participant's view of their active session.
func (e *Engine) Status(ctx context.Context, p string) (game.Status, error) {
	s, err := e.reg.FindActiveFor(p)
	if err != nil {
		return game.Status{}, e.reject(p, "", err)
	}
	st, err := s.Status(p)
	if err != nil {
		return game.Status{}, e.reject(p, s.ID(), err)
	}
	return st, nil
}

// ExpireIdle abandons sessions idle for longer than maxIdle and returns
// how many were expired. Driven by an optional ticker in the main loop.
func (e *Engine) ExpireIdle(ctx context.Context, maxIdle time.Duration) int {
	now := time.Now().UTC()
	expired := 0
	for _, s := range e.reg.Sessions() {
		notes, done, err := s.ExpireIfIdle(maxIdle, now, e.persist(ctx))
		if err != nil {
			log.Error().Str("session", s.ID()).Err(err).Msg("expire idle session")
			continue
		}
		if !done {
			continue
		}
		expired++
		e.mm.Remove(s.ID())
		log.Info().Str("session", s.ID()).Msg("idle session expired")
		e.dispatch(notes)
	}
	return expired
}

// Stats reports how many sessions are live in the registry and how many of
// them still have room for joiners.
func (e *Engine) Stats() (total, open int) {
	sessions := e.reg.Sessions()
	for _, s := range sessions {
		if s.HasRoom() {
			open++
		}
	}
	return len(sessions), open
}

// persist binds the request context into the session commit step.
func (e *Engine) persist(ctx context.Context) game.PersistFunc {
	return func(snap game.Snapshot) error {
		return e.store.SaveSession(ctx, snap)
	}
}

// reject surfaces a game-rule violation to the acting participant and
// returns the error unchanged. System errors pass through untouched; they
// are never someone's fault.
func (e *Engine) reject(p, sessionID string, err error) error {
	if kind := game.Kind(err); kind != "" {
		e.dispatch([]game.Notification{{
			To:        p,
			Kind:      game.NoteActionRejected,
			SessionID: sessionID,
			Reason:    kind,
		}})
	}
	return err
}

func (e *Engine) dispatch(notes []game.Notification) {
	if e.notifier == nil {
		return
	}
	for _, n := range notes {
		e.notifier.Notify(n)
	}
}
