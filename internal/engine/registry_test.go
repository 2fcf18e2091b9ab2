package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefold/corpse/internal/game"
)

func newSession(t *testing.T, creator string) *game.Session {
	t.Helper()
	s, err := game.NewSession(game.Config{}, creator, "")
	require.NoError(t, err)
	return s
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	s := newSession(t, "alice")
	r.Put(s)

	assert.Same(t, s, r.FindByID(s.ID()))
	assert.Nil(t, r.FindByID("missing"))

	_, err := r.FindActiveFor("alice")
	assert.ErrorIs(t, err, game.ErrNotInGame, "putting a session does not index its roster")

	require.NoError(t, r.Attach("alice", s.ID()))
	got, err := r.FindActiveFor("alice")
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestRegistryAttachConflict(t *testing.T) {
	r := NewRegistry()
	first := newSession(t, "alice")
	second := newSession(t, "alice")
	r.Put(first)
	r.Put(second)

	require.NoError(t, r.Attach("alice", first.ID()))
	assert.ErrorIs(t, r.Attach("alice", second.ID()), game.ErrAlreadyInGame)

	// re-attaching to the same session is a no-op
	require.NoError(t, r.Attach("alice", first.ID()))
}

func TestRegistryAttachReplacesTerminal(t *testing.T) {
	r := NewRegistry()
	first := newSession(t, "alice")
	second := newSession(t, "alice")
	r.Put(first)
	r.Put(second)

	require.NoError(t, r.Attach("alice", first.ID()))
	_, err := first.Abandon("alice", nil)
	require.NoError(t, err)

	// the terminal session still answers status lookups...
	got, err := r.FindActiveFor("alice")
	require.NoError(t, err)
	assert.Same(t, first, got)

	// ...but no longer blocks a new game
	require.NoError(t, r.Attach("alice", second.ID()))
	got, err = r.FindActiveFor("alice")
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestRegistryDetachAndRemove(t *testing.T) {
	r := NewRegistry()
	s := newSession(t, "alice")
	r.Put(s)
	require.NoError(t, r.Attach("alice", s.ID()))

	// detach ignores a mismatched session id
	r.Detach("alice", "other")
	_, err := r.FindActiveFor("alice")
	require.NoError(t, err)

	r.Remove(s.ID())
	assert.Nil(t, r.FindByID(s.ID()))
	_, err = r.FindActiveFor("alice")
	assert.ErrorIs(t, err, game.ErrNotInGame)
}
