package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefold/corpse/internal/game"
)

// memStore is an in-memory storage.Store for engine tests.
type memStore struct {
	mu    sync.Mutex
	snaps map[string]game.Snapshot
	fail  bool
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]game.Snapshot)}
}

func (m *memStore) SaveSession(_ context.Context, snap game.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("storage unavailable")
	}
	m.snaps[snap.ID] = snap
	return nil
}

func (m *memStore) LoadActive(context.Context) ([]game.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []game.Snapshot
	for _, snap := range m.snaps {
		if !snap.State.Terminal() {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (m *memStore) LoadSession(_ context.Context, id string) (game.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return game.Snapshot{}, errors.New("session not found")
	}
	return snap, nil
}

func (m *memStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}

func (m *memStore) Close() error { return nil }

// recorder collects notifications by recipient.
type recorder struct {
	mu    sync.Mutex
	notes []game.Notification
}

func (r *recorder) Notify(n game.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) byKind(kind game.NotificationKind) []game.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []game.Notification
	for _, n := range r.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}

func newTestEngine() (*Engine, *memStore, *recorder) {
	store := newMemStore()
	rec := &recorder{}
	cfg := game.Config{Players: 2, WordsPerTurn: 6, WindowSize: 1, MaxTurns: 2}
	return New(store, rec, cfg), store, rec
}

func TestFullGame(t *testing.T) {
	ctx := context.Background()
	eng, store, rec := newTestEngine()

	id, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	joined, err := eng.Join(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, id, joined)

	prompts := rec.byKind(game.NoteYourTurn)
	require.Len(t, prompts, 1)
	assert.Equal(t, "alice", prompts[0].To)
	assert.Empty(t, prompts[0].Context)
	rec.reset()

	require.NoError(t, eng.Submit(ctx, "alice", "the cat sat on the mat"))
	prompts = rec.byKind(game.NoteYourTurn)
	require.Len(t, prompts, 1)
	assert.Equal(t, "bob", prompts[0].To)
	assert.Equal(t, []string{"mat"}, prompts[0].Context)
	rec.reset()

	require.NoError(t, eng.Submit(ctx, "bob", "ran quickly across the wet floor"))
	completed := rec.byKind(game.NoteGameCompleted)
	require.Len(t, completed, 2)
	assert.Equal(t, "the cat sat on the mat / ran quickly across the wet floor", completed[0].FullText)

	// durable state agrees
	snap, err := store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, game.StateCompleted, snap.State)
	assert.Len(t, snap.Contributions, 2)

	// finished participants are free to play again
	_, err = eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
}

func TestStartWhileInGame(t *testing.T) {
	ctx := context.Background()
	eng, _, rec := newTestEngine()

	_, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)

	_, err = eng.Start(ctx, "alice", game.Config{}, "")
	assert.ErrorIs(t, err, game.ErrAlreadyInGame)

	_, err = eng.Join(ctx, "alice")
	assert.ErrorIs(t, err, game.ErrAlreadyInGame)

	rejected := rec.byKind(game.NoteActionRejected)
	require.Len(t, rejected, 2)
	assert.Equal(t, "AlreadyInGame", rejected[0].Reason)
	assert.Equal(t, "alice", rejected[0].To)
}

func TestJoinNoOpenSession(t *testing.T) {
	ctx := context.Background()
	eng, _, rec := newTestEngine()

	_, err := eng.Join(ctx, "bob")
	assert.ErrorIs(t, err, game.ErrNoOpenSession)

	rejected := rec.byKind(game.NoteActionRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "NoOpenSession", rejected[0].Reason)
}

func TestJoinOldestFirst(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine()

	first, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
	_, err = eng.Start(ctx, "carol", game.Config{}, "")
	require.NoError(t, err)

	joined, err := eng.Join(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, first, joined, "oldest open session should fill first")
}

func TestJoinSkipsOwnSession(t *testing.T) {
	ctx := context.Background()
	eng, _, rec := newTestEngine()

	id, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
	require.NoError(t, eng.Abandon(ctx, "alice"))
	rec.reset()

	// alice's old session is terminal; with nothing open she gets
	// NoOpenSession rather than rejoining her own game
	_, err = eng.Join(ctx, "alice")
	assert.ErrorIs(t, err, game.ErrNoOpenSession)

	second, err := eng.Start(ctx, "bob", game.Config{}, "")
	require.NoError(t, err)
	require.NotEqual(t, id, second)

	joined, err := eng.Join(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, second, joined)
}

func TestSubmitErrors(t *testing.T) {
	ctx := context.Background()
	eng, _, rec := newTestEngine()

	assert.ErrorIs(t, eng.Submit(ctx, "nobody", "one two three four five six"), game.ErrNotInGame)

	_, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
	_, err = eng.Join(ctx, "bob")
	require.NoError(t, err)
	rec.reset()

	assert.ErrorIs(t, eng.Submit(ctx, "bob", "one two three four five six"), game.ErrNotYourTurn)
	assert.ErrorIs(t, eng.Submit(ctx, "alice", "too few"), game.ErrWrongWordCount)

	rejected := rec.byKind(game.NoteActionRejected)
	require.Len(t, rejected, 2)
	assert.Equal(t, "bob", rejected[0].To)
	assert.Equal(t, "NotYourTurn", rejected[0].Reason)
	assert.Equal(t, "alice", rejected[1].To)
	assert.Equal(t, "WrongWordCount", rejected[1].Reason)
}

func TestAbandonFlow(t *testing.T) {
	ctx := context.Background()
	eng, store, rec := newTestEngine()

	id, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
	_, err = eng.Join(ctx, "bob")
	require.NoError(t, err)
	rec.reset()

	require.NoError(t, eng.Abandon(ctx, "alice"))
	told := rec.byKind(game.NoteGameAbandoned)
	require.Len(t, told, 1)
	assert.Equal(t, "bob", told[0].To)

	assert.ErrorIs(t, eng.Submit(ctx, "bob", "one two three four five six"), game.ErrSessionFinished)

	st, err := eng.Status(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, game.StateAbandoned, st.State)

	snap, err := store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, game.StateAbandoned, snap.State)
}

func TestStatusView(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine()

	_, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
	_, err = eng.Join(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, eng.Submit(ctx, "alice", "the cat sat on the mat"))

	st, err := eng.Status(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, game.StateAwaiting, st.State)
	assert.True(t, st.YourTurn)
	assert.Equal(t, []string{"mat"}, st.Window)
	assert.Empty(t, st.FullText)

	_, err = eng.Status(ctx, "nobody")
	assert.ErrorIs(t, err, game.ErrNotInGame)
}

func TestPersistFailureDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	eng, store, _ := newTestEngine()

	_, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
	_, err = eng.Join(ctx, "bob")
	require.NoError(t, err)

	store.mu.Lock()
	store.fail = true
	store.mu.Unlock()

	err = eng.Submit(ctx, "alice", "the cat sat on the mat")
	require.Error(t, err)
	assert.Empty(t, game.Kind(err), "storage failure is not a game-rule violation")

	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()

	// in-memory state rolled back with durable state: it's still alice's turn
	require.NoError(t, eng.Submit(ctx, "alice", "the cat sat on the mat"))
}

func TestRestartRestoresSessions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rec := &recorder{}
	cfg := game.Config{Players: 2, WordsPerTurn: 6, WindowSize: 1, MaxTurns: 4}

	eng := New(store, rec, cfg)
	id, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
	_, err = eng.Join(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, eng.Submit(ctx, "alice", "the cat sat on the mat"))

	// a second engine over the same store picks up where the first left off
	eng2 := New(store, rec, cfg)
	loaded, err := eng2.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	rec.reset()
	require.NoError(t, eng2.Submit(ctx, "bob", "ran quickly across the wet floor"))
	prompts := rec.byKind(game.NoteYourTurn)
	require.Len(t, prompts, 1)
	assert.Equal(t, "alice", prompts[0].To)
	assert.Equal(t, []string{"floor"}, prompts[0].Context)

	// the one-active-session invariant survives the restart
	_, err = eng2.Start(ctx, "alice", game.Config{}, "")
	assert.ErrorIs(t, err, game.ErrAlreadyInGame)
	_ = id
}

func TestConcurrentJoinLastSlot(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine()

	_, err := eng.Start(ctx, "creator", game.Config{}, "")
	require.NoError(t, err)

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := eng.Join(ctx, string(rune('a'+n)))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	admitted := 0
	for err := range results {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, game.ErrNoOpenSession)
		}
	}
	assert.Equal(t, 1, admitted, "exactly one racer wins the last slot")
}

func TestNoDoubleAttachUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine()

	// two open sessions, one participant racing to join from two goroutines
	_, err := eng.Start(ctx, "host1", game.Config{}, "")
	require.NoError(t, err)
	_, err = eng.Start(ctx, "host2", game.Config{}, "")
	require.NoError(t, err)

	results := make(chan string, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := eng.Join(ctx, "bob")
			if err == nil {
				results <- id
			} else {
				results <- ""
			}
		}()
	}
	wg.Wait()
	close(results)

	var joinedIDs []string
	for id := range results {
		if id != "" {
			joinedIDs = append(joinedIDs, id)
		}
	}
	require.Len(t, joinedIDs, 1, "bob must end up in exactly one session")
}

func TestExpireIdleSweep(t *testing.T) {
	ctx := context.Background()
	eng, _, rec := newTestEngine()

	_, err := eng.Start(ctx, "alice", game.Config{}, "")
	require.NoError(t, err)
	_, err = eng.Join(ctx, "bob")
	require.NoError(t, err)
	rec.reset()

	// nothing is older than an hour yet
	assert.Equal(t, 0, eng.ExpireIdle(ctx, time.Hour))

	// a zero threshold expires everything immediately
	expired := eng.ExpireIdle(ctx, -1)
	assert.Equal(t, 1, expired)
	assert.Len(t, rec.byKind(game.NoteGameAbandoned), 2)

	st, err := eng.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, game.StateAbandoned, st.State)
}
