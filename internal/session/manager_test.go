package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calcompanion/internal/conversation"
	"github.com/teemow/calcompanion/internal/storage/memory"
	"github.com/teemow/calcompanion/internal/storage/storagetest"
)

type managerFixture struct {
	mgr   *Manager
	store *Store
	blobs *flakyBlobs
	clock *storagetest.Clock
}

func newManagerFixture(t *testing.T, userID string) *managerFixture {
	t.Helper()

	clock := storagetest.NewClock(time.Date(2025, 5, 28, 9, 0, 0, 0, time.UTC))
	blobs := &flakyBlobs{BlobStore: memory.NewWithClock(clock.Now)}
	store := NewStore(blobs, nil)

	var n int
	var mu sync.Mutex
	mgr, err := NewManager(userID, store, nil,
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("session-%d", n)
		}),
	)
	require.NoError(t, err)
	return &managerFixture{mgr: mgr, store: store, blobs: blobs, clock: clock}
}

func TestNewManager_RejectsInvalidUser(t *testing.T) {
	_, err := NewManager("a/b", NewStore(memory.New(), nil), nil)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestManager_FirstSignInCreatesOneSession(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()

	info := f.mgr.Bootstrap(ctx)

	sessions := f.mgr.ListSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, info.ID, sessions[0].ID)

	id, turns, err := f.mgr.ActiveConversation()
	require.NoError(t, err)
	assert.Equal(t, info.ID, id)
	require.Len(t, turns, 2)
	assert.True(t, turns[0].IsSystemPrompt)
	assert.Equal(t, conversation.GreetingText, turns[1].Content)

	stored, err := f.store.Load(ctx, "u1", info.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(turns, stored); diff != "" {
		t.Errorf("persisted turns mismatch (-mem +stored):\n%s", diff)
	}

	assert.Equal(t, []conversation.DisplayMessage{{Text: conversation.GreetingText, Sender: conversation.SenderBot}}, f.mgr.DisplayMessages())
}

func TestManager_BootstrapSelectsMostRecent(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()

	require.NoError(t, f.store.Save(ctx, "u1", "old", sampleTurns()))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.store.Save(ctx, "u1", "recent", sampleTurns()))

	info := f.mgr.Bootstrap(ctx)
	assert.Equal(t, "recent", info.ID)
	assert.Len(t, f.mgr.ListSessions(), 2)

	// A second bootstrap keeps the current selection.
	f.mgr.SwitchSession(ctx, "old")
	assert.Equal(t, "old", f.mgr.Bootstrap(ctx).ID)
}

func TestManager_BootstrapKeepsTruncation(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()

	for i := 0; i < MaxListedSessions+1; i++ {
		require.NoError(t, f.store.Save(ctx, "u1", fmt.Sprintf("s%03d", i), sampleTurns()))
		f.clock.Advance(time.Second)
	}

	info := f.mgr.Bootstrap(ctx)
	assert.Equal(t, fmt.Sprintf("s%03d", MaxListedSessions), info.ID)
	assert.Len(t, f.mgr.ListSessions(), MaxListedSessions)
	assert.True(t, f.mgr.Truncated())

	f.mgr.SignOut()
	assert.False(t, f.mgr.Truncated())
}

func TestManager_BootstrapHealsOnStorageFailure(t *testing.T) {
	for _, tc := range []struct {
		name string
		fail func(*flakyBlobs)
	}{
		{"namespace", func(b *flakyBlobs) { b.failEnsure.Store(true) }},
		{"list", func(b *flakyBlobs) { b.failList.Store(true) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newManagerFixture(t, "u1")
			tc.fail(f.blobs)

			info := f.mgr.Bootstrap(context.Background())

			active, ok := f.mgr.Active()
			require.True(t, ok)
			assert.Equal(t, info.ID, active.ID)
			_, turns, err := f.mgr.ActiveConversation()
			require.NoError(t, err)
			assert.Len(t, turns, 2)
		})
	}
}

func TestManager_NewSessionSurvivesSaveFailure(t *testing.T) {
	f := newManagerFixture(t, "u1")
	f.blobs.failPut.Store(true)

	info := f.mgr.NewSession(context.Background())

	active, ok := f.mgr.Active()
	require.True(t, ok)
	assert.Equal(t, info.ID, active.ID)
	assert.Len(t, f.mgr.ListSessions(), 1)
	assert.Equal(t, int64(1), f.blobs.puts.Load())
}

func TestManager_SwitchHealsMissingAndCorrupt(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()
	f.mgr.Bootstrap(ctx)

	key, err := Key("u1", "corrupt")
	require.NoError(t, err)
	require.NoError(t, f.blobs.Put(ctx, key, []byte("not json")))

	for _, id := range []string{"missing", "corrupt"} {
		info := f.mgr.SwitchSession(ctx, id)
		assert.NotEqual(t, id, info.ID)

		_, turns, err := f.mgr.ActiveConversation()
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, conversation.GreetingText, turns[1].Content)
	}
}

func TestManager_SwitchLoadsStoredTurns(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()

	want := sampleTurns()
	require.NoError(t, f.store.Save(ctx, "u1", "stored", want))
	f.mgr.Bootstrap(ctx)
	f.mgr.NewSession(ctx)

	info := f.mgr.SwitchSession(ctx, "stored")
	assert.Equal(t, "stored", info.ID)

	_, got, err := f.mgr.ActiveConversation()
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("switched turns mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_CommitRefreshesLastUpdatedAndOrder(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()

	first := f.mgr.NewSession(ctx)
	f.clock.Advance(time.Minute)
	second := f.mgr.NewSession(ctx)
	assert.Equal(t, second.ID, f.mgr.ListSessions()[0].ID)

	f.clock.Advance(time.Minute)
	turns := conversation.Append(conversation.NewConversation(first.CreatedAt), conversation.UserTurn("hello"))
	require.NoError(t, f.mgr.Commit(ctx, first.ID, turns))

	sessions := f.mgr.ListSessions()
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.True(t, sessions[0].LastUpdated.Equal(f.clock.Now()))
	assert.True(t, sessions[0].CreatedAt.Equal(first.CreatedAt))

	// first is not active; its turns are persisted, the active view is untouched.
	id, active, err := f.mgr.ActiveConversation()
	require.NoError(t, err)
	assert.Equal(t, second.ID, id)
	assert.Len(t, active, 2)

	stored, err := f.store.Load(ctx, "u1", first.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestManager_CommitFailureKeepsMemoryState(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()

	info := f.mgr.NewSession(ctx)
	before := f.mgr.ListSessions()[0].LastUpdated

	f.blobs.failPut.Store(true)
	f.clock.Advance(time.Minute)
	_, turns, err := f.mgr.ActiveConversation()
	require.NoError(t, err)

	err = f.mgr.Commit(ctx, info.ID, conversation.Append(turns, conversation.UserTurn("hi")))
	assert.ErrorIs(t, err, errBackend)

	_, after, err := f.mgr.ActiveConversation()
	require.NoError(t, err)
	assert.Len(t, after, 3)
	assert.True(t, f.mgr.ListSessions()[0].LastUpdated.Equal(before))
}

func TestManager_CommitRejectsInvalidTurns(t *testing.T) {
	f := newManagerFixture(t, "u1")
	info := f.mgr.NewSession(context.Background())

	err := f.mgr.Commit(context.Background(), info.ID, []conversation.Turn{conversation.UserTurn("x")})
	assert.ErrorIs(t, err, conversation.ErrMissingSystemTurn)
}

func TestManager_DeleteSession(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()

	first := f.mgr.NewSession(ctx)
	f.clock.Advance(time.Minute)
	second := f.mgr.NewSession(ctx)

	// Deleting the active session falls back to the next most recent.
	require.NoError(t, f.mgr.DeleteSession(ctx, second.ID))
	active, ok := f.mgr.Active()
	require.True(t, ok)
	assert.Equal(t, first.ID, active.ID)
	assert.Len(t, f.mgr.ListSessions(), 1)

	// Deleting the last session starts a new one.
	require.NoError(t, f.mgr.DeleteSession(ctx, first.ID))
	active, ok = f.mgr.Active()
	require.True(t, ok)
	assert.NotEqual(t, first.ID, active.ID)
	assert.Len(t, f.mgr.ListSessions(), 1)

	_, err := f.store.Load(ctx, "u1", first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_SignOutKeepsStoredData(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()

	info := f.mgr.Bootstrap(ctx)
	f.mgr.SignOut()

	_, ok := f.mgr.Active()
	assert.False(t, ok)
	assert.Empty(t, f.mgr.ListSessions())
	assert.Empty(t, f.mgr.DisplayMessages())
	_, _, err := f.mgr.ActiveConversation()
	assert.ErrorIs(t, err, ErrNoActiveSession)

	assert.Equal(t, info.ID, f.mgr.Bootstrap(ctx).ID)
}

func TestManager_DisplayNeverShowsSystemPrompt(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()
	info := f.mgr.Bootstrap(ctx)

	_, turns, err := f.mgr.ActiveConversation()
	require.NoError(t, err)
	turns = conversation.Append(turns,
		conversation.UserTurn("what are you?"),
		conversation.ModelTurn("I was told: "+conversation.SystemPromptMarker),
	)
	require.NoError(t, f.mgr.Commit(ctx, info.ID, turns))

	for _, msg := range f.mgr.DisplayMessages() {
		assert.False(t, strings.Contains(msg.Text, conversation.SystemPromptMarker), "leaked: %q", msg.Text)
	}
}

func TestManager_UsersAreIsolated(t *testing.T) {
	clock := storagetest.NewClock(time.Now())
	store := NewStore(memory.NewWithClock(clock.Now), nil)
	ctx := context.Background()

	alice, err := NewManager("alice", store, nil)
	require.NoError(t, err)
	bob, err := NewManager("bob", store, nil)
	require.NoError(t, err)

	a := alice.Bootstrap(ctx)
	bob.Bootstrap(ctx)

	// Bob cannot see or reach Alice's session.
	assert.NotContains(t, bob.ListSessions(), a)
	assert.NotEqual(t, a.ID, bob.SwitchSession(ctx, a.ID).ID)
}

func TestManager_ConcurrentCommits(t *testing.T) {
	f := newManagerFixture(t, "u1")
	ctx := context.Background()

	ids := make([]string, 4)
	for i := range ids {
		ids[i] = f.mgr.NewSession(ctx).ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			turns := conversation.NewConversation(time.Now())
			for i := 0; i < 10; i++ {
				turns = conversation.Append(turns, conversation.UserTurn(fmt.Sprintf("%s-%d", id, i)))
				assert.NoError(t, f.mgr.Commit(ctx, id, turns))
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		stored, err := f.store.Load(ctx, "u1", id)
		require.NoError(t, err)
		assert.Len(t, stored, 12)
	}
	assert.Len(t, f.mgr.ListSessions(), len(ids))
}
