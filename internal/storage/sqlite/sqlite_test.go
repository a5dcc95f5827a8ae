package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calcompanion/internal/storage"
	"github.com/teemow/calcompanion/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, now func() time.Time) storage.BlobStore {
		s, err := Open(filepath.Join(t.TempDir(), "chats.db"), WithClock(now))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.EnsureNamespace(ctx))
	require.NoError(t, s.Put(ctx, "user-a/chat-1", []byte("kept")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureNamespace(ctx))

	got, err := s.Get(ctx, "user-a/chat-1")
	require.NoError(t, err)
	assert.Equal(t, "kept", string(got))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `user-a\_b/`, escapeLike("user-a_b/"))
	assert.Equal(t, `100\%\\`, escapeLike(`100%\`))
}
