// Package storagetest holds the behavior every storage.BlobStore backend
// must satisfy. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calcompanion/internal/storage"
)

// Factory builds an empty store whose timestamps come from now.
type Factory func(t *testing.T, now func() time.Time) storage.BlobStore

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Run exercises a backend against the BlobStore contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		require.NoError(t, s.Put(ctx, "user-a/chat-1", []byte(`{"a":1}`)))
		got, err := s.Get(ctx, "user-a/chat-1")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(got))
	})

	t.Run("EnsureNamespaceIsIdempotent", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))
		require.NoError(t, s.EnsureNamespace(ctx))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		_, err := s.Get(ctx, "user-a/chat-missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})

	t.Run("PutOverwritesAndKeepsCreatedAt", func(t *testing.T) {
		clock := NewClock(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
		s := newStore(t, clock.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		require.NoError(t, s.Put(ctx, "user-a/chat-1", []byte("v1")))
		clock.Advance(time.Minute)
		require.NoError(t, s.Put(ctx, "user-a/chat-1", []byte("v2")))

		got, err := s.Get(ctx, "user-a/chat-1")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))

		infos, err := s.List(ctx, "user-a/", 10)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.True(t, infos[0].CreatedAt.Equal(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)), "created %v", infos[0].CreatedAt)
		assert.True(t, infos[0].UpdatedAt.Equal(time.Date(2025, 1, 1, 9, 1, 0, 0, time.UTC)), "updated %v", infos[0].UpdatedAt)
	})

	t.Run("ListFiltersByPrefixAndOrdersByUpdate", func(t *testing.T) {
		clock := NewClock(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
		s := newStore(t, clock.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		for _, key := range []string{"user-a/chat-1", "user-a/chat-2", "user-b/chat-3", "user-a/chat-4"} {
			require.NoError(t, s.Put(ctx, key, []byte(key)))
			clock.Advance(time.Second)
		}
		// Touching chat-1 moves it to the front.
		require.NoError(t, s.Put(ctx, "user-a/chat-1", []byte("again")))

		infos, err := s.List(ctx, "user-a/", 10)
		require.NoError(t, err)

		keys := make([]string, len(infos))
		for i, info := range infos {
			keys[i] = info.Key
		}
		assert.Equal(t, []string{"user-a/chat-1", "user-a/chat-4", "user-a/chat-2"}, keys)
	})

	t.Run("ListRespectsLimit", func(t *testing.T) {
		clock := NewClock(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
		s := newStore(t, clock.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		for i := 0; i < 5; i++ {
			require.NoError(t, s.Put(ctx, fmt.Sprintf("user-a/chat-%d", i), []byte("x")))
			clock.Advance(time.Second)
		}

		infos, err := s.List(ctx, "user-a/", 3)
		require.NoError(t, err)
		require.Len(t, infos, 3)
		assert.Equal(t, "user-a/chat-4", infos[0].Key)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		infos, err := s.List(ctx, "user-nobody/", 10)
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("ListPrefixIsLiteral", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		require.NoError(t, s.Put(ctx, "user-a_b/chat-1", []byte("x")))
		require.NoError(t, s.Put(ctx, "user-axb/chat-1", []byte("x")))

		infos, err := s.List(ctx, "user-a_b/", 10)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "user-a_b/chat-1", infos[0].Key)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		require.NoError(t, s.Put(ctx, "user-a/chat-1", []byte("x")))
		require.NoError(t, s.Delete(ctx, "user-a/chat-1"))

		_, err := s.Get(ctx, "user-a/chat-1")
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		err = s.Delete(ctx, "user-a/chat-1")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("RejectsInvalidKeys", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		for _, key := range []string{"", "/abs", "user-a/../user-b"} {
			err := s.Put(ctx, key, []byte("x"))
			assert.True(t, errors.Is(err, storage.ErrInvalidKey), "key %q: %v", key, err)
		}
	})

	t.Run("StoredBytesAreCopied", func(t *testing.T) {
		s := newStore(t, time.Now)
		ctx := context.Background()
		require.NoError(t, s.EnsureNamespace(ctx))

		buf := []byte("abc")
		require.NoError(t, s.Put(ctx, "user-a/chat-1", buf))
		buf[0] = 'z'

		got, err := s.Get(ctx, "user-a/chat-1")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
	})
}
