package valkey

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calcompanion/internal/storage"
	"github.com/teemow/calcompanion/internal/storage/storagetest"
)

// These tests need a running server. Point CALCOMPANION_TEST_VALKEY_ADDR at
// one, e.g. "localhost:6379".
func testAddr(t *testing.T) string {
	t.Helper()

	addr := os.Getenv("CALCOMPANION_TEST_VALKEY_ADDR")
	if addr == "" {
		t.Skip("CALCOMPANION_TEST_VALKEY_ADDR not set")
	}
	return addr
}

func TestStore(t *testing.T) {
	addr := testAddr(t)

	storagetest.Run(t, func(t *testing.T, now func() time.Time) storage.BlobStore {
		s, err := New(Config{Addr: addr, KeyPrefix: "calcompanion-test:" + uuid.NewString() + ":"})
		require.NoError(t, err)
		s.now = now
		t.Cleanup(func() {
			ctx := context.Background()
			infos, _ := s.List(ctx, "", 0)
			for _, info := range infos {
				_ = s.Delete(ctx, info.Key)
			}
			_ = s.Close()
		})
		return s
	})
}

func TestNew_RequiresAddr(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `user-\*\?/`, escapeGlob("user-*?/"))
	assert.Equal(t, `a\[b\]\\`, escapeGlob(`a[b]\`))
}
