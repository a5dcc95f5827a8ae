package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calcompanion/internal/config"
)

func TestOpenBlobStore(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.StorageConfig
		errContains string
	}{
		{
			name: "memory",
			cfg:  config.StorageConfig{Backend: config.BackendMemory},
		},
		{
			name: "sqlite",
			cfg: config.StorageConfig{
				Backend: config.BackendSQLite,
				SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sessions.db")},
			},
		},
		{
			name:        "valkey without address",
			cfg:         config.StorageConfig{Backend: config.BackendValkey},
			errContains: "valkey address is required",
		},
		{
			name:        "unknown backend",
			cfg:         config.StorageConfig{Backend: "s3"},
			errContains: "unsupported storage backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs, err := openBlobStore(tt.cfg, nil)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = blobs.Close() })

			ctx := context.Background()
			require.NoError(t, blobs.EnsureNamespace(ctx))
			require.NoError(t, blobs.Put(ctx, "user-alice/chat-1", []byte(`[]`)))
			data, err := blobs.Get(ctx, "user-alice/chat-1")
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(data))
		})
	}
}

func TestServeFlagsMatchConfigKeys(t *testing.T) {
	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Set("storage.backend", config.BackendMemory))
	require.NoError(t, cmd.Flags().Set("server.addr", "127.0.0.1:18080"))

	cfg, err := config.Load("", cmd.Flags())
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "127.0.0.1:18080", cfg.Server.Addr)
	assert.Equal(t, int64(10), cfg.Calendar.MaxResults)
}
