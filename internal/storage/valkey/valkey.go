// Package valkey stores chat blobs as Valkey hashes. Each key holds the
// payload and its created/updated stamps so listings never read payloads.
package valkey

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/teemow/calcompanion/internal/storage"
)

const (
	fieldData      = "data"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"

	// DefaultKeyPrefix namespaces every key the store writes.
	DefaultKeyPrefix = "calcompanion:"

	scanBatch = 200
)

// Config holds connection settings for the Valkey backend.
type Config struct {
	// Addr is the server address, e.g. "valkey.namespace.svc:6379".
	Addr string

	// Password is optional.
	Password string

	// DB selects the logical database.
	DB int

	// TLSEnabled turns on TLS with the system roots.
	TLSEnabled bool

	// KeyPrefix is prepended to every key (default: "calcompanion:").
	KeyPrefix string
}

// Store is a storage.BlobStore backed by Valkey.
type Store struct {
	client valkey.Client
	prefix string
	now    func() time.Time
}

// New connects to Valkey. The connection is verified by EnsureNamespace.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey address is required")
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.KeyPrefix, time.Now), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client valkey.Client, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix, now: now}
}

// EnsureNamespace pings the server. Valkey has no schema to create.
func (s *Store) EnsureNamespace(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("valkey ping failed: %w", err)
	}
	return nil
}

// Put implements storage.BlobStore. created_at is only set on first write.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	full := s.prefix + key
	stamp := strconv.FormatInt(s.now().UnixNano(), 10)

	results := s.client.DoMulti(ctx,
		s.client.B().Hsetnx().Key(full).Field(fieldCreatedAt).Value(stamp).Build(),
		s.client.B().Hset().Key(full).FieldValue().
			FieldValue(fieldData, valkey.BinaryString(data)).
			FieldValue(fieldUpdatedAt, stamp).
			Build(),
	)
	for _, res := range results {
		if err := res.Error(); err != nil {
			return fmt.Errorf("failed to put blob %q: %w", key, err)
		}
	}
	return nil
}

// Get implements storage.BlobStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Hget().Key(s.prefix+key).Field(fieldData).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %q: %w", key, err)
	}
	return data, nil
}

// List implements storage.BlobStore. Keys are gathered with SCAN, so the
// cost grows with the size of the keyspace under the prefix.
func (s *Store) List(ctx context.Context, prefix string, limit int) ([]storage.ObjectInfo, error) {
	match := escapeGlob(s.prefix+prefix) + "*"

	var keys []string
	var cursor uint64
	for {
		entry, err := s.client.Do(ctx, s.client.B().Scan().Cursor(cursor).Match(match).Count(scanBatch).Build()).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys with prefix %q: %w", prefix, err)
		}
		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	infos := make([]storage.ObjectInfo, 0, len(keys))
	if len(keys) == 0 {
		return infos, nil
	}

	cmds := make(valkey.Commands, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, s.client.B().Hmget().Key(k).Field(fieldCreatedAt, fieldUpdatedAt).Build())
	}
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		values, err := res.ToArray()
		if err != nil {
			return nil, fmt.Errorf("failed to read stamps for %q: %w", keys[i], err)
		}
		if len(values) != 2 {
			continue
		}
		created, errC := values[0].AsInt64()
		updated, errU := values[1].AsInt64()
		if errC != nil || errU != nil {
			// Deleted between SCAN and HMGET.
			continue
		}
		infos = append(infos, storage.ObjectInfo{
			Key:       strings.TrimPrefix(keys[i], s.prefix),
			CreatedAt: time.Unix(0, created).UTC(),
			UpdatedAt: time.Unix(0, updated).UTC(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].Key < infos[j].Key
		}
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

// Delete implements storage.BlobStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(s.prefix+key).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob makes s match literally inside a SCAN MATCH pattern.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
