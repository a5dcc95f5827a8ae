// Package memory provides an in-process BlobStore used in development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teemow/calcompanion/internal/storage"
)

type object struct {
	data      []byte
	createdAt time.Time
	updatedAt time.Time
}

// Store keeps blobs in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*object
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		objects: make(map[string]*object),
		now:     time.Now,
	}
}

// NewWithClock returns a Store whose timestamps come from now.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

// EnsureNamespace implements storage.BlobStore. Nothing needs creating.
func (s *Store) EnsureNamespace(context.Context) error {
	return nil
}

// Put implements storage.BlobStore.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if obj, ok := s.objects[key]; ok {
		obj.data = buf
		obj.updatedAt = now
		return nil
	}
	s.objects[key] = &object{data: buf, createdAt: now, updatedAt: now}
	return nil
}

// Get implements storage.BlobStore.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, nil
}

// List implements storage.BlobStore.
func (s *Store) List(_ context.Context, prefix string, limit int) ([]storage.ObjectInfo, error) {
	s.mu.RLock()
	infos := make([]storage.ObjectInfo, 0)
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{
				Key:       key,
				CreatedAt: obj.createdAt,
				UpdatedAt: obj.updatedAt,
			})
		}
	}
	s.mu.RUnlock()

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
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	delete(s.objects, key)
	return nil
}

// Close implements storage.BlobStore.
func (s *Store) Close() error {
	return nil
}
