package storage

import (
	"context"
	"errors"
	"time"

	"github.com/teemow/calcompanion/internal/instrumentation"
)

// Instrumented wraps a BlobStore and records a metric and a span for every
// operation. A nil metrics recorder only produces spans.
type Instrumented struct {
	next    BlobStore
	backend string
	metrics *instrumentation.Metrics
}

// NewInstrumented wraps next. backend labels the metrics (memory, sqlite, valkey).
func NewInstrumented(next BlobStore, backend string, metrics *instrumentation.Metrics) *Instrumented {
	return &Instrumented{next: next, backend: backend, metrics: metrics}
}

func (s *Instrumented) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartStorageSpan(ctx, s.backend, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	// A missing blob is an expected answer, not a backend failure.
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	if s.metrics != nil {
		s.metrics.RecordStorageOperation(ctx, s.backend, operation, status, time.Since(start))
	}
	return err
}

// EnsureNamespace implements BlobStore.
func (s *Instrumented) EnsureNamespace(ctx context.Context) error {
	return s.observe(ctx, "ensure_namespace", s.next.EnsureNamespace)
}

// Put implements BlobStore.
func (s *Instrumented) Put(ctx context.Context, key string, data []byte) error {
	return s.observe(ctx, "put", func(ctx context.Context) error {
		return s.next.Put(ctx, key, data)
	})
}

// Get implements BlobStore.
func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.observe(ctx, "get", func(ctx context.Context) error {
		var err error
		data, err = s.next.Get(ctx, key)
		return err
	})
	return data, err
}

// List implements BlobStore.
func (s *Instrumented) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	err := s.observe(ctx, "list", func(ctx context.Context) error {
		var err error
		infos, err = s.next.List(ctx, prefix, limit)
		return err
	})
	return infos, err
}

// Delete implements BlobStore.
func (s *Instrumented) Delete(ctx context.Context, key string) error {
	return s.observe(ctx, "delete", func(ctx context.Context) error {
		return s.next.Delete(ctx, key)
	})
}

// Close implements BlobStore.
func (s *Instrumented) Close() error {
	return s.next.Close()
}
