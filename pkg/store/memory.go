package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Snapshotter. It backs the caches in tests and
// in deployments that don't want state to survive a restart.
type MemoryStore[T any] struct {
	mu       sync.Mutex
	snapshot T
	ok       bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{}
}

func (s *MemoryStore[T]) Load(ctx context.Context) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.ok
}

func (s *MemoryStore[T]) Persist(ctx context.Context, snapshot T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	s.ok = true
}

func (s *MemoryStore[T]) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.snapshot = zero
	s.ok = false
}

func (s *MemoryStore[T]) Flush() {}
