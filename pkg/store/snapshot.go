// Package store holds the cache layer: a generic atomic snapshot file store
// and the two price caches built on top of it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spotwatt/spotwatt/pkg/log"
)

// Snapshotter persists whole-cache snapshots. Persist and Clear are
// asynchronous: they return immediately and never surface disk errors to the
// caller. Flush blocks until all previously started operations finish.
type Snapshotter[T any] interface {
	Load(ctx context.Context) (T, bool)
	Persist(ctx context.Context, snapshot T)
	Clear(ctx context.Context)
	Flush()
}

// FileStore writes JSON snapshots via a sibling temp file followed by a
// rename, so a reader never observes a partially written file. A single
// mutex serializes persists and clears on the same path, and each operation
// carries a submission sequence number so an older snapshot whose goroutine
// is scheduled late can never clobber a newer one already on disk.
type FileStore[T any] struct {
	path string

	seq atomic.Uint64

	mu      sync.Mutex
	applied uint64
	wg      sync.WaitGroup
}

// NewFileStore creates a FileStore backed by the given path.
func NewFileStore[T any](path string) *FileStore[T] {
	return &FileStore[T]{path: path}
}

// Load reads the last snapshot. A missing, unreadable, or corrupt file is
// reported as absent, never as an error; a corrupt file is deleted so it
// cannot poison later loads.
func (s *FileStore[T]) Load(ctx context.Context) (T, bool) {
	var snapshot T
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Ctx(ctx).WarnContext(ctx, "failed to read cache file", slog.String("path", s.path), slog.Any("error", err))
		}
		return snapshot, false
	}
	if err := json.Unmarshal(b, &snapshot); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "deleting corrupt cache file", slog.String("path", s.path), slog.Any("error", err))
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Ctx(ctx).ErrorContext(ctx, "failed to delete corrupt cache file", slog.String("path", s.path), slog.Any("error", err))
		}
		var zero T
		return zero, false
	}
	return snapshot, true
}

// Persist writes the snapshot in the background. Disk errors are logged and
// swallowed; the in-memory cache stays authoritative for the running process.
func (s *FileStore[T]) Persist(ctx context.Context, snapshot T) {
	ctx = context.WithoutCancel(ctx)
	seq := s.seq.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mu.Lock()
		defer s.mu.Unlock()

		// a newer snapshot already reached disk; writing this one would roll
		// the file backwards
		if seq <= s.applied {
			return
		}
		s.applied = seq

		b, err := json.Marshal(snapshot)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to marshal cache snapshot", slog.String("path", s.path), slog.Any("error", err))
			return
		}
		tmp := s.path + ".tmp"
		if err := os.WriteFile(tmp, b, 0o644); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to write cache snapshot", slog.String("path", tmp), slog.Any("error", err))
			return
		}
		if err := os.Rename(tmp, s.path); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to rename cache snapshot", slog.String("path", s.path), slog.Any("error", err))
		}
	}()
}

// Clear deletes the snapshot file in the background. Deleting an
// already-absent file is not an error.
func (s *FileStore[T]) Clear(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	seq := s.seq.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mu.Lock()
		defer s.mu.Unlock()

		if seq <= s.applied {
			return
		}
		s.applied = seq

		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Ctx(ctx).ErrorContext(ctx, "failed to delete cache file", slog.String("path", s.path), slog.Any("error", err))
		}
	}()
}

// Flush waits for in-flight persists and clears. It is called on shutdown
// and by tests that need the file on disk before reading it back.
func (s *FileStore[T]) Flush() {
	s.wg.Wait()
}
