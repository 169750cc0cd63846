package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/moolen/triage/internal/logging"
	"github.com/moolen/triage/internal/models"
)

// RebuildFunc produces a fresh fragment set, typically by re-ingesting the
// knowledge-base directory.
type RebuildFunc func(ctx context.Context) ([]*models.KnowledgeFragment, error)

// Store is a process-wide VectorIndex with an explicit lifecycle: a new
// snapshot is built fully, then swapped in atomically, so a query in flight
// never observes a half-updated index.
type Store struct {
	current atomic.Pointer[MemoryIndex]
	logger  *logging.Logger

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewStore creates a store with an initial snapshot.
func NewStore(fragments []*models.KnowledgeFragment) *Store {
	s := &Store{logger: logging.GetLogger("index.store")}
	s.current.Store(NewMemoryIndex(fragments))
	return s
}

// Swap installs a new snapshot. The previous snapshot stays valid for
// queries already holding it.
func (s *Store) Swap(fragments []*models.KnowledgeFragment) {
	s.current.Store(NewMemoryIndex(fragments))
	s.logger.InfoWithFields("index snapshot swapped", logging.Field("fragments", len(fragments)))
}

func (s *Store) snapshot() *MemoryIndex {
	return s.current.Load()
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	return s.snapshot().Query(ctx, vector, topK)
}

func (s *Store) GetFragment(ctx context.Context, id string) (*models.KnowledgeFragment, error) {
	return s.snapshot().GetFragment(ctx, id)
}

func (s *Store) Size(ctx context.Context) (int, error) {
	return s.snapshot().Size(ctx)
}

// Watch rebuilds the snapshot whenever the knowledge-base directory
// changes. Change bursts are debounced; a failed rebuild keeps the previous
// snapshot and is logged, not fatal. Blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, dir string, debounce time.Duration, rebuild RebuildFunc) error {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	s.logger.InfoWithFields("watching knowledge base",
		logging.Field("dir", dir),
		logging.Field("debounce_ms", debounce.Milliseconds()),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.scheduleRebuild(ctx, debounce, rebuild)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.ErrorWithErr("watcher error", err)
		}
	}
}

func (s *Store) scheduleRebuild(ctx context.Context, debounce time.Duration, rebuild RebuildFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(debounce, func() {
		fragments, err := rebuild(ctx)
		if err != nil {
			s.logger.ErrorWithErr("rebuild failed, keeping previous snapshot", err)
			return
		}
		s.Swap(fragments)
	})
}
