// Package memory is a process-local progress store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/papercomputeco/parley/pkg/broadcast"
	"github.com/papercomputeco/parley/pkg/progress"
)

type entry struct {
	snapshot progress.Snapshot
	expires  time.Time
}

// Store keeps snapshots in a map. Expired snapshots are dropped lazily.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

var _ progress.Store = (*Store)(nil)

// NewStore creates a Store whose snapshots expire ttl after their last update.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = progress.DefaultTTL
	}
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store) Apply(_ context.Context, event broadcast.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evict()
	e, ok := s.entries[event.RequestID]
	if !ok {
		e = &entry{}
		s.entries[event.RequestID] = e
	}
	e.snapshot.Apply(event)
	e.expires = s.now().Add(s.ttl)
	return nil
}

func (s *Store) Get(_ context.Context, requestID string) (*progress.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evict()
	e, ok := s.entries[requestID]
	if !ok {
		return nil, progress.ErrNotFound
	}
	out := e.snapshot
	out.Peers = append([]progress.Peer(nil), e.snapshot.Peers...)
	return &out, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) evict() {
	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, id)
		}
	}
}
