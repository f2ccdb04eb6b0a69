// Package memory keeps state and archive records in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/goodtune/kclinic/internal/storage"
)

// Store implements storage.Store with maps guarded by a mutex
type Store struct {
	mu       sync.RWMutex
	states   map[string][]byte
	sessions map[string]storage.FinishedSession
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		states:   make(map[string][]byte),
		sessions: make(map[string]storage.FinishedSession),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) State() storage.StateStore { return (*stateStore)(s) }

func (s *Store) Archive() storage.ArchiveStore { return (*archiveStore)(s) }

type stateStore Store

func (s *stateStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.states[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *stateStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[key] = append([]byte(nil), data...)
	return nil
}

type archiveStore Store

func (s *archiveStore) Record(_ context.Context, session storage.FinishedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	return nil
}

func (s *archiveStore) Get(_ context.Context, id string) (*storage.FinishedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &session, nil
}

func (s *archiveStore) List(_ context.Context, filter storage.ArchiveFilter) ([]storage.FinishedSession, error) {
	s.mu.RLock()
	var matched []storage.FinishedSession
	for _, session := range s.sessions {
		if filter.Matches(session) {
			matched = append(matched, session)
		}
	}
	s.mu.RUnlock()

	storage.SortNewestFirst(matched)
	if limit := filter.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *archiveStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, session := range s.sessions {
		if session.EndedAt.Before(cutoff) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}
