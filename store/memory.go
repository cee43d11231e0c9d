package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store used in tests and for ephemeral caches
// that do not need to survive the session.
type Memory struct {
	mu   sync.RWMutex
	recs map[string][]byte
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{recs: make(map[string][]byte)}
}

// Get returns the record stored under key.
func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), rec...), true, nil
}

// Put stores rec under key.
func (s *Memory) Put(_ context.Context, key string, rec []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[key] = append([]byte(nil), rec...)
	return nil
}

// Delete removes the record under key.
func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, key)
	return nil
}

// Keys lists every key currently present.
func (s *Memory) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.recs))
	for k := range s.recs {
		keys = append(keys, k)
	}
	return keys, nil
}

// Clear removes every record.
func (s *Memory) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = make(map[string][]byte)
	return nil
}

// Close is a no-op for the memory store.
func (s *Memory) Close() error { return nil }
