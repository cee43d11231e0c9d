// Package keymutex provides per-key mutual exclusion for the cache
// engine: at most one in-flight operation per cache key, while operations
// on distinct keys proceed concurrently. A second operation on a held key
// queues until the first completes; nothing is rejected.
package keymutex

import "sync"

// holder is the lock state for one key. refs counts lockers currently
// holding or waiting so the entry can be dropped when the last one leaves.
type holder struct {
	refs int
	sem  chan struct{}
}

// Map is a collection of per-key locks. The zero value is not usable;
// call [New].
type Map struct {
	mu   sync.Mutex
	held map[string]*holder
}

// New creates an empty lock map.
func New() *Map {
	return &Map{held: make(map[string]*holder)}
}

// Lock acquires the lock for key, blocking while another operation holds
// it, and returns the release function. Callers must release on every
// exit path:
//
//	unlock := locks.Lock(key)
//	defer unlock()
func (m *Map) Lock(key string) (unlock func()) {
	m.mu.Lock()
	h, ok := m.held[key]
	if !ok {
		h = &holder{sem: make(chan struct{}, 1)}
		m.held[key] = h
	}
	h.refs++
	m.mu.Unlock()

	h.sem <- struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-h.sem
			m.mu.Lock()
			h.refs--
			if h.refs == 0 {
				delete(m.held, key)
			}
			m.mu.Unlock()
		})
	}
}
