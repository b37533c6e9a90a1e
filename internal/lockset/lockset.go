// Package lockset serializes work per key while letting unrelated keys
// proceed in parallel.
package lockset

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Set is a family of mutexes addressed by string key. Entries are created
// on first use and dropped once no caller holds or waits for them.
type Set struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty Set.
func New() *Set {
	return &Set{entries: make(map[string]*entry)}
}

// Lock acquires the mutex for key and returns its release function.
func (s *Set) Lock(key string) (unlock func()) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Key joins parts into a composite lock key.
func Key(parts ...string) string {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	b := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			b = append(b, 0)
		}
		b = append(b, p...)
	}
	return string(b)
}
