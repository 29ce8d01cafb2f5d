// Package cache collects loadable units produced during compilation and
// hands them back for replay onto fresh namespaces. The store is in-memory
// only; units do not survive the process.
package cache

import (
	"sort"
	"sync"

	"coil/internal/compiler"
	"coil/internal/exec"
)

// Store is a unit cache keyed by source identifier. Units append in
// collection order per source and replay in that same order. Thread-safe
// with a read-write mutex: parallel builds collect into one store.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]*exec.Unit
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string][]*exec.Unit)}
}

// Collector returns the collector hook that appends units under source.
// Pass it to a compile driver; each assembled unit lands in the store
// before it executes.
func (s *Store) Collector(source string) compiler.Collector {
	return func(u *exec.Unit) { s.Put(source, u) }
}

// Put appends a unit under source. Nil units are ignored.
func (s *Store) Put(source string, u *exec.Unit) {
	if u == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[source] = append(s.entries[source], u)
}

// Units returns the cached units for source in collection order. The
// returned slice is a copy; mutating it does not affect the store.
func (s *Store) Units(source string) []*exec.Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	us := s.entries[source]
	if len(us) == 0 {
		return nil
	}
	out := make([]*exec.Unit, len(us))
	copy(out, us)
	return out
}

// Count returns the number of units cached under source.
func (s *Store) Count(source string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[source])
}

// Sources returns the source identifiers with cached units, sorted.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for src := range s.entries {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// Drop removes all units cached under source. A rebuild drops before it
// collects so stale units never mix with fresh ones.
func (s *Store) Drop(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, source)
}

// Reset empties the store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]*exec.Unit)
}
