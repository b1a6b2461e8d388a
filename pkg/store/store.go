// Package store keeps all live chat sessions in memory and evicts the ones
// that have gone idle. Sessions never escape the store: reads hand out
// snapshots and writes run inside Mutate under the entry lock.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-go-golems/clawd-gateway/pkg/chat"
)

type entry struct {
	mu   sync.Mutex
	sess *chat.Session
}

type Store struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry

	ttl           time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

func New(ttl, evictInterval time.Duration) *Store {
	return &Store{
		entries:       map[uuid.UUID]*entry{},
		ttl:           ttl,
		evictInterval: evictInterval,
	}
}

// Create registers a fresh session and returns its id.
func (s *Store) Create(maxHistory int) uuid.UUID {
	sess := chat.NewSession(maxHistory)
	s.mu.Lock()
	s.entries[sess.ID] = &entry{sess: sess}
	s.mu.Unlock()
	return sess.ID
}

// GetOrCreate returns id if a session exists under it, creating one with that
// id otherwise. Unknown client-supplied ids become new sessions rather than
// errors.
func (s *Store) GetOrCreate(id uuid.UUID, maxHistory int) uuid.UUID {
	if id == uuid.Nil {
		return s.Create(maxHistory)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		sess := chat.NewSession(maxHistory)
		sess.ID = id
		s.entries[id] = &entry{sess: sess}
	}
	return id
}

// Read returns a snapshot of the session, refreshing its activity time.
func (s *Store) Read(id uuid.UUID) (chat.SessionSnapshot, bool) {
	e := s.lookup(id)
	if e == nil {
		return chat.SessionSnapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.Touch()
	return e.sess.Snapshot(), true
}

// Mutate runs fn on the session under its entry lock. Returns false when the
// session no longer exists (evicted or removed), in which case fn never runs.
func (s *Store) Mutate(id uuid.UUID, fn func(*chat.Session)) bool {
	e := s.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.sess)
	return true
}

func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) lookup(id uuid.UUID) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}
