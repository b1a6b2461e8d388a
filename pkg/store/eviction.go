package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StartEvictionLoop launches the background idle sweep. Safe to call more
// than once; only the first call starts a loop. The loop stops when ctx is
// cancelled.
func (s *Store) StartEvictionLoop(ctx context.Context) {
	if s == nil || s.ttl <= 0 || s.evictInterval <= 0 {
		return
	}
	s.mu.Lock()
	if s.evictRunning {
		s.mu.Unlock()
		return
	}
	s.evictRunning = true
	s.mu.Unlock()

	log.Info().Str("component", "store").
		Dur("interval", s.evictInterval).
		Dur("ttl", s.ttl).
		Msg("starting session eviction loop")
	go s.runEvictionLoop(ctx)
}

func (s *Store) runEvictionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.evictRunning = false
			s.mu.Unlock()
			return
		case now := <-ticker.C:
			evicted := s.evictIdleOnce(now)
			if evicted > 0 {
				log.Info().Str("component", "store").Int("evicted", evicted).Msg("evicted idle sessions")
			}
		}
	}
}

// evictIdleOnce removes sessions idle past the TTL. Candidates are gathered
// from a snapshot of the map; staleness is judged under the entry lock so a
// racing Append either lands before the check (session survives) or waits and
// lands before the delete (session is evicted whole, never half-updated), and
// membership is re-checked under the map lock before deleting.
func (s *Store) evictIdleOnce(now time.Time) int {
	type candidate struct {
		id uuid.UUID
		e  *entry
	}

	s.mu.RLock()
	candidates := make([]candidate, 0, len(s.entries))
	for id, e := range s.entries {
		candidates = append(candidates, candidate{id: id, e: e})
	}
	s.mu.RUnlock()

	evicted := 0
	for _, c := range candidates {
		c.e.mu.Lock()
		stale := now.Sub(c.e.sess.LastActive) >= s.ttl
		if stale {
			s.mu.Lock()
			if s.entries[c.id] == c.e {
				delete(s.entries, c.id)
				evicted++
				log.Debug().Str("component", "store").
					Str("session_id", c.id.String()).
					Time("last_active", c.e.sess.LastActive).
					Msg("evicting idle session")
			}
			s.mu.Unlock()
		}
		c.e.mu.Unlock()
	}
	return evicted
}
