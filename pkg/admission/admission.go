// Package admission gates request intake with one token bucket per client
// key. Buckets refill continuously; a denied check consumes nothing.
package admission

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	cleanupInterval = time.Minute
	staleHorizon    = 3 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Controller holds per-key limiters and prunes keys not seen for a while so
// one-off clients do not accumulate forever.
type Controller struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	done    chan struct{}
	once    sync.Once
}

func NewController(perSecond int) *Controller {
	if perSecond < 1 {
		perSecond = 1
	}
	c := &Controller{
		buckets: map[string]*bucket{},
		rate:    rate.Limit(perSecond),
		burst:   perSecond,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Check reports whether one request from key is admitted right now.
func (c *Controller) Check(key string) bool {
	return c.checkAt(key, time.Now())
}

func (c *Controller) checkAt(key string, now time.Time) bool {
	c.mu.Lock()
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(c.rate, c.burst)}
		c.buckets[key] = b
	}
	b.lastSeen = now
	c.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

func (c *Controller) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Controller) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			removed := c.removeStale(now)
			if removed > 0 {
				log.Debug().Str("component", "admission").Int("removed", removed).Msg("pruned stale rate limit buckets")
			}
		}
	}
}

func (c *Controller) removeStale(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, b := range c.buckets {
		if now.Sub(b.lastSeen) >= staleHorizon {
			delete(c.buckets, key)
			removed++
		}
	}
	return removed
}
