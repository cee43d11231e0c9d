package slicecache

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Sweep deletions are paced so a large backlog of expired slices cannot
// monopolize the store.
const (
	sweepDeletesPerSecond = 100
	sweepBurst            = 10
)

// sweeper periodically removes expired entries in the background. It is
// purely an optimization: the read path's lazy expiry check remains the
// source of truth, so a slow or stopped sweeper never affects
// correctness.
type sweeper struct {
	c        *Cache
	interval time.Duration
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSweeper(c *Cache, interval time.Duration) *sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &sweeper{
		c:        c,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(sweepDeletesPerSecond), sweepBurst),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (s *sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes every entry that is already expired at sweep time. Each
// removal re-checks expiry under the entry's per-key lock so a slice
// re-inserted mid-sweep is never dropped.
func (s *sweeper) sweep() {
	c := s.c
	now := c.nowFunc()

	c.mu.RLock()
	var expired []string
	for key, meta := range c.index {
		if c.isExpired(meta.createdAt, now) {
			expired = append(expired, key)
		}
	}
	c.mu.RUnlock()

	for _, key := range expired {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return // shutting down
		}

		unlock := c.locks.Lock(key)
		c.mu.RLock()
		meta, live := c.index[key]
		c.mu.RUnlock()
		if live && c.isExpired(meta.createdAt, now) {
			c.removeExpired(s.ctx, key)
		}
		unlock()
	}
}

// close stops the sweeper and waits for an in-flight pass to finish.
func (s *sweeper) close() {
	s.cancel()
	<-s.done
}
