package execution

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Cooldown remembers when each opportunity key may execute again. It is kept
// in memory only.
type Cooldown struct {
	mu    sync.Mutex
	until map[uint64]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{until: make(map[uint64]time.Time)}
}

// Mark starts a cooldown of window for key at now
func (c *Cooldown) Mark(key string, now time.Time, window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[xxhash.Sum64String(key)] = now.Add(window)
	c.evict(now)
}

// Active reports whether key is still cooling down at now
func (c *Cooldown) Active(key string, now time.Time) bool {
	return c.Remaining(key, now) > 0
}

// Remaining returns how long key keeps cooling down after now
func (c *Cooldown) Remaining(key string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.until[xxhash.Sum64String(key)]
	if !ok || !until.After(now) {
		return 0
	}
	return until.Sub(now)
}

// Len returns the number of tracked keys
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.until)
}

// evict drops expired entries. Must hold mu.
func (c *Cooldown) evict(now time.Time) {
	for k, until := range c.until {
		if !until.After(now) {
			delete(c.until, k)
		}
	}
}
