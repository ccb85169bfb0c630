package arbitrage

import (
	"sync"
	"time"
)

type sighting struct {
	first time.Time
	last  time.Time
}

// persistence remembers when each opportunity key was first seen. Keys not
// observed within the retention window are forgotten.
type persistence struct {
	mu        sync.Mutex
	retention time.Duration
	seen      map[string]sighting
}

func newPersistence(retention time.Duration) *persistence {
	return &persistence{
		retention: retention,
		seen:      make(map[string]sighting),
	}
}

// Observe records a sighting of key at now and returns for how long it has been seen
func (p *persistence) Observe(key string, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.seen[key]
	if !ok || now.Sub(s.last) > p.retention {
		s.first = now
	}
	s.last = now
	p.seen[key] = s

	return now.Sub(s.first).Seconds()
}

// Evict drops keys last seen before now - retention
func (p *persistence) Evict(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for key, s := range p.seen {
		if now.Sub(s.last) > p.retention {
			delete(p.seen, key)
			evicted++
		}
	}
	return evicted
}

func (p *persistence) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}
