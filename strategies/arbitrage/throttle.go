package arbitrage

import (
	"sync"
	"time"

	"github.com/michaelpento.lv/arbengine/types"
	"golang.org/x/time/rate"
)

// throttle keeps each strategy from scanning a network more often than its interval
type throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newThrottle() *throttle {
	return &throttle{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether strategy may scan network now. A zero interval never throttles.
func (t *throttle) Allow(network types.Network, strategy types.Strategy, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}

	key := network.String() + "/" + string(strategy)

	t.mu.Lock()
	l, ok := t.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(interval), 1)
		t.limiters[key] = l
	}
	t.mu.Unlock()

	return l.Allow()
}
