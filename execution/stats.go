package execution

import (
	"sync"

	"github.com/michaelpento.lv/arbengine/types"
)

// RollingStats keeps the last window confirmed outcomes per network
type RollingStats struct {
	mu       sync.RWMutex
	window   int
	outcomes map[types.Network][]bool
}

func NewRollingStats(window int) *RollingStats {
	if window <= 0 {
		window = 1
	}
	return &RollingStats{
		window:   window,
		outcomes: make(map[types.Network][]bool),
	}
}

// Add records one confirmed outcome; the oldest ages out past the window
func (s *RollingStats) Add(n types.Network, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := append(s.outcomes[n], success)
	if len(o) > s.window {
		o = o[len(o)-s.window:]
	}
	s.outcomes[n] = o
}

// SuccessRate returns the share of successes in the window and the sample count.
// A network with no samples reports a rate of 1.
func (s *RollingStats) SuccessRate(n types.Network) (float64, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o := s.outcomes[n]
	if len(o) == 0 {
		return 1, 0
	}
	successes := 0
	for _, ok := range o {
		if ok {
			successes++
		}
	}
	return float64(successes) / float64(len(o)), len(o)
}
