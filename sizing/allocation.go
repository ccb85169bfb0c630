package sizing

import (
	"sync"
	"time"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/types"
)

// DailyStats counts one network's executions for the current local day
type DailyStats struct {
	Date       string
	Executions int
	Successes  int
	ProfitUSD  float64
}

// Allocation splits the total capital across networks and keeps daily counters
type Allocation struct {
	mu      sync.Mutex
	capital map[types.Network]float64
	daily   map[types.Network]*DailyStats
	now     func() time.Time
}

// NewAllocation gives every enabled network TotalCapitalUSD x CapitalWeight
func NewAllocation(cfg *config.Config) *Allocation {
	a := &Allocation{
		capital: make(map[types.Network]float64),
		daily:   make(map[types.Network]*DailyStats),
		now:     time.Now,
	}
	for _, n := range cfg.EnabledNetworks() {
		nc, _ := cfg.Network(n)
		a.capital[n] = cfg.TotalCapitalUSD * nc.CapitalWeight
	}
	return a
}

// Capital returns the USD allocated to n, zero for unknown networks
func (a *Allocation) Capital(n types.Network) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capital[n]
}

// Record counts a finished execution. The counters reset when the local date changes.
func (a *Allocation) Record(n types.Network, success bool, profitUSD float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.today(n)
	s.Executions++
	if success {
		s.Successes++
		s.ProfitUSD += profitUSD
	}
}

// Daily returns today's counters for n
func (a *Allocation) Daily(n types.Network) DailyStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.today(n)
}

func (a *Allocation) today(n types.Network) *DailyStats {
	date := a.now().Format("2006-01-02")
	s, ok := a.daily[n]
	if !ok || s.Date != date {
		s = &DailyStats{Date: date}
		a.daily[n] = s
	}
	return s
}
