package rpc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaelpento.lv/arbengine/config"
	"go.uber.org/zap"
)

// CircuitBreaker stops traffic to an endpoint after ErrorThreshold failures
// within ResetInterval, and lets it through again after CooldownPeriod.
type CircuitBreaker struct {
	config      config.CircuitBreakerConfig
	errorCount  atomic.Uint64
	tripped     atomic.Bool
	lastReset   time.Time
	lastTripped time.Time
	mu          sync.Mutex
	now         func() time.Time
	logger      *zap.Logger
}

// NewCircuitBreaker creates a breaker; a disabled config yields a breaker that never trips
func NewCircuitBreaker(cfg config.CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		config:    cfg,
		lastReset: time.Now(),
		now:       time.Now,
		logger:    logger,
	}
}

// RecordError counts a failure and reports whether it tripped the breaker
func (cb *CircuitBreaker) RecordError(err error) bool {
	if !cb.config.Enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rollWindow()
	newCount := cb.errorCount.Add(1)

	if int(newCount) >= cb.config.ErrorThreshold && !cb.tripped.Load() {
		cb.tripped.Store(true)
		cb.lastTripped = cb.now()
		cb.logger.Warn("Circuit breaker tripped",
			zap.Uint64("error_count", newCount),
			zap.Error(err))
		return true
	}

	return false
}

// RecordSuccess clears the error count once the breaker is closed again
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled || cb.tripped.Load() {
		return
	}
	cb.errorCount.Store(0)
}

// IsHealthy reports whether calls may go through
func (cb *CircuitBreaker) IsHealthy() bool {
	if !cb.config.Enabled || !cb.tripped.Load() {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.now().Sub(cb.lastTripped) >= cb.config.CooldownPeriod {
		cb.tripped.Store(false)
		cb.errorCount.Store(0)
		cb.lastReset = cb.now()
		cb.logger.Info("Circuit breaker reset",
			zap.Duration("cooldown_period", cb.config.CooldownPeriod))
		return true
	}
	return false
}

// rollWindow must be called with mu held
func (cb *CircuitBreaker) rollWindow() {
	if cb.now().Sub(cb.lastReset) >= cb.config.ResetInterval {
		cb.errorCount.Store(0)
		cb.lastReset = cb.now()
	}
}
