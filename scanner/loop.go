package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/execution"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"go.uber.org/zap"
)

// Detector produces ranked opportunities. *arbitrage.Detector implements it.
type Detector interface {
	Detect(ctx context.Context, networks []types.Network) []*types.Opportunity
}

// Executor runs one opportunity at a time. *execution.Coordinator implements it.
type Executor interface {
	Execute(ctx context.Context, opp *types.Opportunity) (*types.ExecutionRecord, error)
	Shutdown()
}

var _ Executor = (*execution.Coordinator)(nil)

// Loop scans on a fixed interval and hands candidates to the executor in rank order
type Loop struct {
	cfg      *config.Config
	networks []types.Network
	interval time.Duration
	detector Detector
	executor Executor
	metrics  *metrics.EngineMetrics
	logger   *zap.Logger

	scanning atomic.Bool
	scans    sync.WaitGroup
}

// NewLoop creates a scan loop over the enabled networks
func NewLoop(cfg *config.Config, detector Detector, executor Executor, m *metrics.EngineMetrics, logger *zap.Logger) (*Loop, error) {
	networks := cfg.EnabledNetworks()
	if len(networks) == 0 {
		return nil, fmt.Errorf("%w: no enabled networks", types.ErrFatal)
	}

	return &Loop{
		cfg:      cfg,
		networks: networks,
		interval: Interval(cfg),
		detector: detector,
		executor: executor,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Interval returns the shortest scan interval among the enabled networks,
// falling back to the global scan interval
func Interval(cfg *config.Config) time.Duration {
	interval := cfg.ScanInterval
	for _, n := range cfg.EnabledNetworks() {
		nc, _ := cfg.Network(n)
		if nc.ScanInterval > 0 && (interval <= 0 || nc.ScanInterval < interval) {
			interval = nc.ScanInterval
		}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return interval
}

// Run scans until ctx is done. On exit it stops the executor, waiting for an
// execution in flight to reach a terminal state.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Starting scan loop",
		zap.Duration("interval", l.interval),
		zap.Int("networks", len(l.networks)))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping scan loop")
			l.scans.Wait()
			l.executor.Shutdown()
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick starts a scan unless the previous one is still running
func (l *Loop) tick(ctx context.Context) {
	if !l.scanning.CompareAndSwap(false, true) {
		l.metrics.SkippedTicks.Inc()
		l.logger.Debug("Skipping tick, scan in flight")
		return
	}

	l.scans.Add(1)
	go func() {
		defer l.scans.Done()
		defer l.scanning.Store(false)
		l.Scan(ctx)
	}()
}

// Scan runs one detection pass and executes the best candidate that gets
// through. It returns the number of executions that reached a terminal state.
func (l *Loop) Scan(ctx context.Context) int {
	opps := l.detector.Detect(ctx, l.networks)
	if len(opps) > l.cfg.MaxOpportunities && l.cfg.MaxOpportunities > 0 {
		opps = opps[:l.cfg.MaxOpportunities]
	}
	if len(opps) == 0 {
		return 0
	}

	l.logger.Debug("Scan complete", zap.Int("candidates", len(opps)))

	executed := 0
	for _, opp := range opps {
		if ctx.Err() != nil {
			break
		}

		rec, err := l.executor.Execute(ctx, opp)
		switch {
		case err == nil:
			executed++
			l.logger.Info("Execution finished",
				zap.String("key", opp.Key()),
				zap.String("outcome", string(rec.Outcome)))
			return executed

		case errors.Is(err, execution.ErrBusy), errors.Is(err, execution.ErrShuttingDown):
			l.logger.Debug("Executor unavailable", zap.Error(err))
			return executed

		case errors.Is(err, execution.ErrCooldown):
			l.logger.Debug("Candidate cooling down", zap.String("key", opp.Key()))

		case errors.As(err, new(*types.RejectionError)):
			// already logged and counted

		case errors.Is(err, types.ErrSubmissionFailed):
			// reached the node and failed there; the next tick sees fresh state
			return executed

		default:
			l.logger.Warn("Execution error",
				zap.String("key", opp.Key()),
				zap.Error(err))
		}
	}
	return executed
}
