package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/dex"
	"github.com/michaelpento.lv/arbengine/execution"
	"github.com/michaelpento.lv/arbengine/flashloan"
	"github.com/michaelpento.lv/arbengine/flashloan/aave"
	"github.com/michaelpento.lv/arbengine/flashloan/balancer"
	"github.com/michaelpento.lv/arbengine/gas"
	"github.com/michaelpento.lv/arbengine/journal"
	"github.com/michaelpento.lv/arbengine/notify"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/scanner"
	"github.com/michaelpento.lv/arbengine/simulator"
	"github.com/michaelpento.lv/arbengine/sizing"
	"github.com/michaelpento.lv/arbengine/strategies/arbitrage"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"github.com/michaelpento.lv/arbengine/utils/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	poolCacheSize     = 4096
	notifyQueueSize   = 64
	notifyTimeout     = 10 * time.Second
	simulationTimeout = 10 * time.Second
)

// Bot represents the arbitrage engine instance
type Bot struct {
	cfg         *config.Config
	registry    *prometheus.Registry
	metrics     *metrics.EngineMetrics
	chains      *rpc.Registry
	oracle      *gas.Oracle
	coordinator *execution.Coordinator
	loop        *scanner.Loop
	journal     *journal.RedisJournal
	discord     *notify.DiscordNotifier
	notifier    *notify.Async
	monitor     *monitor.SystemMonitor
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// New connects to every enabled network and assembles the engine
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", types.ErrFatal, config.EnvPrivateKey)
	}
	wallet, err := rpc.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFatal, err)
	}

	b := &Bot{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	b.metrics = metrics.NewEngineMetrics(b.registry)

	b.chains, err = rpc.Dial(ctx, cfg, wallet, logger)
	if err != nil {
		return nil, err
	}

	if err := b.assemble(ctx); err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

func (b *Bot) assemble(ctx context.Context) error {
	cfg, logger := b.cfg, b.logger

	reader, err := dex.NewReader(b.chains, poolCacheSize, logger)
	if err != nil {
		return fmt.Errorf("failed to create pool reader: %w", err)
	}

	b.oracle = gas.NewOracle(b.chains, cfg, b.metrics, logger)

	detector, err := arbitrage.NewDetector(cfg, reader, reader, b.chains, b.oracle, b.metrics, logger)
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}

	planner := flashloan.NewPlanner(cfg, logger)
	if err := b.registerProviders(planner); err != nil {
		return err
	}

	stats := execution.NewRollingStats(cfg.StatsWindow)
	validator := simulator.NewValidator(b.chains, b.oracle, stats, simulator.NewSimulator(simulationTimeout), b.metrics, logger)

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Discord.WebhookURL != "" {
		b.discord, err = notify.NewDiscordNotifier(cfg.Discord.WebhookURL, logger)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrFatal, err)
		}
		notifiers = append(notifiers, b.discord)
	}
	b.notifier = notify.NewAsync(notifiers, notifyQueueSize, notifyTimeout, b.metrics.NotificationsDropped, logger)

	deps := execution.Deps{
		Chains:     b.chains,
		Sizer:      sizing.NewSizer(cfg),
		Allocation: sizing.NewAllocation(cfg),
		Planner:    planner,
		Validator:  validator,
		Stats:      stats,
		Notifier:   b.notifier,
	}
	if cfg.Redis.Addr != "" {
		b.journal, err = journal.NewRedisJournal(ctx, cfg.Redis, logger)
		if err != nil {
			// the journal is observability only
			logger.Warn("Execution journal disabled", zap.Error(err))
		} else {
			deps.Journal = b.journal
		}
	}

	b.coordinator = execution.NewCoordinator(cfg, deps, b.metrics, logger)

	b.loop, err = scanner.NewLoop(cfg, detector, b.coordinator, b.metrics, logger)
	if err != nil {
		return err
	}
	return nil
}

// registerProviders adds the configured flash loan providers of every network
func (b *Bot) registerProviders(planner *flashloan.Planner) error {
	for _, n := range b.chains.Networks() {
		chain, err := b.chains.Chain(n)
		if err != nil {
			return err
		}

		for _, pc := range chain.Config.FlashLoanProviders {
			kind, err := flashloan.ParseProviderType(pc.Name)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", types.ErrFatal, n, err)
			}

			var provider flashloan.Provider
			switch kind {
			case flashloan.ProviderAave:
				provider, err = aave.NewAaveProvider(chain.Client, pc, b.logger)
			case flashloan.ProviderBalancer:
				provider, err = balancer.NewProvider(chain.Client, pc, b.logger)
			}
			if err != nil {
				return fmt.Errorf("%w: %s %s: %v", types.ErrFatal, n, pc.Name, err)
			}
			planner.AddProvider(n, provider)
		}
	}
	return nil
}

// Start starts the engine in the background. Cancelling ctx stops scanning;
// Stop then waits for everything to wind down.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting arbitrage engine",
		zap.Int("networks", len(b.chains.Networks())),
		zap.Float64("capital_usd", b.cfg.TotalCapitalUSD))

	b.oracle.Start(ctx)

	mon, err := monitor.NewSystemMonitor(ctx, b.registry, b.cfg.HealthInterval, b.logger)
	if err != nil {
		return fmt.Errorf("failed to start health monitor: %w", err)
	}
	b.monitor = mon

	if b.cfg.MetricsAddr != "" {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := metrics.Serve(ctx, b.cfg.MetricsAddr, b.registry, b.logger); err != nil {
				b.logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("Scan loop error", zap.Error(err))
		}
	}()

	return nil
}

// Stop waits for the scan loop and any execution in flight to finish, then
// releases every connection. The context passed to Start must be cancelled first.
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage engine...")
	b.wg.Wait()
	b.close()
	b.logger.Info("Arbitrage engine stopped")
}

func (b *Bot) close() {
	if b.oracle != nil {
		b.oracle.Stop()
	}
	if b.monitor != nil {
		_ = b.monitor.Cleanup()
	}
	if b.notifier != nil {
		b.notifier.Close()
	}
	if b.discord != nil {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		b.discord.Close(ctx)
		cancel()
	}
	if b.journal != nil {
		if err := b.journal.Close(); err != nil {
			b.logger.Warn("Failed to close journal", zap.Error(err))
		}
	}
	b.chains.Close()
}
