package arbitrage

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/dex"
	"github.com/michaelpento.lv/arbengine/types"
	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GasEstimator sizes the gas limit of a route. *gas.Oracle implements it.
type GasEstimator interface {
	EstimateRouteGas(n types.Network, legs int) uint64
}

// ListingSource reports pools created by tracked factories. *dex.Reader implements it.
type ListingSource interface {
	RecentPools(ctx context.Context, network types.Network, dexes []config.DexConfig, fromBlock, toBlock uint64) ([]dex.PoolCreated, error)
}

var _ ListingSource = (*dex.Reader)(nil)

type strategy struct {
	name     types.Strategy
	interval func(nc *config.NetworkConfig) time.Duration
	scan     func(ctx context.Context, nc *config.NetworkConfig) ([]*types.Opportunity, error)
}

// Detector runs the detection strategies over every network and merges their
// output into one ranked, deduplicated list
type Detector struct {
	cfg      *config.Config
	pools    dex.PoolReader
	listings ListingSource
	clients  dex.ClientSource
	gas      GasEstimator
	metrics  *metrics.EngineMetrics
	logger   *zap.Logger

	strategies  []strategy
	throttle    *throttle
	persistence *persistence
	listing     *listingState

	now func() time.Time
}

// NewDetector creates a detector. listings may be nil, which disables the new-listing scan.
func NewDetector(cfg *config.Config, pools dex.PoolReader, listings ListingSource, clients dex.ClientSource, gas GasEstimator, m *metrics.EngineMetrics, logger *zap.Logger) (*Detector, error) {
	d := &Detector{
		cfg:         cfg,
		pools:       pools,
		listings:    listings,
		clients:     clients,
		gas:         gas,
		metrics:     m,
		logger:      logger,
		throttle:    newThrottle(),
		persistence: newPersistence(cfg.PersistenceRetention),
		now:         time.Now,
	}

	d.strategies = []strategy{
		{
			name:     types.StrategyDirect,
			interval: func(nc *config.NetworkConfig) time.Duration { return nc.DirectInterval },
			scan:     d.scanDirect,
		},
		{
			name:     types.StrategyTriangular,
			interval: func(nc *config.NetworkConfig) time.Duration { return nc.TriangularInterval },
			scan:     d.scanTriangular,
		},
	}

	if listings != nil {
		state, err := newListingState()
		if err != nil {
			return nil, err
		}
		d.listing = state
		d.strategies = append(d.strategies, strategy{
			name:     types.StrategyNewListing,
			interval: func(nc *config.NetworkConfig) time.Duration { return nc.ListingInterval },
			scan:     d.scanListings,
		})
	}

	return d, nil
}

// Detect runs every strategy on every network concurrently. A failing branch is
// logged and counted and never affects the other branches.
func (d *Detector) Detect(ctx context.Context, networks []types.Network) []*types.Opportunity {
	start := d.now()
	defer func() {
		d.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	type branch struct {
		network  types.Network
		strategy types.Strategy
		opps     []*types.Opportunity
	}
	var branches []*branch

	var g errgroup.Group
	for _, n := range networks {
		nc, ok := d.cfg.Network(n)
		if !ok || nc.Disabled {
			continue
		}
		for _, s := range d.strategies {
			b := &branch{network: n, strategy: s.name}
			branches = append(branches, b)
			s := s

			g.Go(func() error {
				if !d.throttle.Allow(b.network, s.name, s.interval(nc)) {
					return nil
				}
				opps, err := s.scan(ctx, nc)
				if err != nil {
					d.metrics.StrategyErrors.WithLabelValues(b.network.String(), string(s.name)).Inc()
					d.logger.Warn("Strategy scan failed",
						zap.String("network", b.network.String()),
						zap.String("strategy", string(s.name)),
						zap.Error(err))
					return nil
				}
				b.opps = opps
				return nil
			})
		}
	}
	_ = g.Wait()

	now := d.now()
	var found []*types.Opportunity
	for _, b := range branches {
		for _, opp := range b.opps {
			if err := opp.Validate(now); err != nil {
				d.logger.Debug("Dropping invalid opportunity",
					zap.String("key", opp.Key()),
					zap.String("strategy", string(opp.Strategy)),
					zap.Error(err))
				continue
			}
			found = append(found, opp)
		}
	}

	ranked := d.rank(found)
	ranked = dedup(ranked, d.cfg.DedupEpsilonUSD)
	if max := d.cfg.MaxOpportunities; max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}

	d.persistence.Evict(now)
	for _, opp := range ranked {
		seconds := d.persistence.Observe(opp.Key(), now)
		opp.PersistenceSeconds = &seconds
		d.metrics.OpportunitiesDetected.WithLabelValues(opp.Network.String(), string(opp.Strategy)).Inc()
	}

	if len(ranked) > 0 {
		d.logger.Info("Detected opportunities",
			zap.Int("count", len(ranked)),
			zap.Float64("best_profit_usd", ranked[0].ProfitUSD),
			zap.Duration("took", time.Since(start)))
	}

	return ranked
}

// rank orders opportunities by profit scaled by the network rank weight
func (d *Detector) rank(opps []*types.Opportunity) []*types.Opportunity {
	weight := make(map[types.Network]float64)
	for _, opp := range opps {
		if _, ok := weight[opp.Network]; ok {
			continue
		}
		w := 1.0
		if nc, ok := d.cfg.Network(opp.Network); ok && nc.RankWeight > 0 {
			w = nc.RankWeight
		}
		weight[opp.Network] = w
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].ProfitUSD*weight[opps[i].Network] > opps[j].ProfitUSD*weight[opps[j].Network]
	})
	return opps
}

// dedup keeps the first of any opportunities sharing a key whose profits are within epsilon
func dedup(opps []*types.Opportunity, epsilon float64) []*types.Opportunity {
	kept := make(map[string][]float64)
	out := opps[:0]
	for _, opp := range opps {
		key := opp.Key()
		duplicate := false
		for _, profit := range kept[key] {
			if math.Abs(profit-opp.ProfitUSD) < epsilon {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept[key] = append(kept[key], opp.ProfitUSD)
		out = append(out, opp)
	}
	return out
}

// candidate carries what a strategy measured before the route is probed
type candidate struct {
	strategy    types.Strategy
	base        types.Token
	counter     common.Address
	route       []*types.PoolLeg
	confidence  float64
	discrepancy float64
}

// price probes the candidate route with the network probe amount and turns it
// into an opportunity. It returns nil when the probe does not come back ahead.
func (d *Detector) price(nc *config.NetworkConfig, c candidate) *types.Opportunity {
	if c.base.USDPrice <= 0 || len(c.route) == 0 {
		return nil
	}

	probe := arbmath.FromFloat(nc.ProbeAmountUSD/c.base.USDPrice, c.base.Decimals)
	amountIn := dex.ProbeAmount(c.route, probe)
	if amountIn.Sign() <= 0 {
		return nil
	}

	out := dex.QuoteRoute(c.route, amountIn)
	gain := new(big.Int).Sub(out, amountIn)
	if gain.Sign() <= 0 {
		return nil
	}

	impact := dex.RouteImpact(c.route, amountIn)
	discrepancy := c.discrepancy * 100
	now := d.now()

	return &types.Opportunity{
		Network:           nc.Name,
		Strategy:          c.strategy,
		TokenIn:           c.base.Address,
		TokenOut:          c.counter,
		TokenInDecimals:   c.base.Decimals,
		TokenInUSD:        c.base.USDPrice,
		AmountIn:          amountIn,
		ExpectedAmountOut: out,
		ProfitUSD:         arbmath.ToFloat(gain, c.base.Decimals) * c.base.USDPrice,
		Route:             c.route,
		GasEstimate:       d.gas.EstimateRouteGas(nc.Name, len(c.route)),
		Deadline:          now.Add(nc.DeadlineWindow),
		Confidence:        arbmath.Clamp(c.confidence*(1-impact), 0, 1),
		DetectedAt:        now,
		DiscrepancyPct:    &discrepancy,
	}
}

// resolveTokens looks up symbols among the network's tracked tokens
func resolveTokens(nc *config.NetworkConfig, symbols []string) ([]types.Token, error) {
	tokens := make([]types.Token, 0, len(symbols))
	for _, s := range symbols {
		t, ok := nc.Token(s)
		if !ok {
			return nil, fmt.Errorf("token %s is not configured on %s", s, nc.Name)
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// readLegs reads tokenIn -> tokenOut on every dex. Failed reads are logged and
// skipped; the error is returned only when every dex failed.
func (d *Detector) readLegs(ctx context.Context, nc *config.NetworkConfig, dexes []config.DexConfig, tokenIn, tokenOut types.Token) ([]*types.PoolLeg, error) {
	var (
		legs     []*types.PoolLeg
		failures int
		lastErr  error
	)
	for _, dx := range dexes {
		leg, ok, err := d.pools.ReadPool(ctx, nc.Name, dx, tokenIn, tokenOut)
		if err != nil {
			failures++
			lastErr = err
			d.logger.Debug("Pool read failed",
				zap.String("network", nc.Name.String()),
				zap.String("dex", dx.Name),
				zap.String("token_in", tokenIn.Symbol),
				zap.String("token_out", tokenOut.Symbol),
				zap.Error(err))
			continue
		}
		if ok {
			legs = append(legs, leg)
		}
	}
	if failures > 0 && failures == len(dexes) {
		return nil, lastErr
	}
	return legs, nil
}
