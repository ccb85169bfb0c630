package gas

import (
	"context"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source tells where a gas price came from
type Source string

const (
	SourceLive    Source = "live"
	SourceHistory Source = "history"
	SourceDefault Source = "default"
)

// GasPrice is the price to bid for one network. Capped is set when the
// configured maximum replaced a higher reading.
type GasPrice struct {
	Wei    *big.Int
	Tip    *big.Int
	Source Source
	Capped bool
}

// ClientSource resolves the chain client of a network
type ClientSource interface {
	Client(n types.Network) (rpc.Client, error)
}

// Oracle tracks per-network gas prices with a bounded rolling history that a
// background timer refreshes independently of scanning.
type Oracle struct {
	clients ClientSource
	cfg     *config.Config
	metrics *metrics.EngineMetrics
	logger  *zap.Logger

	mu      sync.RWMutex
	history map[types.Network][]*big.Int
	tips    map[types.Network]*big.Int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOracle creates a gas oracle
func NewOracle(clients ClientSource, cfg *config.Config, m *metrics.EngineMetrics, logger *zap.Logger) *Oracle {
	return &Oracle{
		clients: clients,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		history: make(map[types.Network][]*big.Int),
		tips:    make(map[types.Network]*big.Int),
	}
}

func (o *Oracle) network(n types.Network) config.NetworkConfig {
	if nc, ok := o.cfg.Network(n); ok {
		return *nc
	}
	d, _ := config.NetworkDefaults(n)
	return d
}

// Start samples every enabled network once, then keeps refreshing on
// GasRefreshInterval until Stop or ctx cancellation.
func (o *Oracle) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	o.refreshAll(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cfg.GasRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.refreshAll(ctx)
			}
		}
	}()
}

// Stop stops the background refresh and waits for it to exit
func (o *Oracle) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

func (o *Oracle) refreshAll(ctx context.Context) {
	var g errgroup.Group
	for _, n := range o.cfg.EnabledNetworks() {
		n := n
		g.Go(func() error {
			if err := o.Refresh(ctx, n); err != nil {
				o.logger.Warn("Failed to refresh gas price",
					zap.String("network", n.String()),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Refresh takes one live sample for n and appends it to the history
func (o *Oracle) Refresh(ctx context.Context, n types.Network) error {
	_, err := o.sample(ctx, n)
	return err
}

func (o *Oracle) sample(ctx context.Context, n types.Network) (*rpc.FeeData, error) {
	c, err := o.clients.Client(n)
	if err != nil {
		return nil, err
	}

	if o.cfg.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RPCTimeout)
		defer cancel()
	}

	fee, err := rpc.GetFeeData(ctx, c, o.network(n).LegacyTx)
	if err != nil {
		return nil, err
	}

	o.record(n, fee)
	return fee, nil
}

func (o *Oracle) record(n types.Network, fee *rpc.FeeData) {
	size := o.cfg.GasHistorySize
	if size <= 0 {
		size = 1
	}

	o.mu.Lock()
	h := append(o.history[n], new(big.Int).Set(fee.GasPrice))
	if len(h) > size {
		h = h[len(h)-size:]
	}
	o.history[n] = h
	if fee.Tip != nil {
		o.tips[n] = new(big.Int).Set(fee.Tip)
	}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.GasPriceGwei.WithLabelValues(n.String()).Set(arbmath.WeiToGwei(fee.GasPrice))
	}
}

// Average returns the mean of the rolling history for n
func (o *Oracle) Average(n types.Network) (*big.Int, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	h := o.history[n]
	if len(h) == 0 {
		return nil, false
	}
	sum := new(big.Int)
	for _, p := range h {
		sum.Add(sum, p)
	}
	return sum.Div(sum, big.NewInt(int64(len(h)))), true
}

// PriceFor returns the gas price to bid on n: a live reading, else the
// rolling average, else the network default. The result never exceeds the
// network's MaxGasPriceGwei; callers judge whether a capped price still pays.
func (o *Oracle) PriceFor(ctx context.Context, n types.Network) GasPrice {
	var price GasPrice

	if fee, err := o.sample(ctx, n); err == nil {
		price = GasPrice{Wei: fee.GasPrice, Tip: fee.Tip, Source: SourceLive}
	} else if avg, ok := o.Average(n); ok {
		o.logger.Debug("Using average gas price", zap.String("network", n.String()), zap.Error(err))
		price = GasPrice{Wei: avg, Source: SourceHistory}
	} else {
		o.logger.Debug("Using default gas price", zap.String("network", n.String()), zap.Error(err))
		price = GasPrice{Wei: arbmath.GweiToWei(o.network(n).DefaultGasPriceGwei), Source: SourceDefault}
	}

	if maxPrice := arbmath.GweiToWei(o.network(n).MaxGasPriceGwei); maxPrice.Sign() > 0 && price.Wei.Cmp(maxPrice) > 0 {
		price.Wei = maxPrice
		price.Capped = true
	}

	if price.Tip == nil {
		o.mu.RLock()
		if tip, ok := o.tips[n]; ok {
			price.Tip = new(big.Int).Set(tip)
		}
		o.mu.RUnlock()
	}
	if price.Tip == nil || price.Tip.Cmp(price.Wei) > 0 {
		price.Tip = new(big.Int).Set(price.Wei)
	}

	return price
}

// CostUSD values gasLimit at the current price of n in USD
func (o *Oracle) CostUSD(ctx context.Context, n types.Network, gasLimit uint64) float64 {
	return CostUSD(o.PriceFor(ctx, n), gasLimit, o.network(n).NativeUSD)
}

// CostUSD values gasLimit at price
func CostUSD(price GasPrice, gasLimit uint64, nativeUSD float64) float64 {
	wei := new(big.Int).Mul(price.Wei, new(big.Int).SetUint64(gasLimit))
	return arbmath.WeiToUSD(wei, nativeUSD)
}

// EstimateRouteGas scales the per-leg gas limit by route length and adds the
// network's safety buffer
func (o *Oracle) EstimateRouteGas(n types.Network, legs int) uint64 {
	nc := o.network(n)
	if legs < 1 {
		legs = 1
	}
	base := float64(nc.BaseGasPerLeg) * float64(legs)
	return uint64(math.Round(base * (1 + nc.GasBufferPct/100)))
}
