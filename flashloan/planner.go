package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/types"
	"go.uber.org/zap"
)

// Planner chooses between direct execution and a flash loan for each position
type Planner struct {
	mu        sync.RWMutex
	cfg       *config.Config
	providers map[types.Network][]Provider
	logger    *zap.Logger
}

// NewPlanner creates a planner with no providers registered
func NewPlanner(cfg *config.Config, logger *zap.Logger) *Planner {
	return &Planner{
		cfg:       cfg,
		providers: make(map[types.Network][]Provider),
		logger:    logger,
	}
}

// AddProvider registers a provider for a network
func (p *Planner) AddProvider(n types.Network, provider Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.providers[n] = append(p.providers[n], provider)
}

// Providers returns the providers of n, cheapest first
func (p *Planner) Providers(n types.Network) []Provider {
	p.mu.RLock()
	out := append([]Provider(nil), p.providers[n]...)
	p.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].FeeBps() < out[j].FeeBps() })
	return out
}

// Plan funds positions at or below the network flash loan threshold directly.
// Larger positions borrow from the cheapest provider holding enough liquidity.
func (p *Planner) Plan(ctx context.Context, n types.Network, token common.Address, amount *big.Int, positionUSD float64) (Plan, error) {
	nc, ok := p.cfg.Network(n)
	if !ok {
		return Plan{}, fmt.Errorf("network %s is not configured", n)
	}
	if positionUSD <= nc.FlashLoanThresholdUSD {
		return DirectPlan(), nil
	}

	for _, provider := range p.Providers(n) {
		liquidity, err := provider.Liquidity(ctx, token)
		if err != nil {
			p.logger.Warn("Failed to get provider liquidity",
				zap.String("network", n.String()),
				zap.String("provider", provider.String()),
				zap.Error(err))
			continue
		}
		if liquidity.Cmp(amount) < 0 {
			p.logger.Debug("Provider liquidity too low",
				zap.String("provider", provider.String()),
				zap.String("liquidity", liquidity.String()),
				zap.String("amount", amount.String()))
			continue
		}

		return Plan{
			Flash:    true,
			Provider: provider.Type(),
			Address:  provider.Address(),
			FeeBps:   provider.FeeBps(),
			ExtraGas: FlashOverheadGas,
		}, nil
	}

	return Plan{}, fmt.Errorf("%w: %s of %s on %s", ErrNoProvider, amount, token.Hex(), n)
}
