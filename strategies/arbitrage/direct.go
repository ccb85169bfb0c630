package arbitrage

import (
	"context"
	"fmt"
	"math"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/types"
)

// scanDirect compares every tracked pair across every pair of dexes. The route
// sells the base token where it fetches the most and buys it back where it is cheapest.
func (d *Detector) scanDirect(ctx context.Context, nc *config.NetworkConfig) ([]*types.Opportunity, error) {
	var (
		opps    []*types.Opportunity
		scanned int
		lastErr error
	)

	for _, pair := range nc.Pairs {
		if len(pair) != 2 {
			continue
		}
		tokens, err := resolveTokens(nc, pair)
		if err != nil {
			return nil, err
		}
		base, quote := tokens[0], tokens[1]

		legs, err := d.readLegs(ctx, nc, nc.Dexes, base, quote)
		if err != nil {
			lastErr = err
			continue
		}
		scanned++

		for i := 0; i < len(legs); i++ {
			for j := i + 1; j < len(legs); j++ {
				if opp := d.compareVenues(nc, types.StrategyDirect, nc.DirectConfidence, base, legs[i], legs[j]); opp != nil {
					opps = append(opps, opp)
				}
			}
		}
	}

	if scanned == 0 && lastErr != nil {
		return nil, fmt.Errorf("no pair could be read: %w", lastErr)
	}
	return opps, nil
}

// compareVenues prices two pools of the same pair (both oriented base -> quote)
// and returns an opportunity when the spread clears fees plus the network threshold
func (d *Detector) compareVenues(nc *config.NetworkConfig, name types.Strategy, confidence float64, base types.Token, a, b *types.PoolLeg) *types.Opportunity {
	if a.Price <= 0 || b.Price <= 0 || a.PoolAddress == b.PoolAddress {
		return nil
	}

	spread := math.Abs(a.Price-b.Price) / math.Min(a.Price, b.Price)
	threshold := a.FeeFraction() + b.FeeFraction() + float64(nc.MinSpreadBps)/10000
	if spread <= threshold {
		return nil
	}

	sell, buy := a, b
	if b.Price > a.Price {
		sell, buy = b, a
	}

	return d.price(nc, candidate{
		strategy:    name,
		base:        base,
		counter:     sell.TokenOut,
		route:       []*types.PoolLeg{sell, buy.Reverse()},
		confidence:  confidence,
		discrepancy: spread,
	})
}
