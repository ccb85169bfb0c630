package arbitrage

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/types"
)

// scanTriangular walks each configured cycle A -> B -> C -> A in both
// directions, taking the best-priced dex for every hop
func (d *Detector) scanTriangular(ctx context.Context, nc *config.NetworkConfig) ([]*types.Opportunity, error) {
	var (
		opps    []*types.Opportunity
		scanned int
		lastErr error
	)

	for _, cycle := range nc.Triangles {
		if len(cycle) != 3 {
			continue
		}
		tokens, err := resolveTokens(nc, cycle)
		if err != nil {
			return nil, err
		}

		hops := make([][]*types.PoolLeg, 3)
		for i := range tokens {
			legs, err := d.readLegs(ctx, nc, nc.Dexes, tokens[i], tokens[(i+1)%3])
			if err != nil {
				lastErr = err
				hops = nil
				break
			}
			hops[i] = legs
		}
		if hops == nil {
			continue
		}
		scanned++

		forward := []*types.PoolLeg{best(hops[0]), best(hops[1]), best(hops[2])}
		backward := []*types.PoolLeg{best(reversed(hops[2])), best(reversed(hops[1])), best(reversed(hops[0]))}

		for _, route := range [][]*types.PoolLeg{forward, backward} {
			if opp := d.checkCycle(nc, tokens[0], route); opp != nil {
				opps = append(opps, opp)
			}
		}
	}

	if scanned == 0 && lastErr != nil {
		return nil, fmt.Errorf("no cycle could be read: %w", lastErr)
	}
	return opps, nil
}

// checkCycle accepts a cycle when the product of its prices deviates from one
// by more than the summed fees plus the network margin
func (d *Detector) checkCycle(nc *config.NetworkConfig, base types.Token, route []*types.PoolLeg) *types.Opportunity {
	product := 1.0
	fees := float64(nc.MinTriangularMarginBps) / 10000
	for _, leg := range route {
		if leg == nil || leg.Price <= 0 {
			return nil
		}
		product *= leg.Price
		fees += leg.FeeFraction()
	}

	// Only the direction with product above one returns more than it takes
	deviation := product - 1
	if deviation <= fees {
		return nil
	}

	return d.price(nc, candidate{
		strategy:    types.StrategyTriangular,
		base:        base,
		counter:     route[0].TokenOut,
		route:       route,
		confidence:  nc.TriangularConfidence,
		discrepancy: deviation,
	})
}

func best(legs []*types.PoolLeg) *types.PoolLeg {
	var top *types.PoolLeg
	for _, leg := range legs {
		if top == nil || leg.Price > top.Price {
			top = leg
		}
	}
	return top
}

func reversed(legs []*types.PoolLeg) []*types.PoolLeg {
	out := make([]*types.PoolLeg, len(legs))
	for i, leg := range legs {
		out[i] = leg.Reverse()
	}
	return out
}
