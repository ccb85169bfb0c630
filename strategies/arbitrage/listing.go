package arbitrage

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/dex"
	"github.com/michaelpento.lv/arbengine/types"
	"go.uber.org/zap"
)

const seenPoolsSize = 1024

type listingState struct {
	mu      sync.Mutex
	scanned map[types.Network]uint64
	pools   *lru.Cache
}

func newListingState() (*listingState, error) {
	pools, err := lru.New(seenPoolsSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing cache: %w", err)
	}
	return &listingState{
		scanned: make(map[types.Network]uint64),
		pools:   pools,
	}, nil
}

// window returns the block range not yet scanned on network, bounded by lookback
func (s *listingState) window(network types.Network, head, lookback uint64) (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := uint64(0)
	if head > lookback {
		from = head - lookback
	}
	if last, ok := s.scanned[network]; ok && last+1 > from {
		from = last + 1
	}
	return from, head
}

func (s *listingState) markScanned(network types.Network, head uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanned[network] = head
}

func poolKey(network types.Network, pool common.Address) string {
	return network.String() + ":" + pool.Hex()
}

// young returns the remembered pools on network created within maxAge blocks
// of head, forgetting the ones that aged out
func (s *listingState) young(network types.Network, head, maxAge uint64) []dex.PoolCreated {
	var out []dex.PoolCreated
	for _, k := range s.pools.Keys() {
		v, ok := s.pools.Peek(k)
		if !ok {
			continue
		}
		created := v.(listedPool)
		if created.network != network {
			continue
		}
		if head > created.Block && head-created.Block > maxAge {
			s.pools.Remove(k)
			continue
		}
		out = append(out, created.PoolCreated)
	}
	return out
}

type listedPool struct {
	dex.PoolCreated
	network types.Network
}

// scanListings looks for freshly created pools that pair a tracked token with a
// new one and compares their price against the same pair on the other dexes.
// Young pools get the listing confidence and a raised profit bar.
func (d *Detector) scanListings(ctx context.Context, nc *config.NetworkConfig) ([]*types.Opportunity, error) {
	client, err := d.clients.Client(nc.Name)
	if err != nil {
		return nil, err
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}

	from, to := d.listing.window(nc.Name, head, nc.ListingLookbackBlocks)
	created, err := d.listings.RecentPools(ctx, nc.Name, nc.Dexes, from, to)
	if err != nil {
		return nil, err
	}
	d.listing.markScanned(nc.Name, head)

	for _, c := range created {
		d.listing.pools.Add(poolKey(nc.Name, c.Pool), listedPool{PoolCreated: c, network: nc.Name})
	}
	if len(created) > 0 {
		d.logger.Debug("Found new pools",
			zap.String("network", nc.Name.String()),
			zap.Int("count", len(created)),
			zap.Uint64("from_block", from),
			zap.Uint64("to_block", to))
	}

	minProfit := nc.MinProfitUSD * nc.ListingProfitMultiplier

	var opps []*types.Opportunity
	for _, c := range d.listing.young(nc.Name, head, nc.ListingMaxAgeBlocks) {
		base, counter, ok := listingTokens(nc, c)
		if !ok {
			continue
		}

		fresh, ok, err := d.pools.ReadPool(ctx, nc.Name, c.Dex, base, counter)
		if err != nil || !ok || fresh.PoolAddress != c.Pool {
			continue
		}

		var others []config.DexConfig
		for _, dx := range nc.Dexes {
			if dx.Name != c.Dex.Name {
				others = append(others, dx)
			}
		}
		legs, err := d.readLegs(ctx, nc, others, base, counter)
		if err != nil {
			continue
		}

		for _, leg := range legs {
			opp := d.compareVenues(nc, types.StrategyNewListing, nc.ListingConfidence, base, fresh, leg)
			if opp != nil && opp.ProfitUSD >= minProfit {
				opps = append(opps, opp)
			}
		}
	}

	return opps, nil
}

// listingTokens picks the tracked side of a new pool as the base. Pools with no
// tracked token cannot be valued.
func listingTokens(nc *config.NetworkConfig, c dex.PoolCreated) (types.Token, types.Token, bool) {
	if t, ok := nc.TokenByAddress(c.Token0); ok {
		counter, known := nc.TokenByAddress(c.Token1)
		if !known {
			counter = types.Token{Symbol: c.Token1.Hex()[:10], Address: c.Token1}
		}
		return t, counter, true
	}
	if t, ok := nc.TokenByAddress(c.Token1); ok {
		return t, types.Token{Symbol: c.Token0.Hex()[:10], Address: c.Token0}, true
	}
	return types.Token{}, types.Token{}, false
}
