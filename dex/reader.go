package dex

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/dex/uniswap"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
	"go.uber.org/zap"
)

const defaultCacheSize = 4096

// Reader resolves pools through factory lookups and reads their state. Pool
// addresses and token decimals never change, so both are cached.
type Reader struct {
	clients  ClientSource
	pools    *lru.Cache
	decimals *lru.Cache
	logger   *zap.Logger
}

var _ PoolReader = (*Reader)(nil)

// NewReader creates a pool reader; cacheSize <= 0 selects the default
func NewReader(clients ClientSource, cacheSize int, logger *zap.Logger) (*Reader, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	pools, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool cache: %w", err)
	}
	decimals, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decimals cache: %w", err)
	}

	return &Reader{
		clients:  clients,
		pools:    pools,
		decimals: decimals,
		logger:   logger,
	}, nil
}

// ReadPool implements PoolReader
func (r *Reader) ReadPool(ctx context.Context, network types.Network, d config.DexConfig, tokenIn, tokenOut types.Token) (*types.PoolLeg, bool, error) {
	c, err := r.clients.Client(network)
	if err != nil {
		return nil, false, err
	}

	decIn, err := r.tokenDecimals(ctx, network, c, tokenIn)
	if err != nil {
		return nil, false, err
	}
	decOut, err := r.tokenDecimals(ctx, network, c, tokenOut)
	if err != nil {
		return nil, false, err
	}

	base := types.PoolLeg{
		DexName:       d.Name,
		RouterAddress: common.HexToAddress(d.Router),
		TokenIn:       tokenIn.Address,
		TokenOut:      tokenOut.Address,
		DecimalsIn:    decIn,
		DecimalsOut:   decOut,
	}

	var (
		leg *types.PoolLeg
		ok  bool
	)
	switch d.Kind {
	case config.DexV3:
		leg, ok, err = r.readConcentrated(ctx, network, c, d, base)
	default:
		leg, ok, err = r.readConstantProduct(ctx, network, c, d, base)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s pool on %s: %w", d.Name, network, err)
	}
	if !ok {
		r.logger.Debug("Pool not found",
			zap.String("network", network.String()),
			zap.String("dex", d.Name),
			zap.String("token_in", tokenIn.Symbol),
			zap.String("token_out", tokenOut.Symbol))
	}
	return leg, ok, nil
}

func (r *Reader) readConstantProduct(ctx context.Context, network types.Network, c rpc.Client, d config.DexConfig, base types.PoolLeg) (*types.PoolLeg, bool, error) {
	factory := common.HexToAddress(d.Factory)
	pair, err := r.poolAddress(network, factory, base.TokenIn, base.TokenOut, 0, func() (common.Address, error) {
		return uniswap.GetPair(ctx, c, factory, base.TokenIn, base.TokenOut)
	})
	if err != nil || pair == (common.Address{}) {
		return nil, false, err
	}

	reserve0, reserve1, err := uniswap.GetReserves(ctx, c, pair)
	if err != nil {
		return nil, false, err
	}
	if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return nil, false, nil
	}

	leg := base
	leg.PoolAddress = pair
	leg.Kind = types.ConstantProduct
	leg.FeeBps = d.FeeBps
	leg.ReserveIn, leg.ReserveOut = reserve0, reserve1
	if token0, _ := uniswap.SortTokens(base.TokenIn, base.TokenOut); token0 != base.TokenIn {
		leg.ReserveIn, leg.ReserveOut = reserve1, reserve0
	}
	leg.Price = uniswap.SpotPrice(leg.ReserveIn, leg.ReserveOut, leg.DecimalsIn, leg.DecimalsOut)

	return &leg, true, nil
}

// readConcentrated checks every fee tier and keeps the pool with the deepest
// in-range liquidity above uniswap.MinLiquidity.
func (r *Reader) readConcentrated(ctx context.Context, network types.Network, c rpc.Client, d config.DexConfig, base types.PoolLeg) (*types.PoolLeg, bool, error) {
	factory := common.HexToAddress(d.Factory)
	tiers := d.FeeTiers
	if len(tiers) == 0 {
		tiers = uniswap.FeeTiers
	}

	token0, _ := uniswap.SortTokens(base.TokenIn, base.TokenOut)
	zeroForOne := token0 == base.TokenIn

	var (
		best     *types.PoolLeg
		firstErr error
	)
	for _, fee := range tiers {
		fee := fee
		pool, err := r.poolAddress(network, factory, base.TokenIn, base.TokenOut, fee, func() (common.Address, error) {
			return uniswap.GetPool(ctx, c, factory, base.TokenIn, base.TokenOut, fee)
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if pool == (common.Address{}) {
			continue
		}

		liquidity, err := uniswap.Liquidity(ctx, c, pool)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if liquidity.Cmp(uniswap.MinLiquidity) < 0 {
			continue
		}
		if best != nil && liquidity.Cmp(best.Liquidity) <= 0 {
			continue
		}

		sqrtPrice, err := uniswap.SqrtPriceX96(ctx, c, pool)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if sqrtPrice.Sign() == 0 {
			continue
		}

		leg := base
		leg.PoolAddress = pool
		leg.Kind = types.Concentrated
		leg.FeeBps = fee / 100
		leg.Liquidity = liquidity
		leg.SqrtPriceX96 = sqrtPrice
		if zeroForOne {
			leg.Price = uniswap.SqrtPriceToPrice(sqrtPrice, base.DecimalsIn, base.DecimalsOut)
		} else if p := uniswap.SqrtPriceToPrice(sqrtPrice, base.DecimalsOut, base.DecimalsIn); p > 0 {
			leg.Price = 1 / p
		}
		best = &leg
	}

	if best == nil {
		return nil, false, firstErr
	}
	return best, true, nil
}

// poolAddress returns the cached pool address or resolves it with lookup.
// Missing pools are not cached since they may be created later.
func (r *Reader) poolAddress(network types.Network, factory, tokenA, tokenB common.Address, fee uint32, lookup func() (common.Address, error)) (common.Address, error) {
	token0, token1 := uniswap.SortTokens(tokenA, tokenB)
	key := fmt.Sprintf("%s:%s:%s:%s:%d", network, factory.Hex(), token0.Hex(), token1.Hex(), fee)

	if v, ok := r.pools.Get(key); ok {
		return v.(common.Address), nil
	}

	addr, err := lookup()
	if err != nil {
		return common.Address{}, err
	}
	if addr != (common.Address{}) {
		r.pools.Add(key, addr)
	}
	return addr, nil
}

func (r *Reader) tokenDecimals(ctx context.Context, network types.Network, c rpc.Client, t types.Token) (uint8, error) {
	if t.Decimals != 0 {
		return t.Decimals, nil
	}

	key := network.String() + ":" + strings.ToLower(t.Address.Hex())
	if v, ok := r.decimals.Get(key); ok {
		return v.(uint8), nil
	}

	d, err := uniswap.Decimals(ctx, c, t.Address)
	if err != nil {
		return 0, fmt.Errorf("failed to read decimals of %s: %w", t.Address.Hex(), err)
	}
	r.decimals.Add(key, d)
	return d, nil
}
