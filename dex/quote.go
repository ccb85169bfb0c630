package dex

import (
	"math/big"

	"github.com/michaelpento.lv/arbengine/dex/uniswap"
	"github.com/michaelpento.lv/arbengine/types"
)

// probeReserveBps caps detection probes at 0.5% of the entry pool's input reserve
const probeReserveBps = 50

// QuoteLeg returns the output of selling amountIn through leg. Constant-product
// legs use exact reserve math; concentrated legs use the spot price less fee.
func QuoteLeg(leg *types.PoolLeg, amountIn *big.Int) *big.Int {
	switch leg.Kind {
	case types.Concentrated:
		token0, _ := uniswap.SortTokens(leg.TokenIn, leg.TokenOut)
		return uniswap.QuoteAtSqrtPrice(amountIn, leg.SqrtPriceX96, token0 == leg.TokenIn, leg.FeeBps)
	default:
		return uniswap.GetAmountOut(amountIn, leg.ReserveIn, leg.ReserveOut, leg.FeeBps)
	}
}

// QuoteRoute chains QuoteLeg over route. A leg yielding nothing makes the whole route yield zero.
func QuoteRoute(route []*types.PoolLeg, amountIn *big.Int) *big.Int {
	amount := new(big.Int).Set(amountIn)
	for _, leg := range route {
		amount = QuoteLeg(leg, amount)
		if amount.Sign() <= 0 {
			return big.NewInt(0)
		}
	}
	return amount
}

// RouteImpact is the combined fraction by which amountIn moves the
// constant-product pools along route
func RouteImpact(route []*types.PoolLeg, amountIn *big.Int) float64 {
	remaining := 1.0
	amount := new(big.Int).Set(amountIn)
	for _, leg := range route {
		if leg.Kind == types.ConstantProduct {
			remaining *= 1 - uniswap.PriceImpact(amount, leg.ReserveIn)
		}
		amount = QuoteLeg(leg, amount)
		if amount.Sign() <= 0 {
			return 1
		}
	}
	return 1 - remaining
}

// ProbeAmount bounds a detection probe by the depth of the entry pool
func ProbeAmount(route []*types.PoolLeg, probe *big.Int) *big.Int {
	if len(route) == 0 || route[0].Kind != types.ConstantProduct || route[0].ReserveIn == nil {
		return new(big.Int).Set(probe)
	}
	limit := new(big.Int).Mul(route[0].ReserveIn, big.NewInt(probeReserveBps))
	limit.Div(limit, big.NewInt(10000))
	if limit.Cmp(probe) < 0 {
		return limit
	}
	return new(big.Int).Set(probe)
}
