package uniswap

import (
	"math/big"

	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
)

const floatPrec = 256

// Q192 is 2^192, the scale of a squared sqrtPriceX96
var Q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// MinLiquidity is the in-range liquidity below which a pool is ignored
var MinLiquidity = big.NewInt(1e15)

// SqrtPriceToPrice converts sqrtPriceX96 to token1 per token0 in whole units
func SqrtPriceToPrice(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0
	}

	raw := rawPrice(sqrtPriceX96)
	// raw is in smallest units; shift to whole units
	scale := new(big.Float).SetInt(arbmath.Pow10(decimals0))
	raw.Mul(raw, scale)
	raw.Quo(raw, new(big.Float).SetInt(arbmath.Pow10(decimals1)))

	price, _ := raw.Float64()
	return price
}

// QuoteAtSqrtPrice quotes amountIn at the pool spot price less the fee. It
// ignores price movement within the swap, which is acceptable for the probe
// sizes used in detection.
func QuoteAtSqrtPrice(amountIn, sqrtPriceX96 *big.Int, zeroForOne bool, feeBps uint32) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 || sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 || feeBps >= feeDenominator {
		return big.NewInt(0)
	}

	price := rawPrice(sqrtPriceX96)
	out := new(big.Float).SetPrec(floatPrec).SetInt(amountIn)
	if zeroForOne {
		out.Mul(out, price)
	} else {
		out.Quo(out, price)
	}
	out.Mul(out, big.NewFloat(float64(feeDenominator-feeBps)))
	out.Quo(out, big.NewFloat(feeDenominator))

	result, _ := out.Int(nil)
	return result
}

// rawPrice returns sqrtPriceX96^2 / 2^192: token1 smallest units per token0 smallest unit
func rawPrice(sqrtPriceX96 *big.Int) *big.Float {
	sq := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	p := new(big.Float).SetPrec(floatPrec).SetInt(sq)
	return p.Quo(p, new(big.Float).SetPrec(floatPrec).SetInt(Q192))
}
