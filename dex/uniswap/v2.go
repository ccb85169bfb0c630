package uniswap

import (
	"math"
	"math/big"

	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
)

const feeDenominator = 10000

// GetAmountOut calculates the constant-product output for amountIn with a fee in bps:
// in*(10000-fee)*rOut / (rIn*10000 + in*(10000-fee))
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountIn == nil || reserveIn == nil || reserveOut == nil ||
		amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || feeBps >= feeDenominator {
		return big.NewInt(0)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(feeDenominator-feeBps)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(feeDenominator)), amountInWithFee)

	return numerator.Div(numerator, denominator)
}

// GetAmountIn calculates the input required for amountOut. It returns nil when
// the pool cannot supply amountOut.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountOut.Sign() <= 0 || reserveIn.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 || feeBps >= feeDenominator {
		return nil
	}

	numerator := new(big.Int).Mul(new(big.Int).Mul(reserveIn, amountOut), big.NewInt(feeDenominator))
	denominator := new(big.Int).Mul(new(big.Int).Sub(reserveOut, amountOut), big.NewInt(int64(feeDenominator-feeBps)))

	amountIn := numerator.Div(numerator, denominator)
	return amountIn.Add(amountIn, big.NewInt(1))
}

// SpotPrice is reserveOut per reserveIn in whole units, ignoring fees
func SpotPrice(reserveIn, reserveOut *big.Int, decimalsIn, decimalsOut uint8) float64 {
	in := arbmath.ToFloat(reserveIn, decimalsIn)
	if in == 0 {
		return 0
	}
	return arbmath.ToFloat(reserveOut, decimalsOut) / in
}

// PriceImpact is the fraction the pool price moves when amountIn is sold into it
func PriceImpact(amountIn, reserveIn *big.Int) float64 {
	if amountIn == nil || reserveIn == nil || amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 {
		return 0
	}
	in, _ := new(big.Float).SetInt(amountIn).Float64()
	r, _ := new(big.Float).SetInt(reserveIn).Float64()
	impact := in / (r + in)
	if math.IsNaN(impact) {
		return 0
	}
	return impact
}
