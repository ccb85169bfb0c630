package math

import (
	"math"
	"math/big"
)

var (
	bpsDenominator = big.NewInt(10000)
	gweiFloat      = big.NewFloat(1e9)
)

// Pow10 returns 10^decimals as a *big.Int
func Pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// ToFloat converts a fixed-point integer amount into whole units
func ToFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	f.Quo(f, new(big.Float).SetInt(Pow10(decimals)))
	v, _ := f.Float64()
	return v
}

// FromFloat converts whole units into a fixed-point integer amount, truncating
func FromFloat(value float64, decimals uint8) *big.Int {
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return big.NewInt(0)
	}
	f := new(big.Float).SetFloat64(value)
	f.Mul(f, new(big.Float).SetInt(Pow10(decimals)))
	out, _ := f.Int(nil)
	return out
}

// MulBps returns x * bps / 10000
func MulBps(x *big.Int, bps uint32) *big.Int {
	out := new(big.Int).Mul(x, big.NewInt(int64(bps)))
	return out.Div(out, bpsDenominator)
}

// SubBps returns x reduced by bps basis points
func SubBps(x *big.Int, bps uint32) *big.Int {
	if bps >= 10000 {
		return big.NewInt(0)
	}
	return MulBps(x, 10000-bps)
}

// GweiToWei converts a gwei amount (possibly fractional) into wei, rounding to the nearest wei
func GweiToWei(gwei float64) *big.Int {
	if gwei <= 0 || math.IsNaN(gwei) || math.IsInf(gwei, 0) {
		return big.NewInt(0)
	}
	f := new(big.Float).SetFloat64(gwei)
	f.Mul(f, gweiFloat)
	f.Add(f, big.NewFloat(0.5))
	out, _ := f.Int(nil)
	return out
}

// WeiToGwei converts wei into gwei
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, gweiFloat)
	v, _ := f.Float64()
	return v
}

// WeiToUSD values a native-token amount in USD
func WeiToUSD(wei *big.Int, nativeUSD float64) float64 {
	return ToFloat(wei, 18) * nativeUSD
}

// ScaleFloat multiplies a fixed-point amount by a float factor, truncating
func ScaleFloat(x *big.Int, factor float64) *big.Int {
	if x == nil || factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return big.NewInt(0)
	}
	f := new(big.Float).SetInt(x)
	f.Mul(f, big.NewFloat(factor))
	out, _ := f.Int(nil)
	return out
}

// Min returns the smaller of a and b
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
