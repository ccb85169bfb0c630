package uniswap

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestGetAmountOut(t *testing.T) {
	amountIn := eth(1)
	reserveIn := eth(10)
	reserveOut := big.NewInt(5_000_000_000) // 5000 USDC

	amountOut := GetAmountOut(amountIn, reserveIn, reserveOut, 30)
	assert.Equal(t, "453305446", amountOut.String())

	noFee := GetAmountOut(amountIn, reserveIn, reserveOut, 0)
	assert.True(t, noFee.Cmp(amountOut) > 0, "fees reduce output")
}

func TestGetAmountOutDegenerate(t *testing.T) {
	tests := []struct {
		name       string
		in, ri, ro *big.Int
		fee        uint32
	}{
		{"zero input", big.NewInt(0), eth(1), eth(1), 30},
		{"empty reserve in", eth(1), big.NewInt(0), eth(1), 30},
		{"empty reserve out", eth(1), eth(1), big.NewInt(0), 30},
		{"nil input", nil, eth(1), eth(1), 30},
		{"fee of 100%", eth(1), eth(1), eth(1), 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0, GetAmountOut(tt.in, tt.ri, tt.ro, tt.fee).Sign())
		})
	}
}

func TestGetAmountInCoversAmountOut(t *testing.T) {
	reserveIn := eth(1000)
	reserveOut := big.NewInt(2_000_000_000_000)

	for _, want := range []int64{1, 1_000_000, 5_000_000_000, 1_000_000_000_000} {
		out := big.NewInt(want)
		in := GetAmountIn(out, reserveIn, reserveOut, 25)
		require.NotNil(t, in)
		assert.True(t, GetAmountOut(in, reserveIn, reserveOut, 25).Cmp(out) >= 0)
	}

	assert.Nil(t, GetAmountIn(reserveOut, reserveIn, reserveOut, 25), "cannot drain the pool")
}

func TestSpotPriceAndImpact(t *testing.T) {
	price := SpotPrice(eth(10), big.NewInt(25_000_000_000), 18, 6)
	assert.InDelta(t, 2500.0, price, 1e-9)

	assert.InDelta(t, 1.0/11.0, PriceImpact(eth(1), eth(10)), 1e-12)
	assert.Zero(t, PriceImpact(big.NewInt(0), eth(10)))
}

func TestSortTokens(t *testing.T) {
	a := common.HexToAddress("0x02")
	b := common.HexToAddress("0x01")

	t0, t1 := SortTokens(a, b)
	assert.Equal(t, b, t0)
	assert.Equal(t, a, t1)

	t0, t1 = SortTokens(b, a)
	assert.Equal(t, b, t0)
	assert.Equal(t, a, t1)
}
