package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeTiers are the standard concentrated-liquidity fee tiers, in hundredths of a bip
var FeeTiers = []uint32{100, 500, 3000, 10000}

// GetPool looks up the pool for two tokens and a fee tier. The zero address means no pool exists.
func GetPool(ctx context.Context, c Caller, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	out, err := call(ctx, c, factory, FactoryV3ABI, "getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, err
	}

	pool, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse pool address")
	}
	return pool, nil
}

// SqrtPriceX96 returns the current sqrt price from slot0
func SqrtPriceX96(ctx context.Context, c Caller, pool common.Address) (*big.Int, error) {
	out, err := call(ctx, c, pool, PoolV3ABI, "slot0")
	if err != nil {
		return nil, err
	}

	sqrtPrice, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse sqrtPriceX96")
	}
	return sqrtPrice, nil
}

// Liquidity returns the in-range liquidity of a pool
func Liquidity(ctx context.Context, c Caller, pool common.Address) (*big.Int, error) {
	out, err := call(ctx, c, pool, PoolV3ABI, "liquidity")
	if err != nil {
		return nil, err
	}

	liquidity, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse liquidity")
	}
	return liquidity, nil
}
