package uniswap

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller is the read-only contract capability the pool readers need
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func call(ctx context.Context, c Caller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty response from %s on %s", method, to.Hex())
	}

	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return values, nil
}

// SortTokens returns the pair in factory order (token0 < token1)
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

// GetPair looks up the pair address for two tokens. The zero address means no pair exists.
func GetPair(ctx context.Context, c Caller, factory, tokenA, tokenB common.Address) (common.Address, error) {
	out, err := call(ctx, c, factory, FactoryV2ABI, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}

	pair, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse pair address")
	}
	return pair, nil
}

// GetReserves returns the current reserves of a pair, in token0/token1 order
func GetReserves(ctx context.Context, c Caller, pair common.Address) (reserve0 *big.Int, reserve1 *big.Int, err error) {
	out, err := call(ctx, c, pair, PairABI, "getReserves")
	if err != nil {
		return nil, nil, err
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok = out[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("failed to parse reserve1")
	}

	return reserve0, reserve1, nil
}

// Decimals reads ERC-20 decimals of token
func Decimals(ctx context.Context, c Caller, token common.Address) (uint8, error) {
	out, err := call(ctx, c, token, ERC20ABI, "decimals")
	if err != nil {
		return 0, err
	}

	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("failed to parse decimals")
	}
	return d, nil
}

// BalanceOf reads the ERC-20 balance of holder
func BalanceOf(ctx context.Context, c Caller, token, holder common.Address) (*big.Int, error) {
	out, err := call(ctx, c, token, ERC20ABI, "balanceOf", holder)
	if err != nil {
		return nil, err
	}

	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse balance")
	}
	return balance, nil
}
