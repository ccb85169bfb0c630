package uniswap

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const factoryV2ABIJson = `[{
	"constant": true,
	"inputs": [
		{"name": "tokenA", "type": "address"},
		{"name": "tokenB", "type": "address"}
	],
	"name": "getPair",
	"outputs": [{"name": "pair", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"anonymous": false,
	"inputs": [
		{"indexed": true, "name": "token0", "type": "address"},
		{"indexed": true, "name": "token1", "type": "address"},
		{"indexed": false, "name": "pair", "type": "address"},
		{"indexed": false, "name": "", "type": "uint256"}
	],
	"name": "PairCreated",
	"type": "event"
}]`

// Pair contract ABI
const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

const factoryV3ABIJson = `[{
	"inputs": [
		{"name": "tokenA", "type": "address"},
		{"name": "tokenB", "type": "address"},
		{"name": "fee", "type": "uint24"}
	],
	"name": "getPool",
	"outputs": [{"name": "pool", "type": "address"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"anonymous": false,
	"inputs": [
		{"indexed": true, "name": "token0", "type": "address"},
		{"indexed": true, "name": "token1", "type": "address"},
		{"indexed": true, "name": "fee", "type": "uint24"},
		{"indexed": false, "name": "tickSpacing", "type": "int24"},
		{"indexed": false, "name": "pool", "type": "address"}
	],
	"name": "PoolCreated",
	"type": "event"
}]`

const poolV3ABIJson = `[{
	"inputs": [],
	"name": "slot0",
	"outputs": [
		{"name": "sqrtPriceX96", "type": "uint160"},
		{"name": "tick", "type": "int24"},
		{"name": "observationIndex", "type": "uint16"},
		{"name": "observationCardinality", "type": "uint16"},
		{"name": "observationCardinalityNext", "type": "uint16"},
		{"name": "feeProtocol", "type": "uint8"},
		{"name": "unlocked", "type": "bool"}
	],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [],
	"name": "liquidity",
	"outputs": [{"name": "", "type": "uint128"}],
	"stateMutability": "view",
	"type": "function"
}]`

const erc20ABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "decimals",
	"outputs": [{"name": "", "type": "uint8"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [{"name": "account", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}]`

var (
	FactoryV2ABI = mustParse(factoryV2ABIJson)
	PairABI      = mustParse(pairABIJson)
	FactoryV3ABI = mustParse(factoryV3ABIJson)
	PoolV3ABI    = mustParse(poolV3ABIJson)
	ERC20ABI     = mustParse(erc20ABIJson)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
