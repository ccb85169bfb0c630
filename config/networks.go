package config

import (
	"time"

	"github.com/michaelpento.lv/arbengine/types"
)

const (
	balancerVault  = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
	uniswapV3      = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
	uniswapV3Swap  = "0xE592427A0AEce92De3Edee1F18E0157C05861564"
	sushiV2Factory = "0xc35DADB65012eC5796536bD9864eD8773aBc74C4"
	sushiV2Router  = "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506"
	aaveV3Pool     = "0x794a61358D6845594F94dc1DB02A252b5b4814aD"
)

var v3FeeTiers = []uint32{100, 500, 3000, 10000}

func v2(name, factory, router string, feeBps uint32) DexConfig {
	return DexConfig{Name: name, Kind: DexV2, Factory: factory, Router: router, FeeBps: feeBps}
}

func v3(name, factory, router string) DexConfig {
	return DexConfig{Name: name, Kind: DexV3, Factory: factory, Router: router, FeeTiers: v3FeeTiers}
}

func token(symbol, address string, decimals uint8, usd float64) TokenConfig {
	return TokenConfig{Symbol: symbol, Address: address, Decimals: decimals, USDPrice: usd}
}

func flashProviders(aavePool string) []FlashLoanProviderConfig {
	return []FlashLoanProviderConfig{
		{Name: "balancer", Address: balancerVault, FeeBps: 0},
		{Name: "aave", Address: aavePool, FeeBps: 9},
	}
}

// l2 returns the shared rollup profile; callers override what differs
func l2(name types.Network, chainID uint64) NetworkConfig {
	return NetworkConfig{
		Name:                    name,
		ChainID:                 chainID,
		NativeUSD:               2000,
		CapitalWeight:           0.2,
		RankWeight:              1.0,
		MinProfitUSD:            10,
		MinNetProfitUSD:         5,
		MinSpreadBps:            10,
		MinTriangularMarginBps:  8,
		SlippageBps:             50,
		MaxGasPriceGwei:         5,
		DefaultGasPriceGwei:     0.1,
		BaseGasPerLeg:           150000,
		GasBufferPct:            20,
		GasSafetyMultiplier:     1.5,
		RequiredMarginPct:       30,
		ScanInterval:            2 * time.Second,
		DirectInterval:          2 * time.Second,
		TriangularInterval:      4 * time.Second,
		ListingInterval:         time.Minute,
		Cooldown:                30 * time.Second,
		ConfirmationTimeout:     30 * time.Second,
		DeadlineWindow:          30 * time.Second,
		MinPositionUSD:          100,
		MaxPositionUSD:          10000,
		ProbeAmountUSD:          500,
		FlashLoanThresholdUSD:   2000,
		SuccessRateMinSamples:   10,
		LowSuccessRate:          0.3,
		ElevatedConfidence:      0.8,
		DirectConfidence:        0.85,
		TriangularConfidence:    0.7,
		ListingConfidence:       0.35,
		ListingLookbackBlocks:   2000,
		ListingMaxAgeBlocks:     1800,
		ListingProfitMultiplier: 2,
	}
}

var networkDefaults = map[types.Network]func() NetworkConfig{
	types.Ethereum: func() NetworkConfig {
		n := l2(types.Ethereum, 1)
		n.CapitalWeight = 0.3
		n.MinProfitUSD = 50
		n.MinNetProfitUSD = 25
		n.MinSpreadBps = 20
		n.MinTriangularMarginBps = 15
		n.MaxGasPriceGwei = 100
		n.DefaultGasPriceGwei = 20
		n.ScanInterval = 12 * time.Second
		n.DirectInterval = 12 * time.Second
		n.TriangularInterval = 24 * time.Second
		n.Cooldown = time.Minute
		n.ConfirmationTimeout = 2 * time.Minute
		n.DeadlineWindow = time.Minute
		n.MinPositionUSD = 1000
		n.MaxPositionUSD = 50000
		n.ProbeAmountUSD = 1000
		n.FlashLoanThresholdUSD = 5000
		n.ListingLookbackBlocks = 500
		n.ListingMaxAgeBlocks = 300
		n.FlashLoanProviders = flashProviders("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
		n.Tokens = []TokenConfig{
			token("WETH", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18, 2000),
			token("USDC", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6, 1),
			token("USDT", "0xdAC17F958D2ee523a2206206994597C13D831ec7", 6, 1),
			token("DAI", "0x6B175474E89094C44Da98b954EedeAC495271d0F", 18, 1),
		}
		n.Pairs = [][]string{{"WETH", "USDC"}, {"WETH", "USDT"}, {"WETH", "DAI"}}
		n.Triangles = [][]string{{"WETH", "USDC", "DAI"}, {"WETH", "USDT", "USDC"}}
		n.Dexes = []DexConfig{
			v2("uniswap_v2", "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", 30),
			v2("sushiswap", "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac", "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F", 30),
			v3("uniswap_v3", uniswapV3, uniswapV3Swap),
		}
		return n
	},
	types.Arbitrum: func() NetworkConfig {
		n := l2(types.Arbitrum, 42161)
		n.RankWeight = 1.1
		n.MaxGasPriceGwei = 10
		n.FlashLoanProviders = flashProviders(aaveV3Pool)
		n.Tokens = []TokenConfig{
			token("WETH", "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", 18, 2000),
			token("USDC", "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", 6, 1),
			token("USDT", "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", 6, 1),
			token("ARB", "0x912CE59144191C1204E64559FE8253a0e49E6548", 18, 0.8),
		}
		n.Pairs = [][]string{{"WETH", "USDC"}, {"WETH", "USDT"}, {"ARB", "WETH"}}
		n.Triangles = [][]string{{"WETH", "USDC", "ARB"}}
		n.Dexes = []DexConfig{
			v2("sushiswap", sushiV2Factory, sushiV2Router, 30),
			v3("uniswap_v3", uniswapV3, uniswapV3Swap),
		}
		return n
	},
	types.Optimism: func() NetworkConfig {
		n := l2(types.Optimism, 10)
		n.FlashLoanProviders = flashProviders(aaveV3Pool)
		n.Tokens = []TokenConfig{
			token("WETH", "0x4200000000000000000000000000000000000006", 18, 2000),
			token("USDC", "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", 6, 1),
			token("OP", "0x4200000000000000000000000000000000000042", 18, 1.5),
		}
		n.Pairs = [][]string{{"WETH", "USDC"}, {"OP", "WETH"}}
		n.Triangles = [][]string{{"WETH", "USDC", "OP"}}
		n.Dexes = []DexConfig{
			v3("uniswap_v3", uniswapV3, uniswapV3Swap),
		}
		return n
	},
	types.Base: func() NetworkConfig {
		n := l2(types.Base, 8453)
		n.RankWeight = 1.2
		n.CapitalWeight = 0.25
		n.FlashLoanProviders = flashProviders("0xA238Dd80C259a72e81d7e4664a9801593F98d1c5")
		n.Tokens = []TokenConfig{
			token("WETH", "0x4200000000000000000000000000000000000006", 18, 2000),
			token("USDC", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", 6, 1),
			token("DAI", "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", 18, 1),
		}
		n.Pairs = [][]string{{"WETH", "USDC"}, {"WETH", "DAI"}}
		n.Triangles = [][]string{{"WETH", "USDC", "DAI"}}
		n.Dexes = []DexConfig{
			v2("uniswap_v2", "0x8909Dc15e40173Ff4699343b6eB8132c65e18eC6", "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24", 30),
			v2("sushiswap", "0x71524B4f93c58fcbF659783284E38825f0622859", "0x6BDED42c6DA8FBf0d2bA55B2fa120C5e0c8D7891", 30),
			v3("uniswap_v3", "0x33128a8fC17869897dcE68Ed026d694621f6FDfD", "0x2626664c2603336E57B271c5C0b26F421741e481"),
		}
		return n
	},
	types.Polygon: func() NetworkConfig {
		n := l2(types.Polygon, 137)
		n.NativeUSD = 0.5
		n.MinProfitUSD = 5
		n.MinNetProfitUSD = 2
		n.MaxGasPriceGwei = 500
		n.DefaultGasPriceGwei = 50
		n.FlashLoanProviders = flashProviders(aaveV3Pool)
		n.Tokens = []TokenConfig{
			token("WMATIC", "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", 18, 0.5),
			token("USDC", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", 6, 1),
			token("WETH", "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", 18, 2000),
		}
		n.Pairs = [][]string{{"WMATIC", "USDC"}, {"WETH", "USDC"}, {"WETH", "WMATIC"}}
		n.Triangles = [][]string{{"WMATIC", "USDC", "WETH"}}
		n.Dexes = []DexConfig{
			v2("quickswap", "0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32", "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff", 30),
			v2("sushiswap", sushiV2Factory, sushiV2Router, 30),
			v3("uniswap_v3", uniswapV3, uniswapV3Swap),
		}
		return n
	},
	types.ZkSync: func() NetworkConfig {
		n := l2(types.ZkSync, 324)
		n.DefaultGasPriceGwei = 0.25
		n.GasSafetyMultiplier = 3
		n.LegacyTx = true
		n.CapitalWeight = 0.05
		return n
	},
}

// NetworkDefaults returns the built-in constants for a network
func NetworkDefaults(n types.Network) (NetworkConfig, bool) {
	build, ok := networkDefaults[n]
	if !ok {
		return NetworkConfig{}, false
	}
	return build(), true
}

// fillFrom copies every zero-valued field from d
func (n *NetworkConfig) fillFrom(d NetworkConfig) {
	setU64(&n.ChainID, d.ChainID)
	setF(&n.NativeUSD, d.NativeUSD)
	setF(&n.CapitalWeight, d.CapitalWeight)
	setF(&n.RankWeight, d.RankWeight)
	setF(&n.MinProfitUSD, d.MinProfitUSD)
	setF(&n.MinNetProfitUSD, d.MinNetProfitUSD)
	setU32(&n.MinSpreadBps, d.MinSpreadBps)
	setU32(&n.MinTriangularMarginBps, d.MinTriangularMarginBps)
	setU32(&n.SlippageBps, d.SlippageBps)
	setF(&n.MaxGasPriceGwei, d.MaxGasPriceGwei)
	setF(&n.DefaultGasPriceGwei, d.DefaultGasPriceGwei)
	setU64(&n.BaseGasPerLeg, d.BaseGasPerLeg)
	setF(&n.GasBufferPct, d.GasBufferPct)
	setF(&n.GasSafetyMultiplier, d.GasSafetyMultiplier)
	setF(&n.RequiredMarginPct, d.RequiredMarginPct)
	setD(&n.ScanInterval, d.ScanInterval)
	setD(&n.DirectInterval, d.DirectInterval)
	setD(&n.TriangularInterval, d.TriangularInterval)
	setD(&n.ListingInterval, d.ListingInterval)
	setD(&n.Cooldown, d.Cooldown)
	setD(&n.ConfirmationTimeout, d.ConfirmationTimeout)
	setD(&n.DeadlineWindow, d.DeadlineWindow)
	setF(&n.MinPositionUSD, d.MinPositionUSD)
	setF(&n.MaxPositionUSD, d.MaxPositionUSD)
	setF(&n.ProbeAmountUSD, d.ProbeAmountUSD)
	setF(&n.FlashLoanThresholdUSD, d.FlashLoanThresholdUSD)
	if n.SuccessRateMinSamples == 0 {
		n.SuccessRateMinSamples = d.SuccessRateMinSamples
	}
	setF(&n.LowSuccessRate, d.LowSuccessRate)
	setF(&n.ElevatedConfidence, d.ElevatedConfidence)
	setF(&n.DirectConfidence, d.DirectConfidence)
	setF(&n.TriangularConfidence, d.TriangularConfidence)
	setF(&n.ListingConfidence, d.ListingConfidence)
	setU64(&n.ListingLookbackBlocks, d.ListingLookbackBlocks)
	setU64(&n.ListingMaxAgeBlocks, d.ListingMaxAgeBlocks)
	setF(&n.ListingProfitMultiplier, d.ListingProfitMultiplier)
	if !n.LegacyTx {
		n.LegacyTx = d.LegacyTx
	}
	if len(n.FlashLoanProviders) == 0 {
		n.FlashLoanProviders = d.FlashLoanProviders
	}
	if len(n.Tokens) == 0 {
		n.Tokens = d.Tokens
	}
	if len(n.Pairs) == 0 {
		n.Pairs = d.Pairs
	}
	if len(n.Triangles) == 0 {
		n.Triangles = d.Triangles
	}
	if len(n.Dexes) == 0 {
		n.Dexes = d.Dexes
	}
}

func setF(dst *float64, v float64) {
	if *dst == 0 {
		*dst = v
	}
}

func setU32(dst *uint32, v uint32) {
	if *dst == 0 {
		*dst = v
	}
}

func setU64(dst *uint64, v uint64) {
	if *dst == 0 {
		*dst = v
	}
}

func setD(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}
