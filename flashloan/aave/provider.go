package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/dex/uniswap"
	"github.com/michaelpento.lv/arbengine/flashloan"
	"go.uber.org/zap"
)

// Aave V3 pool ABI. ReserveData is a static struct, so its fields are declared
// as flat outputs, which encode identically.
const aaveV3ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"}
		],
		"name": "getReserveData",
		"outputs": [
			{"name": "configuration", "type": "uint256"},
			{"name": "liquidityIndex", "type": "uint128"},
			{"name": "currentLiquidityRate", "type": "uint128"},
			{"name": "variableBorrowIndex", "type": "uint128"},
			{"name": "currentVariableBorrowRate", "type": "uint128"},
			{"name": "currentStableBorrowRate", "type": "uint128"},
			{"name": "lastUpdateTimestamp", "type": "uint40"},
			{"name": "id", "type": "uint16"},
			{"name": "aTokenAddress", "type": "address"},
			{"name": "stableDebtTokenAddress", "type": "address"},
			{"name": "variableDebtTokenAddress", "type": "address"},
			{"name": "interestRateStrategyAddress", "type": "address"},
			{"name": "accruedToTreasury", "type": "uint128"},
			{"name": "unbacked", "type": "uint128"},
			{"name": "isolationModeTotalDebt", "type": "uint128"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

const aTokenIndex = 8

// AaveProvider lends from an Aave V3 pool. Available liquidity is the
// underlying balance held by the reserve's aToken.
type AaveProvider struct {
	client uniswap.Caller
	pool   common.Address
	feeBps uint32
	abi    abi.ABI
	logger *zap.Logger
}

var _ flashloan.Provider = (*AaveProvider)(nil)

// NewAaveProvider creates a new Aave flash loan provider
func NewAaveProvider(client uniswap.Caller, cfg config.FlashLoanProviderConfig, logger *zap.Logger) (*AaveProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("invalid aave pool address %q", cfg.Address)
	}

	parsedABI, err := abi.JSON(strings.NewReader(aaveV3ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &AaveProvider{
		client: client,
		pool:   common.HexToAddress(cfg.Address),
		feeBps: cfg.FeeBps,
		abi:    parsedABI,
		logger: logger,
	}, nil
}

func (p *AaveProvider) Type() flashloan.ProviderType { return flashloan.ProviderAave }

func (p *AaveProvider) Address() common.Address { return p.pool }

func (p *AaveProvider) FeeBps() uint32 { return p.feeBps }

func (p *AaveProvider) String() string { return "aave" }

// Liquidity implements flashloan.Provider
func (p *AaveProvider) Liquidity(ctx context.Context, token common.Address) (*big.Int, error) {
	aToken, err := p.aToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if aToken == (common.Address{}) {
		// Not listed as a reserve
		return big.NewInt(0), nil
	}

	balance, err := uniswap.BalanceOf(ctx, p.client, token, aToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get aave liquidity: %w", err)
	}

	p.logger.Debug("Aave liquidity",
		zap.String("token", token.Hex()),
		zap.String("liquidity", balance.String()))
	return balance, nil
}

func (p *AaveProvider) aToken(ctx context.Context, token common.Address) (common.Address, error) {
	data, err := p.abi.Pack("getReserveData", token)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack getReserveData: %w", err)
	}

	out, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &p.pool, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get reserve data: %w", err)
	}

	values, err := p.abi.Unpack("getReserveData", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack reserve data: %w", err)
	}
	if len(values) <= aTokenIndex {
		return common.Address{}, fmt.Errorf("short reserve data")
	}

	aToken, ok := values[aTokenIndex].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse aToken address")
	}
	return aToken, nil
}
