package balancer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/dex/uniswap"
	"github.com/michaelpento.lv/arbengine/flashloan"
	"go.uber.org/zap"
)

const (
	// Same address on every supported network
	VaultAddress = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
)

// Provider lends from the Balancer vault, which holds every pool's tokens
type Provider struct {
	client uniswap.Caller
	vault  common.Address
	feeBps uint32
	logger *zap.Logger
}

var _ flashloan.Provider = (*Provider)(nil)

// NewProvider creates a new Balancer flash loan provider. An empty address selects VaultAddress.
func NewProvider(client uniswap.Caller, cfg config.FlashLoanProviderConfig, logger *zap.Logger) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}

	vault := cfg.Address
	if vault == "" {
		vault = VaultAddress
	}
	if !common.IsHexAddress(vault) {
		return nil, fmt.Errorf("invalid vault address %q", vault)
	}

	return &Provider{
		client: client,
		vault:  common.HexToAddress(vault),
		feeBps: cfg.FeeBps,
		logger: logger,
	}, nil
}

func (p *Provider) Type() flashloan.ProviderType { return flashloan.ProviderBalancer }

func (p *Provider) Address() common.Address { return p.vault }

func (p *Provider) FeeBps() uint32 { return p.feeBps }

func (p *Provider) String() string { return "balancer" }

// Liquidity implements flashloan.Provider
func (p *Provider) Liquidity(ctx context.Context, token common.Address) (*big.Int, error) {
	balance, err := uniswap.BalanceOf(ctx, p.client, token, p.vault)
	if err != nil {
		return nil, fmt.Errorf("failed to get vault balance: %w", err)
	}

	p.logger.Debug("Balancer liquidity",
		zap.String("token", token.Hex()),
		zap.String("liquidity", balance.String()))
	return balance, nil
}
