package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Provider defines the interface for flash loan providers
type Provider interface {
	Type() ProviderType
	Address() common.Address
	FeeBps() uint32
	// Liquidity returns how much of token the provider can lend right now
	Liquidity(ctx context.Context, token common.Address) (*big.Int, error)
	String() string
}
