package flashloan

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
)

// FlashOverheadGas is the extra gas a flash-loan callback costs over a direct swap
const FlashOverheadGas = 100000

// ErrNoProvider is returned when no configured provider can lend the requested amount
var ErrNoProvider = errors.New("no flash loan provider available")

// ProviderType identifies a flash loan source. The numeric value is what the
// arbitrage contract expects in the extra params.
type ProviderType uint8

const (
	ProviderNone ProviderType = iota
	ProviderBalancer
	ProviderAave
)

func (p ProviderType) String() string {
	switch p {
	case ProviderNone:
		return "none"
	case ProviderBalancer:
		return "balancer"
	case ProviderAave:
		return "aave"
	default:
		return fmt.Sprintf("provider(%d)", uint8(p))
	}
}

// ParseProviderType resolves a configured provider name
func ParseProviderType(name string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "balancer":
		return ProviderBalancer, nil
	case "aave", "aave_v3":
		return ProviderAave, nil
	default:
		return ProviderNone, fmt.Errorf("unknown flash loan provider %q", name)
	}
}

// Plan is how a position gets funded
type Plan struct {
	Flash    bool
	Provider ProviderType
	Address  common.Address
	FeeBps   uint32
	ExtraGas uint64
}

// DirectPlan funds the trade from the contract's own balance
func DirectPlan() Plan {
	return Plan{Provider: ProviderNone}
}

// Fee returns the loan fee owed on amount
func (p Plan) Fee(amount *big.Int) *big.Int {
	if !p.Flash || amount == nil {
		return big.NewInt(0)
	}
	return arbmath.MulBps(amount, p.FeeBps)
}

// FeeUSD returns the loan fee on a position of positionUSD
func (p Plan) FeeUSD(positionUSD float64) float64 {
	if !p.Flash {
		return 0
	}
	return positionUSD * float64(p.FeeBps) / 10000
}

func (p Plan) String() string {
	if !p.Flash {
		return "direct"
	}
	return fmt.Sprintf("flash:%s", p.Provider)
}
