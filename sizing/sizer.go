package sizing

import (
	"math/big"

	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/types"
	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
)

// Position is the sized trade
type Position struct {
	USD      float64
	AmountIn *big.Int
}

// Sizer turns an opportunity into a position size
type Sizer struct {
	config *config.Config
}

// NewSizer creates a new position sizer
func NewSizer(cfg *config.Config) *Sizer {
	return &Sizer{
		config: cfg,
	}
}

// Size computes capital x confidence x boosts, clamped to the network position
// bounds, and converts the result into tokenIn units
func (s *Sizer) Size(opp *types.Opportunity, alloc *Allocation) Position {
	nc, ok := s.config.Network(opp.Network)
	if !ok {
		return Position{AmountIn: big.NewInt(0)}
	}

	usd := alloc.Capital(opp.Network) * opp.Confidence
	usd *= s.persistenceBoost(opp)
	usd *= s.discrepancyBoost(opp)
	usd = arbmath.Clamp(usd, nc.MinPositionUSD, nc.MaxPositionUSD)

	amount := big.NewInt(0)
	if opp.TokenInUSD > 0 {
		amount = arbmath.FromFloat(usd/opp.TokenInUSD, opp.TokenInDecimals)
	}

	return Position{USD: usd, AmountIn: amount}
}

func (s *Sizer) persistenceBoost(opp *types.Opportunity) float64 {
	if opp.PersistenceSeconds == nil {
		return 1
	}
	sz := s.config.Sizing
	if *opp.PersistenceSeconds > sz.PersistenceThreshold.Seconds() && sz.PersistenceBoost > 0 {
		return sz.PersistenceBoost
	}
	return 1
}

func (s *Sizer) discrepancyBoost(opp *types.Opportunity) float64 {
	if opp.DiscrepancyPct == nil {
		return 1
	}
	sz := s.config.Sizing
	if *opp.DiscrepancyPct > sz.DiscrepancyThreshold && sz.DiscrepancyBoost > 0 {
		return sz.DiscrepancyBoost
	}
	return 1
}
