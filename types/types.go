package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Network identifies a supported chain
type Network string

const (
	Ethereum Network = "ethereum"
	Arbitrum Network = "arbitrum"
	Optimism Network = "optimism"
	Base     Network = "base"
	Polygon  Network = "polygon"
	ZkSync   Network = "zksync"
)

// AllNetworks lists every network the engine knows defaults for
var AllNetworks = []Network{Ethereum, Arbitrum, Optimism, Base, Polygon, ZkSync}

func (n Network) String() string {
	return string(n)
}

// ParseNetwork resolves a network name case-insensitively
func ParseNetwork(name string) (Network, error) {
	candidate := Network(strings.ToLower(strings.TrimSpace(name)))
	for _, n := range AllNetworks {
		if n == candidate {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown network %q", name)
}

// Strategy names the detection strategy that produced an opportunity
type Strategy string

const (
	StrategyDirect     Strategy = "direct"
	StrategyTriangular Strategy = "triangular"
	StrategyNewListing Strategy = "new_listing"
)

// PoolKind distinguishes constant-product pools from concentrated-liquidity pools
type PoolKind int

const (
	ConstantProduct PoolKind = iota
	Concentrated
)

func (k PoolKind) String() string {
	switch k {
	case ConstantProduct:
		return "constant_product"
	case Concentrated:
		return "concentrated"
	default:
		return "unknown"
	}
}

// Token is a tracked asset on one network
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
	USDPrice float64
}

// PoolLeg is an immutable snapshot of one hop, oriented TokenIn -> TokenOut
type PoolLeg struct {
	DexName       string
	RouterAddress common.Address
	PoolAddress   common.Address
	Kind          PoolKind
	FeeBps        uint32

	TokenIn     common.Address
	TokenOut    common.Address
	DecimalsIn  uint8
	DecimalsOut uint8

	// Constant-product pools
	ReserveIn  *big.Int
	ReserveOut *big.Int

	// Concentrated-liquidity pools
	Liquidity    *big.Int
	SqrtPriceX96 *big.Int

	// Price is TokenOut per TokenIn in whole units, before fees
	Price float64
}

// FeeFraction returns the leg fee as a fraction (30 bps -> 0.003)
func (l *PoolLeg) FeeFraction() float64 {
	return float64(l.FeeBps) / 10000
}

// Reverse returns the same pool oriented in the opposite direction
func (l *PoolLeg) Reverse() *PoolLeg {
	r := *l
	r.TokenIn, r.TokenOut = l.TokenOut, l.TokenIn
	r.DecimalsIn, r.DecimalsOut = l.DecimalsOut, l.DecimalsIn
	r.ReserveIn, r.ReserveOut = l.ReserveOut, l.ReserveIn
	if l.Price > 0 {
		r.Price = 1 / l.Price
	}
	return &r
}

// Opportunity is a candidate trade produced by one detection pass
type Opportunity struct {
	Network           Network
	Strategy          Strategy
	TokenIn           common.Address
	TokenOut          common.Address
	TokenInDecimals   uint8
	TokenInUSD        float64
	AmountIn          *big.Int
	ExpectedAmountOut *big.Int
	ProfitUSD         float64
	Route             []*PoolLeg
	GasEstimate       uint64
	Deadline          time.Time
	Confidence        float64
	DetectedAt        time.Time

	PersistenceSeconds *float64
	DiscrepancyPct     *float64
}

// Key identifies the opportunity for cooldown, dedup and persistence tracking
func (o *Opportunity) Key() string {
	return OpportunityKey(o.Network, o.TokenIn, o.TokenOut)
}

// OpportunityKey builds the key for a network and token pair
func OpportunityKey(network Network, tokenIn, tokenOut common.Address) string {
	return fmt.Sprintf("%s:%s:%s", network, strings.ToLower(tokenIn.Hex()), strings.ToLower(tokenOut.Hex()))
}

// Routers returns the router address of every leg in route order
func (o *Opportunity) Routers() []common.Address {
	routers := make([]common.Address, len(o.Route))
	for i, leg := range o.Route {
		routers[i] = leg.RouterAddress
	}
	return routers
}

// Expired reports whether the deadline has passed at now
func (o *Opportunity) Expired(now time.Time) bool {
	return !o.Deadline.After(now)
}

// Validate checks the creation invariants
func (o *Opportunity) Validate(now time.Time) error {
	if o.AmountIn == nil || o.AmountIn.Sign() <= 0 {
		return fmt.Errorf("amount in must be positive")
	}
	if !o.Deadline.After(now) {
		return fmt.Errorf("deadline %s is not in the future", o.Deadline.Format(time.RFC3339))
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence %f outside [0,1]", o.Confidence)
	}
	if len(o.Route) == 0 {
		return fmt.Errorf("route is empty")
	}
	return nil
}

// WithAmount returns a copy resized to amountIn with the re-quoted output and profit.
// The receiver is left untouched.
func (o *Opportunity) WithAmount(amountIn, expectedOut *big.Int, profitUSD float64) *Opportunity {
	c := *o
	c.AmountIn = new(big.Int).Set(amountIn)
	c.ExpectedAmountOut = new(big.Int).Set(expectedOut)
	c.ProfitUSD = profitUSD
	return &c
}

// Outcome is the terminal result of an execution attempt
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeReverted  Outcome = "reverted"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// ExecutionRecord is the outcome of one execution attempt
type ExecutionRecord struct {
	ID              string       `json:"id"`
	OpportunityKey  string       `json:"opportunity_key"`
	Network         Network      `json:"network"`
	Strategy        Strategy     `json:"strategy"`
	Timestamp       time.Time    `json:"timestamp"`
	Outcome         Outcome      `json:"outcome"`
	Success         bool         `json:"success"`
	FlashLoan       bool         `json:"flash_loan"`
	AmountIn        string       `json:"amount_in"`
	EstimatedUSD    float64      `json:"estimated_profit_usd"`
	TxHash          *common.Hash `json:"tx_hash,omitempty"`
	ActualProfitUSD *float64     `json:"actual_profit_usd,omitempty"`
	GasUsed         *uint64      `json:"gas_used,omitempty"`
	FailureReason   string       `json:"failure_reason,omitempty"`
}
