package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/flashloan"
	"github.com/michaelpento.lv/arbengine/types"
	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Params are the execution parameters passed to the contract. Field order and
// names follow the on-chain tuple.
type Params struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	ExpectedAmountOut *big.Int
	Routers           []common.Address
	Deadline          *big.Int
	Extra             []byte
}

// Extra is the decoded form of Params.Extra
type Extra struct {
	Provider uint8
	Lender   common.Address
	Kinds    []uint8
	Fees     []*big.Int
}

// BuildParams turns a sized opportunity and its funding plan into contract
// parameters. The expected output is reduced by slippageBps.
func BuildParams(opp *types.Opportunity, plan flashloan.Plan, slippageBps uint32) (*Params, error) {
	extra := Extra{
		Provider: uint8(plan.Provider),
		Lender:   plan.Address,
		Kinds:    make([]uint8, len(opp.Route)),
		Fees:     make([]*big.Int, len(opp.Route)),
	}
	for i, leg := range opp.Route {
		extra.Kinds[i] = uint8(leg.Kind)
		// Concentrated pools are addressed by their fee tier in hundredths of a bip
		extra.Fees[i] = new(big.Int).SetUint64(uint64(leg.FeeBps) * 100)
	}
	encodedExtra, err := EncodeExtra(extra)
	if err != nil {
		return nil, err
	}

	return &Params{
		TokenIn:           opp.TokenIn,
		TokenOut:          opp.TokenOut,
		AmountIn:          new(big.Int).Set(opp.AmountIn),
		ExpectedAmountOut: arbmath.SubBps(opp.ExpectedAmountOut, slippageBps),
		Routers:           opp.Routers(),
		Deadline:          big.NewInt(opp.Deadline.Unix()),
		Extra:             encodedExtra,
	}, nil
}

// EncodeParams ABI-encodes p as the params tuple
func EncodeParams(p *Params) ([]byte, error) {
	if err := checkUint128("amountIn", p.AmountIn); err != nil {
		return nil, err
	}
	if err := checkUint128("expectedAmountOut", p.ExpectedAmountOut); err != nil {
		return nil, err
	}
	if p.Deadline == nil || p.Deadline.Sign() < 0 {
		return nil, fmt.Errorf("deadline must be set")
	}
	routers := p.Routers
	if routers == nil {
		routers = []common.Address{}
	}
	extra := p.Extra
	if extra == nil {
		extra = []byte{}
	}

	data, err := paramsArgs.Pack(Params{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		AmountIn:          p.AmountIn,
		ExpectedAmountOut: p.ExpectedAmountOut,
		Routers:           routers,
		Deadline:          p.Deadline,
		Extra:             extra,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack params: %w", err)
	}
	return data, nil
}

// DecodeParams is the inverse of EncodeParams
func DecodeParams(data []byte) (*Params, error) {
	values, err := paramsArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack params: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("expected one params tuple, got %d values", len(values))
	}

	p, ok := abi.ConvertType(values[0], new(Params)).(*Params)
	if !ok {
		return nil, fmt.Errorf("failed to convert params")
	}
	return p, nil
}

// EncodeExtra ABI-encodes the extra section
func EncodeExtra(e Extra) ([]byte, error) {
	kinds := e.Kinds
	if kinds == nil {
		kinds = []uint8{}
	}
	fees := e.Fees
	if fees == nil {
		fees = []*big.Int{}
	}
	data, err := extraArgs.Pack(e.Provider, e.Lender, kinds, fees)
	if err != nil {
		return nil, fmt.Errorf("failed to pack extra: %w", err)
	}
	return data, nil
}

// DecodeExtra is the inverse of EncodeExtra
func DecodeExtra(data []byte) (*Extra, error) {
	values, err := extraArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack extra: %w", err)
	}

	e := &Extra{}
	var ok bool
	if e.Provider, ok = values[0].(uint8); !ok {
		return nil, fmt.Errorf("failed to parse provider")
	}
	if e.Lender, ok = values[1].(common.Address); !ok {
		return nil, fmt.Errorf("failed to parse lender")
	}
	if e.Kinds, ok = values[2].([]uint8); !ok {
		return nil, fmt.Errorf("failed to parse kinds")
	}
	if e.Fees, ok = values[3].([]*big.Int); !ok {
		return nil, fmt.Errorf("failed to parse fees")
	}
	return e, nil
}

func checkUint128(name string, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return fmt.Errorf("%s must be a non-negative amount", name)
	}
	if v.Cmp(maxUint128) > 0 {
		return fmt.Errorf("%s %s overflows uint128", name, v)
	}
	return nil
}
