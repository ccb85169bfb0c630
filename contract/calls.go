package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/arbengine/flashloan"
)

// Executed is the decoded ArbitrageExecuted event
type Executed struct {
	Token   common.Address
	Profit  *big.Int
	GasUsed *big.Int
}

// PackExecute builds the calldata for the execute method matching plan
func PackExecute(p *Params, plan flashloan.Plan) ([]byte, error) {
	encoded, err := EncodeParams(p)
	if err != nil {
		return nil, err
	}

	method := MethodExecute
	if plan.Flash {
		method = MethodExecuteFlashLoan
	}

	data, err := parsedABI.Pack(method, p.TokenIn, p.AmountIn, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return data, nil
}

// DecodeExecute decodes calldata produced by PackExecute
func DecodeExecute(data []byte) (method string, p *Params, err error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("invalid data length")
	}

	m, err := parsedABI.MethodById(data[:4])
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode method: %w", err)
	}
	if m.Name != MethodExecute && m.Name != MethodExecuteFlashLoan {
		return "", nil, fmt.Errorf("unexpected method %s", m.Name)
	}

	args := make(map[string]interface{})
	if err := m.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return "", nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	encoded, ok := args["params"].([]byte)
	if !ok {
		return "", nil, fmt.Errorf("failed to parse params")
	}

	p, err = DecodeParams(encoded)
	if err != nil {
		return "", nil, err
	}
	return m.Name, p, nil
}

// ParseExecuted returns the first ArbitrageExecuted event emitted by the
// contract at address. ok is false when no parsable event is present.
func ParseExecuted(logs []*ethtypes.Log, address common.Address) (*Executed, bool) {
	event := parsedABI.Events[EventExecuted]

	for _, l := range logs {
		if l == nil || l.Address != address || len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}

		values, err := parsedABI.Unpack(EventExecuted, l.Data)
		if err != nil || len(values) != 2 {
			continue
		}
		profit, ok := values[0].(*big.Int)
		if !ok {
			continue
		}
		gasUsed, ok := values[1].(*big.Int)
		if !ok {
			continue
		}

		return &Executed{
			Token:   common.BytesToAddress(l.Topics[1].Bytes()),
			Profit:  profit,
			GasUsed: gasUsed,
		}, true
	}
	return nil, false
}

// PackOwner builds the owner() calldata
func PackOwner() []byte {
	data, _ := parsedABI.Pack(MethodOwner)
	return data
}

// UnpackOwner decodes the owner() return value
func UnpackOwner(out []byte) (common.Address, error) {
	values, err := parsedABI.Unpack(MethodOwner, out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack owner: %w", err)
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse owner")
	}
	return owner, nil
}

// PackEmergencyWithdraw builds the emergencyWithdraw(token) calldata
func PackEmergencyWithdraw(token common.Address) ([]byte, error) {
	data, err := parsedABI.Pack(MethodEmergencyWithdraw, token)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", MethodEmergencyWithdraw, err)
	}
	return data, nil
}
