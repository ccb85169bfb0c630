package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ArbitrageABI is the surface of the deployed arbitrage contract the engine uses
const ArbitrageABI = `[
	{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"bytes","name":"params","type":"bytes"}],"name":"executeArbitrage","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"bytes","name":"params","type":"bytes"}],"name":"executeFlashLoanArbitrage","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"token","type":"address"}],"name":"emergencyWithdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"token","type":"address"},{"indexed":false,"internalType":"uint256","name":"profit","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"gasUsed","type":"uint256"}],"name":"ArbitrageExecuted","type":"event"}
]`

const (
	MethodExecute           = "executeArbitrage"
	MethodExecuteFlashLoan  = "executeFlashLoanArbitrage"
	MethodOwner             = "owner"
	MethodEmergencyWithdraw = "emergencyWithdraw"
	EventExecuted           = "ArbitrageExecuted"
)

var (
	parsedABI = mustParse(ArbitrageABI)

	// params is the tuple encoded into the bytes argument of both execute methods
	paramsArgs = abi.Arguments{{Type: mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "tokenIn", Type: "address"},
		{Name: "tokenOut", Type: "address"},
		{Name: "amountIn", Type: "uint128"},
		{Name: "expectedAmountOut", Type: "uint128"},
		{Name: "routers", Type: "address[]"},
		{Name: "deadline", Type: "uint256"},
		{Name: "extra", Type: "bytes"},
	})}}

	// extra carries the funding source and how each router should be driven
	extraArgs = abi.Arguments{
		{Name: "provider", Type: mustType("uint8", nil)},
		{Name: "lender", Type: mustType("address", nil)},
		{Name: "kinds", Type: mustType("uint8[]", nil)},
		{Name: "fees", Type: mustType("uint24[]", nil)},
	}
)

// ABI returns the parsed contract ABI
func ABI() abi.ABI {
	return parsedABI
}

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}
