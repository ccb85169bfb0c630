package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/contract"
	"github.com/michaelpento.lv/arbengine/flashloan"
	"github.com/michaelpento.lv/arbengine/gas"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"go.uber.org/zap"
)

// Preflight check names, in evaluation order
const (
	CheckMinProfit   = "min_profit"
	CheckBalance     = "balance"
	CheckGasMargin   = "gas_margin"
	CheckSuccessRate = "success_rate"
	CheckSimulation  = "simulation"
	CheckNetProfit   = "net_profit"
)

// ChainSource resolves a connected network. *rpc.Registry implements it.
type ChainSource interface {
	Chain(n types.Network) (*rpc.Chain, error)
}

// GasPricer prices gas for a network. *gas.Oracle implements it.
type GasPricer interface {
	PriceFor(ctx context.Context, n types.Network) gas.GasPrice
}

// SuccessRater reports the rolling execution success rate of a network
type SuccessRater interface {
	SuccessRate(n types.Network) (rate float64, samples int)
}

var (
	_ ChainSource = (*rpc.Registry)(nil)
	_ GasPricer   = (*gas.Oracle)(nil)
)

// Verdict is the outcome of preflight. When Rejection is nil the opportunity
// passed and Calldata is exactly what should be submitted.
type Verdict struct {
	Rejection    *types.RejectionError
	Params       *contract.Params
	Calldata     []byte
	GasPrice     gas.GasPrice
	GasLimit     uint64
	GasCostUSD   float64
	NetProfitUSD float64
}

// Passed reports whether every check passed
func (v *Verdict) Passed() bool {
	return v.Rejection == nil
}

// Validator runs the ordered preflight checks, stopping at the first failure
type Validator struct {
	chains    ChainSource
	gas       GasPricer
	stats     SuccessRater
	simulator *Simulator
	metrics   *metrics.EngineMetrics
	logger    *zap.Logger
}

// NewValidator creates a preflight validator
func NewValidator(chains ChainSource, gas GasPricer, stats SuccessRater, sim *Simulator, m *metrics.EngineMetrics, logger *zap.Logger) *Validator {
	return &Validator{
		chains:    chains,
		gas:       gas,
		stats:     stats,
		simulator: sim,
		metrics:   m,
		logger:    logger,
	}
}

// Validate checks opp, already sized and funded per plan. opp.ProfitUSD must
// already be net of the flash loan fee.
func (v *Validator) Validate(ctx context.Context, opp *types.Opportunity, plan flashloan.Plan) *Verdict {
	verdict := &Verdict{}

	chain, err := v.chains.Chain(opp.Network)
	if err != nil {
		return v.reject(opp, verdict, "network", err.Error(), false, nil)
	}
	nc := chain.Config

	// 1. Absolute profit floor
	if opp.ProfitUSD < nc.MinProfitUSD {
		return v.reject(opp, verdict, CheckMinProfit,
			fmt.Sprintf("profit below minimum: $%.2f < $%.2f", opp.ProfitUSD, nc.MinProfitUSD), false, nil)
	}

	// 2. Enough native balance to pay for gas with a safety margin
	verdict.GasLimit = opp.GasEstimate + plan.ExtraGas
	verdict.GasPrice = v.gas.PriceFor(ctx, opp.Network)
	verdict.GasCostUSD = gas.CostUSD(verdict.GasPrice, verdict.GasLimit, nc.NativeUSD)

	balance, err := chain.Client.BalanceAt(ctx, chain.Wallet.Address, nil)
	if err != nil {
		return v.reject(opp, verdict, CheckBalance, fmt.Sprintf("failed to read balance: %v", err), true, types.ErrTransientRPC)
	}
	required := RequiredBalance(nc, verdict.GasPrice, verdict.GasLimit)
	if balance.Cmp(required) < 0 {
		return v.reject(opp, verdict, CheckBalance,
			fmt.Sprintf("insufficient balance for gas: have %s wei, need %s wei", balance, required), false, nil)
	}

	// 3. Gas must leave the required share of the expected profit
	verdict.NetProfitUSD = opp.ProfitUSD - verdict.GasCostUSD
	margin := 0.0
	if opp.ProfitUSD > 0 {
		margin = verdict.NetProfitUSD / opp.ProfitUSD * 100
	}
	if margin < nc.RequiredMarginPct {
		return v.reject(opp, verdict, CheckGasMargin,
			fmt.Sprintf("gas too high: margin %.1f%% below required %.1f%% (gas $%.2f at %.3f gwei)",
				margin, nc.RequiredMarginPct, verdict.GasCostUSD, arbmath.WeiToGwei(verdict.GasPrice.Wei)), true, nil)
	}

	// 4. A network that keeps failing needs more conviction
	if v.stats != nil {
		rate, samples := v.stats.SuccessRate(opp.Network)
		if samples >= nc.SuccessRateMinSamples && rate < nc.LowSuccessRate && opp.Confidence < nc.ElevatedConfidence {
			return v.reject(opp, verdict, CheckSuccessRate,
				fmt.Sprintf("success rate %.0f%% over %d executions requires confidence %.2f, have %.2f",
					rate*100, samples, nc.ElevatedConfidence, opp.Confidence), true, nil)
		}
	}

	// 5. Static call of the exact transaction
	params, err := contract.BuildParams(opp, plan, nc.SlippageBps)
	if err != nil {
		return v.reject(opp, verdict, CheckSimulation, err.Error(), false, nil)
	}
	calldata, err := contract.PackExecute(params, plan)
	if err != nil {
		return v.reject(opp, verdict, CheckSimulation, err.Error(), false, nil)
	}
	verdict.Params = params
	verdict.Calldata = calldata

	to := chain.Contract
	result, err := v.simulator.Simulate(ctx, chain.Client, ethereum.CallMsg{
		From: chain.Wallet.Address,
		To:   &to,
		Gas:  verdict.GasLimit,
		Data: calldata,
	})
	if err != nil {
		return v.reject(opp, verdict, CheckSimulation, fmt.Sprintf("simulation unavailable: %v", err), true, types.ErrTransientRPC)
	}
	if !result.Success {
		return v.reject(opp, verdict, CheckSimulation, result.RevertReason, false, types.ErrSimulationReverted)
	}

	// 6. Final net profit floor
	if verdict.NetProfitUSD < nc.MinNetProfitUSD {
		return v.reject(opp, verdict, CheckNetProfit,
			fmt.Sprintf("net profit $%.2f below minimum $%.2f", verdict.NetProfitUSD, nc.MinNetProfitUSD), true, nil)
	}

	return verdict
}

func (v *Validator) reject(opp *types.Opportunity, verdict *Verdict, check, reason string, transient bool, kind error) *Verdict {
	verdict.Rejection = &types.RejectionError{
		Check:     check,
		Reason:    reason,
		Transient: transient,
		Kind:      kind,
	}
	v.metrics.Rejections.WithLabelValues(opp.Network.String(), check).Inc()
	v.logger.Info("Opportunity rejected",
		zap.String("key", opp.Key()),
		zap.String("check", check),
		zap.String("reason", reason),
		zap.Bool("transient", transient))
	return verdict
}

// RequiredBalance returns the native balance preflight demands for gasLimit at price
func RequiredBalance(nc *config.NetworkConfig, price gas.GasPrice, gasLimit uint64) *big.Int {
	cost := new(big.Int).Mul(price.Wei, new(big.Int).SetUint64(gasLimit))
	return arbmath.ScaleFloat(cost, nc.GasSafetyMultiplier)
}
