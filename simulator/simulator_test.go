package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/contract"
	"github.com/michaelpento.lv/arbengine/flashloan"
	"github.com/michaelpento.lv/arbengine/gas"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"github.com/michaelpento.lv/arbengine/utils/testutils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var arbContract = common.HexToAddress("0x00000000000000000000000000000000000000cc")

type fixedPrice struct {
	price gas.GasPrice
}

func (f fixedPrice) PriceFor(context.Context, types.Network) gas.GasPrice {
	return f.price
}

func gwei(n int64) gas.GasPrice {
	return gas.GasPrice{Wei: big.NewInt(n * 1_000_000_000), Source: gas.SourceLive}
}

type fixedRate struct {
	rate    float64
	samples int
}

func (f fixedRate) SuccessRate(types.Network) (float64, int) {
	return f.rate, f.samples
}

type harness struct {
	client    *testutils.FakeClient
	nc        *config.NetworkConfig
	metrics   *metrics.EngineMetrics
	validator *Validator
	simulated int
}

func newHarness(t *testing.T, price gas.GasPrice, stats SuccessRater) *harness {
	t.Helper()

	nc, ok := config.NetworkDefaults(types.Base)
	require.True(t, ok)
	nc.ContractAddress = arbContract.Hex()

	wallet, err := rpc.ParsePrivateKey(testutils.TestPrivateKey)
	require.NoError(t, err)

	h := &harness{
		client:  testutils.NewFakeClient(8453),
		nc:      &nc,
		metrics: metrics.NewTestMetrics(),
	}
	h.client.Balances[wallet.Address] = big.NewInt(1e18)
	h.client.HandleMethod(arbContract, contract.ABI(), contract.MethodExecute, func(ethereum.CallMsg) ([]byte, error) {
		h.simulated++
		return nil, nil
	})

	reg := rpc.NewRegistry()
	require.NoError(t, reg.Register(&rpc.Chain{
		Network:  types.Base,
		Client:   h.client,
		ChainID:  big.NewInt(8453),
		Wallet:   wallet,
		Contract: arbContract,
		Config:   h.nc,
	}))

	h.validator = NewValidator(reg, fixedPrice{price: price}, stats, NewSimulator(time.Second), h.metrics, zaptest.NewLogger(t))
	return h
}

func (h *harness) rejections(check string) float64 {
	return testutil.ToFloat64(h.metrics.Rejections.WithLabelValues(types.Base.String(), check))
}

func opportunity(profitUSD, confidence float64) *types.Opportunity {
	return &types.Opportunity{
		Network:           types.Base,
		Strategy:          types.StrategyDirect,
		TokenIn:           common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		TokenOut:          common.HexToAddress("0x00000000000000000000000000000000000000a2"),
		TokenInDecimals:   18,
		TokenInUSD:        2000,
		AmountIn:          big.NewInt(1e18),
		ExpectedAmountOut: big.NewInt(1_010_000_000_000_000_000),
		ProfitUSD:         profitUSD,
		Route: []*types.PoolLeg{
			{RouterAddress: common.HexToAddress("0xe1"), Kind: types.ConstantProduct, FeeBps: 30},
			{RouterAddress: common.HexToAddress("0xe2"), Kind: types.ConstantProduct, FeeBps: 30},
		},
		GasEstimate: 300000,
		Deadline:    time.Now().Add(30 * time.Second),
		Confidence:  confidence,
		DetectedAt:  time.Now(),
	}
}

func TestValidatePasses(t *testing.T) {
	h := newHarness(t, gwei(1), fixedRate{rate: 1, samples: 20})
	opp := opportunity(20, 0.9)

	verdict := h.validator.Validate(context.Background(), opp, flashloan.DirectPlan())
	require.True(t, verdict.Passed(), "rejected: %v", verdict.Rejection)

	assert.Equal(t, uint64(300000), verdict.GasLimit)
	assert.InDelta(t, 0.6, verdict.GasCostUSD, 1e-9)
	assert.InDelta(t, 19.4, verdict.NetProfitUSD, 1e-9)
	assert.Equal(t, 1, h.simulated)

	method, params, err := contract.DecodeExecute(verdict.Calldata)
	require.NoError(t, err)
	assert.Equal(t, contract.MethodExecute, method)
	assert.Equal(t, opp.TokenIn, params.TokenIn)
	assert.Equal(t, opp.AmountIn.String(), params.AmountIn.String())
	assert.Equal(t, opp.Routers(), params.Routers)
}

func TestValidateFlashPlanAddsOverheadGas(t *testing.T) {
	h := newHarness(t, gwei(1), nil)
	h.client.HandleMethod(arbContract, contract.ABI(), contract.MethodExecuteFlashLoan, testutils.Returns(nil))
	plan := flashloan.Plan{
		Flash:    true,
		Provider: flashloan.ProviderBalancer,
		Address:  common.HexToAddress("0xba"),
		ExtraGas: flashloan.FlashOverheadGas,
	}

	verdict := h.validator.Validate(context.Background(), opportunity(20, 0.9), plan)
	require.True(t, verdict.Passed(), "rejected: %v", verdict.Rejection)
	assert.Equal(t, uint64(300000)+flashloan.FlashOverheadGas, verdict.GasLimit)

	method, _, err := contract.DecodeExecute(verdict.Calldata)
	require.NoError(t, err)
	assert.Equal(t, contract.MethodExecuteFlashLoan, method)
}

func TestValidateRejectsProfitBelowMinimum(t *testing.T) {
	h := newHarness(t, gwei(1), nil)

	verdict := h.validator.Validate(context.Background(), opportunity(9, 1), flashloan.DirectPlan())
	require.False(t, verdict.Passed())
	assert.Equal(t, CheckMinProfit, verdict.Rejection.Check)
	assert.Contains(t, verdict.Rejection.Reason, "profit below minimum")
	assert.False(t, verdict.Rejection.Transient)
	assert.True(t, errors.Is(verdict.Rejection, types.ErrValidationRejected))

	assert.Zero(t, h.client.TotalCalls(), "first check needs no chain access")
	assert.Equal(t, 1.0, h.rejections(CheckMinProfit))
}

func TestValidateRejectsLowBalance(t *testing.T) {
	h := newHarness(t, gwei(1), nil)
	h.client.Balances[testutils.TestAddress()] = big.NewInt(1000)

	verdict := h.validator.Validate(context.Background(), opportunity(20, 0.9), flashloan.DirectPlan())
	require.False(t, verdict.Passed())
	assert.Equal(t, CheckBalance, verdict.Rejection.Check)
	assert.False(t, verdict.Rejection.Transient)
	assert.Zero(t, h.simulated)
}

func TestValidateBalanceReadFailureIsTransient(t *testing.T) {
	h := newHarness(t, gwei(1), nil)
	h.client.SetErr("BalanceAt", fmt.Errorf("%w: connection reset", types.ErrTransientRPC))

	verdict := h.validator.Validate(context.Background(), opportunity(20, 0.9), flashloan.DirectPlan())
	require.False(t, verdict.Passed())
	assert.Equal(t, CheckBalance, verdict.Rejection.Check)
	assert.True(t, verdict.Rejection.Transient)
	assert.True(t, errors.Is(verdict.Rejection, types.ErrTransientRPC))
}

func TestValidateRejectsGasMargin(t *testing.T) {
	h := newHarness(t, gwei(100), nil)

	verdict := h.validator.Validate(context.Background(), opportunity(20, 0.9), flashloan.DirectPlan())
	require.False(t, verdict.Passed())
	assert.Equal(t, CheckGasMargin, verdict.Rejection.Check)
	assert.True(t, verdict.Rejection.Transient)
	assert.InDelta(t, 60.0, verdict.GasCostUSD, 1e-9)
	assert.Zero(t, h.simulated)
}

func TestValidateSuccessRateGate(t *testing.T) {
	stats := fixedRate{rate: 0.1, samples: 25}

	t.Run("low confidence rejected", func(t *testing.T) {
		h := newHarness(t, gwei(1), stats)
		verdict := h.validator.Validate(context.Background(), opportunity(20, 0.5), flashloan.DirectPlan())
		require.False(t, verdict.Passed())
		assert.Equal(t, CheckSuccessRate, verdict.Rejection.Check)
	})

	t.Run("elevated confidence proceeds", func(t *testing.T) {
		h := newHarness(t, gwei(1), stats)
		verdict := h.validator.Validate(context.Background(), opportunity(20, 0.85), flashloan.DirectPlan())
		assert.True(t, verdict.Passed())
	})

	t.Run("too few samples", func(t *testing.T) {
		h := newHarness(t, gwei(1), fixedRate{rate: 0, samples: 3})
		verdict := h.validator.Validate(context.Background(), opportunity(20, 0.5), flashloan.DirectPlan())
		assert.True(t, verdict.Passed())
	})
}

func TestValidateSimulationRevert(t *testing.T) {
	h := newHarness(t, gwei(1), nil)
	h.client.HandleMethod(arbContract, contract.ABI(), contract.MethodExecute, func(ethereum.CallMsg) ([]byte, error) {
		return nil, testutils.Revert("INSUFFICIENT_OUTPUT_AMOUNT")
	})

	verdict := h.validator.Validate(context.Background(), opportunity(20, 0.9), flashloan.DirectPlan())
	require.False(t, verdict.Passed())
	assert.Equal(t, CheckSimulation, verdict.Rejection.Check)
	assert.Equal(t, "INSUFFICIENT_OUTPUT_AMOUNT", verdict.Rejection.Reason)
	assert.False(t, verdict.Rejection.Transient)
	assert.True(t, errors.Is(verdict.Rejection, types.ErrSimulationReverted))
}

func TestValidateSimulationUnavailable(t *testing.T) {
	h := newHarness(t, gwei(1), nil)
	h.client.SetErr("CallContract", fmt.Errorf("%w: timeout", types.ErrTransientRPC))

	verdict := h.validator.Validate(context.Background(), opportunity(20, 0.9), flashloan.DirectPlan())
	require.False(t, verdict.Passed())
	assert.Equal(t, CheckSimulation, verdict.Rejection.Check)
	assert.True(t, verdict.Rejection.Transient)
	assert.False(t, errors.Is(verdict.Rejection, types.ErrSimulationReverted))
}

func TestValidateRejectsNetProfit(t *testing.T) {
	h := newHarness(t, gwei(1), nil)
	h.nc.MinNetProfitUSD = 19.9

	verdict := h.validator.Validate(context.Background(), opportunity(20, 0.9), flashloan.DirectPlan())
	require.False(t, verdict.Passed())
	assert.Equal(t, CheckNetProfit, verdict.Rejection.Check)
	assert.Equal(t, 1, h.simulated, "net profit is checked after simulation")
}

func TestValidateUnknownNetwork(t *testing.T) {
	h := newHarness(t, gwei(1), nil)
	opp := opportunity(20, 0.9)
	opp.Network = types.Polygon

	verdict := h.validator.Validate(context.Background(), opp, flashloan.DirectPlan())
	require.False(t, verdict.Passed())
	assert.Equal(t, "network", verdict.Rejection.Check)
}

func TestSimulate(t *testing.T) {
	fc := testutils.NewFakeClient(8453)
	sim := NewSimulator(time.Second)
	to := arbContract
	msg := ethereum.CallMsg{To: &to, Data: contract.PackOwner()}

	fc.HandleMethod(arbContract, contract.ABI(), contract.MethodOwner, testutils.Returns(testutils.Encode([]string{"address"}, testutils.TestAddress())))
	result, err := sim.Simulate(context.Background(), fc, msg)
	require.NoError(t, err)
	assert.True(t, result.Success)

	fc.HandleMethod(arbContract, contract.ABI(), contract.MethodOwner, func(ethereum.CallMsg) ([]byte, error) {
		return nil, testutils.Revert("Ownable: caller is not the owner")
	})
	result, err = sim.Simulate(context.Background(), fc, msg)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Ownable: caller is not the owner", result.RevertReason)
	assert.Error(t, result.Error)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Simulate(ctx, fc, msg)
	assert.ErrorIs(t, err, context.Canceled)
}
