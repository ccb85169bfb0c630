package execution

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/contract"
	"github.com/michaelpento.lv/arbengine/flashloan"
	"github.com/michaelpento.lv/arbengine/gas"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/simulator"
	"github.com/michaelpento.lv/arbengine/sizing"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"github.com/michaelpento.lv/arbengine/utils/testutils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	arbContract = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	weth        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	usdc        = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	dai         = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

type fakePreflight struct {
	mu     sync.Mutex
	seen   []*types.Opportunity
	reject *types.RejectionError
	gate   chan struct{}
}

func (f *fakePreflight) Validate(_ context.Context, opp *types.Opportunity, _ flashloan.Plan) *simulator.Verdict {
	f.mu.Lock()
	f.seen = append(f.seen, opp)
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if f.reject != nil {
		return &simulator.Verdict{Rejection: f.reject}
	}
	return &simulator.Verdict{
		GasPrice:     gas.GasPrice{Wei: big.NewInt(1_000_000_000), Tip: big.NewInt(100_000_000)},
		GasLimit:     300000,
		Calldata:     []byte{0xde, 0xad, 0xbe, 0xef},
		GasCostUSD:   0.6,
		NetProfitUSD: opp.ProfitUSD - 0.6,
	}
}

func (f *fakePreflight) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *fakePreflight) last() *types.Opportunity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[len(f.seen)-1]
}

type directPlanner struct{}

func (directPlanner) Plan(context.Context, types.Network, common.Address, *big.Int, float64) (flashloan.Plan, error) {
	return flashloan.DirectPlan(), nil
}

type alert struct {
	title  string
	urgent bool
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert
}

func (r *recordingNotifier) Notify(_ context.Context, title, _ string, urgent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert{title: title, urgent: urgent})
	return nil
}

type recordingJournal struct {
	mu      sync.Mutex
	records []*types.ExecutionRecord
}

func (r *recordingJournal) Record(_ context.Context, rec *types.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type harness struct {
	client      *testutils.FakeClient
	cfg         *config.Config
	preflight   *fakePreflight
	notifier    *recordingNotifier
	journal     *recordingJournal
	stats       *RollingStats
	alloc       *sizing.Allocation
	metrics     *metrics.EngineMetrics
	coordinator *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	nc, ok := config.NetworkDefaults(types.Base)
	require.True(t, ok)
	nc.ContractAddress = arbContract.Hex()
	nc.ConfirmationTimeout = 150 * time.Millisecond
	nc.Tokens = []config.TokenConfig{
		{Symbol: "WETH", Address: weth.Hex(), Decimals: 18, USDPrice: 2000},
		{Symbol: "USDC", Address: usdc.Hex(), Decimals: 6, USDPrice: 1},
		{Symbol: "DAI", Address: dai.Hex(), Decimals: 18, USDPrice: 1},
	}

	cfg := config.DefaultConfig()
	cfg.ReceiptPollInterval = 5 * time.Millisecond
	cfg.RPCTimeout = time.Second
	cfg.Networks = []config.NetworkConfig{nc}

	wallet, err := rpc.ParsePrivateKey(testutils.TestPrivateKey)
	require.NoError(t, err)

	h := &harness{
		client:    testutils.NewFakeClient(8453),
		cfg:       cfg,
		preflight: &fakePreflight{},
		notifier:  &recordingNotifier{},
		journal:   &recordingJournal{},
		stats:     NewRollingStats(10),
		alloc:     sizing.NewAllocation(cfg),
		metrics:   metrics.NewTestMetrics(),
	}

	reg := rpc.NewRegistry()
	require.NoError(t, reg.Register(&rpc.Chain{
		Network:  types.Base,
		Client:   h.client,
		ChainID:  big.NewInt(8453),
		Wallet:   wallet,
		Contract: arbContract,
		Config:   &cfg.Networks[0],
	}))

	h.coordinator = NewCoordinator(cfg, Deps{
		Chains:     reg,
		Sizer:      sizing.NewSizer(cfg),
		Allocation: h.alloc,
		Planner:    directPlanner{},
		Validator:  h.preflight,
		Stats:      h.stats,
		Journal:    h.journal,
		Notifier:   h.notifier,
	}, h.metrics, zaptest.NewLogger(t))
	return h
}

func (h *harness) confirmWith(status uint64, logs ...*ethtypes.Log) {
	h.client.ReceiptFor = func(*ethtypes.Transaction) *ethtypes.Receipt {
		return testutils.Receipt(status, logs...)
	}
}

func whole(n int64, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil))
}

// opportunity sells WETH for USDC at 2100 and buys it back at 2000
func opportunity(tokenOut common.Address) *types.Opportunity {
	return &types.Opportunity{
		Network:           types.Base,
		Strategy:          types.StrategyDirect,
		TokenIn:           weth,
		TokenOut:          tokenOut,
		TokenInDecimals:   18,
		TokenInUSD:        2000,
		AmountIn:          big.NewInt(1e17),
		ExpectedAmountOut: big.NewInt(1e17),
		ProfitUSD:         10,
		Route: []*types.PoolLeg{
			{
				Kind: types.ConstantProduct, FeeBps: 30, RouterAddress: common.HexToAddress("0xe1"),
				TokenIn: weth, TokenOut: tokenOut, DecimalsIn: 18, DecimalsOut: 6,
				ReserveIn: whole(1000, 18), ReserveOut: whole(2_100_000, 6),
			},
			{
				Kind: types.ConstantProduct, FeeBps: 30, RouterAddress: common.HexToAddress("0xe2"),
				TokenIn: tokenOut, TokenOut: weth, DecimalsIn: 6, DecimalsOut: 18,
				ReserveIn: whole(2_000_000, 6), ReserveOut: whole(1000, 18),
			},
		},
		GasEstimate: 300000,
		Deadline:    time.Now().Add(30 * time.Second),
		Confidence:  0.9,
		DetectedAt:  time.Now(),
	}
}

func executedLog(token common.Address, profit *big.Int) *ethtypes.Log {
	event := contract.ABI().Events[contract.EventExecuted]
	return &ethtypes.Log{
		Address: arbContract,
		Topics:  []common.Hash{event.ID, common.BytesToHash(token.Bytes())},
		Data:    testutils.Encode([]string{"uint256", "uint256"}, profit, big.NewInt(180000)),
	}
}

func TestExecuteConfirmed(t *testing.T) {
	h := newHarness(t)
	h.confirmWith(ethtypes.ReceiptStatusSuccessful, executedLog(weth, big.NewInt(1e16)))
	opp := opportunity(usdc)

	rec, err := h.coordinator.Execute(context.Background(), opp)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, types.OutcomeConfirmed, rec.Outcome)
	assert.True(t, rec.Success)
	require.NotNil(t, rec.ActualProfitUSD)
	assert.InDelta(t, 20.0, *rec.ActualProfitUSD, 1e-9)
	require.NotNil(t, rec.GasUsed)
	assert.Equal(t, uint64(210_000), *rec.GasUsed)
	assert.Equal(t, StateIdle, h.coordinator.State())

	// sized to capital x confidence: 10000 x 0.25 x 0.9 = $2250 of WETH
	sized := h.preflight.last()
	assert.Equal(t, "1125000000000000000", sized.AmountIn.String())
	assert.Greater(t, sized.ProfitUSD, 0.0)
	assert.Equal(t, "100000000000000000", opp.AmountIn.String(), "the detected opportunity is not mutated")

	sent := h.client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, arbContract, *sent[0].To())
	assert.Equal(t, uint64(300000), sent[0].Gas())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, sent[0].Data())
	assert.Equal(t, *rec.TxHash, sent[0].Hash())

	rate, samples := h.stats.SuccessRate(types.Base)
	assert.Equal(t, 1.0, rate)
	assert.Equal(t, 1, samples)
	assert.Equal(t, 1, h.alloc.Daily(types.Base).Successes)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Executions.WithLabelValues("base", "confirmed")))
	assert.InDelta(t, 20.0, testutil.ToFloat64(h.metrics.RealizedProfitUSD.WithLabelValues("base")), 1e-9)

	require.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, "Arbitrage confirmed on base: $20.00", h.notifier.alerts[0].title)
	assert.False(t, h.notifier.alerts[0].urgent)
	require.Len(t, h.journal.records, 1)
	assert.Equal(t, rec.ID, h.journal.records[0].ID)
}

func TestExecuteFallsBackToEstimatedProfit(t *testing.T) {
	h := newHarness(t)
	h.confirmWith(ethtypes.ReceiptStatusSuccessful)

	rec, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
	require.NoError(t, err)
	require.NotNil(t, rec.ActualProfitUSD)
	assert.Equal(t, h.preflight.last().ProfitUSD, *rec.ActualProfitUSD)
}

func TestExecuteCooldown(t *testing.T) {
	h := newHarness(t)
	h.confirmWith(ethtypes.ReceiptStatusSuccessful)

	_, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
	require.NoError(t, err)
	calls := h.client.TotalCalls()

	rec, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
	assert.ErrorIs(t, err, ErrCooldown)
	assert.Nil(t, rec)
	assert.Equal(t, calls, h.client.TotalCalls(), "cooldown rejects without touching the chain")
	assert.Equal(t, 1, h.preflight.calls())

	// a different pair is not affected
	_, err = h.coordinator.Execute(context.Background(), opportunity(dai))
	assert.NoError(t, err)
}

func TestExecuteSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.confirmWith(ethtypes.ReceiptStatusSuccessful)
	h.preflight.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
		done <- err
	}()
	require.Eventually(t, func() bool { return h.preflight.calls() == 1 }, time.Second, time.Millisecond)

	_, err := h.coordinator.Execute(context.Background(), opportunity(dai))
	assert.ErrorIs(t, err, ErrBusy)

	close(h.preflight.gate)
	require.NoError(t, <-done)
	assert.Len(t, h.client.Sent(), 1)
	assert.Equal(t, 1, h.preflight.calls())
	assert.Equal(t, StateIdle, h.coordinator.State())
}

func TestExecuteTimedOut(t *testing.T) {
	h := newHarness(t)

	rec, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeTimedOut, rec.Outcome)
	assert.False(t, rec.Success)
	assert.NotNil(t, rec.TxHash)
	assert.Contains(t, rec.FailureReason, types.ErrConfirmationTimedOut.Error())

	assert.Len(t, h.client.Sent(), 1, "no automatic resubmission")
	assert.True(t, h.coordinator.cooldown.Active(rec.OpportunityKey, time.Now()))
	_, samples := h.stats.SuccessRate(types.Base)
	assert.Zero(t, samples, "an unknown outcome is not a sample")
	assert.Equal(t, StateIdle, h.coordinator.State())

	require.Len(t, h.notifier.alerts, 1)
	assert.True(t, h.notifier.alerts[0].urgent)
}

func TestExecuteReverted(t *testing.T) {
	h := newHarness(t)
	h.confirmWith(ethtypes.ReceiptStatusFailed)

	rec, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeReverted, rec.Outcome)
	assert.Nil(t, rec.ActualProfitUSD)

	rate, samples := h.stats.SuccessRate(types.Base)
	assert.Equal(t, 0.0, rate)
	assert.Equal(t, 1, samples)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Executions.WithLabelValues("base", "reverted")))
	assert.True(t, h.coordinator.cooldown.Active(rec.OpportunityKey, time.Now()))
}

func TestExecuteRejectedByPreflight(t *testing.T) {
	h := newHarness(t)
	h.preflight.reject = &types.RejectionError{Check: simulator.CheckGasMargin, Reason: "gas too high", Transient: true}

	rec, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidationRejected))
	var rejection *types.RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.True(t, rejection.Transient)

	assert.Equal(t, types.OutcomeRejected, rec.Outcome)
	assert.Empty(t, h.client.Sent())
	assert.False(t, h.coordinator.cooldown.Active(rec.OpportunityKey, time.Now()), "rejections do not cool down")
	assert.Empty(t, h.notifier.alerts)
	assert.Equal(t, StateIdle, h.coordinator.State())
}

func TestExecuteRejectsExpired(t *testing.T) {
	h := newHarness(t)
	opp := opportunity(usdc)
	opp.Deadline = time.Now().Add(-time.Second)

	_, err := h.coordinator.Execute(context.Background(), opp)
	var rejection *types.RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, CheckDeadline, rejection.Check)
	assert.Zero(t, h.preflight.calls())
}

func TestExecuteSubmissionFailures(t *testing.T) {
	t.Run("nonce is retryable and resyncs", func(t *testing.T) {
		h := newHarness(t)
		h.client.SendHook = func(*ethtypes.Transaction) error { return errors.New("nonce too low") }

		rec, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
		require.Error(t, err)
		assert.True(t, types.IsRetryable(err))
		assert.True(t, errors.Is(err, types.ErrSubmissionFailed))
		assert.Equal(t, types.OutcomeFailed, rec.Outcome)
		assert.False(t, h.coordinator.cooldown.Active(rec.OpportunityKey, time.Now()))
		assert.Equal(t, 1, h.client.Calls("PendingNonceAt"))

		h.client.SendHook = nil
		h.confirmWith(ethtypes.ReceiptStatusSuccessful)
		_, err = h.coordinator.Execute(context.Background(), opportunity(usdc))
		require.NoError(t, err)
		assert.Equal(t, 2, h.client.Calls("PendingNonceAt"), "nonce is read again after a nonce error")
	})

	t.Run("insufficient funds cools down", func(t *testing.T) {
		h := newHarness(t)
		h.client.SendHook = func(*ethtypes.Transaction) error {
			return errors.New("insufficient funds for gas * price + value")
		}

		rec, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
		require.Error(t, err)
		assert.False(t, types.IsRetryable(err))
		var subErr *types.SubmissionError
		require.True(t, errors.As(err, &subErr))
		assert.Equal(t, types.FailureInsufficientFunds, subErr.Class)
		assert.True(t, h.coordinator.cooldown.Active(rec.OpportunityKey, time.Now()))
		require.Len(t, h.notifier.alerts, 1)
		assert.True(t, h.notifier.alerts[0].urgent)
	})
}

func TestNonceAdvancesAcrossExecutions(t *testing.T) {
	h := newHarness(t)
	h.confirmWith(ethtypes.ReceiptStatusSuccessful)
	h.client.Nonce = 7

	_, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
	require.NoError(t, err)
	_, err = h.coordinator.Execute(context.Background(), opportunity(dai))
	require.NoError(t, err)

	sent := h.client.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, uint64(7), sent[0].Nonce())
	assert.Equal(t, uint64(8), sent[1].Nonce())
	assert.Equal(t, 1, h.client.Calls("PendingNonceAt"))
}

func TestShutdownWaitsForInFlight(t *testing.T) {
	h := newHarness(t)
	h.confirmWith(ethtypes.ReceiptStatusSuccessful)
	h.preflight.gate = make(chan struct{})

	executed := make(chan error, 1)
	go func() {
		_, err := h.coordinator.Execute(context.Background(), opportunity(usdc))
		executed <- err
	}()
	require.Eventually(t, func() bool { return h.preflight.calls() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		h.coordinator.Shutdown()
		close(stopped)
	}()

	require.Eventually(t, h.coordinator.IsShutdown, time.Second, time.Millisecond)
	_, err := h.coordinator.Execute(context.Background(), opportunity(dai))
	assert.ErrorIs(t, err, ErrShuttingDown)

	select {
	case <-stopped:
		t.Fatal("shutdown returned while an execution was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(h.preflight.gate)
	require.NoError(t, <-executed)
	<-stopped
	assert.Len(t, h.client.Sent(), 1)
}
