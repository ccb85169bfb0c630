package execution

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/contract"
	"github.com/michaelpento.lv/arbengine/dex"
	"github.com/michaelpento.lv/arbengine/flashloan"
	"github.com/michaelpento.lv/arbengine/notify"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/simulator"
	"github.com/michaelpento.lv/arbengine/sizing"
	"github.com/michaelpento.lv/arbengine/types"
	arbmath "github.com/michaelpento.lv/arbengine/utils/math"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"go.uber.org/zap"
)

// Checks run by the coordinator itself before preflight
const (
	CheckDeadline = "deadline"
	CheckSizing   = "sizing"
	CheckFunding  = "funding"
)

// Preflight validates a sized, funded opportunity. *simulator.Validator implements it.
type Preflight interface {
	Validate(ctx context.Context, opp *types.Opportunity, plan flashloan.Plan) *simulator.Verdict
}

// FundingPlanner decides how a position is funded. *flashloan.Planner implements it.
type FundingPlanner interface {
	Plan(ctx context.Context, n types.Network, token common.Address, amount *big.Int, positionUSD float64) (flashloan.Plan, error)
}

// Journal stores finished executions for operators
type Journal interface {
	Record(ctx context.Context, rec *types.ExecutionRecord) error
}

var (
	_ Preflight      = (*simulator.Validator)(nil)
	_ FundingPlanner = (*flashloan.Planner)(nil)
)

// Deps are the collaborators of a Coordinator. Journal may be nil.
type Deps struct {
	Chains     simulator.ChainSource
	Sizer      *sizing.Sizer
	Allocation *sizing.Allocation
	Planner    FundingPlanner
	Validator  Preflight
	Stats      *RollingStats
	Journal    Journal
	Notifier   notify.Notifier
}

// Coordinator drives one opportunity at a time through validation, submission
// and confirmation. A request arriving while another is in flight is refused.
type Coordinator struct {
	cfg      *config.Config
	deps     Deps
	cooldown *Cooldown
	nonces   *NonceTracker
	metrics  *metrics.EngineMetrics
	logger   *zap.Logger

	mu       sync.Mutex
	state    State
	closed   bool
	inflight sync.WaitGroup

	now func() time.Time
}

// NewCoordinator creates an idle coordinator
func NewCoordinator(cfg *config.Config, deps Deps, m *metrics.EngineMetrics, logger *zap.Logger) *Coordinator {
	if deps.Stats == nil {
		deps.Stats = NewRollingStats(cfg.StatsWindow)
	}
	return &Coordinator{
		cfg:      cfg,
		deps:     deps,
		cooldown: NewCooldown(),
		nonces:   NewNonceTracker(),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// State returns the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Execute takes opp from Idle to a terminal state and back. The returned record
// describes the attempt; the error is set when the attempt was refused,
// rejected by validation, or failed to submit.
func (c *Coordinator) Execute(ctx context.Context, opp *types.Opportunity) (*types.ExecutionRecord, error) {
	key := opp.Key()
	if remaining := c.cooldown.Remaining(key, c.now()); remaining > 0 {
		return nil, fmt.Errorf("%w: %s for another %s", ErrCooldown, key, remaining.Round(time.Millisecond))
	}

	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	chain, err := c.deps.Chains.Chain(opp.Network)
	if err != nil {
		return nil, err
	}
	nc := chain.Config

	rec := &types.ExecutionRecord{
		ID:             uuid.NewString(),
		OpportunityKey: key,
		Network:        opp.Network,
		Strategy:       opp.Strategy,
		Timestamp:      c.now(),
		AmountIn:       opp.AmountIn.String(),
		EstimatedUSD:   opp.ProfitUSD,
	}

	// Validating
	sized, plan, verdict, rejection := c.prepare(ctx, nc, opp)
	if rejection != nil {
		rec.Outcome = types.OutcomeRejected
		rec.FailureReason = rejection.Error()
		c.metrics.Executions.WithLabelValues(opp.Network.String(), string(rec.Outcome)).Inc()
		return rec, rejection
	}
	rec.FlashLoan = plan.Flash
	rec.AmountIn = sized.AmountIn.String()
	rec.EstimatedUSD = sized.ProfitUSD

	// The transaction must be tracked to the end once it is being built
	ctx = context.WithoutCancel(ctx)

	// Submitting
	c.setState(StateSubmitting)
	tx, err := c.submit(ctx, chain, verdict)
	if err != nil {
		subErr := Classify(err)
		if subErr.Class == types.FailureNonce {
			c.nonces.Reset(opp.Network)
		}
		rec.Outcome = types.OutcomeFailed
		rec.FailureReason = subErr.Error()
		if !subErr.Retryable {
			c.cooldown.Mark(key, c.now(), nc.Cooldown)
		}
		c.logger.Error("Failed to submit arbitrage",
			zap.String("id", rec.ID),
			zap.String("key", key),
			zap.String("class", string(subErr.Class)),
			zap.Bool("retryable", subErr.Retryable),
			zap.Error(err))
		c.report(ctx, rec, plan)
		return rec, subErr
	}
	hash := tx.Hash()
	rec.TxHash = &hash

	// AwaitingConfirmation
	c.setState(StateAwaitingConfirmation)
	receipt, err := c.await(ctx, chain, hash)

	switch {
	case err != nil:
		c.setState(StateTimedOut)
		rec.Outcome = types.OutcomeTimedOut
		rec.FailureReason = fmt.Sprintf("%v: no receipt within %s", types.ErrConfirmationTimedOut, nc.ConfirmationTimeout)

	case receipt.Status == ethtypes.ReceiptStatusSuccessful:
		c.setState(StateConfirmed)
		rec.Outcome = types.OutcomeConfirmed
		rec.Success = true
		profit := c.realizedProfit(chain, receipt, sized)
		rec.ActualProfitUSD = &profit
		gasUsed := receipt.GasUsed
		rec.GasUsed = &gasUsed

	default:
		c.setState(StateReverted)
		rec.Outcome = types.OutcomeReverted
		rec.FailureReason = "transaction reverted on chain"
		gasUsed := receipt.GasUsed
		rec.GasUsed = &gasUsed
	}

	c.cooldown.Mark(key, c.now(), nc.Cooldown)
	c.report(ctx, rec, plan)
	return rec, nil
}

// prepare sizes opp, re-quotes the route at that size, plans funding and runs preflight
func (c *Coordinator) prepare(ctx context.Context, nc *config.NetworkConfig, opp *types.Opportunity) (*types.Opportunity, flashloan.Plan, *simulator.Verdict, *types.RejectionError) {
	if opp.Expired(c.now()) {
		return nil, flashloan.Plan{}, nil, c.reject(opp, CheckDeadline, "deadline passed before execution", false)
	}

	pos := c.deps.Sizer.Size(opp, c.deps.Allocation)
	if pos.AmountIn == nil || pos.AmountIn.Sign() <= 0 {
		return nil, flashloan.Plan{}, nil, c.reject(opp, CheckSizing, "position size is zero", false)
	}

	out := dex.QuoteRoute(opp.Route, pos.AmountIn)
	gain := new(big.Int).Sub(out, pos.AmountIn)
	profit := arbmath.ToFloat(gain, opp.TokenInDecimals) * opp.TokenInUSD
	sized := opp.WithAmount(pos.AmountIn, out, profit)

	plan, err := c.deps.Planner.Plan(ctx, opp.Network, opp.TokenIn, pos.AmountIn, pos.USD)
	if err != nil {
		return nil, flashloan.Plan{}, nil, c.reject(opp, CheckFunding, err.Error(), true)
	}
	sized.ProfitUSD -= plan.FeeUSD(pos.USD)

	verdict := c.deps.Validator.Validate(ctx, sized, plan)
	if !verdict.Passed() {
		return nil, plan, verdict, verdict.Rejection
	}

	c.logger.Debug("Opportunity passed preflight",
		zap.String("key", opp.Key()),
		zap.Float64("position_usd", pos.USD),
		zap.String("funding", plan.String()),
		zap.Float64("net_profit_usd", verdict.NetProfitUSD))
	return sized, plan, verdict, nil
}

func (c *Coordinator) reject(opp *types.Opportunity, check, reason string, transient bool) *types.RejectionError {
	c.metrics.Rejections.WithLabelValues(opp.Network.String(), check).Inc()
	c.logger.Info("Opportunity rejected",
		zap.String("key", opp.Key()),
		zap.String("check", check),
		zap.String("reason", reason))
	return &types.RejectionError{Check: check, Reason: reason, Transient: transient}
}

func (c *Coordinator) submit(ctx context.Context, chain *rpc.Chain, verdict *simulator.Verdict) (*ethtypes.Transaction, error) {
	if c.cfg.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RPCTimeout)
		defer cancel()
	}

	nonce, err := c.nonces.Next(ctx, chain.Network, chain.Client, chain.Wallet.Address)
	if err != nil {
		return nil, err
	}

	tx, err := buildTx(chain, nonce, verdict.GasPrice, verdict.GasLimit, verdict.Calldata)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := chain.Client.SendTransaction(ctx, tx); err != nil {
		return nil, err
	}
	c.nonces.Commit(chain.Network, nonce)

	c.logger.Info("Submitted arbitrage",
		zap.String("network", chain.Network.String()),
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", verdict.GasLimit))
	return tx, nil
}

// await waits for the receipt until the network confirmation timeout
func (c *Coordinator) await(ctx context.Context, chain *rpc.Chain, hash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, chain.Config.ConfirmationTimeout)
	defer cancel()

	poll := c.cfg.ReceiptPollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return rpc.WaitForReceipt(ctx, chain.Client, hash, poll)
}

// realizedProfit values the contract's profit event, falling back to the
// estimate when the event is missing or in a token without a known price
func (c *Coordinator) realizedProfit(chain *rpc.Chain, receipt *ethtypes.Receipt, opp *types.Opportunity) float64 {
	ev, ok := contract.ParseExecuted(receipt.Logs, chain.Contract)
	if !ok {
		c.logger.Debug("No profit event in receipt, using estimate", zap.String("tx", receipt.TxHash.Hex()))
		return opp.ProfitUSD
	}

	decimals, usd := opp.TokenInDecimals, opp.TokenInUSD
	if ev.Token != opp.TokenIn {
		t, known := chain.Config.TokenByAddress(ev.Token)
		if !known {
			return opp.ProfitUSD
		}
		decimals, usd = t.Decimals, t.USDPrice
	}
	return arbmath.ToFloat(ev.Profit, decimals) * usd
}

// report updates statistics, metrics, the journal and the operators once an
// attempt reaches a terminal state
func (c *Coordinator) report(ctx context.Context, rec *types.ExecutionRecord, plan flashloan.Plan) {
	network := rec.Network.String()

	profit := 0.0
	if rec.ActualProfitUSD != nil {
		profit = *rec.ActualProfitUSD
	}

	if rec.Outcome == types.OutcomeConfirmed || rec.Outcome == types.OutcomeReverted {
		c.deps.Stats.Add(rec.Network, rec.Success)
		rate, _ := c.deps.Stats.SuccessRate(rec.Network)
		c.metrics.SuccessRate.WithLabelValues(network).Set(rate)
	}
	if rec.Outcome != types.OutcomeFailed {
		c.deps.Allocation.Record(rec.Network, rec.Success, profit)
	}
	c.metrics.Executions.WithLabelValues(network, string(rec.Outcome)).Inc()
	if rec.Success && profit > 0 {
		c.metrics.RealizedProfitUSD.WithLabelValues(network).Add(profit)
	}

	if c.deps.Journal != nil {
		if err := c.deps.Journal.Record(ctx, rec); err != nil {
			c.logger.Warn("Failed to journal execution", zap.String("id", rec.ID), zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("id", rec.ID),
		zap.String("key", rec.OpportunityKey),
		zap.String("outcome", string(rec.Outcome)),
		zap.String("funding", plan.String()),
		zap.Float64("estimated_usd", rec.EstimatedUSD),
	}
	if rec.TxHash != nil {
		fields = append(fields, zap.String("tx", rec.TxHash.Hex()))
	}
	switch rec.Outcome {
	case types.OutcomeConfirmed:
		c.logger.Info("Arbitrage confirmed", append(fields, zap.Float64("profit_usd", profit))...)
	case types.OutcomeTimedOut:
		c.logger.Warn("Arbitrage confirmation timed out", fields...)
	default:
		c.logger.Error("Arbitrage failed", append(fields, zap.String("reason", rec.FailureReason))...)
	}

	if c.deps.Notifier != nil {
		title, body, urgent := describe(rec, plan, profit)
		if err := c.deps.Notifier.Notify(ctx, title, body, urgent); err != nil {
			c.logger.Warn("Failed to notify", zap.Error(err))
		}
	}
}

func describe(rec *types.ExecutionRecord, plan flashloan.Plan, profit float64) (title, body string, urgent bool) {
	tx := "none"
	if rec.TxHash != nil {
		tx = rec.TxHash.Hex()
	}
	body = fmt.Sprintf("%s via %s (%s)\nestimated $%.2f\ntx %s", rec.OpportunityKey, rec.Strategy, plan, rec.EstimatedUSD, tx)

	switch rec.Outcome {
	case types.OutcomeConfirmed:
		return fmt.Sprintf("Arbitrage confirmed on %s: $%.2f", rec.Network, profit), body, false
	case types.OutcomeTimedOut:
		return fmt.Sprintf("Arbitrage unconfirmed on %s", rec.Network), body, true
	case types.OutcomeReverted:
		return fmt.Sprintf("Arbitrage reverted on %s", rec.Network), body, true
	default:
		return fmt.Sprintf("Arbitrage failed on %s", rec.Network), body + "\n" + rec.FailureReason, true
	}
}

func (c *Coordinator) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrShuttingDown
	}
	if c.state != StateIdle {
		return fmt.Errorf("%w: %s", ErrBusy, c.state)
	}
	c.inflight.Add(1)
	c.state = StateValidating
	c.metrics.CoordinatorState.Set(float64(c.state))
	return nil
}

func (c *Coordinator) release() {
	c.setState(StateIdle)
	c.inflight.Done()
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.metrics.CoordinatorState.Set(float64(s))
}

// Shutdown refuses new executions and waits for the one in flight to finish
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.inflight.Wait()
}

// IsShutdown reports whether Shutdown was called
func (c *Coordinator) IsShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
